// Copyright © 2019 NVIDIA Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package changer

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/pkg/errors"

	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

// searchOrder is the order in which groups are searched for an address.
var searchOrder = [...]scsi.ElementType{
	scsi.ElementDataTransfer,
	scsi.ElementTransport,
	scsi.ElementStorage,
	scsi.ElementImportExport,
}

type elementRef struct {
	typ scsi.ElementType
	idx int
}

// Inventory holds the element records of the last successful status
// refresh, one array per element type. Records are replaced wholesale
// by Commit and never patched in place.
type Inventory struct {
	groups [scsi.ElementDataTransfer + 1][]scsi.ElementRecord
	index  *treemap.Map // map[int]elementRef
	valid  bool
}

func NewInventory() *Inventory {
	return &Inventory{index: treemap.NewWithIntComparator()}
}

// Valid reports whether the records reflect the device since the last
// move, reset or retried command.
func (inv *Inventory) Valid() bool {
	return inv.valid
}

func (inv *Inventory) Invalidate() {
	inv.valid = false
}

// Commit replaces the inventory with records. Every address must be
// unique across all element types; otherwise the inventory is left as
// it was.
func (inv *Inventory) Commit(records []scsi.ElementRecord) error {
	var groups [scsi.ElementDataTransfer + 1][]scsi.ElementRecord
	index := treemap.NewWithIntComparator()
	for _, rec := range records {
		if !rec.Type.Valid() {
			panic("never")
		}
		if prev, dup := index.Get(int(rec.Address)); dup {
			return errors.Wrapf(ErrDuplicateAddr, "address %d is both %s and %s", rec.Address, prev.(elementRef).typ, rec.Type)
		}
		index.Put(int(rec.Address), elementRef{rec.Type, len(groups[rec.Type])})
		groups[rec.Type] = append(groups[rec.Type], rec)
	}
	inv.groups = groups
	inv.index = index
	inv.valid = true
	return nil
}

// Reset drops every record.
func (inv *Inventory) Reset() {
	inv.groups = [scsi.ElementDataTransfer + 1][]scsi.ElementRecord{}
	inv.index.Clear()
	inv.valid = false
}

// Lookup finds the record for addr, searching data transfer, transport,
// storage and import/export elements in that order.
func (inv *Inventory) Lookup(addr uint16) (*scsi.ElementRecord, bool) {
	for _, t := range searchOrder {
		g := inv.groups[t]
		for i := range g {
			if g[i].Address == addr {
				return &g[i], true
			}
		}
	}
	return nil, false
}

// Len returns the number of elements of type t.
func (inv *Inventory) Len(t scsi.ElementType) int {
	return len(inv.groups[t])
}

// At returns the i'th element of type t.
func (inv *Inventory) At(t scsi.ElementType, i int) (*scsi.ElementRecord, bool) {
	g := inv.groups[t]
	if i < 0 || i >= len(g) {
		return nil, false
	}
	return &g[i], true
}

// IndexOf returns the position of addr within its type group.
func (inv *Inventory) IndexOf(addr uint16) (scsi.ElementType, int, bool) {
	v, ok := inv.index.Get(int(addr))
	if !ok {
		return scsi.ElementAll, -1, false
	}
	ref := v.(elementRef)
	return ref.typ, ref.idx, true
}

// Group returns a copy of the records of type t.
func (inv *Inventory) Group(t scsi.ElementType) []scsi.ElementRecord {
	return append([]scsi.ElementRecord(nil), inv.groups[t]...)
}

// Sorted returns every record in ascending address order.
func (inv *Inventory) Sorted() []scsi.ElementRecord {
	out := make([]scsi.ElementRecord, 0, inv.index.Size())
	it := inv.index.Iterator()
	for it.Next() {
		ref := it.Value().(elementRef)
		out = append(out, inv.groups[ref.typ][ref.idx])
	}
	return out
}

// FindEmpty returns the index of the first empty element of type t at
// or after start. A zero count scans to the end of the group; otherwise
// at most count elements are examined.
func (inv *Inventory) FindEmpty(t scsi.ElementType, start, count int) (int, bool) {
	g := inv.groups[t]
	if start < 0 || start >= len(g) {
		return -1, false
	}
	end := len(g)
	if count > 0 && count < end-start {
		end = start + count
	}
	for i := start; i < end; i++ {
		if g[i].Status == scsi.Empty {
			return i, true
		}
	}
	return -1, false
}

// FindTag returns the first element of type t carrying volume tag tag.
func (inv *Inventory) FindTag(t scsi.ElementType, tag string) (int, bool) {
	for i, rec := range inv.groups[t] {
		if rec.Status == scsi.Full && rec.HasVolumeTag && rec.VolumeTag == tag {
			return i, true
		}
	}
	return -1, false
}
