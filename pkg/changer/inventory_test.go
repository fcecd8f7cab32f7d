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

package changer_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/chgscsi/pkg/changer"
	"github.com/NVIDIA/chgscsi/pkg/device/sim"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

func rec(t scsi.ElementType, addr uint16, full bool) scsi.ElementRecord {
	r := scsi.ElementRecord{Type: t, Address: addr}
	if full {
		r.Status = scsi.Full
	}
	return r
}

func TestInventoryCommit(t *testing.T) {
	inv := changer.NewInventory()
	assert.False(t, inv.Valid())

	require.NoError(t, inv.Commit([]scsi.ElementRecord{
		rec(scsi.ElementStorage, 0x22, true),
		rec(scsi.ElementDataTransfer, 0x100, false),
		rec(scsi.ElementStorage, 0x20, false),
		rec(scsi.ElementTransport, 0x01, false),
	}))
	assert.True(t, inv.Valid())
	assert.Equal(t, 2, inv.Len(scsi.ElementStorage))
	assert.Equal(t, 0, inv.Len(scsi.ElementImportExport))

	typ, i, ok := inv.IndexOf(0x20)
	require.True(t, ok)
	assert.Equal(t, scsi.ElementStorage, typ)
	assert.Equal(t, 1, i)

	var addrs []uint16
	for _, r := range inv.Sorted() {
		addrs = append(addrs, r.Address)
	}
	assert.Equal(t, []uint16{0x01, 0x20, 0x22, 0x100}, addrs)

	inv.Invalidate()
	assert.False(t, inv.Valid())
	_, ok = inv.Lookup(0x100)
	assert.True(t, ok)

	inv.Reset()
	_, ok = inv.Lookup(0x100)
	assert.False(t, ok)
}

func TestInventoryDuplicateAddress(t *testing.T) {
	inv := changer.NewInventory()
	require.NoError(t, inv.Commit([]scsi.ElementRecord{
		rec(scsi.ElementStorage, 0x20, true),
	}))

	err := inv.Commit([]scsi.ElementRecord{
		rec(scsi.ElementStorage, 0x30, false),
		rec(scsi.ElementDataTransfer, 0x30, false),
	})
	assert.True(t, errors.Is(err, changer.ErrDuplicateAddr))

	r, ok := inv.Lookup(0x20)
	require.True(t, ok)
	assert.Equal(t, scsi.Full, r.Status)
	_, ok = inv.Lookup(0x30)
	assert.False(t, ok)
}

func TestInventoryFindEmpty(t *testing.T) {
	inv := changer.NewInventory()
	require.NoError(t, inv.Commit([]scsi.ElementRecord{
		rec(scsi.ElementStorage, 0x20, true),
		rec(scsi.ElementStorage, 0x21, false),
		rec(scsi.ElementStorage, 0x22, true),
	}))

	i, ok := inv.FindEmpty(scsi.ElementStorage, 0, 0)
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = inv.FindEmpty(scsi.ElementStorage, 2, 0)
	assert.False(t, ok)
	_, ok = inv.FindEmpty(scsi.ElementStorage, 0, 1)
	assert.False(t, ok)
	_, ok = inv.FindEmpty(scsi.ElementStorage, 3, 0)
	assert.False(t, ok)
	_, ok = inv.FindEmpty(scsi.ElementStorage, -1, 0)
	assert.False(t, ok)
	_, ok = inv.FindEmpty(scsi.ElementImportExport, 0, 0)
	assert.False(t, ok)

	maxInt := int(^uint(0) >> 1)
	i, ok = inv.FindEmpty(scsi.ElementStorage, 1, maxInt)
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	i, ok = inv.FindEmpty(scsi.ElementStorage, 0, maxInt-1)
	assert.True(t, ok)
	assert.Equal(t, 1, i)
}

func TestRefreshIdempotent(t *testing.T) {
	tl := newTestLibrary(slots(5))
	tl.Put(scsi.ElementStorage, 1, "A00002")
	tl.Put(scsi.ElementDataTransfer, 0, "A00007")
	s := tl.session(t)
	defer s.Close()

	require.NoError(t, s.Refresh())
	first := s.Inventory().Sorted()
	require.NoError(t, s.Refresh())
	assert.Equal(t, first, s.Inventory().Sorted())
}

func TestRefreshTruncatedResponseKeepsInventory(t *testing.T) {
	tl := newTestLibrary(slots(5))
	tl.Put(scsi.ElementStorage, 0, "A00001")
	tl.Put(scsi.ElementStorage, 3, "A00004")
	s := tl.session(t)
	defer s.Close()

	require.NoError(t, s.Refresh())
	before := s.Inventory().Sorted()
	require.NotEmpty(t, before)

	// The header byte count matches the data but the page's own length
	// runs past it.
	full := scsi.EncodeElementStatus(scsi.ElementStatusPage{
		Type:      scsi.ElementTransport,
		VolumeTag: true,
		Records: []scsi.ElementRecord{{
			Type:         scsi.ElementTransport,
			Address:      simdriver.TransportBase,
			Status:       scsi.Full,
			HasVolumeTag: true,
			VolumeTag:    "B00001",
		}},
	})
	short := append([]byte(nil), full[:len(full)-10]...)
	remaining := len(short) - 8
	short[5], short[6], short[7] = byte(remaining>>16), byte(remaining>>8), byte(remaining)
	tl.InjectFault(simdriver.Fault{Op: scsi.OpReadElementStatus, Data: short})

	err := s.Refresh()
	require.Error(t, err)
	assert.True(t, scsi.IsTruncated(err), "%v", err)
	assert.Equal(t, before, s.Inventory().Sorted())

	require.NoError(t, s.Refresh())
	assert.Equal(t, before, s.Inventory().Sorted())
}

func TestRefreshWithoutAddressAssignment(t *testing.T) {
	cfg := slots(5)
	cfg.NoAddressAssignment = true
	tl := newTestLibrary(cfg)
	tl.Put(scsi.ElementStorage, 4, "A00005")
	s := tl.session(t)
	defer s.Close()

	recs, err := s.Status()
	require.NoError(t, err)
	assert.Len(t, recs, 1+1+5+2)

	withEAA := newTestLibrary(slots(5))
	withEAA.Put(scsi.ElementStorage, 4, "A00005")
	s2 := withEAA.session(t)
	defer s2.Close()
	recs2, err := s2.Status()
	require.NoError(t, err)
	assert.Equal(t, recs2, recs)
}

func TestImportExportExceptionRescan(t *testing.T) {
	tl := newTestLibrary(slots(3))
	port := tl.Element(scsi.ElementImportExport, 0)
	port.Exception = true
	port.ASC = scsi.AscNotReadyToReady
	port.ASCQ = scsi.AscqImportExportAccessed
	s := tl.session(t)
	defer s.Close()

	recs, err := s.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, tl.Count(scsi.OpInitializeElementStatus))
	for _, r := range recs {
		assert.False(t, r.Exception)
	}
}

func TestImportExportExceptionWithoutInitStatus(t *testing.T) {
	tl := newTestLibrary(slots(3))
	port := tl.Element(scsi.ElementImportExport, 0)
	port.Exception = true
	port.ASC = scsi.AscNotReadyToReady
	port.ASCQ = scsi.AscqImportExportAccessed
	cfg := tl.config()
	cfg.InitStatus = false
	s := tl.open(t, cfg)
	defer s.Close()

	recs, err := s.Status()
	require.NoError(t, err)
	assert.Zero(t, tl.Count(scsi.OpInitializeElementStatus))

	r, ok := s.Inventory().Lookup(tl.address(scsi.ElementImportExport, 0))
	require.True(t, ok)
	assert.True(t, r.Exception)
	assert.Len(t, recs, 1+1+3+2)
}

func TestIgnoredExceptionsDoNotRescan(t *testing.T) {
	tl := newTestLibrary(slots(3))
	slot := tl.Element(scsi.ElementStorage, 1)
	slot.Exception = true
	slot.ASC = scsi.AscVendorBarcodeUnreadable
	s := tl.session(t)
	defer s.Close()

	require.NoError(t, s.Refresh())
	assert.Zero(t, tl.Count(scsi.OpInitializeElementStatus))
}

func TestElementStatusLayout(t *testing.T) {
	cfg := simdriver.DefaultConfig()
	cfg.Slots = 200
	tl := newTestLibrary(cfg)
	tl.Put(scsi.ElementStorage, 199, "A00200")
	s := tl.session(t)
	defer s.Close()

	n, err := s.SlotCount()
	require.NoError(t, err)
	assert.Equal(t, 200, n)

	r, err := s.Search("A00200")
	require.NoError(t, err)
	assert.Equal(t, tl.address(scsi.ElementStorage, 199), r.Address)
}
