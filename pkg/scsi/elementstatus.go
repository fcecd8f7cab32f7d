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

package scsi

import (
	"github.com/pkg/errors"

	"github.com/NVIDIA/chgscsi/pkg/safecast"
)

const (
	elementStatusHeaderLength = 8
	elementPageHeaderLength   = 8
	elementDescriptorMin      = 12

	// VolumeTagLength is the size of a primary or alternate volume tag
	// field; the first 32 bytes hold the label.
	VolumeTagLength = 36
	volumeTagLabel  = 32
)

// ElementStatus is the occupancy of an element.
type ElementStatus byte

const (
	Empty ElementStatus = iota
	Full
)

func (s ElementStatus) String() string {
	if s == Full {
		return "Full"
	}
	return "Empty"
}

// ElementRecord is one decoded element descriptor.
type ElementRecord struct {
	Type         ElementType
	Address      uint16
	Status       ElementStatus
	ImportExport bool
	Exception    bool
	Access       bool
	ExportEnable bool
	ImportEnable bool

	// ASC and ASCQ are meaningful only when Exception is set.
	ASC  byte
	ASCQ byte

	// Source is the address the medium was moved from, valid only when
	// SourceValid is set.
	SourceValid bool
	Invert      bool
	Source      uint16

	// VolumeTag is the barcode label, present only when HasVolumeTag.
	HasVolumeTag bool
	VolumeTag    string

	// Bus fields are reported only by data transfer elements.
	NotBus     bool
	IDValid    bool
	LUNValid   bool
	LUN        byte
	BusAddress byte
}

// ElementStatusHeader is the READ ELEMENT STATUS data header.
type ElementStatusHeader struct {
	FirstAddress uint16
	Count        uint16
	ByteCount    uint32
}

// ExceptionFunc is called synchronously for every descriptor whose
// exception bit is set, before decoding continues.
type ExceptionFunc func(rec *ElementRecord)

// ElementStatusLength returns the number of bytes the device reported as
// available, which may exceed the buffer when the allocation was short.
func ElementStatusLength(buf []byte) (int, error) {
	c := newCursor(buf, "element status header")
	if err := c.skip(5); err != nil {
		return 0, err
	}
	n, _ := c.u24()
	return elementStatusHeaderLength + int(n), nil
}

// DecodeElementStatus decodes a READ ELEMENT STATUS response. Either all
// records are returned or an error; a partial list is never returned.
func DecodeElementStatus(buf []byte, onException ExceptionFunc) (*ElementStatusHeader, []ElementRecord, error) {
	c := newCursor(buf, "element status header")
	if err := c.need(elementStatusHeaderLength); err != nil {
		return nil, nil, err
	}

	hdr := &ElementStatusHeader{}
	hdr.FirstAddress, _ = c.u16()
	hdr.Count, _ = c.u16()
	c.skip(1)
	hdr.ByteCount, _ = c.u24()

	body, err := c.sub(int(hdr.ByteCount), "element status data")
	if err != nil {
		return nil, nil, err
	}

	var records []ElementRecord
	var pending []int
	for body.remaining() > 0 {
		if err := body.need(elementPageHeaderLength); err != nil {
			return nil, nil, err
		}
		typ, _ := body.u8()
		flags, _ := body.u8()
		descLen, _ := body.u16()
		body.skip(1)
		pageBytes, _ := body.u24()

		t := ElementType(typ & 0x0f)
		if !t.Valid() {
			return nil, nil, errors.Errorf("scsi: element status page has invalid element type %d", typ&0x0f)
		}
		pvol := flags&0x80 != 0
		avol := flags&0x40 != 0

		need := elementDescriptorMin
		if pvol {
			need += VolumeTagLength
		}
		if avol {
			need += VolumeTagLength
		}
		if int(descLen) < need {
			return nil, nil, &TruncatedError{What: t.String() + " element descriptor", Off: body.off, Want: need, Have: int(descLen)}
		}

		page, err := body.sub(int(pageBytes), t.String()+" element status page")
		if err != nil {
			return nil, nil, err
		}
		for page.remaining() > 0 {
			d, err := page.sub(int(descLen), t.String()+" element descriptor")
			if err != nil {
				return nil, nil, err
			}
			rec := decodeElementDescriptor(d, t, pvol)
			records = append(records, rec)
			if rec.Exception {
				pending = append(pending, len(records)-1)
			}
		}
	}

	// Exceptions are reported only once the whole buffer is known to be
	// well formed.
	if onException != nil {
		for _, i := range pending {
			onException(&records[i])
		}
	}
	return hdr, records, nil
}

// decodeElementDescriptor reads a descriptor whose length has already
// been validated against the page flags.
func decodeElementDescriptor(c *cursor, t ElementType, pvol bool) ElementRecord {
	rec := ElementRecord{Type: t}
	rec.Address, _ = c.u16()
	flags, _ := c.u8()
	if flags&0x01 != 0 {
		rec.Status = Full
	}
	rec.ImportExport = flags&0x02 != 0
	rec.Exception = flags&0x04 != 0
	rec.Access = flags&0x08 != 0
	rec.ExportEnable = flags&0x10 != 0
	rec.ImportEnable = flags&0x20 != 0
	c.skip(1)
	rec.ASC, _ = c.u8()
	rec.ASCQ, _ = c.u8()

	bus, _ := c.u8()
	addr, _ := c.u8()
	if t == ElementDataTransfer {
		rec.NotBus = bus&0x80 != 0
		rec.IDValid = bus&0x20 != 0
		rec.LUNValid = bus&0x10 != 0
		rec.LUN = bus & 0x07
		rec.BusAddress = addr
	}
	c.skip(1)
	src, _ := c.u8()
	rec.SourceValid = src&0x80 != 0
	rec.Invert = src&0x40 != 0
	source, _ := c.u16()
	if rec.SourceValid {
		rec.Source = source
	}
	if pvol {
		tag, _ := c.bytes(VolumeTagLength)
		rec.HasVolumeTag = true
		rec.VolumeTag = trimString(tag[:volumeTagLabel])
	}
	return rec
}

// ElementStatusPage groups records of one type for EncodeElementStatus.
type ElementStatusPage struct {
	Type      ElementType
	VolumeTag bool
	Records   []ElementRecord
}

// EncodeElementStatus builds a READ ELEMENT STATUS response.
func EncodeElementStatus(pages ...ElementStatusPage) []byte {
	buf := make([]byte, elementStatusHeaderLength)
	var first uint16
	var count int
	for _, p := range pages {
		descLen := elementDescriptorMin
		if p.VolumeTag {
			descLen += VolumeTagLength
		}
		hdr := make([]byte, elementPageHeaderLength)
		hdr[0] = byte(p.Type)
		hdr[1] = boolBit(p.VolumeTag, 7)
		putUint16(hdr[2:4], uint16(descLen))
		putUint24(hdr[5:8], uint32(descLen*len(p.Records)))
		buf = append(buf, hdr...)

		for _, r := range p.Records {
			if count == 0 || r.Address < first {
				first = r.Address
			}
			count++
			buf = append(buf, encodeElementDescriptor(&r, descLen, p.VolumeTag)...)
		}
	}
	putUint16(buf[0:2], first)
	putUint16(buf[2:4], safecast.IntToUint16(count))
	putUint24(buf[5:8], safecast.IntToUint24(len(buf)-elementStatusHeaderLength))
	return buf
}

func encodeElementDescriptor(r *ElementRecord, descLen int, voltag bool) []byte {
	d := make([]byte, descLen)
	putUint16(d[0:2], r.Address)
	d[2] = boolBit(r.Status == Full, 0) | boolBit(r.ImportExport, 1) | boolBit(r.Exception, 2) |
		boolBit(r.Access, 3) | boolBit(r.ExportEnable, 4) | boolBit(r.ImportEnable, 5)
	d[4] = r.ASC
	d[5] = r.ASCQ
	if r.Type == ElementDataTransfer {
		d[6] = boolBit(r.NotBus, 7) | boolBit(r.IDValid, 5) | boolBit(r.LUNValid, 4) | r.LUN&0x07
		d[7] = r.BusAddress
	}
	d[9] = boolBit(r.SourceValid, 7) | boolBit(r.Invert, 6)
	if r.SourceValid {
		putUint16(d[10:12], r.Source)
	}
	if voltag {
		tag := d[12 : 12+volumeTagLabel]
		for i := range tag {
			tag[i] = ' '
		}
		copy(tag, r.VolumeTag)
	}
	return d
}
