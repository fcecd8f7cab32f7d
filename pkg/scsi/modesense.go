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
)

// Mode page codes understood by the decoder.
const (
	PageVendorUnique        = 0x00
	PageErrorRecovery       = 0x01
	PageDisconnectReconnect = 0x02
	PageAddressAssignment   = 0x1d
	PageCapabilities        = 0x1f
)

const (
	modeHeaderLength      = 4
	blockDescriptorLength = 8
)

// ModeHeader is the MODE SENSE(6) parameter list header.
type ModeHeader struct {
	DataLength            byte
	MediumType            byte
	DeviceSpecific        byte
	BlockDescriptorLength byte
}

// BlockDescriptor is a MODE SENSE(6) block descriptor.
type BlockDescriptor struct {
	DensityCode byte
	Blocks      uint32
	BlockLength uint32
}

// ModeParameters is a decoded MODE SENSE(6) response.
type ModeParameters struct {
	Header              ModeHeader
	Blocks              []BlockDescriptor
	VendorUnique        []byte
	ErrorRecovery       *ErrorRecoveryPage
	DisconnectReconnect *DisconnectReconnectPage
	AddressAssignment   *AddressAssignmentPage
	Capabilities        *CapabilitiesPage
	Other               map[byte][]byte
}

// ErrorRecoveryPage is mode page 0x01.
type ErrorRecoveryPage struct {
	AWRE              bool
	ARRE              bool
	TB                bool
	RC                bool
	EER               bool
	PER               bool
	DTE               bool
	DCR               bool
	ReadRetryCount    byte
	CorrectionSpan    byte
	HeadOffset        byte
	DataStrobeOffset  byte
	WriteRetryCount   byte
	RecoveryTimeLimit uint16
}

// DisconnectReconnectPage is mode page 0x02.
type DisconnectReconnectPage struct {
	BufferFullRatio     byte
	BufferEmptyRatio    byte
	BusInactivityLimit  uint16
	DisconnectTimeLimit uint16
	ConnectTimeLimit    uint16
	MaxBurstSize        uint16
}

// ElementRange is a contiguous run of element addresses of one type.
type ElementRange struct {
	First uint16
	Count uint16
}

// AddressAssignmentPage is the element address assignment page (0x1d).
type AddressAssignmentPage struct {
	Transport    ElementRange
	Storage      ElementRange
	ImportExport ElementRange
	DataTransfer ElementRange
}

// Range returns the address range of element type t.
func (p *AddressAssignmentPage) Range(t ElementType) ElementRange {
	switch t {
	case ElementTransport:
		return p.Transport
	case ElementStorage:
		return p.Storage
	case ElementImportExport:
		return p.ImportExport
	case ElementDataTransfer:
		return p.DataTransfer
	default:
		panic("never")
	}
}

// Bytes encodes the page including its two byte page header.
func (p *AddressAssignmentPage) Bytes() []byte {
	buf := make([]byte, 20)
	buf[0] = PageAddressAssignment
	buf[1] = 18
	for i, r := range []ElementRange{p.Transport, p.Storage, p.ImportExport, p.DataTransfer} {
		putUint16(buf[2+4*i:], r.First)
		putUint16(buf[4+4*i:], r.Count)
	}
	return buf
}

// CapabilitiesPage is the device capabilities page (0x1f). Move and
// Exchange are indexed [from][to] by element type minus one.
type CapabilitiesPage struct {
	StoreTransport    bool
	StoreStorage      bool
	StoreImportExport bool
	StoreDataTransfer bool
	Move              [4][4]bool
	Exchange          [4][4]bool
}

// CanMove reports whether the device accepts MOVE MEDIUM from an element
// of type from to an element of type to.
func (p *CapabilitiesPage) CanMove(from, to ElementType) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return p.Move[from-1][to-1]
}

// Bytes encodes the page including its two byte page header.
func (p *CapabilitiesPage) Bytes() []byte {
	buf := make([]byte, 20)
	buf[0] = PageCapabilities
	buf[1] = 18
	buf[2] = boolBit(p.StoreDataTransfer, 3) | boolBit(p.StoreImportExport, 2) |
		boolBit(p.StoreStorage, 1) | boolBit(p.StoreTransport, 0)
	for from := 0; from < 4; from++ {
		for to := 0; to < 4; to++ {
			buf[4+from] |= boolBit(p.Move[from][to], uint(to))
			buf[12+from] |= boolBit(p.Exchange[from][to], uint(to))
		}
	}
	return buf
}

// DecodeModeSense decodes a MODE SENSE(6) response. Pages are decoded in
// order until the mode data length from the header is consumed.
func DecodeModeSense(buf []byte) (*ModeParameters, error) {
	c := newCursor(buf, "mode parameter header")
	if err := c.need(modeHeaderLength); err != nil {
		return nil, err
	}

	mp := &ModeParameters{}
	mp.Header.DataLength, _ = c.u8()
	mp.Header.MediumType, _ = c.u8()
	mp.Header.DeviceSpecific, _ = c.u8()
	mp.Header.BlockDescriptorLength, _ = c.u8()

	// The data length does not count itself.
	total := int(mp.Header.DataLength) + 1
	if total > len(buf) {
		return nil, &TruncatedError{What: "mode parameter list", Off: 0, Want: total, Have: len(buf)}
	}
	c = newCursor(buf[:total], "mode parameter list")
	c.skip(modeHeaderLength)

	bd, err := c.sub(int(mp.Header.BlockDescriptorLength), "block descriptors")
	if err != nil {
		return nil, err
	}
	for bd.remaining() >= blockDescriptorLength {
		var d BlockDescriptor
		d.DensityCode, _ = bd.u8()
		d.Blocks, _ = bd.u24()
		bd.skip(1)
		d.BlockLength, _ = bd.u24()
		mp.Blocks = append(mp.Blocks, d)
	}

	for c.remaining() > 0 {
		if err := c.need(2); err != nil {
			return nil, err
		}
		code, _ := c.u8()
		code &= 0x3f
		length, _ := c.u8()
		if length == 0 {
			return nil, errors.Wrapf(ErrMalformedPage, "page %#02x at offset %d declares zero length with %d bytes left", code, c.off-2, c.remaining())
		}
		page, err := c.sub(int(length), "mode page")
		if err != nil {
			return nil, err
		}
		if err := mp.decodePage(code, page); err != nil {
			return nil, errors.Wrapf(err, "page %#02x", code)
		}
	}

	return mp, nil
}

func (mp *ModeParameters) decodePage(code byte, c *cursor) error {
	switch code {
	case PageVendorUnique:
		raw, _ := c.bytes(c.remaining())
		mp.VendorUnique = append([]byte(nil), raw...)
	case PageErrorRecovery:
		p, err := decodeErrorRecovery(c)
		if err != nil {
			return err
		}
		mp.ErrorRecovery = p
	case PageDisconnectReconnect:
		p, err := decodeDisconnectReconnect(c)
		if err != nil {
			return err
		}
		mp.DisconnectReconnect = p
	case PageAddressAssignment:
		p, err := decodeAddressAssignment(c)
		if err != nil {
			return err
		}
		mp.AddressAssignment = p
	case PageCapabilities:
		p, err := decodeCapabilities(c)
		if err != nil {
			return err
		}
		mp.Capabilities = p
	default:
		if mp.Other == nil {
			mp.Other = make(map[byte][]byte)
		}
		raw, _ := c.bytes(c.remaining())
		mp.Other[code] = append([]byte(nil), raw...)
	}
	return nil
}

func decodeErrorRecovery(c *cursor) (*ErrorRecoveryPage, error) {
	c.what = "error recovery page"
	if err := c.need(10); err != nil {
		return nil, err
	}
	p := &ErrorRecoveryPage{}
	flags, _ := c.u8()
	p.AWRE = flags&0x80 != 0
	p.ARRE = flags&0x40 != 0
	p.TB = flags&0x20 != 0
	p.RC = flags&0x10 != 0
	p.EER = flags&0x08 != 0
	p.PER = flags&0x04 != 0
	p.DTE = flags&0x02 != 0
	p.DCR = flags&0x01 != 0
	p.ReadRetryCount, _ = c.u8()
	p.CorrectionSpan, _ = c.u8()
	p.HeadOffset, _ = c.u8()
	p.DataStrobeOffset, _ = c.u8()
	c.skip(1)
	p.WriteRetryCount, _ = c.u8()
	c.skip(1)
	p.RecoveryTimeLimit, _ = c.u16()
	return p, nil
}

func decodeDisconnectReconnect(c *cursor) (*DisconnectReconnectPage, error) {
	c.what = "disconnect/reconnect page"
	if err := c.need(12); err != nil {
		return nil, err
	}
	p := &DisconnectReconnectPage{}
	p.BufferFullRatio, _ = c.u8()
	p.BufferEmptyRatio, _ = c.u8()
	p.BusInactivityLimit, _ = c.u16()
	p.DisconnectTimeLimit, _ = c.u16()
	p.ConnectTimeLimit, _ = c.u16()
	p.MaxBurstSize, _ = c.u16()
	return p, nil
}

func decodeAddressAssignment(c *cursor) (*AddressAssignmentPage, error) {
	c.what = "element address assignment page"
	if err := c.need(16); err != nil {
		return nil, err
	}
	p := &AddressAssignmentPage{}
	for _, r := range []*ElementRange{&p.Transport, &p.Storage, &p.ImportExport, &p.DataTransfer} {
		r.First, _ = c.u16()
		r.Count, _ = c.u16()
	}
	return p, nil
}

func decodeCapabilities(c *cursor) (*CapabilitiesPage, error) {
	c.what = "device capabilities page"
	if err := c.need(14); err != nil {
		return nil, err
	}
	p := &CapabilitiesPage{}
	stor, _ := c.u8()
	p.StoreTransport = stor&0x01 != 0
	p.StoreStorage = stor&0x02 != 0
	p.StoreImportExport = stor&0x04 != 0
	p.StoreDataTransfer = stor&0x08 != 0
	c.skip(1)

	var move, exchange [4]byte
	for i := range move {
		move[i], _ = c.u8()
	}
	c.skip(4)
	for i := range exchange {
		exchange[i], _ = c.u8()
	}
	for from := 0; from < 4; from++ {
		for to := 0; to < 4; to++ {
			p.Move[from][to] = move[from]&(1<<uint(to)) != 0
			p.Exchange[from][to] = exchange[from]&(1<<uint(to)) != 0
		}
	}
	return p, nil
}

// EncodeModeSense assembles a MODE SENSE(6) response from already encoded
// pages, each carrying its own page header.
func EncodeModeSense(mediumType, deviceSpecific byte, pages ...[]byte) []byte {
	buf := make([]byte, modeHeaderLength)
	for _, p := range pages {
		buf = append(buf, p...)
	}
	if len(buf) > 256 {
		panic("never")
	}
	buf[0] = byte(len(buf) - 1)
	buf[1] = mediumType
	buf[2] = deviceSpecific
	return buf
}

// EncodeModeSelect builds a MODE SELECT(6) parameter list carrying a
// single page. The page's PS bit is cleared as MODE SELECT requires.
func EncodeModeSelect(page []byte) []byte {
	if len(page) < 2 {
		panic("never")
	}
	buf := make([]byte, modeHeaderLength, modeHeaderLength+len(page))
	buf = append(buf, page...)
	buf[modeHeaderLength] &= 0x3f
	return buf
}

// VendorPage wraps raw vendor unique mode data in a page 0x00 header.
func VendorPage(data []byte) []byte {
	if len(data) == 0 || len(data) > 255 {
		panic("never")
	}
	return append([]byte{PageVendorUnique, byte(len(data))}, data...)
}
