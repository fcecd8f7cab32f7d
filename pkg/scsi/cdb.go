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
	"fmt"

	"github.com/pkg/errors"
)

// Registered CDB lengths. Builders must produce exactly this many bytes.
var cdbLengths = map[byte]int{
	OpTestUnitReady:           6,
	OpRewind:                  6,
	OpRequestSense:            6,
	OpInitializeElementStatus: 6,
	OpInquiry:                 6,
	OpModeSelect:              6,
	OpModeSense:               6,
	OpLoadUnload:              6,
	OpLogSense:                10,
	OpMoveMedium:              12,
	OpReadElementStatus:       12,
	OpAlignElements:           12,
}

// CDBLength returns the registered length of opcode op, or 0 when op is
// not one of the commands the engine issues.
func CDBLength(op byte) int {
	return cdbLengths[op]
}

func newCDB(op byte) []byte {
	n, ok := cdbLengths[op]
	if !ok {
		panic(fmt.Sprintf("never: unregistered opcode %#02x", op))
	}
	cdb := make([]byte, n)
	cdb[0] = op
	return cdb
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func putUint24(b []byte, v uint32) {
	if v > 0xffffff {
		panic("never")
	}
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func boolBit(v bool, bit uint) byte {
	if v {
		return 1 << bit
	}
	return 0
}

// TestUnitReady builds TEST UNIT READY.
func TestUnitReady() []byte {
	return newCDB(OpTestUnitReady)
}

// Rewind builds REWIND. With immed set the device returns before the
// tape is positioned.
func Rewind(immed bool) []byte {
	cdb := newCDB(OpRewind)
	cdb[1] = boolBit(immed, 0)
	return cdb
}

// RequestSense builds REQUEST SENSE with the given allocation length.
func RequestSense(alloc byte) []byte {
	cdb := newCDB(OpRequestSense)
	cdb[4] = alloc
	return cdb
}

// Inquiry builds a standard (non-EVPD) INQUIRY.
func Inquiry(alloc byte) []byte {
	cdb := newCDB(OpInquiry)
	cdb[4] = alloc
	return cdb
}

// InitializeElementStatus builds INITIALIZE ELEMENT STATUS, which makes
// the changer rescan every element.
func InitializeElementStatus() []byte {
	return newCDB(OpInitializeElementStatus)
}

// PageControl selects which values MODE SENSE reports.
type PageControl byte

const (
	PageControlCurrent    PageControl = 0
	PageControlChangeable PageControl = 1
	PageControlDefault    PageControl = 2
	PageControlSaved      PageControl = 3
)

// LogPageControl selects which values LOG SENSE reports. Counters are
// only meaningful as cumulative values.
type LogPageControl byte

const (
	LogThresholdCurrent  LogPageControl = 0
	LogCumulativeCurrent LogPageControl = 1
	LogThresholdDefault  LogPageControl = 2
	LogCumulativeDefault LogPageControl = 3
)

// AllModePages requests every supported mode page.
const AllModePages = 0x3f

// ModeSense builds MODE SENSE(6). dbd disables block descriptors.
func ModeSense(page byte, pc PageControl, dbd bool, alloc byte) []byte {
	cdb := newCDB(OpModeSense)
	cdb[1] = boolBit(dbd, 3)
	cdb[2] = byte(pc&0x3)<<6 | page&0x3f
	cdb[4] = alloc
	return cdb
}

// ModeSelect builds MODE SELECT(6) for a parameter list of paramLen bytes.
// pf marks the list as SCSI-2 page format, sp asks the device to save it.
func ModeSelect(paramLen byte, pf, sp bool) []byte {
	cdb := newCDB(OpModeSelect)
	cdb[1] = boolBit(pf, 4) | boolBit(sp, 0)
	cdb[4] = paramLen
	return cdb
}

// LoadOp is the operation field of LOAD/UNLOAD.
type LoadOp byte

const (
	Unload    LoadOp = 0x00
	Load      LoadOp = 0x01
	Retension LoadOp = 0x02
	ToEOT     LoadOp = 0x04
)

// LoadUnload builds LOAD/UNLOAD.
func LoadUnload(op LoadOp, immed bool) []byte {
	cdb := newCDB(OpLoadUnload)
	cdb[1] = boolBit(immed, 0)
	cdb[4] = byte(op) & 0x07
	return cdb
}

// LogSense builds LOG SENSE(10) for cumulative or current values of page.
func LogSense(page byte, pc LogPageControl, paramPtr uint16, alloc uint16) []byte {
	cdb := newCDB(OpLogSense)
	cdb[2] = byte(pc&0x3)<<6 | page&0x3f
	putUint16(cdb[5:7], paramPtr)
	putUint16(cdb[7:9], alloc)
	return cdb
}

// MoveMedium builds MOVE MEDIUM from element address from to element
// address to using transport element chm.
func MoveMedium(chm, from, to uint16, invert bool) []byte {
	cdb := newCDB(OpMoveMedium)
	putUint16(cdb[2:4], chm)
	putUint16(cdb[4:6], from)
	putUint16(cdb[6:8], to)
	cdb[10] = boolBit(invert, 0)
	return cdb
}

// MoveMediumArgs are the fields of a MOVE MEDIUM CDB.
type MoveMediumArgs struct {
	Transport uint16
	From      uint16
	To        uint16
	Invert    bool
}

// DecodeMoveMedium recovers the addresses from a MOVE MEDIUM CDB.
func DecodeMoveMedium(cdb []byte) (args MoveMediumArgs, err error) {
	if len(cdb) != cdbLengths[OpMoveMedium] {
		return args, &TruncatedError{What: "MOVE MEDIUM CDB", Want: cdbLengths[OpMoveMedium], Have: len(cdb)}
	}
	if cdb[0] != OpMoveMedium {
		return args, errors.Errorf("scsi: not a MOVE MEDIUM CDB: opcode %#02x", cdb[0])
	}

	c := newCursor(cdb, "MOVE MEDIUM CDB")
	c.skip(2)
	args.Transport, _ = c.u16()
	args.From, _ = c.u16()
	args.To, _ = c.u16()
	args.Invert = cdb[10]&0x01 != 0
	return args, nil
}

// ElementType is the SMC element type code.
type ElementType byte

const (
	ElementAll          ElementType = 0
	ElementTransport    ElementType = 1
	ElementStorage      ElementType = 2
	ElementImportExport ElementType = 3
	ElementDataTransfer ElementType = 4
)

func (t ElementType) String() string {
	switch t {
	case ElementAll:
		return "all"
	case ElementTransport:
		return "MTE"
	case ElementStorage:
		return "STE"
	case ElementImportExport:
		return "IEE"
	case ElementDataTransfer:
		return "DTE"
	default:
		return fmt.Sprintf("type%d", byte(t))
	}
}

// Valid reports whether t names one of the four element groups.
func (t ElementType) Valid() bool {
	return t >= ElementTransport && t <= ElementDataTransfer
}

// ReadElementStatus builds READ ELEMENT STATUS for count elements of type
// t starting at address start. voltag requests volume tag (barcode) data.
func ReadElementStatus(t ElementType, voltag bool, start, count uint16, alloc uint32) []byte {
	cdb := newCDB(OpReadElementStatus)
	cdb[1] = boolBit(voltag, 4) | byte(t)&0x0f
	putUint16(cdb[2:4], start)
	putUint16(cdb[4:6], count)
	putUint24(cdb[7:10], alloc)
	return cdb
}

// AlignElements builds the vendor ALIGN ELEMENTS command used by changers
// that position the transport against a drive and a slot instead of
// moving directly between two elements.
func AlignElements(mte, dte, ste uint16) []byte {
	cdb := newCDB(OpAlignElements)
	putUint16(cdb[2:4], mte)
	putUint16(cdb[4:6], dte)
	putUint16(cdb[6:8], ste)
	return cdb
}
