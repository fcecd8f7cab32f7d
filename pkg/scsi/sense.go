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
)

const (
	// SenseLength is the size of a fixed format request sense block.
	SenseLength = 18

	// ExtendedSenseLength is the size of the tape extended request sense
	// block, which carries device class flags after the fixed part.
	ExtendedSenseLength = 29

	senseCurrentFixed  = 0x70
	senseDeferredFixed = 0x71
)

// Sense is a fixed format request sense block.
type Sense struct {
	Valid            bool
	ErrorCode        byte
	Segment          byte
	Filemark         bool
	EOM              bool
	ILI              bool
	Key              SenseKey
	Information      uint32
	AdditionalLength byte
	CommandInfo      uint32
	ASC              byte
	ASCQ             byte
	FRU              byte
	SKSV             bool
	SenseKeySpecific uint32
}

func (s *Sense) String() string {
	return fmt.Sprintf("%s asc=%#02x ascq=%#02x", s.Key, s.ASC, s.ASCQ)
}

// Deferred reports whether the sense belongs to an earlier command.
func (s *Sense) Deferred() bool {
	return s.ErrorCode == senseDeferredFixed
}

// DecodeSense decodes a fixed format sense block.
func DecodeSense(buf []byte) (*Sense, error) {
	c := newCursor(buf, "request sense")
	if err := c.need(SenseLength); err != nil {
		return nil, err
	}
	s := &Sense{}
	decodeSenseFixed(c, s)
	return s, nil
}

// decodeSenseFixed reads the 18 byte fixed part. The caller has already
// checked that the cursor holds at least SenseLength bytes.
func decodeSenseFixed(c *cursor, s *Sense) {
	b0, _ := c.u8()
	s.Valid = b0&0x80 != 0
	s.ErrorCode = b0 & 0x7f
	s.Segment, _ = c.u8()
	b2, _ := c.u8()
	s.Filemark = b2&0x80 != 0
	s.EOM = b2&0x40 != 0
	s.ILI = b2&0x20 != 0
	s.Key = SenseKey(b2 & 0x0f)
	s.Information, _ = c.u32()
	s.AdditionalLength, _ = c.u8()
	s.CommandInfo, _ = c.u32()
	s.ASC, _ = c.u8()
	s.ASCQ, _ = c.u8()
	s.FRU, _ = c.u8()
	sks, _ := c.u24()
	s.SKSV = sks&0x800000 != 0
	s.SenseKeySpecific = sks & 0x7fffff
}

// Bytes encodes s in fixed format.
func (s *Sense) Bytes() []byte {
	buf := make([]byte, SenseLength)
	s.encodeFixed(buf)
	return buf
}

func (s *Sense) encodeFixed(buf []byte) {
	code := s.ErrorCode
	if code == 0 {
		code = senseCurrentFixed
	}
	buf[0] = code & 0x7f
	if s.Valid {
		buf[0] |= 0x80
	}
	buf[1] = s.Segment
	buf[2] = byte(s.Key)&0x0f | boolBit(s.Filemark, 7) | boolBit(s.EOM, 6) | boolBit(s.ILI, 5)
	buf[3] = byte(s.Information >> 24)
	buf[4] = byte(s.Information >> 16)
	buf[5] = byte(s.Information >> 8)
	buf[6] = byte(s.Information)
	buf[7] = s.AdditionalLength
	if buf[7] == 0 {
		buf[7] = byte(len(buf) - 8)
	}
	buf[8] = byte(s.CommandInfo >> 24)
	buf[9] = byte(s.CommandInfo >> 16)
	buf[10] = byte(s.CommandInfo >> 8)
	buf[11] = byte(s.CommandInfo)
	buf[12] = s.ASC
	buf[13] = s.ASCQ
	buf[14] = s.FRU
	sks := s.SenseKeySpecific & 0x7fffff
	if s.SKSV {
		sks |= 0x800000
	}
	putUint24(buf[15:18], sks)
}

// ExtendedSense is the request sense block returned by tape drives when
// asked for ExtendedSenseLength bytes.
type ExtendedSense struct {
	Sense

	PowerFail        bool
	BusParityError   bool
	FormatterParity  bool
	MediaError       bool
	ErrorCounterOver bool
	TapeMotionError  bool
	TapeNotPresent   bool
	BeginningOfTape  bool

	CleaningDone   bool
	CleaningNeeded bool
	PhysicalEOT    bool
	WriteProtect   bool
	FilemarkError  bool

	UnderrunError   bool
	WriteError      bool
	ServoError      bool
	FormatterError  bool
	RemainingTape   uint32
	TrackingRetries byte
	ReadWriteRetry  byte
	FaultCode       byte
}

// DecodeExtendedSense decodes an ExtendedSenseLength byte sense block.
func DecodeExtendedSense(buf []byte) (*ExtendedSense, error) {
	c := newCursor(buf, "extended request sense")
	if err := c.need(ExtendedSenseLength); err != nil {
		return nil, err
	}

	s := &ExtendedSense{}
	decodeSenseFixed(c, &s.Sense)

	c.skip(1)
	b19, _ := c.u8()
	s.PowerFail = b19&0x80 != 0
	s.BusParityError = b19&0x40 != 0
	s.FormatterParity = b19&0x20 != 0
	s.MediaError = b19&0x10 != 0
	s.ErrorCounterOver = b19&0x08 != 0
	s.TapeMotionError = b19&0x04 != 0
	s.TapeNotPresent = b19&0x02 != 0
	s.BeginningOfTape = b19&0x01 != 0

	b20, _ := c.u8()
	s.CleaningDone = b20&0x10 != 0
	s.CleaningNeeded = b20&0x08 != 0
	s.PhysicalEOT = b20&0x04 != 0
	s.WriteProtect = b20&0x02 != 0
	s.FilemarkError = b20&0x01 != 0

	b21, _ := c.u8()
	s.UnderrunError = b21&0x80 != 0
	s.WriteError = b21&0x40 != 0
	s.ServoError = b21&0x20 != 0
	s.FormatterError = b21&0x10 != 0

	s.RemainingTape, _ = c.u24()
	s.TrackingRetries, _ = c.u8()
	s.ReadWriteRetry, _ = c.u8()
	s.FaultCode, _ = c.u8()
	return s, nil
}

// Bytes encodes s in the extended layout.
func (s *ExtendedSense) Bytes() []byte {
	buf := make([]byte, ExtendedSenseLength)
	s.Sense.encodeFixed(buf)
	buf[19] = boolBit(s.PowerFail, 7) | boolBit(s.BusParityError, 6) | boolBit(s.FormatterParity, 5) |
		boolBit(s.MediaError, 4) | boolBit(s.ErrorCounterOver, 3) | boolBit(s.TapeMotionError, 2) |
		boolBit(s.TapeNotPresent, 1) | boolBit(s.BeginningOfTape, 0)
	buf[20] = boolBit(s.CleaningDone, 4) | boolBit(s.CleaningNeeded, 3) | boolBit(s.PhysicalEOT, 2) |
		boolBit(s.WriteProtect, 1) | boolBit(s.FilemarkError, 0)
	buf[21] = boolBit(s.UnderrunError, 7) | boolBit(s.WriteError, 6) | boolBit(s.ServoError, 5) |
		boolBit(s.FormatterError, 4)
	putUint24(buf[22:25], s.RemainingTape&0xffffff)
	buf[25] = s.TrackingRetries
	buf[26] = s.ReadWriteRetry
	buf[27] = s.FaultCode
	return buf
}
