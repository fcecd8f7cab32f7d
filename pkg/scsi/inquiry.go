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

// InquiryLength is the size of the standard INQUIRY data the engine asks for.
const InquiryLength = 36

// Peripheral device types reported by INQUIRY.
const (
	DeviceTypeSequential = 0x01
	DeviceTypeChanger    = 0x08
)

// InquiryData is parsed standard INQUIRY data.
type InquiryData struct {
	DeviceType byte
	Removable  bool
	Version    byte
	Vendor     string
	Product    string
	Revision   string
}

// DecodeInquiry decodes standard INQUIRY data.
func DecodeInquiry(buf []byte) (*InquiryData, error) {
	c := newCursor(buf, "inquiry data")
	if err := c.need(InquiryLength); err != nil {
		return nil, err
	}
	inq := &InquiryData{}
	b0, _ := c.u8()
	inq.DeviceType = b0 & 0x1f
	b1, _ := c.u8()
	inq.Removable = b1&0x80 != 0
	inq.Version, _ = c.u8()
	c.skip(5)
	vendor, _ := c.bytes(8)
	product, _ := c.bytes(16)
	rev, _ := c.bytes(4)
	inq.Vendor = trimString(vendor)
	inq.Product = trimString(product)
	inq.Revision = trimString(rev)
	return inq, nil
}

// Bytes encodes inq as standard INQUIRY data.
func (inq *InquiryData) Bytes() []byte {
	buf := make([]byte, InquiryLength)
	buf[0] = inq.DeviceType & 0x1f
	buf[1] = boolBit(inq.Removable, 7)
	buf[2] = inq.Version
	buf[4] = InquiryLength - 5
	copy(buf[8:16], fixedString(inq.Vendor, 8))
	copy(buf[16:32], fixedString(inq.Product, 16))
	copy(buf[32:36], fixedString(inq.Revision, 4))
	return buf
}

func fixedString(s string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	return b
}
