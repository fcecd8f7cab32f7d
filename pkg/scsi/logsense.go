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
	"github.com/NVIDIA/chgscsi/pkg/safecast"
)

const logPageHeaderLength = 4

// Log page codes decoded into labeled counters.
const (
	LogPageSupported       = 0x00
	LogPageWriteErrors     = 0x02
	LogPageReadErrors      = 0x03
	LogPageNonMediumErrors = 0x06
	LogPageTapeAlert       = 0x2e
	LogPageCompression     = 0x32
	LogPageVendorUsage     = 0x39
)

// LogParameter is one parameter of a log page.
type LogParameter struct {
	Code   uint16
	Flags  byte
	Length byte
	Value  uint64
	Raw    []byte
}

// Counter reports whether the value fits an unsigned integer.
func (p *LogParameter) Counter() bool {
	return p.Length >= 1 && p.Length <= 8
}

// LogPage is a decoded LOG SENSE response.
type LogPage struct {
	Code    byte
	Subpage byte
	Params  []LogParameter
}

// Param returns the parameter with the given code.
func (lp *LogPage) Param(code uint16) (LogParameter, bool) {
	for _, p := range lp.Params {
		if p.Code == code {
			return p, true
		}
	}
	return LogParameter{}, false
}

// DecodeLogSense decodes a LOG SENSE response.
func DecodeLogSense(buf []byte) (*LogPage, error) {
	c := newCursor(buf, "log page header")
	if err := c.need(logPageHeaderLength); err != nil {
		return nil, err
	}
	lp := &LogPage{}
	code, _ := c.u8()
	lp.Code = code & 0x3f
	lp.Subpage, _ = c.u8()
	length, _ := c.u16()

	body, err := c.sub(int(length), "log parameters")
	if err != nil {
		return nil, err
	}
	for body.remaining() > 0 {
		if err := body.need(4); err != nil {
			return nil, err
		}
		var p LogParameter
		p.Code, _ = body.u16()
		p.Flags, _ = body.u8()
		p.Length, _ = body.u8()
		raw, err := body.bytes(int(p.Length))
		if err != nil {
			return nil, err
		}
		p.Raw = append([]byte(nil), raw...)
		if p.Counter() {
			p.Value, _ = newCursor(raw, "log parameter").uint(int(p.Length))
		}
		lp.Params = append(lp.Params, p)
	}
	return lp, nil
}

// EncodeLogSense builds a LOG SENSE response. Parameters with a zero Length
// are encoded with the smallest width that holds Value.
func EncodeLogSense(page byte, params ...LogParameter) []byte {
	buf := make([]byte, logPageHeaderLength)
	buf[0] = page & 0x3f
	for _, p := range params {
		n := int(p.Length)
		if n == 0 {
			n = 1
			for v := p.Value >> 8; v != 0; v >>= 8 {
				n++
			}
		}
		hdr := []byte{byte(p.Code >> 8), byte(p.Code), p.Flags, byte(n)}
		buf = append(buf, hdr...)
		if p.Raw != nil {
			buf = append(buf, p.Raw[:n]...)
			continue
		}
		for i := n - 1; i >= 0; i-- {
			buf = append(buf, byte(p.Value>>(8*uint(i))))
		}
	}
	putUint16(buf[2:4], safecast.IntToUint16(len(buf)-logPageHeaderLength))
	return buf
}

// DecodeSupportedLogPages decodes the supported pages page, whose body
// is a list of page codes rather than parameters.
func DecodeSupportedLogPages(buf []byte) ([]byte, error) {
	c := newCursor(buf, "supported log pages")
	if err := c.need(logPageHeaderLength); err != nil {
		return nil, err
	}
	c.skip(2)
	length, _ := c.u16()
	body, err := c.bytes(int(length))
	if err != nil {
		return nil, err
	}
	pages := make([]byte, len(body))
	for i, p := range body {
		pages[i] = p & 0x3f
	}
	return pages, nil
}

func EncodeSupportedLogPages(pages ...byte) []byte {
	buf := make([]byte, logPageHeaderLength, logPageHeaderLength+len(pages))
	buf = append(buf, pages...)
	putUint16(buf[2:4], safecast.IntToUint16(len(pages)))
	return buf
}
