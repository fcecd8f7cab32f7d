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
	"fmt"

	"github.com/pkg/errors"

	"github.com/NVIDIA/chgscsi/pkg/safecast"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

const logSenseAlloc = 0x1000

// Counter is one labeled log page parameter.
type Counter struct {
	Page  byte
	Code  uint16
	Name  string
	Value uint64

	// Bytes is set for counters that count bytes rather than events.
	Bytes bool
}

type counterLabel struct {
	name  string
	bytes bool
}

var errorCounterLabels = map[uint16]counterLabel{
	0x0000: {"errors corrected without substantial delay", false},
	0x0001: {"errors corrected with possible delays", false},
	0x0002: {"total rewrites or rereads", false},
	0x0003: {"total errors corrected", false},
	0x0004: {"times correction algorithm processed", false},
	0x0005: {"total bytes processed", true},
	0x0006: {"total uncorrected errors", false},
}

var counterLabels = map[byte]map[uint16]counterLabel{
	scsi.LogPageWriteErrors: errorCounterLabels,
	scsi.LogPageReadErrors:  errorCounterLabels,
	scsi.LogPageNonMediumErrors: {
		0x0000: {"non-medium error count", false},
	},
	scsi.LogPageTapeAlert: {
		0x0001: {"read warning", false},
		0x0002: {"write warning", false},
		0x0003: {"hard error", false},
		0x0004: {"media", false},
		0x0005: {"read failure", false},
		0x0006: {"write failure", false},
		0x0007: {"media life", false},
		0x0009: {"write protect", false},
		0x000f: {"cartridge memory chip failure", false},
		0x0014: {"clean now", false},
		0x0015: {"clean periodic", false},
		0x0016: {"expired cleaning media", false},
		0x0017: {"invalid cleaning tape", false},
		0x001e: {"hardware A", false},
		0x001f: {"hardware B", false},
	},
	scsi.LogPageCompression: {
		0x0000: {"read compression ratio", false},
		0x0001: {"write compression ratio", false},
		0x0002: {"megabytes transferred to host", false},
		0x0003: {"bytes transferred to host", true},
		0x0004: {"megabytes read from tape", false},
		0x0005: {"bytes read from tape", true},
		0x0006: {"megabytes transferred from host", false},
		0x0007: {"bytes transferred from host", true},
		0x0008: {"megabytes written to tape", false},
		0x0009: {"bytes written to tape", true},
	},
	scsi.LogPageVendorUsage: {
		0x0000: {"cleaning cycles", false},
		0x0001: {"motion hours", false},
		0x0002: {"power on hours", false},
		0x0003: {"loads", false},
	},
}

// logPage reads one log page from h.
func (s *Session) logPage(h *Handle, code byte) (*scsi.LogPage, error) {
	data := make([]byte, logSenseAlloc)
	res, err := s.exchange(h, scsi.LogSense(code, scsi.LogCumulativeCurrent, 0, safecast.IntToUint16(len(data))), scsi.DirectionIn, data)
	if err != nil {
		return nil, err
	}
	page, err := scsi.DecodeLogSense(res.Transferred(data))
	if err != nil {
		return nil, errors.Wrapf(err, "log page %#02x", code)
	}
	return page, nil
}

// LogPages lists the log pages h supports.
func (s *Session) LogPages(h *Handle) ([]byte, error) {
	data := make([]byte, logSenseAlloc)
	res, err := s.exchange(h, scsi.LogSense(scsi.LogPageSupported, scsi.LogCumulativeCurrent, 0, safecast.IntToUint16(len(data))), scsi.DirectionIn, data)
	if err != nil {
		return nil, err
	}
	return scsi.DecodeSupportedLogPages(res.Transferred(data))
}

// LogCounters reads a log page of h and labels its parameters.
// Parameters without a label keep a generic name.
func (s *Session) LogCounters(h *Handle, code byte) ([]Counter, error) {
	page, err := s.logPage(h, code)
	if err != nil {
		return nil, err
	}
	labels := counterLabels[code]
	counters := make([]Counter, 0, len(page.Params))
	for _, p := range page.Params {
		c := Counter{Page: code, Code: p.Code, Value: p.Value}
		if l, ok := labels[p.Code]; ok {
			c.Name, c.Bytes = l.name, l.bytes
		} else {
			c.Name = fmt.Sprintf("parameter %#04x", p.Code)
		}
		counters = append(counters, c)
	}
	return counters, nil
}
