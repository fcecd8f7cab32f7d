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
	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

// TapeAlert flags that ask for a cleaning cartridge.
const (
	tapeAlertCleanNow      = 0x0014
	tapeAlertCleanPeriodic = 0x0015
)

// tapeDrive is a drive that must be rewound before it unloads.
// Drives with tapeAlert set also report cleaning through the TapeAlert
// log page.
type tapeDrive struct {
	*Generic
	tapeAlert bool
}

func (p *tapeDrive) Eject(s *Session, h *Handle, mode EjectMode) error {
	return p.Generic.Eject(s, h, EjectRewind)
}

func (p *tapeDrive) Clean(s *Session, h *Handle) (CleanState, error) {
	cs, err := p.Generic.Clean(s, h)
	if err != nil || !p.tapeAlert {
		return cs, err
	}

	page, err := s.logPage(h, scsi.LogPageTapeAlert)
	if IllegalRequest(err) {
		return cs, nil
	}
	if err != nil {
		return cs, err
	}
	for _, code := range []uint16{tapeAlertCleanNow, tapeAlertCleanPeriodic} {
		if param, ok := page.Param(code); ok && param.Value != 0 {
			cs.Needed = true
		}
	}
	return cs, nil
}

var exabyteTapeSense = SenseTable{
	{key(scsi.SenseUnitAttention), scsi.AscNotReadyToReady, Any, Retry, "cartridge inserted"},
	{key(scsi.SenseMediumError), scsi.AscCleaningCartridge, Any, Abort, "cleaning cartridge installed"},
}

func init() {
	register(&tapeDrive{Generic: NewGeneric("DLT4000", "Quantum DLT4000", nil, nil), tapeAlert: true})
	register(&tapeDrive{Generic: NewGeneric("DLT7000", "Quantum DLT7000", nil, nil), tapeAlert: true})
	register(&tapeDrive{Generic: NewGeneric("DLT8000", "Quantum DLT8000", nil, nil), tapeAlert: true})
	register(&tapeDrive{Generic: NewGeneric("ULT3580-TD1", "IBM Ultrium LTO-1", nil, nil), tapeAlert: true})
	register(&tapeDrive{Generic: NewGeneric("EXB-85058HE-0000", "Exabyte EXB-8505", exabyteTapeSense, nil)})
}
