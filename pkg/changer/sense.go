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

	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

// Outcome is the recovery action for a command that ended with sense.
type Outcome int

const (
	Ignore Outcome = iota
	Retry
	Abort
	NoTapeOnline
	ImportExportStatus
)

var outcomeNames = [...]string{
	Ignore:             "ignore",
	Retry:              "retry",
	Abort:              "abort",
	NoTapeOnline:       "no tape online",
	ImportExportStatus: "import/export status",
}

func (o Outcome) String() string {
	if o >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// SenseMode selects how sense is matched. Element exceptions carry no
// sense key, so ElementSense matches on ASC and ASCQ only.
type SenseMode int

const (
	CommandSense SenseMode = iota
	ElementSense
)

// Any is the wildcard for SenseRule fields.
const Any = -1

// SenseRule maps a sense triple to an outcome.
type SenseRule struct {
	Key     int
	ASC     int
	ASCQ    int
	Outcome Outcome
	Text    string
}

func (r *SenseRule) matches(mode SenseMode, s *scsi.Sense) bool {
	if mode == CommandSense && r.Key != Any && r.Key != int(s.Key) {
		return false
	}
	if r.ASC != Any && r.ASC != int(s.ASC) {
		return false
	}
	return r.ASCQ == Any || r.ASCQ == int(s.ASCQ)
}

// SenseTable is an ordered rule list. The first matching rule wins.
type SenseTable []SenseRule

// Lookup returns the first rule matching s.
func (t SenseTable) Lookup(mode SenseMode, s *scsi.Sense) (*SenseRule, bool) {
	for i := range t {
		if t[i].matches(mode, s) {
			return &t[i], true
		}
	}
	return nil, false
}

func key(k scsi.SenseKey) int {
	return int(k)
}

// GenericSense classifies command sense for every device.
var GenericSense = SenseTable{
	{key(scsi.SenseNoSense), Any, Any, Ignore, "no sense"},
	{key(scsi.SenseRecoveredError), Any, Any, Ignore, "recovered error"},

	{key(scsi.SenseNotReady), scsi.AscMediumNotPresent, Any, NoTapeOnline, "medium not present"},
	{key(scsi.SenseNotReady), scsi.AscNotReady, scsi.AscqBecomingReady, Retry, "becoming ready"},
	{key(scsi.SenseNotReady), scsi.AscNotReady, 0x00, Retry, "not ready, cause not reportable"},
	{key(scsi.SenseNotReady), scsi.AscNotReady, scsi.AscqInitializationRequired, Abort, "initializing command required"},
	{key(scsi.SenseNotReady), scsi.AscNotReady, scsi.AscqManualIntervention, Abort, "manual intervention required"},
	{key(scsi.SenseNotReady), scsi.AscNotReady, scsi.AscqVendorDoorOpen, Abort, "door open"},
	{key(scsi.SenseNotReady), scsi.AscPositioningError, scsi.AscqMediumMagazineRemoved, Abort, "magazine removed"},
	{key(scsi.SenseNotReady), Any, Any, Retry, "not ready"},

	{key(scsi.SenseMediumError), Any, Any, Abort, "medium error"},
	{key(scsi.SenseHardwareError), scsi.AscMechanicalPositioning, Any, Abort, "mechanical positioning error"},
	{key(scsi.SenseHardwareError), Any, Any, Abort, "hardware error"},

	{key(scsi.SenseIllegalRequest), scsi.AscPositioningError, scsi.AscqMediumDestinationFull, Abort, "destination element full"},
	{key(scsi.SenseIllegalRequest), scsi.AscPositioningError, scsi.AscqMediumSourceEmpty, Abort, "source element empty"},
	{key(scsi.SenseIllegalRequest), scsi.AscInvalidElementAddress, Any, Abort, "invalid element address"},
	{key(scsi.SenseIllegalRequest), scsi.AscMediumRemovalPrevented, scsi.AscqRemovalPrevented, Abort, "medium removal prevented"},
	{key(scsi.SenseIllegalRequest), scsi.AscInvalidOpcode, Any, Abort, "invalid command operation code"},
	{key(scsi.SenseIllegalRequest), scsi.AscInvalidFieldInCdb, Any, Abort, "invalid field in CDB"},
	{key(scsi.SenseIllegalRequest), Any, Any, Abort, "illegal request"},

	{key(scsi.SenseUnitAttention), scsi.AscNotReadyToReady, scsi.AscqImportExportAccessed, Retry, "import/export element accessed"},
	{key(scsi.SenseUnitAttention), scsi.AscNotReadyToReady, Any, Retry, "not ready to ready change"},
	{key(scsi.SenseUnitAttention), scsi.AscPowerOnReset, Any, Retry, "power on or reset"},
	{key(scsi.SenseUnitAttention), scsi.AscModeParametersChanged, Any, Retry, "mode parameters changed"},
	{key(scsi.SenseUnitAttention), Any, Any, Retry, "unit attention"},

	{key(scsi.SenseDataProtect), Any, Any, Abort, "data protect"},
	{key(scsi.SenseBlankCheck), Any, Any, Abort, "blank check"},
	{key(scsi.SenseAbortedCommand), Any, Any, Retry, "aborted command"},
	{key(scsi.SenseVolumeOverflow), Any, Any, Abort, "volume overflow"},
	{key(scsi.SenseMiscompare), Any, Any, Abort, "miscompare"},
}

// GenericElementSense classifies element exceptions.
var GenericElementSense = SenseTable{
	{Any, scsi.AscNotReadyToReady, scsi.AscqImportExportAccessed, ImportExportStatus, "import/export element accessed"},
	{Any, scsi.AscPositioningError, scsi.AscqMediumMagazineRemoved, ImportExportStatus, "magazine removed"},
	{Any, scsi.AscPositioningError, scsi.AscqMagazineNotAccessible, Ignore, "magazine not accessible"},
	{Any, scsi.AscVendorBarcodeUnreadable, Any, Ignore, "barcode label unreadable"},
	{Any, scsi.AscCleaningCartridge, Any, Ignore, "incompatible or cleaning medium"},
	{Any, scsi.AscMediumNotPresent, Any, Ignore, "medium not present"},
}

// classify consults the vendor table, then the generic table. Command
// sense no table knows is aborted; element exceptions nothing knows are
// ignored.
func classify(vendor SenseTable, mode SenseMode, s *scsi.Sense) (Outcome, string) {
	generic := GenericSense
	if mode == ElementSense {
		generic = GenericElementSense
	}
	for _, t := range []SenseTable{vendor, generic} {
		if r, ok := t.Lookup(mode, s); ok {
			return r.Outcome, r.Text
		}
	}
	if mode == ElementSense {
		return Ignore, "unknown element exception"
	}
	return Abort, "unknown sense"
}
