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

// dlt448 moves between its single drive and a slot with ALIGN
// ELEMENTS. It has no other move.
type dlt448 struct {
	*Generic
}

func (p *dlt448) Move(s *Session, from, to *scsi.ElementRecord) error {
	var dte, ste *scsi.ElementRecord
	switch {
	case from.Type == scsi.ElementStorage && to.Type == scsi.ElementDataTransfer:
		ste, dte = from, to
	case from.Type == scsi.ElementDataTransfer && to.Type == scsi.ElementStorage:
		dte, ste = from, to
	default:
		return &MoveError{From: from.Type, To: to.Type, Err: ErrIllegalMove}
	}
	cdb := scsi.AlignElements(s.transportAddress(), dte.Address, ste.Address)
	_, err := s.exchange(s.Changer, cdb, scsi.DirectionNone, nil)
	return err
}

func init() {
	register(&dlt448{NewGeneric("DLT448", "Quantum DLT448", nil, nil)})

	register(NewGeneric("C1553A", "HP SureStore C1553A", SenseTable{
		{key(scsi.SenseNotReady), scsi.AscMediumNotPresent, Any, Abort, "magazine not present"},
	}, nil))

	register(NewGeneric("03590", "IBM 3590", SenseTable{
		{Any, scsi.AscPositioningError, scsi.AscqMediumMagazineRemoved, Retry, "magazine removed"},
	}, nil))

	sony := SenseTable{
		{key(scsi.SenseNotReady), scsi.AscNotReady, scsi.AscqVendorDoorOpen, Retry, "door open"},
		{key(scsi.SenseNotReady), scsi.AscPositioningError, scsi.AscqMediumMagazineRemoved, Retry, "magazine removed"},
	}
	register(NewGeneric("SDX-300C", "Sony SDX-300C", sony, nil))
	register(NewGeneric("SDX-500C", "Sony SDX-500C", sony, nil))

	register(NewGeneric("TDS 1420", "Tandberg TDS 1420", SenseTable{
		{key(scsi.SenseNotReady), scsi.AscNotReady, scsi.AscqManualIntervention, Retry, "manual intervention required"},
	}, nil))

	register(NewGeneric("L500", "StorageTek L500", SenseTable{
		{Any, scsi.AscPositioningError, scsi.AscqMagazineNotAccessible, Retry, "magazine not accessible"},
	}, nil))
}
