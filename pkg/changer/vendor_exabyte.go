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
	"github.com/pkg/errors"

	"github.com/NVIDIA/chgscsi/pkg/safecast"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

// exabyteBarcodeBit enables volume tag reporting in byte 0 of the
// Exabyte vendor unique mode page.
const exabyteBarcodeBit = 0x01

// exabyte changers keep barcode reporting off until it is enabled in
// the vendor unique mode page.
type exabyte struct {
	*Generic
}

func (p *exabyte) BarCode(s *Session) (bool, error) {
	mp, err := s.ModePage(scsi.PageVendorUnique)
	if err != nil {
		return false, err
	}
	vendor := mp.VendorUnique
	if len(vendor) == 0 {
		return p.Generic.BarCode(s)
	}
	if vendor[0]&exabyteBarcodeBit != 0 {
		return true, nil
	}

	page := append([]byte(nil), vendor...)
	page[0] |= exabyteBarcodeBit
	params := scsi.EncodeModeSelect(scsi.VendorPage(page))
	s.log.Infow("enabling barcode reader", "changer", s.Changer.Path)
	_, err = s.exchange(s.Changer, scsi.ModeSelect(safecast.IntToUint8(len(params)), false, false), scsi.DirectionOut, params)
	s.forgetPage(scsi.PageVendorUnique)
	if err != nil {
		return false, errors.Wrap(err, "enabling barcode reader")
	}
	return true, nil
}

// exb10e cannot initialize element status while its arm holds a
// cartridge. The cartridge is put away first.
type exb10e struct {
	exabyte
}

func (p *exb10e) ResetStatus(s *Session) error {
	err := p.Generic.ResetStatus(s)
	if !transportFull(err) {
		return err
	}

	s.log.Warnw("transport element full, clearing it before reinitializing", "changer", s.Changer.Path)
	s.inErrorHandler = true
	defer func() {
		s.inErrorHandler = false
	}()

	if err := s.Refresh(); err != nil {
		return err
	}
	arm, ok := s.inv.At(scsi.ElementTransport, 0)
	if !ok || arm.Status != scsi.Full {
		return err
	}
	from := *arm

	var to *scsi.ElementRecord
	for _, t := range []scsi.ElementType{scsi.ElementStorage, scsi.ElementDataTransfer} {
		if i, ok := s.inv.FindEmpty(t, 0, 0); ok {
			to, _ = s.inv.At(t, i)
			break
		}
	}
	if to == nil {
		return errors.Wrap(ErrNoFreeSlot, "clearing transport element")
	}

	dst := *to
	moveErr := s.Changer.Profile.Move(s, &from, &dst)
	s.inv.Invalidate()
	if moveErr != nil {
		return errors.Wrap(moveErr, "clearing transport element")
	}
	return p.Generic.ResetStatus(s)
}

// transportFull reports whether err is the changer refusing to
// initialize because its transport element holds a cartridge.
func transportFull(err error) bool {
	var se *SenseError
	if !errors.As(err, &se) || se.Sense == nil {
		return false
	}
	return se.Sense.ASC == scsi.AscPositioningError && se.Sense.ASCQ == scsi.AscqMediumDestinationFull
}

var exabyteSense = SenseTable{
	{key(scsi.SenseNotReady), scsi.AscPositioningError, scsi.AscqMediumDestinationFull, Abort, "medium transport element full"},
}

func init() {
	register(&exb10e{exabyte{NewGeneric("EXB-10e", "Exabyte EXB-10e", exabyteSense, nil)}})
	register(&exabyte{NewGeneric("EXB-120", "Exabyte EXB-120", exabyteSense, nil)})
	register(&exabyte{NewGeneric("EXB-210", "Exabyte EXB-210", exabyteSense, nil)})
	register(&exabyte{NewGeneric("EXB-230D", "Exabyte EXB-230D", exabyteSense, nil)})
}
