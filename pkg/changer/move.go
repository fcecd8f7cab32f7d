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

	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

// Move moves the cartridge in element from into element to. A full
// destination is replaced by the first empty storage slot. Legality is
// checked against the device capabilities page before any command is
// issued, and a loaded tape is ejected before its drive is emptied.
func (s *Session) Move(from, to uint16) error {
	if err := s.ensureInventory(); err != nil {
		return err
	}

	src, ok := s.inv.Lookup(from)
	if !ok {
		return &ElementError{Address: from, Err: ErrUnknownElement}
	}
	dst, ok := s.inv.Lookup(to)
	if !ok {
		return &ElementError{Address: to, Err: ErrUnknownElement}
	}

	if src.Status == scsi.Empty {
		s.log.Warnw("moving from an empty element", "type", src.Type.String(), "address", src.Address)
	}

	if dst.Status == scsi.Full {
		i, ok := s.inv.FindEmpty(scsi.ElementStorage, 0, 0)
		if !ok {
			return &ElementError{Address: to, Err: ErrNoFreeSlot}
		}
		slot, _ := s.inv.At(scsi.ElementStorage, i)
		s.log.Infow("destination full, using first empty slot",
			"requested", dst.Address,
			"slot", i,
			"address", slot.Address,
		)
		dst = slot
	}

	caps, err := s.Capabilities()
	if err != nil {
		return err
	}
	if !caps.CanMove(src.Type, dst.Type) {
		return &MoveError{From: src.Type, To: dst.Type, Err: ErrIllegalMove}
	}

	// Copies, since ejecting may refresh the inventory.
	fromRec, toRec := *src, *dst
	if fromRec.Type == scsi.ElementDataTransfer {
		if err := s.ejectForMove(&fromRec); err != nil {
			return err
		}
	}

	s.log.Debugw("move",
		"from", fromRec.Address,
		"from_type", fromRec.Type.String(),
		"to", toRec.Address,
		"to_type", toRec.Type.String(),
	)
	err = s.Changer.Profile.Move(s, &fromRec, &toRec)
	s.inv.Invalidate()
	s.cfg.Metrics.moved(err)
	return err
}

// ejectForMove takes the tape in the drive at rec offline if its
// drive is online.
func (s *Session) ejectForMove(rec *scsi.ElementRecord) error {
	_, i, ok := s.inv.IndexOf(rec.Address)
	if !ok {
		panic("never")
	}
	d, err := s.Drive(i)
	if errors.Is(err, ErrNoTapeDevice) {
		s.log.Debugw("no tape device for drive, not checking for a loaded tape", "drive", i)
		return nil
	}
	if err != nil {
		return err
	}

	online, err := s.online(d.Control)
	if err != nil {
		return err
	}
	if !online {
		return nil
	}
	s.log.Infow("ejecting loaded tape before move", "drive", i, "device", d.Control.Path)
	return d.Control.Profile.Eject(s, d.Control, EjectUnload)
}

// moveMedium issues MOVE MEDIUM using the first transport element.
func (s *Session) moveMedium(from, to *scsi.ElementRecord) error {
	cdb := scsi.MoveMedium(s.transportAddress(), from.Address, to.Address, false)
	_, err := s.exchange(s.Changer, cdb, scsi.DirectionNone, nil)
	return err
}
