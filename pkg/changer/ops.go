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

// Slots and drives are numbered from zero in element address order.

func (s *Session) element(t scsi.ElementType, i int) (*scsi.ElementRecord, error) {
	if err := s.ensureInventory(); err != nil {
		return nil, err
	}
	rec, ok := s.inv.At(t, i)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownElement, "%s %d", t, i)
	}
	return rec, nil
}

// IsEmpty reports whether storage slot slot holds no cartridge.
func (s *Session) IsEmpty(slot int) (bool, error) {
	rec, err := s.element(scsi.ElementStorage, slot)
	if err != nil {
		return false, err
	}
	return rec.Status == scsi.Empty, nil
}

// FindEmpty returns the first empty slot at or after start among the
// next count slots. A zero count searches to the last slot.
func (s *Session) FindEmpty(start, count int) (int, error) {
	if err := s.ensureInventory(); err != nil {
		return 0, err
	}
	i, ok := s.inv.FindEmpty(scsi.ElementStorage, start, count)
	if !ok {
		return 0, ErrNoFreeSlot
	}
	return i, nil
}

func (s *Session) SlotCount() (int, error) {
	if err := s.ensureInventory(); err != nil {
		return 0, err
	}
	return s.inv.Len(scsi.ElementStorage), nil
}

func (s *Session) DriveCount() (int, error) {
	if err := s.ensureInventory(); err != nil {
		return 0, err
	}
	return s.inv.Len(scsi.ElementDataTransfer), nil
}

// Load puts the cartridge in slot into drive and waits for the drive
// to become ready. A drive holding another cartridge is unloaded to
// where that cartridge came from first. Loading the cartridge a drive
// already holds does nothing.
func (s *Session) Load(drive, slot int) error {
	src, err := s.element(scsi.ElementStorage, slot)
	if err != nil {
		return err
	}
	dst, err := s.element(scsi.ElementDataTransfer, drive)
	if err != nil {
		return err
	}

	if dst.Status == scsi.Full {
		if dst.SourceValid && dst.Source == src.Address {
			s.log.Infow("cartridge already loaded", "drive", drive, "slot", slot)
			return nil
		}
		if err := s.Unload(drive, -1); err != nil {
			return errors.Wrapf(err, "unloading drive %d", drive)
		}
		if src, err = s.element(scsi.ElementStorage, slot); err != nil {
			return err
		}
		if dst, err = s.element(scsi.ElementDataTransfer, drive); err != nil {
			return err
		}
	}
	if src.Status == scsi.Empty {
		return errors.Wrapf(ErrSlotEmpty, "slot %d", slot)
	}

	if err := s.Move(src.Address, dst.Address); err != nil {
		return err
	}

	d, err := s.Drive(drive)
	if errors.Is(err, ErrNoTapeDevice) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.WaitReady(d.Control)
}

// Unload returns the cartridge in drive to slot. A negative slot
// means the slot the cartridge was loaded from, or the first empty
// slot when that is unknown or occupied.
func (s *Session) Unload(drive, slot int) error {
	src, err := s.element(scsi.ElementDataTransfer, drive)
	if err != nil {
		return err
	}
	if src.Status == scsi.Empty {
		return errors.Wrapf(ErrDriveEmpty, "drive %d", drive)
	}

	var to uint16
	switch {
	case slot >= 0:
		rec, err := s.element(scsi.ElementStorage, slot)
		if err != nil {
			return err
		}
		to = rec.Address
	case src.SourceValid && s.homeEmpty(src.Source):
		to = src.Source
	default:
		i, ok := s.inv.FindEmpty(scsi.ElementStorage, 0, 0)
		if !ok {
			return ErrNoFreeSlot
		}
		rec, _ := s.inv.At(scsi.ElementStorage, i)
		to = rec.Address
	}
	return s.Move(src.Address, to)
}

func (s *Session) homeEmpty(addr uint16) bool {
	rec, ok := s.inv.Lookup(addr)
	return ok && rec.Type == scsi.ElementStorage && rec.Status == scsi.Empty
}

// CurrentSlot returns the slot the cartridge in drive was loaded from.
func (s *Session) CurrentSlot(drive int) (int, error) {
	rec, err := s.element(scsi.ElementDataTransfer, drive)
	if err != nil {
		return 0, err
	}
	if rec.Status == scsi.Empty {
		return 0, errors.Wrapf(ErrDriveEmpty, "drive %d", drive)
	}
	if !rec.SourceValid {
		return 0, errors.Wrapf(ErrNotFound, "drive %d: source slot not reported", drive)
	}
	t, i, ok := s.inv.IndexOf(rec.Source)
	if !ok || t != scsi.ElementStorage {
		return 0, errors.Wrapf(ErrNotFound, "drive %d: source element %d is not a slot", drive, rec.Source)
	}
	return i, nil
}

// CleanState reports the cleaning flags of drive.
func (s *Session) CleanState(drive int) (CleanState, error) {
	d, err := s.Drive(drive)
	if err != nil {
		return CleanState{}, err
	}
	return d.Control.Profile.Clean(s, d.Control)
}

// Eject takes the tape in drive offline.
func (s *Session) Eject(drive int, mode EjectMode) error {
	d, err := s.Drive(drive)
	if err != nil {
		return err
	}
	return d.Control.Profile.Eject(s, d.Control, mode)
}

func (s *Session) Rewind(drive int) error {
	d, err := s.Drive(drive)
	if err != nil {
		return err
	}
	return d.Control.Profile.Rewind(s, d.Control)
}

// Search returns the element holding the cartridge labelled label.
func (s *Session) Search(label string) (*scsi.ElementRecord, error) {
	return s.Changer.Profile.Search(s, label)
}

// Reset makes the changer rescan its elements and rereads them.
func (s *Session) Reset() error {
	if err := s.Changer.Profile.ResetStatus(s); err != nil {
		return err
	}
	s.inv.Invalidate()
	return s.Refresh()
}

// Status returns every element in address order.
func (s *Session) Status() ([]scsi.ElementRecord, error) {
	if err := s.ensureInventory(); err != nil {
		return nil, err
	}
	return s.inv.Sorted(), nil
}
