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

// Profile is the set of operations that differ between changer and
// tape drive models. Profiles are stateless; everything they touch
// lives in the Session.
type Profile interface {
	// Ident is the product identification the profile is registered
	// under and Name is for display.
	Ident() string
	Name() string

	// Move moves the cartridge in from into to. The move has already
	// been checked against the device capabilities.
	Move(s *Session, from, to *scsi.ElementRecord) error

	// ElementStatus rereads the element inventory.
	ElementStatus(s *Session, initStatus bool) error

	// ResetStatus makes the changer rescan its elements.
	ResetStatus(s *Session) error

	// Free releases anything the profile set up for the session.
	Free(s *Session) error

	// Eject takes the tape in h offline.
	Eject(s *Session, h *Handle, mode EjectMode) error

	// Clean reports whether the drive behind h needs or has just had
	// a cleaning.
	Clean(s *Session, h *Handle) (CleanState, error)

	Rewind(s *Session, h *Handle) error

	// BarCode reports whether the changer can report volume tags,
	// enabling them if the model needs that.
	BarCode(s *Session) (bool, error)

	// Search finds the element holding the cartridge labelled label.
	Search(s *Session, label string) (*scsi.ElementRecord, error)

	// SenseHandler classifies sense returned by h.
	SenseHandler(s *Session, h *Handle, mode SenseMode, sense *scsi.Sense) (Outcome, string)
}

// GenericIdent is the identity of the fallback profile.
const GenericIdent = "generic"

// ProfileTable maps device identities to profiles.
type ProfileTable map[string]Profile

// Lookup returns the profile registered for ident, or the generic
// profile when there is none.
func (pt ProfileTable) Lookup(ident string) (Profile, error) {
	if p, ok := pt[ident]; ok {
		return p, nil
	}
	if p, ok := pt[GenericIdent]; ok {
		return p, nil
	}
	return nil, errors.Wrapf(ErrNoVendorProfile, "identity %q", ident)
}

// Generic drives any changer and tape drive that follows SMC and SSC.
// Vendor profiles embed it and override what their models do
// differently.
type Generic struct {
	ident        string
	name         string
	sense        SenseTable
	elementSense SenseTable
}

// NewGeneric returns a profile that only differs from the generic one
// in how sense is classified. The tables are consulted before the
// generic tables.
func NewGeneric(ident, name string, sense, elementSense SenseTable) *Generic {
	return &Generic{
		ident:        ident,
		name:         name,
		sense:        sense,
		elementSense: elementSense,
	}
}

func (g *Generic) Ident() string {
	return g.ident
}

func (g *Generic) Name() string {
	return g.name
}

func (g *Generic) Move(s *Session, from, to *scsi.ElementRecord) error {
	return s.moveMedium(from, to)
}

func (g *Generic) ElementStatus(s *Session, initStatus bool) error {
	return s.readInventory(initStatus)
}

func (g *Generic) ResetStatus(s *Session) error {
	_, err := s.exchange(s.Changer, scsi.InitializeElementStatus(), scsi.DirectionNone, nil)
	s.inv.Invalidate()
	return err
}

func (g *Generic) Free(s *Session) error {
	s.purgePages()
	return nil
}

func (g *Generic) Eject(s *Session, h *Handle, mode EjectMode) error {
	if mode == EjectRewind {
		err := s.rewind(h)
		if errors.Is(err, ErrNoTapeOnline) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return s.unload(h)
}

func (g *Generic) Clean(s *Session, h *Handle) (CleanState, error) {
	es, err := s.extendedSense(h)
	if err != nil {
		return CleanState{}, err
	}
	return CleanState{Needed: es.CleaningNeeded, Done: es.CleaningDone}, nil
}

func (g *Generic) Rewind(s *Session, h *Handle) error {
	return s.rewind(h)
}

// BarCode asks for the volume tag of the first transport element. A
// changer without barcode support rejects the request.
func (g *Generic) BarCode(s *Session) (bool, error) {
	eaa, err := s.AddressAssignment()
	if err != nil {
		return false, err
	}
	t, start := scsi.ElementAll, uint16(0)
	if eaa != nil && eaa.Transport.Count > 0 {
		t, start = scsi.ElementTransport, eaa.Transport.First
	}

	_, err = s.readElementStatus(t, true, start, 1, nil)
	if IllegalRequest(err) {
		s.log.Debugw("volume tags not supported", "changer", s.Changer.Path)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var tagSearchOrder = [...]scsi.ElementType{
	scsi.ElementStorage,
	scsi.ElementDataTransfer,
	scsi.ElementImportExport,
	scsi.ElementTransport,
}

func (g *Generic) Search(s *Session, label string) (*scsi.ElementRecord, error) {
	voltag, err := s.BarCode()
	if err != nil {
		return nil, err
	}
	if !voltag {
		return nil, errors.Wrap(ErrNotFound, "changer does not report volume tags")
	}
	if err := s.ensureInventory(); err != nil {
		return nil, err
	}
	for _, t := range tagSearchOrder {
		if i, ok := s.inv.FindTag(t, label); ok {
			rec, _ := s.inv.At(t, i)
			found := *rec
			return &found, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "volume tag %q", label)
}

func (g *Generic) SenseHandler(s *Session, h *Handle, mode SenseMode, sense *scsi.Sense) (Outcome, string) {
	vendor := g.sense
	if mode == ElementSense {
		vendor = g.elementSense
	}
	outcome, reason := classify(vendor, mode, sense)
	s.log.Debugw("classified sense",
		"device", h.Path,
		"profile", g.ident,
		"sense", sense.String(),
		"outcome", outcome.String(),
		"reason", reason,
	)
	s.cfg.Metrics.classify(h.Path, mode, outcome)
	return outcome, reason
}

// DefaultProfiles holds every supported model.
var DefaultProfiles = ProfileTable{}

func register(p Profile) {
	if _, ok := DefaultProfiles[p.Ident()]; ok {
		panic("never")
	}
	DefaultProfiles[p.Ident()] = p
}

func init() {
	register(NewGeneric(GenericIdent, "Generic SCSI changer", nil, nil))
}
