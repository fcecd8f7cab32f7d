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

const modeSenseAlloc = 0xff

// ModePage returns mode page code of the changer, reading it once per
// session. A page the device rejects is remembered as absent and comes
// back with its field unset.
func (s *Session) ModePage(code byte) (*scsi.ModeParameters, error) {
	if v, ok := s.pages.Get(code); ok {
		return v.(*scsi.ModeParameters), nil
	}

	data := make([]byte, modeSenseAlloc)
	res, err := s.exchange(s.Changer, scsi.ModeSense(code, scsi.PageControlCurrent, true, modeSenseAlloc), scsi.DirectionIn, data)
	if IllegalRequest(err) {
		s.log.Debugw("mode page not supported", "page", code)
		mp := &scsi.ModeParameters{}
		s.pages.Add(code, mp)
		return mp, nil
	}
	if err != nil {
		return nil, err
	}

	mp, err := scsi.DecodeModeSense(res.Transferred(data))
	if err != nil {
		return nil, errors.Wrapf(err, "mode page %#02x", code)
	}
	s.pages.Add(code, mp)
	return mp, nil
}

// AddressAssignment returns the element address assignment page, or
// nil when the changer does not report one.
func (s *Session) AddressAssignment() (*scsi.AddressAssignmentPage, error) {
	mp, err := s.ModePage(scsi.PageAddressAssignment)
	if err != nil {
		return nil, err
	}
	return mp.AddressAssignment, nil
}

// Capabilities returns the device capabilities page. A changer without
// one cannot be driven.
func (s *Session) Capabilities() (*scsi.CapabilitiesPage, error) {
	mp, err := s.ModePage(scsi.PageCapabilities)
	if err != nil {
		return nil, err
	}
	if mp.Capabilities == nil {
		return nil, ErrNoCapabilities
	}
	return mp.Capabilities, nil
}

// forgetPage drops a cached page after it was changed by MODE SELECT.
func (s *Session) forgetPage(code byte) {
	s.pages.Remove(code)
}

// purgePages drops every cached page.
func (s *Session) purgePages() {
	s.pages.Purge()
}
