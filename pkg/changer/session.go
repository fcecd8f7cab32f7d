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
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/NVIDIA/chgscsi/pkg/device"
	"github.com/NVIDIA/chgscsi/pkg/safecast"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

// Config tunes a Session.
type Config struct {
	// MaxRetries bounds the retries of a command whose sense is
	// classified Retry. Exhausting it aborts the command.
	MaxRetries int
	RetryDelay time.Duration

	// PollCount and PollInterval bound waits for a tape drive.
	PollCount    int
	PollInterval time.Duration

	// InitStatus resets and rescans the element status once when a
	// refresh reports import/export exceptions.
	InitStatus bool

	PageCacheSize int

	Profiles ProfileTable
	Metrics  *Metrics

	// Sleep waits between retries and polls.
	Sleep func(time.Duration)
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:    5,
		RetryDelay:    2 * time.Second,
		PollCount:     300,
		PollInterval:  2 * time.Second,
		InitStatus:    true,
		PageCacheSize: 8,
	}
}

// Device is an open device handed to a session. Identity overrides the
// product identification reported by INQUIRY for profile matching.
type Device struct {
	Path      string
	Transport device.Transport
	Identity  string
}

// TapeDevice is the tape drive behind one data transfer element.
// Without a Control device the drive is controlled through Data.
type TapeDevice struct {
	Data    Device
	Control *Device
}

// Handle is one open device with its resolved vendor profile.
type Handle struct {
	Path     string
	Identity string
	Profile  Profile

	// SCSI reports whether commands can be issued on the handle.
	SCSI bool

	transport device.Transport
}

// Drive is the pair of handles for one tape drive. Control and Data
// may be the same handle.
type Drive struct {
	Data    *Handle
	Control *Handle
}

// Session owns everything one changer conversation needs: the open
// handles, the element inventory and the cached mode pages. It is not
// safe for concurrent use.
type Session struct {
	ID      uuid.UUID
	Changer *Handle

	cfg    Config
	drives []*Drive
	inv    *Inventory
	pages  *simplelru.LRU
	voltag *bool

	exceptionsSeen bool
	inErrorHandler bool

	log *zap.SugaredLogger
}

// NewSession resolves a vendor profile for the changer and every tape
// device. The transports are owned by the session from then on.
func NewSession(cfg Config, changer Device, tapes ...TapeDevice) (*Session, error) {
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.Profiles == nil {
		cfg.Profiles = DefaultProfiles
	}
	if cfg.PageCacheSize <= 0 {
		cfg.PageCacheSize = DefaultConfig().PageCacheSize
	}
	pages, err := simplelru.NewLRU(cfg.PageCacheSize, nil)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	s := &Session{
		ID:    id,
		cfg:   cfg,
		inv:   NewInventory(),
		pages: pages,
		log:   zap.L().Sugar().Named("changer").With("session", id.String()),
	}

	if s.Changer, err = s.open(changer); err != nil {
		s.closeTransports(changer, tapes)
		return nil, errors.Wrapf(err, "changer %s", changer.Path)
	}
	for i, t := range tapes {
		d := &Drive{}
		if d.Data, err = s.open(t.Data); err != nil {
			s.closeTransports(changer, tapes)
			return nil, errors.Wrapf(err, "drive %d: %s", i, t.Data.Path)
		}
		d.Control = d.Data
		if t.Control != nil {
			if d.Control, err = s.open(*t.Control); err != nil {
				s.closeTransports(changer, tapes)
				return nil, errors.Wrapf(err, "drive %d control: %s", i, t.Control.Path)
			}
		}
		s.drives = append(s.drives, d)
	}

	s.log.Infow("session opened",
		"changer", s.Changer.Path,
		"identity", s.Changer.Identity,
		"profile", s.Changer.Profile.Name(),
		"drives", len(s.drives),
	)
	return s, nil
}

func (s *Session) open(dev Device) (*Handle, error) {
	h := &Handle{
		Path:      dev.Path,
		Identity:  dev.Identity,
		SCSI:      dev.Transport != nil,
		transport: dev.Transport,
	}
	if !h.SCSI {
		return nil, errors.New("no transport")
	}

	if h.Identity == "" {
		// Commands before the identity is known are classified by the
		// generic profile.
		generic, err := s.cfg.Profiles.Lookup(GenericIdent)
		if err != nil {
			return nil, err
		}
		h.Profile = generic
		inq, err := s.Inquiry(h)
		if err != nil {
			return nil, err
		}
		h.Identity = inq.Product
	}

	p, err := s.cfg.Profiles.Lookup(h.Identity)
	if err != nil {
		return nil, err
	}
	h.Profile = p
	s.log.Debugw("resolved profile", "path", h.Path, "identity", h.Identity, "profile", p.Ident())
	return h, nil
}

func (s *Session) closeTransports(changer Device, tapes []TapeDevice) {
	devs := []*Device{&changer}
	for i := range tapes {
		devs = append(devs, &tapes[i].Data)
		if tapes[i].Control != nil {
			devs = append(devs, tapes[i].Control)
		}
	}
	for _, d := range devs {
		if d.Transport != nil {
			d.Transport.Close()
		}
	}
}

// Close frees the profile state and closes every handle.
func (s *Session) Close() error {
	var result error
	if err := s.Changer.Profile.Free(s); err != nil {
		result = multierror.Append(result, err)
	}

	seen := make(map[*Handle]bool)
	handles := []*Handle{s.Changer}
	for _, d := range s.drives {
		handles = append(handles, d.Data, d.Control)
	}
	for _, h := range handles {
		if seen[h] {
			continue
		}
		seen[h] = true
		if err := h.transport.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "closing %s", h.Path))
		}
	}
	return result
}

// Drive returns the tape handles of drive i.
func (s *Session) Drive(i int) (*Drive, error) {
	if i < 0 || i >= len(s.drives) {
		return nil, errors.Wrapf(ErrNoTapeDevice, "drive %d", i)
	}
	return s.drives[i], nil
}

// Inventory exposes the element inventory as last read.
func (s *Session) Inventory() *Inventory {
	return s.inv
}

// Inquiry reads the standard INQUIRY data of h.
func (s *Session) Inquiry(h *Handle) (*scsi.InquiryData, error) {
	data := make([]byte, 96)
	res, err := s.exchange(h, scsi.Inquiry(safecast.IntToUint8(len(data))), scsi.DirectionIn, data)
	if err != nil {
		return nil, err
	}
	return scsi.DecodeInquiry(res.Transferred(data))
}
