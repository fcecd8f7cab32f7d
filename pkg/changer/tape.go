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

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"

	"github.com/NVIDIA/chgscsi/pkg/safecast"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

// Poller calls a condition up to Count times, sleeping Interval between
// calls. The bound is a number of polls, not a deadline.
type Poller struct {
	Count    int
	Interval time.Duration
	Sleep    func(time.Duration)
}

// Poll returns nil once fn reports done, fn's error if it fails, or
// ErrPollTimeout after Count unsuccessful calls.
func (p Poller) Poll(fn func() (done bool, err error)) error {
	if p.Count <= 0 {
		panic("never")
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	b := bounded(p.Interval, p.Count-1)
	for {
		done, err := fn()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return ErrPollTimeout
		}
		sleep(delay)
	}
}

func (s *Session) poller() Poller {
	return Poller{Count: s.cfg.PollCount, Interval: s.cfg.PollInterval, Sleep: s.cfg.Sleep}
}

// EjectMode selects how a tape is taken offline.
type EjectMode int

const (
	// EjectUnload unloads the tape where it is.
	EjectUnload EjectMode = iota

	// EjectRewind rewinds before unloading.
	EjectRewind
)

// CleanState is what a drive reports about cleaning.
type CleanState struct {
	Needed bool
	Done   bool
}

// online reports whether h answers TEST UNIT READY with a tape loaded.
func (s *Session) online(h *Handle) (bool, error) {
	a, err := s.try(h, scsi.TestUnitReady(), scsi.DirectionNone, nil)
	if err != nil {
		return false, err
	}
	return a.ok, nil
}

// WaitReady polls h until it reports ready. A drive without a tape ends
// the wait at once with ErrNoTapeOnline.
func (s *Session) WaitReady(h *Handle) error {
	cdb := scsi.TestUnitReady()
	err := s.poller().Poll(func() (bool, error) {
		a, err := s.try(h, cdb, scsi.DirectionNone, nil)
		if err != nil {
			return false, err
		}
		if a.ok {
			return true, nil
		}
		switch a.outcome {
		case Retry, ImportExportStatus:
			return false, nil
		default:
			return false, a.err(h, cdb[0])
		}
	})
	if err == ErrPollTimeout {
		return errors.Wrapf(err, "%s", h.Path)
	}
	return err
}

// rewind rewinds the tape in h and waits for the drive.
func (s *Session) rewind(h *Handle) error {
	if _, err := s.exchange(h, scsi.Rewind(false), scsi.DirectionNone, nil); err != nil {
		return err
	}
	return s.WaitReady(h)
}

// unload takes the tape in h offline and waits until the drive stops
// reporting ready. An empty drive is already unloaded.
func (s *Session) unload(h *Handle) error {
	_, err := s.exchange(h, scsi.LoadUnload(scsi.Unload, false), scsi.DirectionNone, nil)
	if errors.Is(err, ErrNoTapeOnline) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.poller().Poll(func() (bool, error) {
		online, err := s.online(h)
		return !online, err
	})
}

// extendedSense reads the device class sense of a tape drive. Drives
// that only return fixed sense come back with the extended fields unset.
func (s *Session) extendedSense(h *Handle) (*scsi.ExtendedSense, error) {
	data := make([]byte, scsi.ExtendedSenseLength)
	res, err := s.exchange(h, scsi.RequestSense(safecast.IntToUint8(len(data))), scsi.DirectionIn, data)
	if err != nil {
		return nil, err
	}
	buf := res.Transferred(data)
	if len(buf) >= scsi.ExtendedSenseLength {
		return scsi.DecodeExtendedSense(buf)
	}
	sense, err := scsi.DecodeSense(buf)
	if err != nil {
		return nil, err
	}
	return &scsi.ExtendedSense{Sense: *sense}, nil
}
