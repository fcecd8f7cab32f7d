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

	"github.com/NVIDIA/chgscsi/pkg/device"
	"github.com/NVIDIA/chgscsi/pkg/safecast"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

// attempt is the classified result of issuing a command once.
type attempt struct {
	res     *device.Result
	sense   *scsi.Sense
	outcome Outcome
	reason  string

	// ok is set for GOOD status and for sense classified Ignore.
	ok bool
}

func (a *attempt) err(h *Handle, op byte) *SenseError {
	return &SenseError{
		Device:  h.Path,
		Op:      op,
		Sense:   a.sense,
		Outcome: a.outcome,
		Reason:  a.reason,
	}
}

// try issues cdb once and classifies the result through the profile of
// h. Transport failures are returned as errors and never classified.
func (s *Session) try(h *Handle, cdb []byte, dir scsi.Direction, data []byte) (*attempt, error) {
	res, err := h.transport.Execute(cdb, dir, data)
	if err != nil {
		if _, ok := err.(*device.TransportError); ok {
			return nil, err
		}
		return nil, &device.TransportError{Device: h.Path, Op: cdb[0], Err: err}
	}

	a := &attempt{res: res}
	switch res.Status {
	case scsi.StatusGood:
		a.ok = true
		return a, nil
	case scsi.StatusBusy:
		a.outcome, a.reason = Retry, "busy"
		return a, nil
	case scsi.StatusCheckCondition:
	default:
		a.outcome, a.reason = Abort, "unexpected status"
		return a, nil
	}

	if a.sense, err = s.senseFor(h, res); err != nil {
		if errors.Is(err, ErrNoSense) {
			// A check condition that cannot be explained is a failure.
			s.log.Warnw("no sense data", "device", h.Path, "opcode", cdb[0], "error", err)
			a.outcome, a.reason = Abort, "no sense data"
			return a, nil
		}
		return nil, err
	}
	a.outcome, a.reason = h.Profile.SenseHandler(s, h, CommandSense, a.sense)
	a.ok = a.outcome == Ignore
	return a, nil
}

// minSenseLength covers the fixed sense format through the ASCQ.
const minSenseLength = 14

// senseFor returns the autosense of res, or asks the device for it.
// ErrNoSense is returned when REQUEST SENSE fails or comes back short.
func (s *Session) senseFor(h *Handle, res *device.Result) (*scsi.Sense, error) {
	raw := res.Sense
	if len(raw) < minSenseLength {
		data := make([]byte, scsi.SenseLength)
		rs, err := h.transport.Execute(scsi.RequestSense(safecast.IntToUint8(len(data))), scsi.DirectionIn, data)
		if err != nil {
			return nil, err
		}
		if !rs.Good() {
			return nil, errors.Wrapf(ErrNoSense, "request sense status %#02x", rs.Status)
		}
		raw = rs.Transferred(data)
		if len(raw) < minSenseLength {
			return nil, errors.Wrapf(ErrNoSense, "request sense returned %d bytes", len(raw))
		}
	}
	if len(raw) < scsi.SenseLength {
		raw = append(append([]byte(nil), raw...), make([]byte, scsi.SenseLength-len(raw))...)
	}
	return scsi.DecodeSense(raw)
}

// exchange issues cdb, retrying while the sense is classified Retry.
// Retries are spaced by the configured delay and bounded by MaxRetries;
// running out of retries aborts the command.
func (s *Session) exchange(h *Handle, cdb []byte, dir scsi.Direction, data []byte) (*device.Result, error) {
	b := bounded(s.cfg.RetryDelay, s.cfg.MaxRetries)
	for retries := 0; ; retries++ {
		a, err := s.try(h, cdb, dir, data)
		if err != nil {
			return nil, err
		}
		if a.ok {
			return a.res, nil
		}

		switch a.outcome {
		case Retry, ImportExportStatus:
			s.inv.Invalidate()
			delay := b.NextBackOff()
			if delay == backoff.Stop {
				se := a.err(h, cdb[0])
				se.Outcome = Abort
				se.Retries = retries
				se.Exhausted = true
				s.cfg.Metrics.exhausted(h.Path)
				return nil, se
			}
			s.cfg.Metrics.retried(h.Path)
			s.log.Warnw("retrying command",
				"device", h.Path,
				"opcode", cdb[0],
				"reason", a.reason,
				"attempt", retries+1,
			)
			s.cfg.Sleep(delay)
		default:
			return nil, a.err(h, cdb[0])
		}
	}
}

// bounded returns a constant backoff that stops after n retries.
// WithMaxRetries treats zero as unbounded, so zero is handled here.
func bounded(delay time.Duration, n int) backoff.BackOff {
	if n <= 0 {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(n))
}
