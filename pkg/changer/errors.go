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

	"github.com/pkg/errors"

	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

// Move legality failures. They never change the inventory.
var (
	ErrUnknownElement = errors.New("changer: unknown element address")
	ErrNoFreeSlot     = errors.New("changer: no empty storage slot")
	ErrIllegalMove    = errors.New("changer: move not permitted by device capabilities")
)

// Configuration failures. The session cannot continue after these.
var (
	ErrNoCapabilities  = errors.New("changer: device capabilities page unavailable")
	ErrNoVendorProfile = errors.New("changer: no vendor profile matches and no generic profile")
)

// Sense classified failures.
var (
	ErrAborted      = errors.New("changer: command aborted by device")
	ErrNoTapeOnline = errors.New("changer: no tape online")
	ErrImportExport = errors.New("changer: import/export element accessed")
	ErrNoSense      = errors.New("changer: check condition without sense data")
)

// Conditions reported to callers of the query surface.
var (
	ErrSlotEmpty     = errors.New("changer: slot is empty")
	ErrDriveEmpty    = errors.New("changer: drive is empty")
	ErrNotFound      = errors.New("changer: not found")
	ErrNoTapeDevice  = errors.New("changer: no tape device for drive")
	ErrPollTimeout   = errors.New("changer: device did not become ready")
	ErrDuplicateAddr = errors.New("changer: element address reported twice")
)

// SenseError is a command the device refused with sense data.
type SenseError struct {
	Device    string
	Op        byte
	Sense     *scsi.Sense
	Outcome   Outcome
	Reason    string
	Retries   int
	Exhausted bool
}

func (e *SenseError) Error() string {
	msg := fmt.Sprintf("%s: opcode %#02x: %s", e.Device, e.Op, e.Outcome)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Sense != nil {
		msg += ": " + e.Sense.String()
	}
	if e.Exhausted {
		msg += fmt.Sprintf(": gave up after %d retries", e.Retries)
	}
	return msg
}

func (e *SenseError) Unwrap() error {
	switch e.Outcome {
	case NoTapeOnline:
		return ErrNoTapeOnline
	case ImportExportStatus:
		return ErrImportExport
	default:
		return ErrAborted
	}
}

func (e *SenseError) Cause() error {
	return e.Unwrap()
}

// IllegalRequest reports whether err is a command the device rejected
// with ILLEGAL REQUEST.
func IllegalRequest(err error) bool {
	var se *SenseError
	return errors.As(err, &se) && se.Sense != nil && se.Sense.Key == scsi.SenseIllegalRequest
}

// ElementError names the element address a move could not use.
type ElementError struct {
	Address uint16
	Err     error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("element %d: %v", e.Address, e.Err)
}

func (e *ElementError) Unwrap() error {
	return e.Err
}

func (e *ElementError) Cause() error {
	return e.Err
}

// MoveError describes a move refused before any command was sent.
type MoveError struct {
	From, To scsi.ElementType
	Err      error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %s to %s: %v", e.From, e.To, e.Err)
}

func (e *MoveError) Unwrap() error {
	return e.Err
}

func (e *MoveError) Cause() error {
	return e.Err
}

// Integer statuses for callers that only need the success/failure
// partition: zero is success, negative is fatal and positive is a
// condition the caller is expected to handle.
const (
	StatusOK           = 0
	StatusFatal        = -1
	StatusNoTape       = 1
	StatusEmpty        = 2
	StatusNotFound     = 3
	StatusImportExport = 4
)

// Status maps err onto the integer status partition.
func Status(err error) int {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrNoTapeOnline):
		return StatusNoTape
	case errors.Is(err, ErrSlotEmpty), errors.Is(err, ErrDriveEmpty):
		return StatusEmpty
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	case errors.Is(err, ErrImportExport):
		return StatusImportExport
	default:
		return StatusFatal
	}
}

// Fatal reports whether err should end the session: a configuration
// failure rather than a failed operation.
func Fatal(err error) bool {
	return errors.Is(err, ErrNoCapabilities) || errors.Is(err, ErrNoVendorProfile)
}
