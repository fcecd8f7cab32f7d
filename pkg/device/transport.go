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

package device

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

// ErrClosed is returned by a transport used after Close.
var ErrClosed = errors.New("device: transport closed")

// Result is the outcome of a single command exchange. Sense holds the
// autosense data when Status is CHECK CONDITION, and Resid is the number
// of bytes of the data buffer the device did not transfer.
type Result struct {
	Status byte
	Sense  []byte
	Resid  int
}

func (r *Result) Good() bool {
	return r.Status == scsi.StatusGood
}

// Transferred returns the part of data actually filled in by the device.
func (r *Result) Transferred(data []byte) []byte {
	n := len(data) - r.Resid
	if n < 0 {
		n = 0
	}
	return data[:n]
}

func (r *Result) String() string {
	return fmt.Sprintf("status=%#02x sense=%d resid=%d", r.Status, len(r.Sense), r.Resid)
}

// Transport issues a CDB to one device and returns the status and sense.
// An error is returned only when the exchange itself failed; a device
// reporting CHECK CONDITION is a successful exchange.
type Transport interface {
	Execute(cdb []byte, dir scsi.Direction, data []byte) (*Result, error)
	Close() error
}

// TransportError wraps a failed exchange with the device and opcode.
type TransportError struct {
	Device string
	Op     byte
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("device %s: opcode %#02x: %v", e.Device, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Cause() error {
	return e.Err
}
