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

package scsi

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTruncatedResponse is returned when a length or offset in a
	// response would read past the end of the returned buffer.
	ErrTruncatedResponse = errors.New("scsi: truncated response")

	// ErrMalformedPage is returned when a mode page declares a zero
	// length before the declared mode data has been consumed.
	ErrMalformedPage = errors.New("scsi: malformed mode page")
)

// TruncatedError records where a decode ran out of data.
type TruncatedError struct {
	What string
	Off  int
	Want int
	Have int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("scsi: truncated %s: need %d bytes at offset %d, have %d", e.What, e.Want, e.Off, e.Have)
}

func (e *TruncatedError) Unwrap() error {
	return ErrTruncatedResponse
}

// IsTruncated reports whether err was caused by a short response.
func IsTruncated(err error) bool {
	return errors.Is(err, ErrTruncatedResponse)
}

// IsMalformed reports whether err was caused by a malformed mode page.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedPage)
}
