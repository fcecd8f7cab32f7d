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

// cursor is a bounds checked big-endian reader over a response buffer.
// Every read validates the remaining length first and never panics.
type cursor struct {
	buf  []byte
	off  int
	what string
}

func newCursor(buf []byte, what string) *cursor {
	return &cursor{buf: buf, what: what}
}

func (c *cursor) need(n int) error {
	if n < 0 || c.off+n > len(c.buf) {
		return &TruncatedError{What: c.what, Off: c.off, Want: n, Have: len(c.buf) - c.off}
	}
	return nil
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.off
}

func (c *cursor) skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.off += n
	return nil
}

func (c *cursor) u8() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.buf[c.off]
	c.off++
	return b, nil
}

func (c *cursor) u16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := uint16(c.buf[c.off])<<8 | uint16(c.buf[c.off+1])
	c.off += 2
	return v, nil
}

func (c *cursor) u24() (uint32, error) {
	if err := c.need(3); err != nil {
		return 0, err
	}
	v := uint32(c.buf[c.off])<<16 | uint32(c.buf[c.off+1])<<8 | uint32(c.buf[c.off+2])
	c.off += 3
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := uint32(c.buf[c.off])<<24 | uint32(c.buf[c.off+1])<<16 | uint32(c.buf[c.off+2])<<8 | uint32(c.buf[c.off+3])
	c.off += 4
	return v, nil
}

// uint reassembles an n byte big-endian unsigned value, 1 <= n <= 8.
func (c *cursor) uint(n int) (uint64, error) {
	if n < 1 || n > 8 {
		return 0, &TruncatedError{What: c.what, Off: c.off, Want: n, Have: c.remaining()}
	}
	if err := c.need(n); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(c.buf[c.off+i])
	}
	c.off += n
	return v, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// sub returns a cursor over the next n bytes and advances past them.
func (c *cursor) sub(n int, what string) (*cursor, error) {
	b, err := c.bytes(n)
	if err != nil {
		return nil, err
	}
	return newCursor(b, what), nil
}

// trimString trims trailing spaces and NULs from a fixed width ASCII field.
func trimString(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	return string(b[:end])
}
