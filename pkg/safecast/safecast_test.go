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

package safecast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NVIDIA/chgscsi/pkg/safecast"
)

func TestNarrowing(t *testing.T) {
	assert.Equal(t, uint8(255), safecast.IntToUint8(255))
	assert.Panics(t, func() { safecast.IntToUint8(256) })
	assert.Panics(t, func() { safecast.IntToUint8(-1) })

	assert.Equal(t, uint16(0xffff), safecast.IntToUint16(0xffff))
	assert.Panics(t, func() { safecast.IntToUint16(0x10000) })

	assert.Equal(t, uint32(0xffffff), safecast.IntToUint24(0xffffff))
	assert.Panics(t, func() { safecast.IntToUint24(0x1000000) })

	assert.Equal(t, uint32(0x10000), safecast.IntToUint32(0x10000))
	assert.Panics(t, func() { safecast.IntToUint32(-5) })
}
