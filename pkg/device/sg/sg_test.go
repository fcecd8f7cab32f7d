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

package sgdriver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	opts, err := parseURL("sg:///dev/sg3")
	require.NoError(t, err)
	assert.Equal(t, "/dev/sg3", opts.path)
	assert.Equal(t, DefaultTimeout, opts.timeout)
	assert.True(t, opts.modprobe)

	opts, err = parseURL("/dev/nst0")
	require.NoError(t, err)
	assert.Equal(t, "/dev/nst0", opts.path)

	opts, err = parseURL("sg:///dev/sg1?timeout=30s&modprobe=false")
	require.NoError(t, err)
	assert.Equal(t, "/dev/sg1", opts.path)
	assert.Equal(t, 30*time.Second, opts.timeout)
	assert.False(t, opts.modprobe)

	_, err = parseURL("sim:lib0")
	assert.Error(t, err)

	_, err = parseURL("sg:///dev/sg1?timeout=soon")
	assert.Error(t, err)
}
