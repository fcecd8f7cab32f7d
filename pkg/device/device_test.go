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

package device_test

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/chgscsi/pkg/device"
	"github.com/NVIDIA/chgscsi/pkg/device/sim"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

func TestRegistry(t *testing.T) {
	assert.Contains(t, device.Drivers(), "sim")

	d, err := device.Find("sim:default")
	require.NoError(t, err)
	assert.Equal(t, "simdriver", d.Name())

	_, err = device.Find("nosuch:thing")
	assert.Error(t, err)

	tr, err := device.Open("sim:default")
	require.NoError(t, err)
	res, err := tr.Execute(scsi.TestUnitReady(), scsi.DirectionNone, nil)
	require.NoError(t, err)
	assert.True(t, res.Good())
	require.NoError(t, tr.Close())

	_, err = tr.Execute(scsi.TestUnitReady(), scsi.DirectionNone, nil)
	assert.Equal(t, device.ErrClosed, err)
	assert.Equal(t, device.ErrClosed, tr.Close())
}

func TestOpenErrors(t *testing.T) {
	_, err := device.Open("sim:not-attached")
	assert.Error(t, err)

	_, err = device.Open("sim:default?drive=9")
	assert.Error(t, err)
}

func TestResultTransferred(t *testing.T) {
	data := make([]byte, 10)
	r := &device.Result{Resid: 4}
	assert.Len(t, r.Transferred(data), 6)
	r.Resid = 20
	assert.Len(t, r.Transferred(data), 0)
}

func TestMetricsWrap(t *testing.T) {
	lib := simdriver.NewLibrary(simdriver.DefaultConfig())
	reg := prometheus.NewRegistry()
	m := device.NewMetrics(reg, "test")
	tr := m.Wrap("chg", lib.Transport())

	res, err := tr.Execute(scsi.Rewind(false), scsi.DirectionNone, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(scsi.StatusCheckCondition), res.Status)

	lib.InjectFault(simdriver.Fault{Op: scsi.OpRewind, Err: errors.New("selection timeout")})
	_, err = tr.Execute(scsi.Rewind(false), scsi.DirectionNone, nil)
	var te *device.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, byte(scsi.OpRewind), te.Op)

	expected := `
# HELP test_commands_total A counter for commands issued to the wrapped device.
# TYPE test_commands_total counter
test_commands_total{device="chg",opcode="0x1",status="0x2"} 1
# HELP test_transport_errors_total A counter for exchanges that failed below the SCSI layer.
# TYPE test_transport_errors_total counter
test_transport_errors_total{device="chg",opcode="0x1"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"test_commands_total",
		"test_transport_errors_total",
	))
}
