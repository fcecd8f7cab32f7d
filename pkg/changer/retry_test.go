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

package changer_test

import (
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/chgscsi/pkg/changer"
	"github.com/NVIDIA/chgscsi/pkg/device/sim"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

func TestClassifyMediumNotPresent(t *testing.T) {
	sense := &scsi.Sense{Key: scsi.SenseNotReady, ASC: scsi.AscMediumNotPresent}

	tl := newTestLibrary(simdriver.DefaultConfig())
	s := tl.session(t)
	defer s.Close()

	outcome, _ := s.Changer.Profile.SenseHandler(s, s.Changer, changer.CommandSense, sense)
	assert.Equal(t, changer.NoTapeOnline, outcome)

	for _, ident := range []string{"EXB-10e", "DLT7000", "SDX-500C", "L500"} {
		outcome, _ = changer.DefaultProfiles[ident].SenseHandler(s, s.Changer, changer.CommandSense, sense)
		assert.Equal(t, changer.NoTapeOnline, outcome, ident)
	}

	outcome, reason := changer.DefaultProfiles["C1553A"].SenseHandler(s, s.Changer, changer.CommandSense, sense)
	assert.Equal(t, changer.Abort, outcome)
	assert.Equal(t, "magazine not present", reason)
}

func TestSenseTableLookup(t *testing.T) {
	for _, tc := range []struct {
		mode    changer.SenseMode
		sense   scsi.Sense
		outcome changer.Outcome
	}{
		{changer.CommandSense, scsi.Sense{Key: scsi.SenseNoSense}, changer.Ignore},
		{changer.CommandSense, scsi.Sense{Key: scsi.SenseUnitAttention, ASC: scsi.AscPowerOnReset}, changer.Retry},
		{changer.CommandSense, scsi.Sense{Key: scsi.SenseNotReady, ASC: scsi.AscNotReady, ASCQ: scsi.AscqBecomingReady}, changer.Retry},
		{changer.CommandSense, scsi.Sense{Key: scsi.SenseNotReady, ASC: scsi.AscNotReady, ASCQ: scsi.AscqVendorDoorOpen}, changer.Abort},
		{changer.CommandSense, scsi.Sense{Key: scsi.SenseIllegalRequest, ASC: scsi.AscInvalidElementAddress}, changer.Abort},
		{changer.CommandSense, scsi.Sense{Key: scsi.SenseHardwareError, ASC: 0x44}, changer.Abort},
		{changer.ElementSense, scsi.Sense{ASC: scsi.AscNotReadyToReady, ASCQ: scsi.AscqImportExportAccessed}, changer.ImportExportStatus},
		{changer.ElementSense, scsi.Sense{ASC: scsi.AscVendorBarcodeUnreadable}, changer.Ignore},
	} {
		table := changer.GenericSense
		if tc.mode == changer.ElementSense {
			table = changer.GenericElementSense
		}
		rule, ok := table.Lookup(tc.mode, &tc.sense)
		require.True(t, ok, tc.sense.String())
		assert.Equal(t, tc.outcome, rule.Outcome, tc.sense.String())
	}

	_, ok := changer.GenericElementSense.Lookup(changer.ElementSense, &scsi.Sense{ASC: 0x99})
	assert.False(t, ok)
}

func TestUnknownSense(t *testing.T) {
	tl := newTestLibrary(simdriver.DefaultConfig())
	s := tl.session(t)
	defer s.Close()

	weird := &scsi.Sense{Key: 0x0f, ASC: 0x99}
	outcome, _ := s.Changer.Profile.SenseHandler(s, s.Changer, changer.CommandSense, weird)
	assert.Equal(t, changer.Abort, outcome)
	outcome, _ = s.Changer.Profile.SenseHandler(s, s.Changer, changer.ElementSense, weird)
	assert.Equal(t, changer.Ignore, outcome)
}

func TestRetryExhaustionAborts(t *testing.T) {
	tl := newTestLibrary(slots(4))
	tl.Put(scsi.ElementStorage, 0, "A00001")
	cfg := tl.config()
	cfg.MaxRetries = 3
	s := tl.open(t, cfg)
	defer s.Close()
	require.NoError(t, s.Refresh())

	tl.InjectFault(simdriver.Fault{
		Op:    scsi.OpMoveMedium,
		Times: 100,
		Sense: scsi.Sense{Key: scsi.SenseUnitAttention, ASC: scsi.AscPowerOnReset},
	})
	err := s.Move(tl.address(scsi.ElementStorage, 0), tl.address(scsi.ElementStorage, 1))

	var se *changer.SenseError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, changer.Abort, se.Outcome)
	assert.True(t, se.Exhausted)
	assert.Equal(t, 3, se.Retries)
	assert.True(t, errors.Is(err, changer.ErrAborted))
	assert.Equal(t, changer.StatusFatal, changer.Status(err))

	assert.Equal(t, 4, tl.Count(scsi.OpMoveMedium))
	assert.Equal(t, 3, tl.sleeps)
	assert.False(t, s.Inventory().Valid())
}

func TestRetryRecovers(t *testing.T) {
	tl := newTestLibrary(slots(4))
	tl.Put(scsi.ElementStorage, 0, "A00001")
	s := tl.session(t)
	defer s.Close()
	require.NoError(t, s.Refresh())

	tl.InjectFault(simdriver.Fault{Op: scsi.OpMoveMedium, Times: 2, Busy: true})
	require.NoError(t, s.Move(tl.address(scsi.ElementStorage, 0), tl.address(scsi.ElementStorage, 1)))
	assert.Equal(t, 3, tl.Count(scsi.OpMoveMedium))
	assert.Equal(t, 2, tl.sleeps)
	assert.True(t, tl.Element(scsi.ElementStorage, 1).Full)
}

func TestNoRetries(t *testing.T) {
	tl := newTestLibrary(slots(4))
	tl.Put(scsi.ElementStorage, 0, "A00001")
	cfg := tl.config()
	cfg.MaxRetries = 0
	s := tl.open(t, cfg)
	defer s.Close()
	require.NoError(t, s.Refresh())

	tl.InjectFault(simdriver.Fault{Op: scsi.OpMoveMedium, Busy: true})
	err := s.Move(tl.address(scsi.ElementStorage, 0), tl.address(scsi.ElementStorage, 1))
	assert.True(t, errors.Is(err, changer.ErrAborted))
	assert.Equal(t, 1, tl.Count(scsi.OpMoveMedium))
}

func TestHardwareErrorAborts(t *testing.T) {
	tl := newTestLibrary(slots(4))
	tl.Put(scsi.ElementStorage, 0, "A00001")
	s := tl.session(t)
	defer s.Close()
	require.NoError(t, s.Refresh())

	tl.InjectFault(simdriver.Fault{
		Op:    scsi.OpMoveMedium,
		Sense: scsi.Sense{Key: scsi.SenseHardwareError, ASC: scsi.AscMechanicalPositioning},
	})
	err := s.Move(tl.address(scsi.ElementStorage, 0), tl.address(scsi.ElementStorage, 1))
	var se *changer.SenseError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, scsi.SenseHardwareError, se.Sense.Key)
	assert.Equal(t, "mechanical positioning error", se.Reason)
	assert.False(t, se.Exhausted)
}

func TestMetrics(t *testing.T) {
	tl := newTestLibrary(slots(4))
	tl.Put(scsi.ElementStorage, 0, "A00001")
	reg := prometheus.NewRegistry()
	cfg := tl.config()
	cfg.MaxRetries = 1
	cfg.Metrics = changer.NewMetrics(reg, "chg")
	s := tl.open(t, cfg)
	defer s.Close()
	require.NoError(t, s.Refresh())

	tl.InjectFault(simdriver.Fault{
		Op:    scsi.OpMoveMedium,
		Times: 2,
		Sense: scsi.Sense{Key: scsi.SenseUnitAttention, ASC: scsi.AscPowerOnReset},
	})
	require.Error(t, s.Move(tl.address(scsi.ElementStorage, 0), tl.address(scsi.ElementStorage, 1)))

	expected := `
# HELP chg_command_retries_total A counter of commands reissued after a retryable condition.
# TYPE chg_command_retries_total counter
chg_command_retries_total{device="changer"} 1
# HELP chg_moves_total A counter of medium moves by result.
# TYPE chg_moves_total counter
chg_moves_total{result="error"} 1
# HELP chg_retries_exhausted_total A counter of commands aborted after running out of retries.
# TYPE chg_retries_exhausted_total counter
chg_retries_exhausted_total{device="changer"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"chg_command_retries_total",
		"chg_moves_total",
		"chg_retries_exhausted_total",
	)
	assert.NoError(t, err)
}

func TestStatusPartition(t *testing.T) {
	assert.Equal(t, changer.StatusOK, changer.Status(nil))
	assert.Equal(t, changer.StatusNoTape, changer.Status(&changer.SenseError{Outcome: changer.NoTapeOnline}))
	assert.Equal(t, changer.StatusImportExport, changer.Status(&changer.SenseError{Outcome: changer.ImportExportStatus}))
	assert.Equal(t, changer.StatusEmpty, changer.Status(errors.Wrap(changer.ErrSlotEmpty, "slot 3")))
	assert.Equal(t, changer.StatusNotFound, changer.Status(errors.Wrap(changer.ErrNotFound, "A00001")))

	for _, err := range []error{
		&changer.SenseError{Outcome: changer.Abort},
		&changer.MoveError{From: scsi.ElementStorage, To: scsi.ElementStorage, Err: changer.ErrIllegalMove},
		changer.ErrNoCapabilities,
		errors.New("bus reset"),
	} {
		assert.True(t, changer.Status(err) < 0, err.Error())
	}
	closing := multierror.Append(errors.Wrap(changer.ErrDriveEmpty, "drive 1"), errors.New("close: device busy"))
	assert.Equal(t, changer.StatusEmpty, changer.Status(closing))

	assert.True(t, changer.Fatal(errors.Wrap(changer.ErrNoVendorProfile, "x")))
	assert.False(t, changer.Fatal(changer.ErrIllegalMove))
}

func TestSenseWithoutAutosense(t *testing.T) {
	cfg := slots(4)
	cfg.NoAutosense = true
	tl := newTestLibrary(cfg)
	tl.Put(scsi.ElementStorage, 0, "A00001")
	s := tl.session(t)
	defer s.Close()
	require.NoError(t, s.Refresh())

	tl.InjectFault(simdriver.Fault{
		Op:    scsi.OpMoveMedium,
		Sense: scsi.Sense{Key: scsi.SenseHardwareError, ASC: scsi.AscMechanicalPositioning},
	})
	err := s.Move(tl.address(scsi.ElementStorage, 0), tl.address(scsi.ElementStorage, 1))

	var se *changer.SenseError
	require.True(t, errors.As(err, &se))
	require.NotNil(t, se.Sense)
	assert.Equal(t, scsi.SenseHardwareError, se.Sense.Key)
	assert.Equal(t, byte(scsi.AscMechanicalPositioning), se.Sense.ASC)
	assert.Equal(t, 1, tl.Count(scsi.OpRequestSense))
}

func TestCheckConditionWithoutSenseFails(t *testing.T) {
	for name, fault := range map[string]simdriver.Fault{
		"request sense busy":    {Op: scsi.OpRequestSense, Busy: true},
		"request sense check":   {Op: scsi.OpRequestSense, Sense: scsi.Sense{Key: scsi.SenseIllegalRequest, ASC: scsi.AscInvalidOpcode}},
		"request sense short":   {Op: scsi.OpRequestSense, Data: []byte{0x70, 0x00, 0x00, 0x00}},
		"request sense no data": {Op: scsi.OpRequestSense, Data: []byte{}},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := slots(4)
			cfg.NoAutosense = true
			tl := newTestLibrary(cfg)
			tl.Put(scsi.ElementStorage, 0, "A00001")
			s := tl.session(t)
			defer s.Close()
			require.NoError(t, s.Refresh())

			tl.InjectFault(simdriver.Fault{
				Op:    scsi.OpMoveMedium,
				Sense: scsi.Sense{Key: scsi.SenseNotReady, ASC: scsi.AscNotReady},
			})
			tl.InjectFault(fault)
			err := s.Move(tl.address(scsi.ElementStorage, 0), tl.address(scsi.ElementStorage, 1))
			require.Error(t, err)

			var se *changer.SenseError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, changer.Abort, se.Outcome)
			assert.Nil(t, se.Sense)
			assert.True(t, errors.Is(err, changer.ErrAborted))
			assert.Equal(t, changer.StatusFatal, changer.Status(err))

			assert.Equal(t, 1, tl.Count(scsi.OpMoveMedium))
			assert.True(t, tl.Element(scsi.ElementStorage, 0).Full)
			assert.False(t, tl.Element(scsi.ElementStorage, 1).Full)
		})
	}
}
