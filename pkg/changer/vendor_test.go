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
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/chgscsi/pkg/changer"
	"github.com/NVIDIA/chgscsi/pkg/device/sim"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

func exabyteConfig(product string) simdriver.Config {
	cfg := slots(4)
	cfg.Vendor = "EXABYTE"
	cfg.Product = product
	cfg.VendorPage = []byte{0x00, 0x10, 0x00, 0x00}
	cfg.BarcodeBit = true
	return cfg
}

func TestExabyteEnablesBarcodes(t *testing.T) {
	tl := newTestLibrary(exabyteConfig("EXB-120"))
	tl.Put(scsi.ElementStorage, 2, "E00003")
	s := tl.session(t)
	defer s.Close()
	require.Equal(t, "EXB-120", s.Changer.Profile.Ident())

	rec, err := s.Search("E00003")
	require.NoError(t, err)
	assert.Equal(t, tl.address(scsi.ElementStorage, 2), rec.Address)
	assert.Equal(t, byte(0x01), tl.VendorPage()[0]&0x01)
	assert.Equal(t, byte(0x10), tl.VendorPage()[1])
	assert.Equal(t, 1, tl.Count(scsi.OpModeSelect))

	on, err := s.BarCode()
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, 1, tl.Count(scsi.OpModeSelect))
}

func TestGenericBarcodeUnsupported(t *testing.T) {
	cfg := slots(4)
	cfg.VolumeTags = false
	tl := newTestLibrary(cfg)
	tl.Put(scsi.ElementStorage, 0, "A00001")
	s := tl.session(t)
	defer s.Close()

	on, err := s.BarCode()
	require.NoError(t, err)
	assert.False(t, on)

	recs, err := s.Status()
	require.NoError(t, err)
	for _, rec := range recs {
		assert.False(t, rec.HasVolumeTag)
	}

	_, err = s.Search("A00001")
	assert.True(t, errors.Is(err, changer.ErrNotFound))
	assert.Equal(t, changer.StatusNotFound, changer.Status(err))
}

func TestSearch(t *testing.T) {
	tl := newTestLibrary(slots(4))
	tl.Put(scsi.ElementStorage, 3, "A00004")
	tl.Put(scsi.ElementDataTransfer, 1, "A00009")
	s := tl.session(t)
	defer s.Close()

	rec, err := s.Search("A00009")
	require.NoError(t, err)
	assert.Equal(t, scsi.ElementDataTransfer, rec.Type)

	rec, err = s.Search("A00004")
	require.NoError(t, err)
	assert.Equal(t, tl.address(scsi.ElementStorage, 3), rec.Address)

	_, err = s.Search("NOPE")
	assert.True(t, errors.Is(err, changer.ErrNotFound))
}

func TestEXB10eClearsTransportBeforeReset(t *testing.T) {
	tl := newTestLibrary(exabyteConfig("EXB-10e"))
	tl.Put(scsi.ElementTransport, 0, "E00042")
	tl.Put(scsi.ElementStorage, 0, "E00001")
	s := tl.session(t)
	defer s.Close()

	require.NoError(t, s.Reset())

	assert.False(t, tl.Element(scsi.ElementTransport, 0).Full)
	assert.Equal(t, "E00042", tl.Element(scsi.ElementStorage, 1).VolumeTag)
	assert.Equal(t, 2, tl.Count(scsi.OpInitializeElementStatus))

	recs, err := s.Status()
	require.NoError(t, err)
	assert.Equal(t, scsi.Empty, recs[0].Status)
}

func TestGenericResetDoesNotClearTransport(t *testing.T) {
	tl := newTestLibrary(slots(4))
	tl.Put(scsi.ElementTransport, 0, "A00042")
	s := tl.session(t)
	defer s.Close()

	err := s.Reset()
	require.Error(t, err)
	assert.True(t, tl.Element(scsi.ElementTransport, 0).Full)
	assert.Zero(t, tl.Count(scsi.OpMoveMedium))
}

func TestDLT448MovesWithAlign(t *testing.T) {
	cfg := slots(4)
	cfg.Product = "DLT448"
	cfg.Drives = 1
	cfg.Align = true
	tl := newTestLibrary(cfg)
	tl.Put(scsi.ElementStorage, 1, "D00002")
	tl.Put(scsi.ElementStorage, 2, "D00003")
	s := tl.session(t)
	defer s.Close()

	require.NoError(t, s.Load(0, 1))
	assert.Equal(t, 1, tl.Count(scsi.OpAlignElements))
	assert.Zero(t, tl.Count(scsi.OpMoveMedium))
	assert.True(t, tl.Element(scsi.ElementDataTransfer, 0).Full)

	tl.ResetCommands()
	err := s.Move(tl.address(scsi.ElementStorage, 2), tl.address(scsi.ElementStorage, 3))
	assert.True(t, errors.Is(err, changer.ErrIllegalMove))
	assert.Zero(t, tl.Count(scsi.OpAlignElements))
	assert.Zero(t, tl.Count(scsi.OpMoveMedium))

	require.NoError(t, s.Unload(0, -1))
	assert.True(t, tl.Element(scsi.ElementStorage, 1).Full)
}

func TestCleanState(t *testing.T) {
	tl := newTestLibrary(slots(4))
	tl.Put(scsi.ElementDataTransfer, 0, "A00001")
	s := tl.session(t)
	defer s.Close()

	cs, err := s.CleanState(0)
	require.NoError(t, err)
	assert.Equal(t, changer.CleanState{}, cs)

	tl.Drive(0).SetCleaning(true, false)
	cs, err = s.CleanState(0)
	require.NoError(t, err)
	assert.True(t, cs.Needed)
	assert.False(t, cs.Done)
}

func TestTapeAlertCleaning(t *testing.T) {
	tl := newTestLibrary(slots(4))
	tl.Put(scsi.ElementDataTransfer, 0, "A00001")
	s := tl.session(t, "DLT7000", "DLT7000")
	defer s.Close()

	cs, err := s.CleanState(1)
	require.NoError(t, err)
	assert.False(t, cs.Needed)

	tl.Drive(0).SetLogPage(scsi.LogPageTapeAlert,
		scsi.LogParameter{Code: 0x0003},
		scsi.LogParameter{Code: 0x0014, Value: 1},
	)
	cs, err = s.CleanState(0)
	require.NoError(t, err)
	assert.True(t, cs.Needed)
}

func TestDLTEjectRewindsFirst(t *testing.T) {
	tl := newTestLibrary(slots(4))
	tl.Put(scsi.ElementDataTransfer, 0, "A00001")
	s := tl.session(t, "DLT8000")
	defer s.Close()
	tl.ResetCommands()

	require.NoError(t, s.Eject(0, changer.EjectUnload))
	assert.False(t, tl.Drive(0).Online())

	ops := tl.deviceCommands("drive0")
	require.True(t, len(ops) >= 2)
	assert.Equal(t, byte(scsi.OpRewind), ops[0])
	assert.Contains(t, ops, byte(scsi.OpLoadUnload))
}

func TestGenericEject(t *testing.T) {
	tl := newTestLibrary(slots(4))
	tl.Put(scsi.ElementDataTransfer, 0, "A00001")
	s := tl.session(t)
	defer s.Close()
	tl.ResetCommands()

	require.NoError(t, s.Eject(0, changer.EjectUnload))
	assert.NotContains(t, tl.deviceCommands("drive0"), byte(scsi.OpRewind))
	assert.False(t, tl.Drive(0).Online())

	// Nothing to eject.
	require.NoError(t, s.Eject(1, changer.EjectRewind))
}

func TestRewindEmptyDrive(t *testing.T) {
	tl := newTestLibrary(slots(4))
	s := tl.session(t)
	defer s.Close()

	err := s.Rewind(0)
	assert.True(t, errors.Is(err, changer.ErrNoTapeOnline))
	assert.Equal(t, changer.StatusNoTape, changer.Status(err))
}

func TestLogCounters(t *testing.T) {
	tl := newTestLibrary(slots(4))
	tl.Drive(0).SetLogPage(scsi.LogPageWriteErrors,
		scsi.LogParameter{Code: 0x0003, Value: 12},
		scsi.LogParameter{Code: 0x0005, Value: 1 << 30},
		scsi.LogParameter{Code: 0x8001, Value: 7},
	)
	s := tl.session(t)
	defer s.Close()
	d, err := s.Drive(0)
	require.NoError(t, err)

	pages, err := s.LogPages(d.Control)
	require.NoError(t, err)
	assert.Equal(t, []byte{scsi.LogPageSupported, scsi.LogPageWriteErrors}, pages)

	counters, err := s.LogCounters(d.Control, scsi.LogPageWriteErrors)
	require.NoError(t, err)
	require.Len(t, counters, 3)
	assert.Equal(t, "total errors corrected", counters[0].Name)
	assert.Equal(t, uint64(12), counters[0].Value)
	assert.True(t, counters[1].Bytes)
	assert.Equal(t, uint64(1<<30), counters[1].Value)
	assert.Equal(t, "parameter 0x8001", counters[2].Name)

	for _, c := range tl.Commands() {
		if c.Op() == scsi.OpLogSense {
			assert.Equal(t, byte(0x40), c.CDB[2]&0xc0, "log sense must ask for cumulative values")
		}
	}

	_, err = s.LogCounters(d.Control, scsi.LogPageCompression)
	assert.True(t, changer.IllegalRequest(err))
}
