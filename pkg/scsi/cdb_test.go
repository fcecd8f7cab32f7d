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

package scsi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

func TestCDBLengths(t *testing.T) {
	cases := []struct {
		name string
		cdb  []byte
		len  int
	}{
		{"TEST UNIT READY", scsi.TestUnitReady(), 6},
		{"REWIND", scsi.Rewind(false), 6},
		{"REQUEST SENSE", scsi.RequestSense(scsi.SenseLength), 6},
		{"MODE SELECT", scsi.ModeSelect(12, true, false), 6},
		{"MODE SENSE", scsi.ModeSense(scsi.PageCapabilities, scsi.PageControlCurrent, true, 255), 6},
		{"LOAD/UNLOAD", scsi.LoadUnload(scsi.Unload, false), 6},
		{"INQUIRY", scsi.Inquiry(scsi.InquiryLength), 6},
		{"INITIALIZE ELEMENT STATUS", scsi.InitializeElementStatus(), 6},
		{"LOG SENSE", scsi.LogSense(scsi.LogPageWriteErrors, scsi.LogCumulativeCurrent, 0, 0x400), 10},
		{"MOVE MEDIUM", scsi.MoveMedium(0, 1, 2, false), 12},
		{"READ ELEMENT STATUS", scsi.ReadElementStatus(scsi.ElementStorage, true, 0, 10, 4096), 12},
		{"ALIGN ELEMENTS", scsi.AlignElements(0, 1, 2), 12},
	}
	for _, tc := range cases {
		assert.Len(t, tc.cdb, tc.len, tc.name)
		assert.Equal(t, tc.len, scsi.CDBLength(tc.cdb[0]), tc.name)
	}
	assert.Equal(t, 0, scsi.CDBLength(0x28))
}

func TestMoveMediumLayout(t *testing.T) {
	cdb := scsi.MoveMedium(0x0102, 0x1234, 0xabcd, true)
	assert.Equal(t, []byte{0xa5, 0, 0x01, 0x02, 0x12, 0x34, 0xab, 0xcd, 0, 0, 0x01, 0}, cdb)
}

func TestMoveMediumRoundTrip(t *testing.T) {
	check := func(a, b uint16) {
		args, err := scsi.DecodeMoveMedium(scsi.MoveMedium(0, a, b, false))
		if err != nil || args.From != a || args.To != b || args.Transport != 0 {
			t.Fatalf("round trip (%d, %d) = %+v, %v", a, b, args, err)
		}
	}
	for a := 0; a <= 0xffff; a++ {
		check(uint16(a), uint16(0xffff-a))
		check(uint16(a), uint16(a*7919))
		check(uint16(a), uint16(a))
	}
	for _, a := range []uint16{0, 1, 0xff, 0x100, 0x7fff, 0x8000, 0xfffe, 0xffff} {
		for _, b := range []uint16{0, 1, 0xff, 0x100, 0x7fff, 0x8000, 0xfffe, 0xffff} {
			check(a, b)
		}
	}
}

func TestDecodeMoveMediumRejects(t *testing.T) {
	_, err := scsi.DecodeMoveMedium([]byte{0xa5, 0, 0})
	assert.True(t, scsi.IsTruncated(err))

	_, err = scsi.DecodeMoveMedium(scsi.AlignElements(1, 2, 3))
	assert.Error(t, err)
}

func TestReadElementStatusLayout(t *testing.T) {
	cdb := scsi.ReadElementStatus(scsi.ElementDataTransfer, true, 0x01f4, 0x0010, 0x012345)
	assert.Equal(t, byte(0xb8), cdb[0])
	assert.Equal(t, byte(0x14), cdb[1])
	assert.Equal(t, []byte{0x01, 0xf4}, cdb[2:4])
	assert.Equal(t, []byte{0x00, 0x10}, cdb[4:6])
	assert.Equal(t, []byte{0x01, 0x23, 0x45}, cdb[7:10])
}

func TestAlignElementsLayout(t *testing.T) {
	cdb := scsi.AlignElements(0x0001, 0x0100, 0x1000)
	assert.Equal(t, []byte{0xe5, 0, 0x00, 0x01, 0x01, 0x00, 0x10, 0x00, 0, 0, 0, 0}, cdb)
}

func TestModeSenseAndSelectLayout(t *testing.T) {
	cdb := scsi.ModeSense(scsi.PageAddressAssignment, scsi.PageControlDefault, true, 0xff)
	assert.Equal(t, []byte{0x1a, 0x08, 0x9d, 0, 0xff, 0}, cdb)

	cdb = scsi.ModeSelect(0x10, true, true)
	assert.Equal(t, []byte{0x15, 0x11, 0, 0, 0x10, 0}, cdb)
}

func TestLoadUnloadAndLogSenseLayout(t *testing.T) {
	assert.Equal(t, []byte{0x1b, 0x01, 0, 0, 0x01, 0}, scsi.LoadUnload(scsi.Load, true))
	assert.Equal(t, []byte{0x1b, 0x00, 0, 0, 0x00, 0}, scsi.LoadUnload(scsi.Unload, false))
	assert.Equal(t, []byte{0x01, 0x01, 0, 0, 0, 0}, scsi.Rewind(true))

	cdb := scsi.LogSense(scsi.LogPageReadErrors, scsi.LogCumulativeCurrent, 0x0102, 0x8000)
	assert.Equal(t, []byte{0x4d, 0, 0x43, 0, 0, 0x01, 0x02, 0x80, 0x00, 0}, cdb)

	for _, page := range []byte{scsi.LogPageWriteErrors, scsi.LogPageTapeAlert, scsi.LogPageVendorUsage} {
		cdb := scsi.LogSense(page, scsi.LogCumulativeCurrent, 0, 0x1000)
		assert.Equal(t, 0x40|page, cdb[2], "page %#02x", page)
	}
	assert.Equal(t, byte(0x02), scsi.LogSense(scsi.LogPageWriteErrors, scsi.LogThresholdCurrent, 0, 0x1000)[2])
}

func TestAllocationOverflowPanics(t *testing.T) {
	require.Panics(t, func() {
		scsi.ReadElementStatus(scsi.ElementAll, false, 0, 0, 0x1000000)
	})
}
