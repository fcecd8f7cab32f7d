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

package changer_cli_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/chgscsi/pkg/changer"
	"github.com/NVIDIA/chgscsi/pkg/changer/cli"
	"github.com/NVIDIA/chgscsi/pkg/device/sim"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
	"github.com/NVIDIA/chgscsi/pkg/state"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, changer_cli.ExitOK, changer_cli.ExitCode(nil))
	assert.Equal(t, changer_cli.ExitCondition, changer_cli.ExitCode(errors.Wrap(changer.ErrSlotEmpty, "slot 3")))
	assert.Equal(t, changer_cli.ExitCondition, changer_cli.ExitCode(changer.ErrNoTapeOnline))
	assert.Equal(t, changer_cli.ExitFailure, changer_cli.ExitCode(changer.ErrNoCapabilities))
	assert.Equal(t, changer_cli.ExitFailure, changer_cli.ExitCode(errors.New("boom")))
}

func globals(t *testing.T, name string) (*changer_cli.Globals, *simdriver.Library, func()) {
	dir, err := ioutil.TempDir("", "chgscsi")
	require.NoError(t, err)

	lib := simdriver.NewLibrary(simdriver.DefaultConfig())
	simdriver.Attach(name, lib)

	g := &changer_cli.Globals{
		LogLevel:  "info",
		Changer:   "sim:" + name,
		Tapes:     []string{"sim:" + name + "?drive=0", "sim:" + name + "?drive=1"},
		StateFile: filepath.Join(dir, "state.json"),
		Retry: changer_cli.RetryConfig{
			Max:       1,
			PollCount: 3,
		},
	}
	return g, lib, func() {
		simdriver.Detach(name)
		os.RemoveAll(dir)
	}
}

func TestLoadUnloadCommands(t *testing.T) {
	g, lib, done := globals(t, "cli-load")
	defer done()
	lib.Put(scsi.ElementStorage, 4, "A00005")

	load := &changer_cli.LoadCmd{Drive: 1, Slot: 4}
	require.NoError(t, load.Run(g))
	assert.True(t, lib.Element(scsi.ElementDataTransfer, 1).Full)

	st, err := state.NewFile(g.StateFile).Load()
	require.NoError(t, err)
	assert.Equal(t, 4, st.Drives[1])
	assert.Equal(t, uint64(1), st.Loads[4])

	require.NoError(t, (&changer_cli.CurrentCmd{Drive: 1}).Run(g))

	unload := &changer_cli.UnloadCmd{Drive: 1, Slot: -1}
	require.NoError(t, unload.Run(g))
	assert.True(t, lib.Element(scsi.ElementStorage, 4).Full)

	st, err = state.NewFile(g.StateFile).Load()
	require.NoError(t, err)
	_, ok := st.Drives[1]
	assert.False(t, ok)

	err = unload.Run(g)
	assert.Equal(t, changer_cli.ExitCondition, changer_cli.ExitCode(err))
}

func TestStatusAndSearchCommands(t *testing.T) {
	g, lib, done := globals(t, "cli-status")
	defer done()
	lib.Put(scsi.ElementStorage, 2, "A00003")

	require.NoError(t, (&changer_cli.StatusCmd{}).Run(g))
	require.NoError(t, (&changer_cli.SearchCmd{Label: "A00003"}).Run(g))
	require.NoError(t, (&changer_cli.SlotsCmd{}).Run(g))
	require.NoError(t, (&changer_cli.InquiryCmd{}).Run(g))

	err := (&changer_cli.SearchCmd{Label: "MISSING"}).Run(g)
	assert.Equal(t, changer_cli.ExitCondition, changer_cli.ExitCode(err))
}

func TestOpenUnknownDevice(t *testing.T) {
	g, _, done := globals(t, "cli-unknown")
	defer done()
	g.Changer = "sim:nothing-attached"

	err := (&changer_cli.SlotsCmd{}).Run(g)
	require.Error(t, err)
	assert.Equal(t, changer_cli.ExitFailure, changer_cli.ExitCode(err))
}

func TestCloseFailureKeepsCondition(t *testing.T) {
	g, lib, done := globals(t, "cli-close")
	defer done()
	lib.FailClose(errors.New("release failed"))

	err := (&changer_cli.LoadCmd{Drive: 0, Slot: 2}).Run(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release failed")
	assert.True(t, errors.Is(err, changer.ErrSlotEmpty))
	assert.Equal(t, changer_cli.ExitCondition, changer_cli.ExitCode(err))
}
