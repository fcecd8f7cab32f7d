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

package state_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/chgscsi/pkg/state"
)

func tempFile(t *testing.T) (*state.File, func()) {
	dir, err := ioutil.TempDir("", "chgstate")
	require.NoError(t, err)
	return state.NewFile(filepath.Join(dir, "sub", "changer.state")), func() { os.RemoveAll(dir) }
}

func TestLoadMissing(t *testing.T) {
	f, cleanup := tempFile(t)
	defer cleanup()

	st, err := f.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Drives)
	assert.Empty(t, st.Loads)
}

func TestUpdatePersists(t *testing.T) {
	f, cleanup := tempFile(t)
	defer cleanup()

	require.NoError(t, f.Update(func(st *state.State) error {
		st.Loaded(0, 3)
		st.Loaded(1, 5)
		return nil
	}))
	require.NoError(t, f.Update(func(st *state.State) error {
		st.Unloaded(1)
		st.Loaded(0, 3)
		return nil
	}))

	st, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 3}, st.Drives)
	assert.Equal(t, uint64(2), st.Loads[3])
	assert.Equal(t, uint64(1), st.Loads[5])
	assert.False(t, st.Updated.IsZero())

	// No temporary files are left behind.
	infos, err := ioutil.ReadDir(filepath.Dir(f.Path()))
	require.NoError(t, err)
	var names []string
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	assert.ElementsMatch(t, []string{"changer.state", "changer.state.lock"}, names)
}

func TestUpdateFailureKeepsState(t *testing.T) {
	f, cleanup := tempFile(t)
	defer cleanup()

	require.NoError(t, f.Update(func(st *state.State) error {
		st.Loaded(0, 1)
		return nil
	}))
	boom := errors.New("boom")
	err := f.Update(func(st *state.State) error {
		st.Loaded(0, 2)
		return boom
	})
	assert.Equal(t, boom, errors.Cause(err))

	st, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Drives[0])
}

func TestLoadCorrupt(t *testing.T) {
	f, cleanup := tempFile(t)
	defer cleanup()

	require.NoError(t, os.MkdirAll(filepath.Dir(f.Path()), 0755))
	require.NoError(t, ioutil.WriteFile(f.Path(), []byte("{"), 0644))
	_, err := f.Load()
	assert.Error(t, err)
}
