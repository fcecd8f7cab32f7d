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

// Package state persists what the changer tools remember between runs:
// which slot each drive was loaded from, per-slot load counts and the
// cleaning history.
package state

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// State is the persisted record.
type State struct {
	// Drives maps a drive index to the storage slot index it was loaded
	// from.
	Drives map[int]int `json:"drives"`

	// Loads counts the times each storage slot index was loaded.
	Loads map[int]uint64 `json:"loads"`

	Cleanings   uint64    `json:"cleanings"`
	LastCleaned time.Time `json:"last_cleaned,omitempty"`
	Updated     time.Time `json:"updated"`
}

func empty() *State {
	return &State{
		Drives: make(map[int]int),
		Loads:  make(map[int]uint64),
	}
}

// Loaded records that drive was loaded from slot.
func (st *State) Loaded(drive, slot int) {
	st.Drives[drive] = slot
	st.Loads[slot]++
}

// Unloaded forgets the slot drive was loaded from.
func (st *State) Unloaded(drive int) {
	delete(st.Drives, drive)
}

// Cleaned records a cleaning cycle.
func (st *State) Cleaned(at time.Time) {
	st.Cleanings++
	st.LastCleaned = at
}

// File is a state file guarded by an advisory lock on a sibling
// ".lock" file.
type File struct {
	path string
	now  func() time.Time
}

func NewFile(path string) *File {
	return &File{path: filepath.Clean(path), now: time.Now}
}

func (f *File) Path() string {
	return f.path
}

// Lock acquires an exclusive advisory lock on the state file.
func (f *File) Lock() (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return nil, err
	}
	lf, err := os.OpenFile(f.path+".lock", os.O_CREATE|os.O_RDONLY, os.FileMode(0600))
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX); err != nil {
		lf.Close()
		return nil, errors.Wrapf(err, "locking %s", f.path)
	}
	return &unlock{lf}, nil
}

type unlock struct {
	f *os.File
}

func (u *unlock) Close() error {
	defer u.f.Close()
	return syscall.Flock(int(u.f.Fd()), syscall.LOCK_UN)
}

// Load reads the state file. A missing file is an empty state.
func (f *File) Load() (*State, error) {
	data, err := ioutil.ReadFile(f.path)
	if os.IsNotExist(err) {
		return empty(), nil
	}
	if err != nil {
		return nil, err
	}

	st := empty()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", f.path)
	}
	if st.Drives == nil {
		st.Drives = make(map[int]int)
	}
	if st.Loads == nil {
		st.Loads = make(map[int]uint64)
	}
	return st, nil
}

// Save replaces the state file atomically.
func (f *File) Save(st *State) error {
	st.Updated = f.now().UTC()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := ioutil.TempFile(dir, ".tmp.state")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// Update runs fn on the current state under the lock and saves the
// result unless fn fails.
func (f *File) Update(fn func(st *State) error) (err error) {
	l, err := f.Lock()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := l.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	st, err := f.Load()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return f.Save(st)
}
