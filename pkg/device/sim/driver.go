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

package simdriver

import (
	stdurl "net/url"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/NVIDIA/chgscsi/pkg/device"
)

var (
	librariesMu sync.Mutex
	libraries   = make(map[string]*Library)
)

// Attach makes lib reachable as sim:name.
func Attach(name string, lib *Library) {
	librariesMu.Lock()
	defer librariesMu.Unlock()
	libraries[name] = lib
}

// Detach forgets the library attached as name.
func Detach(name string) {
	librariesMu.Lock()
	defer librariesMu.Unlock()
	delete(libraries, name)
}

// Lookup returns the library attached as name. The name "default" is
// created on first use from DefaultConfig.
func Lookup(name string) (*Library, bool) {
	librariesMu.Lock()
	defer librariesMu.Unlock()
	lib, ok := libraries[name]
	if !ok && name == "default" {
		lib = NewLibrary(DefaultConfig())
		libraries[name] = lib
		ok = true
	}
	return lib, ok
}

// Driver opens sim:name for a library's changer and sim:name?drive=N
// for one of its drives.
type Driver struct{}

func (d *Driver) Name() string {
	return "simdriver"
}

func (d *Driver) Open(url string) (device.Transport, error) {
	u, err := stdurl.Parse(url)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "sim" {
		return nil, errors.Errorf("simdriver: unsupported URI scheme %q", u.Scheme)
	}

	name := u.Opaque
	if name == "" {
		name = u.Host
	}
	lib, ok := Lookup(name)
	if !ok {
		return nil, errors.Errorf("simdriver: no library attached as %q", name)
	}

	v := u.Query().Get("drive")
	if v == "" {
		return lib.Transport(), nil
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 || i >= len(lib.drives) {
		return nil, errors.Errorf("simdriver: invalid drive in %q", url)
	}
	return lib.Drive(i).Transport(), nil
}

func init() {
	device.Register("sim", &Driver{})
}
