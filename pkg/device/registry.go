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

package device

import (
	stdurl "net/url"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Driver opens transports for one URL scheme.
type Driver interface {
	// Name returns the display name of this driver
	Name() string

	// Open opens the device named by url.
	Open(url string) (Transport, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a device driver available by the provided URL scheme.
// If Register is called twice with the same scheme or if driver is nil,
// it panics.
func Register(scheme string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("device: Register driver is nil")
	}
	if _, dup := drivers[scheme]; dup {
		panic("device: Register called twice for driver " + scheme)
	}
	drivers[scheme] = driver
}

// Drivers returns a sorted list of the URL schemes of the registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	var list []string
	for scheme := range drivers {
		list = append(list, scheme)
	}
	sort.Strings(list)
	return list
}

// Find returns the driver for url. A bare device path such as
// /dev/sg3 is served by the "sg" driver.
func Find(url string) (Driver, error) {
	u, err := stdurl.Parse(url)
	if err != nil {
		return nil, errors.Wrapf(err, "device: parsing %q", url)
	}

	if u.Scheme == "" {
		u.Scheme = "sg"
		if !strings.HasPrefix(u.Path, "/") {
			u.Opaque = u.Path
			u.Path = ""
			u.RawPath = ""
		}
	}

	driversMu.RLock()
	defer driversMu.RUnlock()

	drvr, ok := drivers[u.Scheme]
	if !ok {
		return nil, errors.Errorf("device: unknown driver %q (forgotten import?)", u.Scheme)
	}
	return drvr, nil
}

// Open finds the driver for url and opens it.
func Open(url string) (Transport, error) {
	drvr, err := Find(url)
	if err != nil {
		return nil, err
	}
	t, err := drvr.Open(url)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: opening %s", drvr.Name(), url)
	}
	return t, nil
}
