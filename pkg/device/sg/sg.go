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

// Package sgdriver issues SCSI commands through the Linux SCSI generic
// SG_IO ioctl. Devices are named sg:///dev/sg3, or by their bare path.
package sgdriver

import (
	stdurl "net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/NVIDIA/chgscsi/pkg/device"
)

// DefaultTimeout bounds a single exchange. Changer moves can take minutes.
const DefaultTimeout = 10 * time.Minute

type Driver struct{}

func (d *Driver) Name() string {
	return "sgdriver"
}

type options struct {
	path     string
	timeout  time.Duration
	modprobe bool
}

func parseURL(url string) (*options, error) {
	u, err := stdurl.Parse(url)
	if err != nil {
		return nil, err
	}

	if u.Scheme == "" {
		u.Scheme = "sg"
		if !strings.HasPrefix(u.Path, "/") {
			u.Opaque = u.Path
			u.Path = ""
			u.RawPath = ""
		}
	}
	if u.Scheme != "sg" {
		return nil, errors.Errorf("sgdriver: unsupported URI scheme %q", u.Scheme)
	}

	opts := &options{timeout: DefaultTimeout, modprobe: true}
	if len(u.Opaque) == 0 {
		opts.path = u.Path
	} else {
		opts.path = u.Opaque
	}
	if opts.path == "" {
		return nil, errors.Errorf("sgdriver: invalid URI %q", url)
	}
	opts.path = filepath.Clean(opts.path)

	q := u.Query()
	if v := q.Get("timeout"); v != "" {
		if opts.timeout, err = time.ParseDuration(v); err != nil {
			return nil, errors.Wrapf(err, "sgdriver: invalid timeout in %q", url)
		}
	}
	if q.Get("modprobe") == "false" {
		opts.modprobe = false
	}
	return opts, nil
}

func init() {
	device.Register("sg", &Driver{})
}
