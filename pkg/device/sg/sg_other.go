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

// +build !linux

package sgdriver

import (
	"github.com/pkg/errors"

	"github.com/NVIDIA/chgscsi/pkg/device"
)

func (d *Driver) Open(url string) (device.Transport, error) {
	if _, err := parseURL(url); err != nil {
		return nil, err
	}
	return nil, errors.New("sgdriver: SG_IO is only available on linux")
}
