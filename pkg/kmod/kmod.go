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

package kmod

import (
	"fmt"
	"io/ioutil"
	"os/exec"
	"regexp"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ProcModules is the kernel's list of loaded modules.
var ProcModules = "/proc/modules"

// Loaded reports whether module appears in the loaded module list.
func Loaded(module string) (bool, error) {
	modbytes, err := ioutil.ReadFile(ProcModules)
	if err != nil {
		return false, errors.Wrapf(err, "reading %s", ProcModules)
	}

	inserted, err := regexp.Match(fmt.Sprintf(`(?m)^%s\b`, regexp.QuoteMeta(module)), modbytes)
	if err != nil {
		return false, errors.Wrapf(err, "examining contents of %s", ProcModules)
	}
	return inserted, nil
}

// Modprobe inserts module unless it is already loaded.
func Modprobe(module string) error {
	inserted, err := Loaded(module)
	if err != nil {
		return err
	}

	if !inserted {
		zap.L().Info("inserting kernel module", zap.String("module", module))
		if err := exec.Command("modprobe", module).Run(); err != nil {
			return errors.Wrapf(err, "inserting %#v kernel module", module)
		}
	}

	return nil
}
