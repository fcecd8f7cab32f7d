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

package changer_cli

import (
	"fmt"

	"github.com/alecthomas/units"

	"github.com/NVIDIA/chgscsi/pkg/changer"
)

type LogsCmd struct {
	Drive int   `short:"d" help:"The drive to read" default:"0"`
	Page  []int `short:"p" help:"Log pages to read; all supported pages when empty"`
}

func (cmd *LogsCmd) Run(globals *Globals) error {
	return globals.withSession(func(s *changer.Session) error {
		d, err := s.Drive(cmd.Drive)
		if err != nil {
			return err
		}

		var pages []byte
		for _, p := range cmd.Page {
			pages = append(pages, byte(p))
		}
		if len(pages) == 0 {
			supported, err := s.LogPages(d.Control)
			if err != nil {
				return err
			}
			for _, p := range supported {
				if p != 0 {
					pages = append(pages, p)
				}
			}
		}

		for _, p := range pages {
			counters, err := s.LogCounters(d.Control, p)
			if changer.IllegalRequest(err) {
				printf("page %#02x: not supported", p)
				continue
			}
			if err != nil {
				return err
			}
			printf("page %#02x:", p)
			for _, c := range counters {
				value := fmt.Sprintf("%d", c.Value)
				if c.Bytes {
					value = units.Base2Bytes(c.Value).String()
				}
				printf("  %-45s %s", c.Name, value)
			}
		}
		return nil
	})
}
