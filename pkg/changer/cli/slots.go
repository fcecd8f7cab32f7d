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
	"github.com/pkg/errors"

	"github.com/NVIDIA/chgscsi/pkg/changer"
)

type FindEmptyCmd struct {
	Start int `help:"The first slot to consider" default:"0"`
	Count int `help:"The number of slots to consider; zero for all" default:"0"`
}

func (cmd *FindEmptyCmd) Run(globals *Globals) error {
	return globals.withSession(func(s *changer.Session) error {
		slot, err := s.FindEmpty(cmd.Start, cmd.Count)
		if errors.Is(err, changer.ErrNoFreeSlot) {
			return errors.Wrap(changer.ErrNotFound, "no empty slot")
		}
		if err != nil {
			return err
		}
		printf("%d", slot)
		return nil
	})
}

type SlotsCmd struct{}

func (cmd *SlotsCmd) Run(globals *Globals) error {
	return globals.withSession(func(s *changer.Session) error {
		slots, err := s.SlotCount()
		if err != nil {
			return err
		}
		drives, err := s.DriveCount()
		if err != nil {
			return err
		}
		printf("slots %d", slots)
		printf("drives %d", drives)
		return nil
	})
}

type CurrentCmd struct {
	Drive int `short:"d" help:"The drive to ask about" default:"0"`
}

func (cmd *CurrentCmd) Run(globals *Globals) error {
	return globals.withSession(func(s *changer.Session) error {
		slot, err := s.CurrentSlot(cmd.Drive)
		if errors.Is(err, changer.ErrNotFound) {
			// Not every changer reports where a cartridge came from.
			st, serr := globals.state().Load()
			if serr != nil {
				return serr
			}
			var ok bool
			if slot, ok = st.Drives[cmd.Drive]; !ok {
				return err
			}
		} else if err != nil {
			return err
		}
		printf("%d", slot)
		return nil
	})
}
