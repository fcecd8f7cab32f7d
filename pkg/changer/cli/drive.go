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
	"time"

	"github.com/NVIDIA/chgscsi/pkg/changer"
	"github.com/NVIDIA/chgscsi/pkg/state"
)

type EjectCmd struct {
	Drive  int  `short:"d" help:"The drive to eject" default:"0"`
	Rewind bool `short:"r" help:"Rewind before unloading"`
}

func (cmd *EjectCmd) Run(globals *Globals) error {
	mode := changer.EjectUnload
	if cmd.Rewind {
		mode = changer.EjectRewind
	}
	return globals.withSession(func(s *changer.Session) error {
		return s.Eject(cmd.Drive, mode)
	})
}

type CleanCmd struct {
	Drive int `short:"d" help:"The drive to check" default:"0"`
}

func (cmd *CleanCmd) Run(globals *Globals) error {
	return globals.withSession(func(s *changer.Session) error {
		cs, err := s.CleanState(cmd.Drive)
		if err != nil {
			return err
		}
		switch {
		case cs.Done:
			printf("cleaned")
			return globals.state().Update(func(st *state.State) error {
				st.Cleaned(time.Now())
				return nil
			})
		case cs.Needed:
			printf("needs cleaning")
		default:
			printf("clean")
		}
		return nil
	})
}

type ResetCmd struct{}

func (cmd *ResetCmd) Run(globals *Globals) error {
	return globals.withSession(func(s *changer.Session) error {
		return s.Reset()
	})
}

type SearchCmd struct {
	Label string `arg help:"The volume tag to look for"`
}

func (cmd *SearchCmd) Run(globals *Globals) error {
	return globals.withSession(func(s *changer.Session) error {
		rec, err := s.Search(cmd.Label)
		if err != nil {
			return err
		}
		_, i, _ := s.Inventory().IndexOf(rec.Address)
		printf("%s %d", rec.Type, i)
		return nil
	})
}
