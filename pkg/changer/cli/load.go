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
	"go.uber.org/zap"

	"github.com/NVIDIA/chgscsi/pkg/changer"
	"github.com/NVIDIA/chgscsi/pkg/state"
)

type LoadCmd struct {
	Drive int `short:"d" help:"The drive to load" default:"0"`
	Slot  int `arg help:"The slot to load from"`
}

func (cmd *LoadCmd) Run(globals *Globals) error {
	return globals.withSession(func(s *changer.Session) error {
		if err := s.Load(cmd.Drive, cmd.Slot); err != nil {
			return err
		}
		zap.L().Info("loaded", zap.Int("drive", cmd.Drive), zap.Int("slot", cmd.Slot))
		return globals.state().Update(func(st *state.State) error {
			st.Loaded(cmd.Drive, cmd.Slot)
			return nil
		})
	})
}

type UnloadCmd struct {
	Drive int `short:"d" help:"The drive to unload" default:"0"`
	Slot  int `short:"s" help:"The slot to unload to; negative for the slot it came from" default:"-1"`
}

func (cmd *UnloadCmd) Run(globals *Globals) error {
	return globals.withSession(func(s *changer.Session) error {
		if err := s.Unload(cmd.Drive, cmd.Slot); err != nil {
			return err
		}
		zap.L().Info("unloaded", zap.Int("drive", cmd.Drive))
		return globals.state().Update(func(st *state.State) error {
			st.Unloaded(cmd.Drive)
			return nil
		})
	})
}
