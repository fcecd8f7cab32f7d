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

	"github.com/fatih/color"

	"github.com/NVIDIA/chgscsi/pkg/changer"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

type StatusCmd struct {
	Refresh bool `short:"r" help:"Reinitialize element status before reading it"`
}

func (cmd *StatusCmd) Run(globals *Globals) error {
	return globals.withSession(func(s *changer.Session) error {
		if cmd.Refresh {
			if err := s.Reset(); err != nil {
				return err
			}
		}
		recs, err := s.Status()
		if err != nil {
			return err
		}

		index := map[scsi.ElementType]int{}
		for _, rec := range recs {
			i := index[rec.Type]
			index[rec.Type]++
			fmt.Println(formatElement(s, &rec, i))
		}
		return nil
	})
}

var (
	fullColor      = color.New(color.FgGreen, color.Bold)
	emptyColor     = color.New(color.FgWhite)
	exceptionColor = color.New(color.FgRed, color.Bold)
)

func formatElement(s *changer.Session, rec *scsi.ElementRecord, i int) string {
	line := fmt.Sprintf("%-3s %3d  addr %#04x  ", rec.Type, i, rec.Address)
	if rec.Status == scsi.Full {
		line += fullColor.Sprintf("%-5s", "Full")
	} else {
		line += emptyColor.Sprintf("%-5s", "Empty")
	}
	if rec.HasVolumeTag && rec.VolumeTag != "" {
		line += fmt.Sprintf("  %s", rec.VolumeTag)
	}
	if rec.Status == scsi.Full && rec.SourceValid {
		if t, j, ok := s.Inventory().IndexOf(rec.Source); ok {
			line += fmt.Sprintf("  from %s %d", t, j)
		}
	}
	if rec.Exception {
		line += exceptionColor.Sprintf("  exception asc=%#02x ascq=%#02x", rec.ASC, rec.ASCQ)
	}
	return line
}
