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

	"github.com/NVIDIA/chgscsi/pkg/changer"
)

type InquiryCmd struct{}

func (cmd *InquiryCmd) Run(globals *Globals) error {
	return globals.withSession(func(s *changer.Session) error {
		handles := []*changer.Handle{s.Changer}
		for i := 0; ; i++ {
			d, err := s.Drive(i)
			if err != nil {
				break
			}
			handles = append(handles, d.Data)
		}
		for _, h := range handles {
			inq, err := s.Inquiry(h)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %-8s %-16s %-4s profile %s\n", h.Path, inq.Vendor, inq.Product, inq.Revision, h.Profile.Name())
		}
		return nil
	})
}
