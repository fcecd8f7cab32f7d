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

package simdriver

import (
	"fmt"

	"github.com/NVIDIA/chgscsi/pkg/device"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

// Drive is a tape drive whose cartridge is whatever the library put in
// the matching data transfer element.
type Drive struct {
	lib   *Library
	index int
	name  string

	inquiry  scsi.InquiryData
	online   bool
	becoming int
	position int

	cleaningNeeded bool
	cleaningDone   bool
	logPages       map[byte][]scsi.LogParameter
}

func newDrive(l *Library, i int) *Drive {
	return &Drive{
		lib:   l,
		index: i,
		name:  fmt.Sprintf("drive%d", i),
		inquiry: scsi.InquiryData{
			DeviceType: scsi.DeviceTypeSequential,
			Removable:  true,
			Version:    2,
			Vendor:     l.cfg.Vendor,
			Product:    "tape",
			Revision:   l.cfg.Revision,
		},
		logPages: make(map[byte][]scsi.LogParameter),
	}
}

// Transport opens a new handle on the drive.
func (d *Drive) Transport() device.Transport {
	return &transport{lib: d.lib, name: d.name, exec: d.execute}
}

// SetProduct changes the product identification the drive reports.
func (d *Drive) SetProduct(product string) {
	d.lib.mu.Lock()
	defer d.lib.mu.Unlock()
	d.inquiry.Product = product
}

// Online reports whether the drive has a cartridge loaded and threaded.
func (d *Drive) Online() bool {
	d.lib.mu.Lock()
	defer d.lib.mu.Unlock()
	return d.online && d.present()
}

// SetCleaning sets the cleaning flags reported in extended sense.
func (d *Drive) SetCleaning(needed, done bool) {
	d.lib.mu.Lock()
	defer d.lib.mu.Unlock()
	d.cleaningNeeded = needed
	d.cleaningDone = done
}

// SetLogPage installs the parameters returned for a LOG SENSE page.
func (d *Drive) SetLogPage(page byte, params ...scsi.LogParameter) {
	d.lib.mu.Lock()
	defer d.lib.mu.Unlock()
	d.logPages[page] = params
}

// InjectFault queues f against the drive.
func (d *Drive) InjectFault(f Fault) {
	d.lib.inject(d.name, f)
}

func (d *Drive) present() bool {
	return d.lib.elements[scsi.ElementDataTransfer][d.index].Full
}

func (d *Drive) execute(cdb []byte, dir scsi.Direction, data []byte) (*device.Result, error) {
	l := d.lib
	l.mu.Lock()
	defer l.mu.Unlock()

	if handled, res, err := l.begin(d.name, cdb, data); handled {
		return res, err
	}

	switch cdb[0] {
	case scsi.OpInquiry:
		return good(data, d.inquiry.Bytes()), nil
	case scsi.OpRequestSense:
		return d.requestSense(data), nil
	case scsi.OpLogSense:
		return logSense(d.logPages, cdb, data), nil
	case scsi.OpTestUnitReady:
		if res := d.ready(); res != nil {
			return res, nil
		}
		return good(nil, nil), nil
	case scsi.OpRewind:
		if res := d.ready(); res != nil {
			return res, nil
		}
		d.position = 0
		return good(nil, nil), nil
	case scsi.OpLoadUnload:
		if !d.present() {
			return l.fail(d.name, scsi.SenseNotReady, scsi.AscMediumNotPresent, 0), nil
		}
		if cdb[4]&0x01 != 0 {
			d.online = true
			d.becoming = 0
		} else {
			d.online = false
		}
		d.position = 0
		return good(nil, nil), nil
	}
	return l.fail(d.name, scsi.SenseIllegalRequest, scsi.AscInvalidOpcode, 0), nil
}

func (d *Drive) ready() *device.Result {
	l := d.lib
	switch {
	case !d.present():
		return l.fail(d.name, scsi.SenseNotReady, scsi.AscMediumNotPresent, 0)
	case !d.online:
		return l.fail(d.name, scsi.SenseNotReady, scsi.AscNotReady, scsi.AscqInitializationRequired)
	case d.becoming > 0:
		d.becoming--
		return l.fail(d.name, scsi.SenseNotReady, scsi.AscNotReady, scsi.AscqBecomingReady)
	}
	return nil
}

func (d *Drive) requestSense(data []byte) *device.Result {
	es := &scsi.ExtendedSense{
		TapeNotPresent:  !d.present(),
		BeginningOfTape: d.present() && d.position == 0,
		CleaningNeeded:  d.cleaningNeeded,
		CleaningDone:    d.cleaningDone,
	}
	if last := d.lib.sense[d.name]; last != nil {
		es.Sense = *last
		delete(d.lib.sense, d.name)
	}
	return good(data, es.Bytes())
}
