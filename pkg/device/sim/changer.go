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
	"github.com/NVIDIA/chgscsi/pkg/device"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

func (l *Library) executeChanger(cdb []byte, dir scsi.Direction, data []byte) (*device.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if handled, res, err := l.begin(changerName, cdb, data); handled {
		return res, err
	}

	switch cdb[0] {
	case scsi.OpTestUnitReady:
		return good(nil, nil), nil
	case scsi.OpInquiry:
		return good(data, l.inquiry.Bytes()), nil
	case scsi.OpRequestSense:
		return l.requestSense(changerName, data), nil
	case scsi.OpModeSense:
		return l.modeSense(cdb, data), nil
	case scsi.OpModeSelect:
		return l.modeSelect(data), nil
	case scsi.OpReadElementStatus:
		return l.readElementStatus(cdb, data), nil
	case scsi.OpMoveMedium:
		args, err := scsi.DecodeMoveMedium(cdb)
		if err != nil {
			return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, 0), nil
		}
		if l.find(scsi.ElementTransport, args.Transport) == nil {
			return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscInvalidElementAddress, 0x01), nil
		}
		return l.move(args.From, args.To), nil
	case scsi.OpAlignElements:
		if !l.cfg.Align {
			break
		}
		return l.align(cdb), nil
	case scsi.OpInitializeElementStatus:
		return l.initializeElementStatus(), nil
	case scsi.OpLogSense:
		return logSense(l.cfg.LogPages, cdb, data), nil
	}
	return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscInvalidOpcode, 0), nil
}

func (l *Library) requestSense(dev string, data []byte) *device.Result {
	sense := l.sense[dev]
	delete(l.sense, dev)
	if sense == nil {
		sense = &scsi.Sense{Key: scsi.SenseNoSense}
	}
	return good(data, sense.Bytes())
}

func (l *Library) find(t scsi.ElementType, addr uint16) *Element {
	for _, e := range l.elements[t] {
		if e.Address == addr {
			return e
		}
	}
	return nil
}

func (l *Library) lookup(addr uint16) (scsi.ElementType, int, *Element) {
	for t := scsi.ElementTransport; t <= scsi.ElementDataTransfer; t++ {
		for i, e := range l.elements[t] {
			if e.Address == addr {
				return t, i, e
			}
		}
	}
	return scsi.ElementAll, -1, nil
}

func (l *Library) modeSense(cdb, data []byte) *device.Result {
	code := cdb[2] & 0x3f
	var pages [][]byte
	want := func(c byte) bool {
		return code == scsi.AllModePages || code == c
	}
	if want(scsi.PageVendorUnique) && l.vendor != nil {
		pages = append(pages, scsi.VendorPage(l.vendor))
	}
	if want(scsi.PageAddressAssignment) && !l.cfg.NoAddressAssignment {
		eaa := &scsi.AddressAssignmentPage{}
		for t, r := range map[scsi.ElementType]*scsi.ElementRange{
			scsi.ElementTransport:    &eaa.Transport,
			scsi.ElementStorage:      &eaa.Storage,
			scsi.ElementImportExport: &eaa.ImportExport,
			scsi.ElementDataTransfer: &eaa.DataTransfer,
		} {
			if elems := l.elements[t]; len(elems) > 0 {
				r.First = elems[0].Address
				r.Count = uint16(len(elems))
			}
		}
		pages = append(pages, eaa.Bytes())
	}
	if want(scsi.PageCapabilities) && l.caps != nil {
		pages = append(pages, l.caps.Bytes())
	}
	if len(pages) == 0 {
		return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, 0)
	}
	return good(data, scsi.EncodeModeSense(0, 0, pages...))
}

func (l *Library) modeSelect(data []byte) *device.Result {
	if len(data) < 4 {
		return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, 0)
	}
	mp, err := scsi.DecodeModeSense(append([]byte{byte(len(data) - 1)}, data[1:]...))
	if err != nil || mp.VendorUnique == nil || l.vendor == nil {
		return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, 0)
	}
	l.vendor = mp.VendorUnique
	return good(nil, nil)
}

func (l *Library) volumeTags() bool {
	if !l.cfg.VolumeTags {
		return false
	}
	if l.cfg.BarcodeBit {
		return len(l.vendor) > 0 && l.vendor[0]&0x01 != 0
	}
	return true
}

func (l *Library) readElementStatus(cdb, data []byte) *device.Result {
	voltag := cdb[1]&0x10 != 0
	typ := scsi.ElementType(cdb[1] & 0x0f)
	start := uint16(cdb[2])<<8 | uint16(cdb[3])
	count := int(cdb[4])<<8 | int(cdb[5])

	if voltag && !l.volumeTags() {
		return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, 0)
	}
	if typ != scsi.ElementAll && !typ.Valid() {
		return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb, 0)
	}
	if t, _, e := l.lookup(start); e == nil || (typ != scsi.ElementAll && t != typ) {
		if typ != scsi.ElementAll || start != 0 {
			return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscInvalidElementAddress, 0)
		}
	}

	var pages []scsi.ElementStatusPage
	for t := scsi.ElementTransport; t <= scsi.ElementDataTransfer; t++ {
		if typ != scsi.ElementAll && t != typ {
			continue
		}
		page := scsi.ElementStatusPage{Type: t, VolumeTag: voltag}
		for i, e := range l.elements[t] {
			if e.Address < start || count == 0 {
				continue
			}
			count--
			page.Records = append(page.Records, l.record(t, i, e, voltag))
		}
		if len(page.Records) > 0 {
			pages = append(pages, page)
		}
	}
	return good(data, scsi.EncodeElementStatus(pages...))
}

func (l *Library) record(t scsi.ElementType, i int, e *Element, voltag bool) scsi.ElementRecord {
	rec := scsi.ElementRecord{
		Type:         t,
		Address:      e.Address,
		ImportExport: t == scsi.ElementImportExport,
		Exception:    e.Exception,
		Access:       true,
		SourceValid:  e.Full && e.SourceValid,
		HasVolumeTag: voltag,
	}
	if e.Full {
		rec.Status = scsi.Full
		rec.Source = e.Source
		if voltag {
			rec.VolumeTag = e.VolumeTag
		}
	}
	if !rec.SourceValid {
		rec.Source = 0
	}
	if e.Exception {
		rec.ASC = e.ASC
		rec.ASCQ = e.ASCQ
	}
	if t == scsi.ElementDataTransfer {
		rec.IDValid = true
		rec.BusAddress = byte(i)
	}
	return rec
}

func (l *Library) move(from, to uint16) *device.Result {
	ft, fi, src := l.lookup(from)
	tt, ti, dst := l.lookup(to)
	if src == nil || dst == nil {
		return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscInvalidElementAddress, 0x01)
	}
	if !src.Full {
		return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscPositioningError, scsi.AscqMediumSourceEmpty)
	}
	if dst.Full {
		return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscPositioningError, scsi.AscqMediumDestinationFull)
	}
	if l.caps != nil && !l.caps.CanMove(ft, tt) {
		return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscInvalidElementAddress, 0x01)
	}
	if ft == scsi.ElementDataTransfer && l.drives[fi].online {
		return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscMediumRemovalPrevented, scsi.AscqRemovalPrevented)
	}

	dst.Full = true
	dst.VolumeTag = src.VolumeTag
	dst.SourceValid = true
	dst.Source = src.Address
	if src.SourceValid && ft == scsi.ElementDataTransfer {
		dst.Source = src.Source
	}
	*src = Element{Address: src.Address, Exception: src.Exception, ASC: src.ASC, ASCQ: src.ASCQ}

	if tt == scsi.ElementDataTransfer {
		d := l.drives[ti]
		d.online = true
		d.becoming = l.cfg.ReadyDelay
		d.position = 0
	}
	return good(nil, nil)
}

func (l *Library) align(cdb []byte) *device.Result {
	mte := uint16(cdb[2])<<8 | uint16(cdb[3])
	dte := uint16(cdb[4])<<8 | uint16(cdb[5])
	ste := uint16(cdb[6])<<8 | uint16(cdb[7])
	if l.find(scsi.ElementTransport, mte) == nil {
		return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscInvalidElementAddress, 0x01)
	}
	d := l.find(scsi.ElementDataTransfer, dte)
	s := l.find(scsi.ElementStorage, ste)
	if d == nil || s == nil {
		return l.fail(changerName, scsi.SenseIllegalRequest, scsi.AscInvalidElementAddress, 0x01)
	}
	if d.Full {
		return l.move(dte, ste)
	}
	return l.move(ste, dte)
}

func (l *Library) initializeElementStatus() *device.Result {
	for _, arm := range l.elements[scsi.ElementTransport] {
		if arm.Full {
			return l.fail(changerName, scsi.SenseNotReady, scsi.AscPositioningError, scsi.AscqMediumDestinationFull)
		}
	}
	for _, elems := range l.elements {
		for _, e := range elems {
			e.Exception = false
			e.ASC = 0
			e.ASCQ = 0
		}
	}
	return good(nil, nil)
}

func logSense(pages map[byte][]scsi.LogParameter, cdb, data []byte) *device.Result {
	code := cdb[2] & 0x3f
	if code == scsi.LogPageSupported {
		supported := []byte{scsi.LogPageSupported}
		for c := byte(1); c < 0x40; c++ {
			if _, ok := pages[c]; ok {
				supported = append(supported, c)
			}
		}
		return good(data, scsi.EncodeSupportedLogPages(supported...))
	}
	params, ok := pages[code]
	if !ok {
		sense := &scsi.Sense{Key: scsi.SenseIllegalRequest, ASC: scsi.AscInvalidFieldInCdb}
		return &device.Result{Status: scsi.StatusCheckCondition, Sense: sense.Bytes()}
	}
	if scsi.LogPageControl(cdb[2]>>6)&0x01 == 0 {
		// No thresholds are set; only cumulative values carry counts.
		thresholds := make([]scsi.LogParameter, len(params))
		for i, p := range params {
			thresholds[i] = scsi.LogParameter{Code: p.Code, Flags: p.Flags, Length: p.Length}
			if p.Raw != nil {
				thresholds[i].Raw = make([]byte, len(p.Raw))
			}
		}
		params = thresholds
	}
	return good(data, scsi.EncodeLogSense(code, params...))
}
