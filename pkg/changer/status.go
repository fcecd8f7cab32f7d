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

package changer

import (
	"github.com/pkg/errors"

	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

const (
	// maxStatusAlloc is the largest allocation READ ELEMENT STATUS
	// can express.
	maxStatusAlloc = 0xffffff

	initialStatusAlloc = 0x10000
)

var refreshOrder = [...]scsi.ElementType{
	scsi.ElementTransport,
	scsi.ElementStorage,
	scsi.ElementImportExport,
	scsi.ElementDataTransfer,
}

// Refresh rereads the element status through the changer's profile.
func (s *Session) Refresh() error {
	return s.Changer.Profile.ElementStatus(s, s.cfg.InitStatus)
}

func (s *Session) ensureInventory() error {
	if s.inv.Valid() {
		return nil
	}
	return s.Refresh()
}

// readInventory reads every element and commits the result. With the
// address assignment page each type is read separately, otherwise one
// read covers the whole address space. Import/export exceptions with
// initStatus set cause one reset and a second read.
func (s *Session) readInventory(initStatus bool) error {
	if err := s.readInventoryOnce(); err != nil {
		return err
	}
	if !s.exceptionsSeen || !initStatus || s.inErrorHandler {
		return nil
	}

	s.log.Infow("import/export exceptions reported, reinitializing element status")
	if err := s.Changer.Profile.ResetStatus(s); err != nil {
		return errors.Wrap(err, "reinitializing element status")
	}
	return s.readInventoryOnce()
}

func (s *Session) readInventoryOnce() error {
	voltag, err := s.BarCode()
	if err != nil {
		return err
	}
	eaa, err := s.AddressAssignment()
	if err != nil {
		return err
	}

	s.exceptionsSeen = false
	onException := func(rec *scsi.ElementRecord) {
		sense := &scsi.Sense{ASC: rec.ASC, ASCQ: rec.ASCQ}
		outcome, reason := s.Changer.Profile.SenseHandler(s, s.Changer, ElementSense, sense)
		s.log.Debugw("element exception",
			"type", rec.Type.String(),
			"address", rec.Address,
			"outcome", outcome.String(),
			"reason", reason,
		)
		if outcome == ImportExportStatus {
			s.exceptionsSeen = true
		}
	}

	var records []scsi.ElementRecord
	if eaa != nil {
		for _, t := range refreshOrder {
			r := eaa.Range(t)
			if r.Count == 0 {
				continue
			}
			recs, err := s.readElementStatus(t, voltag, r.First, r.Count, onException)
			if err != nil {
				return err
			}
			records = append(records, recs...)
		}
	} else {
		recs, err := s.readElementStatus(scsi.ElementAll, voltag, 0, 0xffff, onException)
		if err != nil {
			return err
		}
		records = recs
	}

	if err := s.inv.Commit(records); err != nil {
		return err
	}
	s.cfg.Metrics.refreshed()
	return nil
}

func statusAlloc(count uint16, voltag bool) int {
	desc := 12
	if voltag {
		desc += scsi.VolumeTagLength
	}
	n := 8 + 4*8 + int(count)*desc
	if n > initialStatusAlloc {
		n = initialStatusAlloc
	}
	return n
}

// readElementStatus reads count elements of type t from start. When
// the device has more to report than was allocated the read is issued
// once more with the size the device asked for.
func (s *Session) readElementStatus(t scsi.ElementType, voltag bool, start, count uint16, onException scsi.ExceptionFunc) ([]scsi.ElementRecord, error) {
	alloc := statusAlloc(count, voltag)
	for reissued := false; ; reissued = true {
		data := make([]byte, alloc)
		cdb := scsi.ReadElementStatus(t, voltag, start, count, uint32(alloc))
		res, err := s.exchange(s.Changer, cdb, scsi.DirectionIn, data)
		if err != nil {
			return nil, err
		}
		buf := res.Transferred(data)

		if want, err := scsi.ElementStatusLength(buf); err == nil && want > alloc && !reissued && want <= maxStatusAlloc {
			s.log.Debugw("element status larger than allocation", "type", t.String(), "alloc", alloc, "want", want)
			alloc = want
			continue
		}

		_, records, err := scsi.DecodeElementStatus(buf, onException)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s element status", t)
		}
		return records, nil
	}
}

// BarCode reports whether the changer reports volume tags, asking the
// profile the first time.
func (s *Session) BarCode() (bool, error) {
	if s.voltag != nil {
		return *s.voltag, nil
	}
	v, err := s.Changer.Profile.BarCode(s)
	if err != nil {
		return false, err
	}
	s.voltag = &v
	return v, nil
}

// transportAddress is the address of the first medium transport.
func (s *Session) transportAddress() uint16 {
	if arm, ok := s.inv.At(scsi.ElementTransport, 0); ok {
		return arm.Address
	}
	return 0
}
