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

// Package simdriver is an in-memory media changer with attached tape
// drives. It answers the commands the changer engine issues, records
// every CDB it sees and can be told to fail specific opcodes.
package simdriver

import (
	"fmt"
	"sync"

	"github.com/NVIDIA/chgscsi/pkg/device"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
)

// Default element address bases.
const (
	TransportBase    = 0x0000
	ImportExportBase = 0x0010
	StorageBase      = 0x0020
	DataTransferBase = 0x01f4
)

// Config describes the library to build.
type Config struct {
	Vendor   string
	Product  string
	Revision string

	Transports int
	Slots      int
	Ports      int
	Drives     int

	// NoAddressAssignment hides mode page 0x1d so callers have to
	// discover the element layout from READ ELEMENT STATUS.
	NoAddressAssignment bool

	// Capabilities is reported as mode page 0x1f. When nil every move
	// is allowed. NoCapabilities hides the page entirely.
	Capabilities   *scsi.CapabilitiesPage
	NoCapabilities bool

	// VolumeTags enables barcode reporting. With BarcodeBit set, tags
	// are reported only while bit 0 of the vendor page is set.
	VolumeTags bool
	VendorPage []byte
	BarcodeBit bool

	// Align makes the library accept ALIGN ELEMENTS.
	Align bool

	// ReadyDelay is the number of TEST UNIT READY polls a drive answers
	// with "becoming ready" after a cartridge is loaded.
	ReadyDelay int

	LogPages map[byte][]scsi.LogParameter

	// NoAutosense ends CHECK CONDITION without sense data, leaving the
	// caller to ask for it with REQUEST SENSE.
	NoAutosense bool
}

// DefaultConfig is a small generic library: one arm, ten slots, one
// mail slot and two drives.
func DefaultConfig() Config {
	return Config{
		Vendor:     "SIM",
		Product:    "generic",
		Revision:   "0001",
		Transports: 1,
		Slots:      10,
		Ports:      1,
		Drives:     2,
		VolumeTags: true,
	}
}

// Element is the simulated state of one element.
type Element struct {
	Address     uint16
	Full        bool
	SourceValid bool
	Source      uint16
	VolumeTag   string
	Exception   bool
	ASC         byte
	ASCQ        byte
}

// Command is one CDB received by the library or one of its drives.
type Command struct {
	Device string
	CDB    []byte
}

func (c Command) Op() byte {
	return c.CDB[0]
}

// AnyOp matches every opcode in a Fault.
const AnyOp = -1

// Fault makes the next Times commands with opcode Op misbehave. A
// Fault with Err set fails at the transport, Busy answers BUSY, Data
// answers GOOD with Data as the response, and otherwise the command
// ends in CHECK CONDITION with Sense.
type Fault struct {
	Op    int
	Times int
	Sense scsi.Sense
	Busy  bool
	Data  []byte
	Err   error
}

type Library struct {
	mu       sync.Mutex
	cfg      Config
	inquiry  scsi.InquiryData
	elements [5][]*Element
	drives   []*Drive
	caps     *scsi.CapabilitiesPage
	vendor   []byte
	log      []Command
	faults   map[string][]*Fault
	sense    map[string]*scsi.Sense
	closeErr error
}

// NewLibrary builds a library with every element empty.
func NewLibrary(cfg Config) *Library {
	l := &Library{
		cfg: cfg,
		inquiry: scsi.InquiryData{
			DeviceType: scsi.DeviceTypeChanger,
			Removable:  true,
			Version:    2,
			Vendor:     cfg.Vendor,
			Product:    cfg.Product,
			Revision:   cfg.Revision,
		},
		faults: make(map[string][]*Fault),
		sense:  make(map[string]*scsi.Sense),
	}
	if cfg.Transports == 0 {
		cfg.Transports = 1
		l.cfg.Transports = 1
	}
	add := func(t scsi.ElementType, base uint16, n int) {
		for i := 0; i < n; i++ {
			l.elements[t] = append(l.elements[t], &Element{Address: base + uint16(i)})
		}
	}
	add(scsi.ElementTransport, TransportBase, cfg.Transports)
	add(scsi.ElementImportExport, ImportExportBase, cfg.Ports)
	add(scsi.ElementStorage, StorageBase, cfg.Slots)
	add(scsi.ElementDataTransfer, DataTransferBase, cfg.Drives)

	for i := 0; i < cfg.Drives; i++ {
		l.drives = append(l.drives, newDrive(l, i))
	}

	if !cfg.NoCapabilities {
		if cfg.Capabilities != nil {
			caps := *cfg.Capabilities
			l.caps = &caps
		} else {
			l.caps = &scsi.CapabilitiesPage{StoreStorage: true, StoreImportExport: true, StoreDataTransfer: true}
			for from := 0; from < 4; from++ {
				for to := 0; to < 4; to++ {
					l.caps.Move[from][to] = true
				}
			}
		}
	}
	if cfg.VendorPage != nil {
		l.vendor = append([]byte(nil), cfg.VendorPage...)
	}
	return l
}

// Element returns the i'th element of type t for inspection or setup.
func (l *Library) Element(t scsi.ElementType, i int) *Element {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.elements[t][i]
}

// Put places a cartridge labelled tag in the i'th element of type t.
func (l *Library) Put(t scsi.ElementType, i int, tag string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.elements[t][i]
	e.Full = true
	e.VolumeTag = tag
	e.SourceValid = false
	if t == scsi.ElementDataTransfer {
		l.drives[i].online = true
	}
}

// Drive returns the simulated tape drive behind the i'th data transfer
// element.
func (l *Library) Drive(i int) *Drive {
	return l.drives[i]
}

// VendorPage returns the current contents of mode page 0x00.
func (l *Library) VendorPage() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.vendor...)
}

// Commands returns every CDB received so far.
func (l *Library) Commands() []Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Command(nil), l.log...)
}

// Count returns how many commands with opcode op have been received.
func (l *Library) Count(op byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.log {
		if c.Op() == op {
			n++
		}
	}
	return n
}

// ResetCommands clears the command log.
func (l *Library) ResetCommands() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = nil
}

// InjectFault queues f against the changer.
func (l *Library) InjectFault(f Fault) {
	l.inject(changerName, f)
}

func (l *Library) inject(dev string, f Fault) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f.Times == 0 {
		f.Times = 1
	}
	l.faults[dev] = append(l.faults[dev], &f)
}

// Transport opens a new handle on the changer.
func (l *Library) Transport() device.Transport {
	return &transport{lib: l, name: changerName, exec: l.executeChanger}
}

// FailClose makes every handle on the library and its drives return
// err from Close. A nil err restores normal behavior.
func (l *Library) FailClose(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeErr = err
}

const changerName = "changer"

// begin records cdb and applies any queued fault. It must be called
// with l.mu held.
func (l *Library) begin(dev string, cdb, data []byte) (bool, *device.Result, error) {
	l.log = append(l.log, Command{Device: dev, CDB: append([]byte(nil), cdb...)})

	faults := l.faults[dev]
	for i, f := range faults {
		if f.Op != AnyOp && f.Op != int(cdb[0]) {
			continue
		}
		f.Times--
		if f.Times <= 0 {
			l.faults[dev] = append(faults[:i:i], faults[i+1:]...)
		}
		switch {
		case f.Err != nil:
			return true, nil, f.Err
		case f.Busy:
			return true, &device.Result{Status: scsi.StatusBusy}, nil
		case f.Data != nil:
			return true, good(data, f.Data), nil
		default:
			sense := f.Sense
			return true, l.check(dev, &sense), nil
		}
	}
	return false, nil, nil
}

func (l *Library) check(dev string, sense *scsi.Sense) *device.Result {
	l.sense[dev] = sense
	res := &device.Result{Status: scsi.StatusCheckCondition}
	if !l.cfg.NoAutosense {
		res.Sense = sense.Bytes()
	}
	return res
}

func (l *Library) fail(dev string, key scsi.SenseKey, asc, ascq byte) *device.Result {
	return l.check(dev, &scsi.Sense{Key: key, ASC: asc, ASCQ: ascq})
}

func good(data, payload []byte) *device.Result {
	n := copy(data, payload)
	return &device.Result{Status: scsi.StatusGood, Resid: len(data) - n}
}

type transport struct {
	lib    *Library
	name   string
	exec   func(cdb []byte, dir scsi.Direction, data []byte) (*device.Result, error)
	closed bool
}

func (t *transport) Execute(cdb []byte, dir scsi.Direction, data []byte) (*device.Result, error) {
	if t.closed {
		return nil, device.ErrClosed
	}
	if len(cdb) == 0 {
		panic("never")
	}
	res, err := t.exec(cdb, dir, data)
	if err != nil {
		return nil, &device.TransportError{Device: t.name, Op: cdb[0], Err: err}
	}
	return res, nil
}

func (t *transport) Close() error {
	if t.closed {
		return device.ErrClosed
	}
	t.closed = true
	t.lib.mu.Lock()
	defer t.lib.mu.Unlock()
	return t.lib.closeErr
}

func (l *Library) String() string {
	return fmt.Sprintf("%s %s: %d slots, %d drives", l.cfg.Vendor, l.cfg.Product, l.cfg.Slots, l.cfg.Drives)
}
