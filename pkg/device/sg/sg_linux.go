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

// +build linux

package sgdriver

import (
	"os"
	"runtime"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/NVIDIA/chgscsi/pkg/device"
	"github.com/NVIDIA/chgscsi/pkg/kmod"
	"github.com/NVIDIA/chgscsi/pkg/safecast"
	"github.com/NVIDIA/chgscsi/pkg/scsi"
	"github.com/NVIDIA/chgscsi/pkg/unixcompat"
)

const (
	sgIO = 0x2285

	sgDxferNone    = -1
	sgDxferToDev   = -2
	sgDxferFromDev = -3

	sgMajor = 21

	// Host and driver status values that leave the SCSI status usable.
	driverSense    = 0x08
	driverStatusOK = 0x00

	maxSenseLength = 64
	maxCDBLength   = 16
)

// sgIoHdr mirrors struct sg_io_hdr from <scsi/sg.h>.
type sgIoHdr struct {
	interfaceID    int32
	dxferDirection int32
	cmdLen         uint8
	mxSbLen        uint8
	iovecCount     uint16
	dxferLen       uint32
	dxferp         uintptr
	cmdp           uintptr
	sbp            uintptr
	timeout        uint32
	flags          uint32
	packID         int32
	usrPtr         uintptr
	status         uint8
	maskedStatus   uint8
	msgStatus      uint8
	sbLenWr        uint8
	hostStatus     uint16
	driverStatus   uint16
	resid          int32
	duration       uint32
	info           uint32
}

func (d *Driver) Open(url string) (device.Transport, error) {
	opts, err := parseURL(url)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(opts.path); os.IsNotExist(err) && opts.modprobe {
		if err := kmod.Modprobe("sg"); err != nil {
			return nil, err
		}
	}

	major, minor, err := unixcompat.CharDevice(opts.path)
	if err != nil {
		return nil, err
	}
	if major != sgMajor {
		zap.L().Debug("opening non-sg character device for SG_IO", zap.String("path", opts.path), zap.Uint32("major", major), zap.Uint32("minor", minor))
	}

	fd, err := unix.Open(opts.path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: opts.path, Err: err}
	}
	return &transport{fd: fd, path: opts.path, timeout: opts.timeout}, nil
}

type transport struct {
	fd      int
	path    string
	timeout time.Duration
}

func (t *transport) Execute(cdb []byte, dir scsi.Direction, data []byte) (*device.Result, error) {
	if t.fd < 0 {
		return nil, device.ErrClosed
	}
	if len(cdb) == 0 || len(cdb) > maxCDBLength {
		panic("never")
	}

	sense := make([]byte, maxSenseLength)
	hdr := sgIoHdr{
		interfaceID:    'S',
		dxferDirection: sgDxferNone,
		cmdLen:         safecast.IntToUint8(len(cdb)),
		mxSbLen:        safecast.IntToUint8(len(sense)),
		cmdp:           uintptr(unsafe.Pointer(&cdb[0])),
		sbp:            uintptr(unsafe.Pointer(&sense[0])),
		timeout:        uint32(t.timeout / time.Millisecond),
	}
	if len(data) > 0 {
		switch dir {
		case scsi.DirectionIn:
			hdr.dxferDirection = sgDxferFromDev
		case scsi.DirectionOut:
			hdr.dxferDirection = sgDxferToDev
		default:
			panic("never")
		}
		hdr.dxferLen = safecast.IntToUint32(len(data))
		hdr.dxferp = uintptr(unsafe.Pointer(&data[0]))
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), sgIO, uintptr(unsafe.Pointer(&hdr)))
	runtime.KeepAlive(cdb)
	runtime.KeepAlive(data)
	runtime.KeepAlive(sense)
	if errno != 0 {
		return nil, &device.TransportError{Device: t.path, Op: cdb[0], Err: errno}
	}

	if hdr.hostStatus != 0 || hdr.driverStatus&^driverSense != driverStatusOK {
		return nil, &device.TransportError{
			Device: t.path,
			Op:     cdb[0],
			Err:    errors.Errorf("host status %#04x, driver status %#04x", hdr.hostStatus, hdr.driverStatus),
		}
	}

	return &device.Result{
		Status: hdr.status,
		Sense:  sense[:hdr.sbLenWr],
		Resid:  int(hdr.resid),
	}, nil
}

func (t *transport) Close() error {
	if t.fd < 0 {
		return device.ErrClosed
	}
	err := unix.Close(t.fd)
	t.fd = -1
	return err
}
