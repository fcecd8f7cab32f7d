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

package scsi

import (
	tcmuscsi "github.com/tnarg/go-tcmu/scsi"
)

// Opcodes used by the changer engine. Where the tcmu definitions carry
// the same opcode under a disk-oriented name the tape name is used here.
const (
	OpTestUnitReady           = tcmuscsi.TestUnitReady
	OpRewind                  = tcmuscsi.RezeroUnit
	OpRequestSense            = tcmuscsi.RequestSense
	OpInitializeElementStatus = tcmuscsi.InitializeElementStatus
	OpInquiry                 = tcmuscsi.Inquiry
	OpModeSelect              = tcmuscsi.ModeSelect
	OpModeSense               = tcmuscsi.ModeSense
	OpLoadUnload              = tcmuscsi.StartStop
	OpLogSense                = tcmuscsi.LogSense
	OpMoveMedium              = tcmuscsi.MoveMedium
	OpReadElementStatus       = tcmuscsi.ReadElementStatus
	OpAlignElements           = 0xe5
)

// SAM status bytes
const (
	StatusGood           = tcmuscsi.SamStatGood
	StatusCheckCondition = tcmuscsi.SamStatCheckCondition
	StatusBusy           = tcmuscsi.SamStatBusy
)

// SenseKey is the 4 bit sense key of a request sense block.
type SenseKey byte

const (
	SenseNoSense        SenseKey = tcmuscsi.SenseNoSense
	SenseRecoveredError SenseKey = tcmuscsi.SenseRecoveredError
	SenseNotReady       SenseKey = tcmuscsi.SenseNotReady
	SenseMediumError    SenseKey = tcmuscsi.SenseMediumError
	SenseHardwareError  SenseKey = tcmuscsi.SenseHardwareError
	SenseIllegalRequest SenseKey = tcmuscsi.SenseIllegalRequest
	SenseUnitAttention  SenseKey = tcmuscsi.SenseUnitAttention
	SenseDataProtect    SenseKey = tcmuscsi.SenseDataProtect
	SenseBlankCheck     SenseKey = tcmuscsi.SenseBlankCheck
	SenseCopyAborted    SenseKey = tcmuscsi.SenseCopyAborted
	SenseAbortedCommand SenseKey = tcmuscsi.SenseAbortedCommand
	SenseVolumeOverflow SenseKey = tcmuscsi.SenseVolumeOverflow
	SenseMiscompare     SenseKey = tcmuscsi.SenseMiscompare
)

var senseKeyNames = map[SenseKey]string{
	SenseNoSense:        "NO SENSE",
	SenseRecoveredError: "RECOVERED ERROR",
	SenseNotReady:       "NOT READY",
	SenseMediumError:    "MEDIUM ERROR",
	SenseHardwareError:  "HARDWARE ERROR",
	SenseIllegalRequest: "ILLEGAL REQUEST",
	SenseUnitAttention:  "UNIT ATTENTION",
	SenseDataProtect:    "DATA PROTECT",
	SenseBlankCheck:     "BLANK CHECK",
	SenseCopyAborted:    "COPY ABORTED",
	SenseAbortedCommand: "ABORTED COMMAND",
	SenseVolumeOverflow: "VOLUME OVERFLOW",
	SenseMiscompare:     "MISCOMPARE",
}

func (k SenseKey) String() string {
	if s, ok := senseKeyNames[k]; ok {
		return s
	}
	return "VENDOR SPECIFIC"
}

// Additional sense codes the changer engine keys on.
const (
	AscNoAdditionalSense       = 0x00
	AscNotReady                = 0x04
	AscInvalidOpcode           = 0x20
	AscInvalidElementAddress   = 0x21
	AscInvalidFieldInCdb       = 0x24
	AscNotReadyToReady         = 0x28
	AscPowerOnReset            = 0x29
	AscModeParametersChanged   = 0x2a
	AscCleaningCartridge       = 0x30
	AscMediumNotPresent        = 0x3a
	AscPositioningError        = 0x3b
	AscMechanicalPositioning   = 0x15
	AscMediumRemovalPrevented  = 0x53
	AscInternalTargetFailure   = 0x44
	AscVendorBarcodeUnreadable = 0x83
	AscqMediumDestinationFull  = 0x0d
	AscqMediumSourceEmpty      = 0x0e
	AscqMediumMagazineRemoved  = 0x12
	AscqImportExportAccessed   = 0x01
	AscqBecomingReady          = 0x01
	AscqInitializationRequired = 0x02
	AscqManualIntervention     = 0x03
	AscqRemovalPrevented       = 0x02
	AscqMagazineNotAccessible  = 0x11
	AscqCleaningRequested      = 0x17
	AscqVendorDoorOpen         = 0x83
)

// Direction of the data phase of a SCSI exchange.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionIn
	DirectionOut
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	default:
		return "none"
	}
}
