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

// Package safecast narrows integers into the fixed-width fields of
// CDBs and parameter lists, panicking when a value does not fit.
package safecast

func IntToUint8(v int) uint8 {
	if v < 0 {
		panic("out of bounds")
	}
	r := uint8(v)
	if int(r) != v {
		panic("out of bounds")
	}
	return r
}

func IntToUint16(v int) uint16 {
	if v < 0 {
		panic("out of bounds")
	}
	r := uint16(v)
	if int(r) != v {
		panic("out of bounds")
	}
	return r
}

// IntToUint24 checks v against the 3 byte length fields of element
// status and log parameter headers.
func IntToUint24(v int) uint32 {
	if v < 0 || v > 0xffffff {
		panic("out of bounds")
	}
	return uint32(v)
}

func IntToUint32(v int) uint32 {
	if v < 0 {
		panic("out of bounds")
	}
	r := uint32(v)
	if int(r) != v {
		panic("out of bounds")
	}
	return r
}
