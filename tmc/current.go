// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Motor current scaling

package tmc

import "math"

// Full scale sense voltages.
const (
	VfsHigh = 0.325 // vsense=0
	VfsLow  = 0.18  // vsense=1
)

// DefaultRsense is the sense resistor fitted to most TMC2208 modules.
const DefaultRsense = 0.11

// CurrentScale returns the 5 bit current scale (IRUN/IHOLD) for an RMS
// motor current in amps, clamped to 0..31.
func CurrentScale(rms, rsense float64, vsense bool) uint32 {
	vfs := VfsHigh
	if vsense {
		vfs = VfsLow
	}
	cs := 32*rms*math.Sqrt2*(rsense+0.02)/vfs - 1
	switch {
	case cs < 0:
		return 0
	case cs > 31:
		return 31
	}
	return uint32(cs)
}

// RMSCurrent is the inverse of CurrentScale.
func RMSCurrent(cs uint32, rsense float64, vsense bool) float64 {
	vfs := VfsHigh
	if vsense {
		vfs = VfsLow
	}
	return float64(cs+1) / 32 * vfs / (rsense + 0.02) / math.Sqrt2
}
