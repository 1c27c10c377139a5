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

// Stepper driver variants

package stepper

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/aamcrae/stepper/io"
	"github.com/aamcrae/stepper/motion"
	"github.com/aamcrae/stepper/tmc"
)

// ErrNoMicrostepLines is returned by a PinDriver asked for a valid
// microstep mode when its mode select lines are not connected.
var ErrNoMicrostepLines = errors.New("microstep select lines not connected")

// Driver is the set of operations a stepper driver chip supports
// beyond step and direction.
type Driver interface {
	Enable() error
	Disable() error
	SetMicrostep(factor int) error
	Microsteps() []int // Supported microstep factors, ascending
}

// PinDriver is a driver whose enable and microstep mode are selected
// with GPIO lines.
type PinDriver struct {
	name   string
	enable io.Setter     // Active low, may be nil
	ms     []io.Setter   // Mode select lines, MS1 first
	modes  map[int][]int // Mode select levels for each factor
}

// NewA4988 returns an A4988 driver. The enable line and mode select
// lines MS1, MS2 and MS3 are optional.
func NewA4988(enable io.Setter, ms ...io.Setter) *PinDriver {
	return &PinDriver{
		name:   "A4988",
		enable: enable,
		ms:     ms,
		modes: map[int][]int{
			1:  {0, 0, 0},
			2:  {1, 0, 0},
			4:  {0, 1, 0},
			8:  {1, 1, 0},
			16: {1, 1, 1},
		},
	}
}

// NewTMC2208 returns a TMC2208 driver in standalone mode, with the
// microstep mode selected by MS1 and MS2.
func NewTMC2208(enable io.Setter, ms ...io.Setter) *PinDriver {
	return &PinDriver{
		name:   "TMC2208",
		enable: enable,
		ms:     ms,
		modes: map[int][]int{
			2:  {1, 0},
			4:  {0, 1},
			8:  {0, 0},
			16: {1, 1},
		},
	}
}

func (d *PinDriver) String() string {
	return d.name
}

// Enable drives the enable line low.
func (d *PinDriver) Enable() error {
	if d.enable == nil {
		return nil
	}
	return d.enable.Set(0)
}

// Disable drives the enable line high.
func (d *PinDriver) Disable() error {
	if d.enable == nil {
		return nil
	}
	return d.enable.Set(1)
}

// SetMicrostep sets the mode select lines for factor.
func (d *PinDriver) SetMicrostep(factor int) error {
	levels, ok := d.modes[factor]
	if !ok {
		return motion.Configf("%s: unsupported microstep mode %s", d.name, MicrostepName(factor))
	}
	if len(d.ms) < len(levels) {
		return ErrNoMicrostepLines
	}
	for _, l := range d.ms[:len(levels)] {
		if l == nil {
			return ErrNoMicrostepLines
		}
	}
	var err error
	for i, v := range levels {
		err = multierr.Append(err, d.ms[i].Set(v))
	}
	return err
}

// Microsteps returns the supported factors.
func (d *PinDriver) Microsteps() []int {
	var f []int
	for k := range d.modes {
		f = append(f, k)
	}
	sort.Ints(f)
	return f
}

// MRES values of CHOPCONF for each microstep factor.
var mres = map[int]uint32{
	256: 0,
	128: 1,
	64:  2,
	32:  3,
	16:  4,
	8:   5,
	4:   6,
	2:   7,
	1:   8,
}

// UARTDriver is a TMC2208 configured through its register interface.
type UARTDriver struct {
	dev    *tmc.Device
	enable io.Setter // Optional hardware enable line, active low
	settle time.Duration
	sleep  func(time.Duration)
}

// NewUARTDriver returns a driver configured through dev. The enable
// line is optional; if present it is driven low when enabling and
// high when disabling.
func NewUARTDriver(dev *tmc.Device, enable io.Setter) *UARTDriver {
	return &UARTDriver{dev: dev, enable: enable, settle: 5 * time.Millisecond, sleep: time.Sleep}
}

// Device returns the register interface.
func (d *UARTDriver) Device() *tmc.Device {
	return d.dev
}

// Enable hands control of the driver to the register interface and
// turns on the motor outputs.
func (d *UARTDriver) Enable() error {
	if d.enable != nil {
		if err := d.enable.Set(0); err != nil {
			return err
		}
	}
	err := d.dev.UpdateRegister("GCONF", map[string]uint32{"pdn_disable": 1, "mstep_reg_select": 1})
	if err != nil {
		return errors.Wrap(err, "enable")
	}
	d.sleep(d.settle)
	return errors.Wrap(d.dev.UpdateRegister("CHOPCONF", map[string]uint32{"toff": 3}), "enable")
}

// Disable turns off the motor outputs.
func (d *UARTDriver) Disable() error {
	err := errors.Wrap(d.dev.UpdateRegister("CHOPCONF", map[string]uint32{"toff": 0}), "disable")
	if d.enable != nil {
		err = multierr.Append(err, d.enable.Set(1))
	}
	return err
}

// SetMicrostep writes the MRES field of CHOPCONF.
func (d *UARTDriver) SetMicrostep(factor int) error {
	m, ok := mres[factor]
	if !ok {
		return motion.Configf("TMC2208: unsupported microstep mode %s", MicrostepName(factor))
	}
	return d.dev.UpdateRegister("CHOPCONF", map[string]uint32{"mres": m})
}

// Microsteps returns 1 to 256 in powers of two.
func (d *UARTDriver) Microsteps() []int {
	return []int{1, 2, 4, 8, 16, 32, 64, 128, 256}
}

// SetCurrent sets the hold and run current scales (0-31) and the
// delay before reducing to the hold current (0-15).
func (d *UARTDriver) SetCurrent(ihold, irun, iholddelay uint32) error {
	return d.dev.WriteFields("IHOLD_IRUN", map[string]uint32{
		"ihold":      ihold,
		"irun":       irun,
		"iholddelay": iholddelay,
	})
}

// Status holds the decoded driver status registers.
type Status struct {
	Drv   map[string]uint32 // DRV_STATUS fields
	Flags map[string]uint32 // GSTAT fields
}

// Status reads DRV_STATUS and GSTAT. Fields of whichever register
// could be read are returned along with any error.
func (d *UARTDriver) Status() (*Status, error) {
	var s Status
	var err, e error
	s.Drv, e = d.dev.ReadFields("DRV_STATUS")
	err = multierr.Append(err, e)
	s.Flags, e = d.dev.ReadFields("GSTAT")
	err = multierr.Append(err, e)
	return &s, err
}

// ParseMicrostep parses a microstep mode such as "full", "1/16" or "16".
func ParseMicrostep(s string) (int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "full" {
		return 1, nil
	}
	f, err := strconv.Atoi(strings.TrimPrefix(s, "1/"))
	if err != nil || f < 1 || f > 256 || f&(f-1) != 0 {
		return 0, motion.Configf("invalid microstep mode %q", s)
	}
	return f, nil
}

// MicrostepName returns the conventional name of a microstep factor.
func MicrostepName(f int) string {
	if f == 1 {
		return "full"
	}
	return "1/" + strconv.Itoa(f)
}
