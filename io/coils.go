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

package io

import (
	"sync"

	"go.uber.org/multierr"
)

// Half step sequence of outputs.
var sequence = [][]int{
	{1, 0, 0, 0},
	{1, 1, 0, 0},
	{0, 1, 0, 0},
	{0, 1, 1, 0},
	{0, 0, 1, 0},
	{0, 0, 1, 1},
	{0, 0, 0, 1},
	{1, 0, 0, 1},
}

// Coils drives the 4 coils of a unipolar stepper motor (e.g through a
// ULN2003 array) from step and direction signals, so that it can be used
// wherever a step/dir driver is expected.
// Each rising edge on the step input moves one half-step in the
// direction selected by the direction input.
// The current step number is maintained as an absolute number, referenced from
// 0 when the coils are first initialised.
type Coils struct {
	mu      sync.Mutex
	pins    [4]Setter // Pins for controlling outputs
	index   int       // Index to step sequence
	inc     int       // +1 forward, -1 backward
	level   int       // Last value written to the step input
	on      bool      // true if motor drivers on
	current int64     // Current step number as an absolute number
}

// NewCoils creates a Coils controlling the 4 GPIO pins.
func NewCoils(pin1, pin2, pin3, pin4 Setter) *Coils {
	return &Coils{pins: [4]Setter{pin1, pin2, pin3, pin4}, inc: 1}
}

// Step returns the step input.
func (c *Coils) Step() Setter {
	return SetterFunc(c.step)
}

// Dir returns the direction input; 1 is forward.
func (c *Coils) Dir() Setter {
	return SetterFunc(c.dir)
}

// State returns the current sequence index, so that the current state
// of the motor can be saved and then restored in a new instance.
func (c *Coils) State() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Restore initialises the sequence index to this value.
func (c *Coils) Restore(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = i & 7
}

// Position returns the signed number of half-steps moved.
func (c *Coils) Position() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Off turns off the coils to remove the power from the motor.
func (c *Coils) Off() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.on {
		return nil
	}
	var err error
	for _, p := range c.pins {
		err = multierr.Append(err, p.Set(0))
	}
	c.on = false
	return err
}

func (c *Coils) dir(v int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v != 0 {
		c.inc = 1
	} else {
		c.inc = -1
	}
	return nil
}

func (c *Coils) step(v int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rising := v != 0 && c.level == 0
	c.level = v
	if !rising {
		return nil
	}
	c.index = (c.index + c.inc) & 7
	c.current += int64(c.inc)
	return c.output()
}

// Set the outputs according to the current sequence index.
func (c *Coils) output() error {
	c.on = true
	seq := sequence[c.index]
	var err error
	for i, p := range c.pins {
		err = multierr.Append(err, p.Set(seq[i]))
	}
	return err
}
