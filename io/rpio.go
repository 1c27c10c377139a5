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

// GPIO lines through memory-mapped Raspberry Pi registers

package io

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

// edgePoll is the polling interval when waiting for an edge.
const edgePoll = time.Millisecond

var rpioOnce sync.Once
var rpioErr error

func openRpio() error {
	rpioOnce.Do(func() {
		rpioErr = errors.Wrap(rpio.Open(), "rpio")
	})
	return rpioErr
}

// RpioLine is a BCM GPIO pin accessed through /dev/gpiomem.
type RpioLine struct {
	pin  rpio.Pin
	edge bool
}

// RpioOutput sets BCM pin n as an output, initially low.
func RpioOutput(n int) (*RpioLine, error) {
	if err := openRpio(); err != nil {
		return nil, err
	}
	p := rpio.Pin(n)
	p.Output()
	p.Low()
	return &RpioLine{pin: p}, nil
}

// RpioInput sets BCM pin n as an input. If edge is set, Get blocks
// until the line changes.
func RpioInput(n int, edge bool) (*RpioLine, error) {
	if err := openRpio(); err != nil {
		return nil, err
	}
	p := rpio.Pin(n)
	p.Input()
	if edge {
		p.Detect(rpio.AnyEdge)
	}
	return &RpioLine{pin: p, edge: edge}, nil
}

// Set drives the pin.
func (r *RpioLine) Set(v int) error {
	switch v {
	case 0:
		r.pin.Low()
	case 1:
		r.pin.High()
	default:
		return errors.Errorf("pin %d: illegal value %d", r.pin, v)
	}
	return nil
}

// Get returns the pin level, first waiting for an edge if edges are watched.
func (r *RpioLine) Get() (int, error) {
	if r.edge {
		for !r.pin.EdgeDetected() {
			time.Sleep(edgePoll)
		}
	}
	return int(r.pin.Read()), nil
}

// Close stops edge detection. The memory mapping stays open for other lines.
func (r *RpioLine) Close() error {
	if r.edge {
		r.pin.Detect(rpio.NoEdge)
	}
	return nil
}

// CloseRpio unmaps the GPIO registers once all lines are closed.
func CloseRpio() error {
	return rpio.Close()
}
