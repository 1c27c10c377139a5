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

// Selection of the GPIO access method

package io

import (
	"strings"

	"github.com/pkg/errors"
)

// Backend names a GPIO access method.
type Backend struct {
	Kind string // "sysfs", "cdev" or "rpio"
	Chip string // Character device chip, e.g. gpiochip0
}

// ParseBackend parses "sysfs", "rpio" or "cdev[,chip]".
func ParseBackend(s string) (Backend, error) {
	f := strings.Split(strings.TrimSpace(s), ",")
	b := Backend{Kind: strings.TrimSpace(f[0])}
	switch b.Kind {
	case "", "sysfs":
		b.Kind = "sysfs"
	case "cdev":
		b.Chip = "gpiochip0"
		if len(f) > 1 {
			b.Chip = strings.TrimSpace(f[1])
		}
		return b, nil
	case "rpio":
	default:
		return b, errors.Errorf("unknown gpio backend %q", s)
	}
	if len(f) > 1 {
		return b, errors.Errorf("gpio backend %q takes no chip", b.Kind)
	}
	return b, nil
}

func (b Backend) String() string {
	if b.Kind == "cdev" {
		return b.Kind + "," + b.Chip
	}
	return b.Kind
}

// Output opens GPIO n as an output, driven low.
func (b Backend) Output(n int) (Line, error) {
	var l Line
	var err error
	switch b.Kind {
	case "sysfs":
		l, err = OutputPin(n)
	case "cdev":
		l, err = CdevOutput(b.Chip, n)
	case "rpio":
		l, err = RpioOutput(n)
	default:
		return nil, errors.Errorf("unknown gpio backend %q", b.Kind)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Input opens GPIO n as an input. If edge is set, Get on the
// returned line waits for the line to change before reading it.
func (b Backend) Input(n int, edge bool) (Line, error) {
	switch b.Kind {
	case "sysfs":
		g, err := Pin(n)
		if err != nil {
			return nil, err
		}
		if edge {
			if err := g.Edge(BOTH); err != nil {
				g.Close()
				return nil, err
			}
		}
		return g, nil
	case "cdev":
		c, err := CdevInput(b.Chip, n, edge)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "rpio":
		r, err := RpioInput(n, edge)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, errors.Errorf("unknown gpio backend %q", b.Kind)
}
