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

// GPIO lines through the sysfs interface

package io

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Mode
const (
	IN  = iota // Default
	OUT = iota
)

// Edge
const (
	NONE    = iota // Default
	RISING  = iota
	FALLING = iota
	BOTH    = iota
)

// sysfsRoot is the GPIO class directory.
var sysfsRoot = "/sys/class/gpio"

// Gpio represents one sysfs GPIO pin.
type Gpio struct {
	number    int
	value     *os.File
	buf       []byte
	direction int
	edge      int
	pollfd    []unix.PollFd
}

func gpioFile(gpio int, name string) string {
	return filepath.Join(sysfsRoot, fmt.Sprintf("gpio%d", gpio), name)
}

// OutputPin opens a GPIO pin, sets the direction as OUTPUT and drives it low.
func OutputPin(gpio int) (*Gpio, error) {
	g, err := Pin(gpio)
	if err != nil {
		return nil, err
	}
	if err := g.Direction(OUT); err != nil {
		g.Close()
		return nil, err
	}
	if err := g.Set(0); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

// Pin opens a GPIO pin as an input (by default)
func Pin(gpio int) (*Gpio, error) {
	g := &Gpio{number: gpio, buf: make([]byte, 1)}
	unexp := filepath.Join(sysfsRoot, "unexport")
	err := export(gpioFile(gpio, "value"), filepath.Join(sysfsRoot, "export"), gpio)
	if err != nil {
		return nil, errors.Wrapf(err, "gpio%d: export", gpio)
	}
	if err := g.Direction(IN); err != nil {
		unexport(unexp, gpio)
		return nil, err
	}
	if err := g.Edge(NONE); err != nil {
		unexport(unexp, gpio)
		return nil, err
	}
	g.value, err = os.OpenFile(gpioFile(gpio, "value"), os.O_RDWR, 0600)
	if err != nil {
		unexport(unexp, gpio)
		return nil, err
	}
	g.pollfd = []unix.PollFd{{Fd: int32(g.value.Fd()), Events: unix.POLLPRI | unix.POLLERR}}
	return g, nil
}

// Direction sets the mode (direction) of the GPIO pin.
func (g *Gpio) Direction(d int) error {
	var s string
	switch d {
	case IN:
		s = "in"
	case OUT:
		s = "out"
	default:
		return errors.Errorf("gpio%d: unknown direction", g.number)
	}
	err := writeFile(gpioFile(g.number, "direction"), s)
	if err == nil {
		g.direction = d
	}
	return err
}

// Edge sets the edge detection on the GPIO pin.
func (g *Gpio) Edge(e int) error {
	if g.direction != IN {
		return errors.Errorf("gpio%d: not set as an input pin", g.number)
	}
	var s string
	switch e {
	case NONE:
		s = "none"
	case RISING:
		s = "rising"
	case FALLING:
		s = "falling"
	case BOTH:
		s = "both"
	default:
		return errors.Errorf("gpio%d: unknown edge", g.number)
	}
	err := writeFile(gpioFile(g.number, "edge"), s)
	if err == nil {
		g.edge = e
	}
	return err
}

// Set the output of the GPIO pin (only valid for OUTPUT pins)
func (g *Gpio) Set(v int) error {
	if g.direction != OUT {
		return errors.Errorf("gpio%d: is not output", g.number)
	}
	switch v {
	case 0:
		g.buf[0] = '0'
	case 1:
		g.buf[0] = '1'
	default:
		return errors.Errorf("gpio%d: illegal value %d", g.number, v)
	}
	_, err := g.value.WriteAt(g.buf, 0)
	return err
}

// Get returns the current value of the GPIO pin. If edge detection
// is enabled, Get blocks until an edge occurs.
func (g *Gpio) Get() (int, error) {
	if g.edge != NONE {
		// Wait for edge using poll.
		g.pollfd[0].Revents = 0
		_, err := unix.Poll(g.pollfd, -1)
		if err != nil {
			return 0, err
		}
		// With no timeout, poll should always return an event.
	}
	_, err := g.value.ReadAt(g.buf, 0)
	if err != nil {
		return 0, err
	}
	switch g.buf[0] {
	case '0':
		return 0, nil
	case '1':
		return 1, nil
	}
	return 0, errors.Errorf("gpio%d: unknown value %q", g.number, g.buf)
}

// Close the GPIO pin and unexport it.
func (g *Gpio) Close() error {
	err := g.value.Close()
	if uerr := unexport(filepath.Join(sysfsRoot, "unexport"), g.number); err == nil {
		err = uerr
	}
	return err
}
