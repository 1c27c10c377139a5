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

// Serial port backends

package tmc

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	tarm "github.com/tarm/serial"
)

// DefaultReadTimeout bounds the wait for each reply.
const DefaultReadTimeout = 100 * time.Millisecond

// Port is an open serial port carrying the driver bus.
type Port interface {
	io.ReadWriteCloser
	Flush() error // Discard unread input
}

// PortConfig selects the serial device and line settings.
type PortConfig struct {
	Device      string        // e.g. /dev/serial0
	Baud        int           // Baud rate, default 115200
	ReadTimeout time.Duration // Default DefaultReadTimeout
}

func (c PortConfig) withDefaults() PortConfig {
	if c.Baud == 0 {
		c.Baud = 115200
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

type bugPort struct {
	serial.Port
}

func (p bugPort) Flush() error {
	return p.ResetInputBuffer()
}

// OpenSerial opens the port using go.bug.st/serial, 8N1.
func OpenSerial(c PortConfig) (Port, error) {
	c = c.withDefaults()
	p, err := serial.Open(c.Device, &serial.Mode{
		BaudRate: c.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, &CommunicationError{Op: "open", Err: errors.Wrap(err, c.Device)}
	}
	if err := p.SetReadTimeout(c.ReadTimeout); err != nil {
		p.Close()
		return nil, &CommunicationError{Op: "open", Err: errors.Wrap(err, c.Device)}
	}
	return bugPort{p}, nil
}

// OpenTarm opens the port using github.com/tarm/serial.
func OpenTarm(c PortConfig) (Port, error) {
	c = c.withDefaults()
	p, err := tarm.OpenPort(&tarm.Config{
		Name:        c.Device,
		Baud:        c.Baud,
		ReadTimeout: c.ReadTimeout,
	})
	if err != nil {
		return nil, &CommunicationError{Op: "open", Err: errors.Wrap(err, c.Device)}
	}
	return p, nil
}

// OpenPort opens the port with the named backend, "serial" or "tarm".
func OpenPort(backend string, c PortConfig) (Port, error) {
	switch backend {
	case "", "serial":
		return OpenSerial(c)
	case "tarm":
		return OpenTarm(c)
	}
	return nil, errors.Errorf("unknown serial backend %q", backend)
}
