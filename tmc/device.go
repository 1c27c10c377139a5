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

// Package tmc implements the single wire UART register protocol of
// Trinamic TMC2208 family stepper drivers.
package tmc

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Device is a driver chip on a half-duplex UART bus. Each register
// access is a single request/response exchange; exchanges are serialised
// so a Device may be shared between goroutines.
type Device struct {
	mu   sync.Mutex
	bus  io.ReadWriter
	addr byte               // Slave address (0-3 as set by MS1/MS2)
	echo bool               // Bus echoes transmitted bytes
	log  logrus.FieldLogger // Logger
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger used for register traffic.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Device) {
		d.log = l
	}
}

// WithEcho selects whether the bus echoes transmitted bytes back to the
// receiver, as a single wire bus with TX and RX joined does. The default is true.
func WithEcho(echo bool) Option {
	return func(d *Device) {
		d.echo = echo
	}
}

// NewDevice creates a Device for the driver at slave address addr on bus.
func NewDevice(bus io.ReadWriter, addr byte, opts ...Option) *Device {
	d := &Device{bus: bus, addr: addr, echo: true}
	for _, o := range opts {
		o(d)
	}
	if d.log == nil {
		d.log = logrus.StandardLogger()
	}
	d.log = d.log.WithField("tmc", fmt.Sprintf("addr%d", addr))
	return d
}

// Addr returns the slave address.
func (d *Device) Addr() byte {
	return d.addr
}

// ReadRegister returns the value of register reg. On failure no value
// is returned, and the error is a CommunicationError or a ProtocolError.
func (d *Device) ReadRegister(reg byte) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read(reg)
}

// WriteRegister writes v to register reg. The value is not read back.
func (d *Device) WriteRegister(reg byte, v uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(reg, v)
}

// UpdateRegisterBits replaces the bits of register reg selected by mask
// with the same bits of v, leaving the others as read. Nothing is
// written if the read fails.
func (d *Device) UpdateRegisterBits(reg byte, mask, v uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, err := d.read(reg)
	if err != nil {
		return errors.Wrap(err, "update aborted")
	}
	nv := (cur &^ mask) | (v & mask)
	d.log.Debugf("update 0x%02x: 0x%08x -> 0x%08x", reg, cur, nv)
	return d.write(reg, nv)
}

// UpdateRegister sets the named fields of the named register with a
// read-modify-write, leaving other fields unchanged.
func (d *Device) UpdateRegister(name string, fields map[string]uint32) error {
	r, err := Lookup(name)
	if err != nil {
		return err
	}
	mask, v, err := r.Encode(fields)
	if err != nil {
		return err
	}
	return d.UpdateRegisterBits(r.Addr, mask, v)
}

// WriteFields writes the named register with the given fields, and all
// other fields zero. It is used for write-only registers such as IHOLD_IRUN.
func (d *Device) WriteFields(name string, fields map[string]uint32) error {
	r, err := Lookup(name)
	if err != nil {
		return err
	}
	_, v, err := r.Encode(fields)
	if err != nil {
		return err
	}
	return d.WriteRegister(r.Addr, v)
}

// ReadFields reads the named register and returns its decoded fields.
func (d *Device) ReadFields(name string) (map[string]uint32, error) {
	r, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	v, err := d.ReadRegister(r.Addr)
	if err != nil {
		return nil, err
	}
	return r.Decode(v), nil
}

func (d *Device) read(reg byte) (uint32, error) {
	req := ReadRequest(d.addr, reg)
	d.flush()
	if _, err := d.bus.Write(req); err != nil {
		return 0, &CommunicationError{Op: "read", Reg: reg, Err: err}
	}
	n := ReplyLen
	if d.echo {
		n += len(req)
	}
	buf := make([]byte, n)
	if err := readFull(d.bus, buf); err != nil {
		return 0, &CommunicationError{Op: "read", Reg: reg, Err: err}
	}
	if d.echo {
		if !bytes.Equal(buf[:len(req)], req) {
			return 0, &ProtocolError{Reg: reg, Reason: fmt.Sprintf("echo mismatch % x", buf[:len(req)])}
		}
		buf = buf[len(req):]
	}
	v, err := ParseReply(buf, reg)
	if err != nil {
		return 0, err
	}
	d.log.Debugf("read 0x%02x = 0x%08x", reg, v)
	return v, nil
}

func (d *Device) write(reg byte, v uint32) error {
	req := WriteRequest(d.addr, reg, v)
	d.flush()
	if _, err := d.bus.Write(req); err != nil {
		return &CommunicationError{Op: "write", Reg: reg, Err: err}
	}
	if d.echo {
		// Drain the echo so it is not taken as the next reply.
		buf := make([]byte, len(req))
		if err := readFull(d.bus, buf); err != nil {
			return &CommunicationError{Op: "write", Reg: reg, Err: err}
		}
		if !bytes.Equal(buf, req) {
			return &ProtocolError{Reg: reg, Reason: fmt.Sprintf("echo mismatch % x", buf)}
		}
	}
	d.log.Debugf("write 0x%02x = 0x%08x", reg, v)
	return nil
}

// flush discards stale input if the bus supports it.
func (d *Device) flush() {
	if f, ok := d.bus.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			d.log.Warnf("flush: %v", err)
		}
	}
}

// readFull fills buf from r. Serial ports report a read timeout as a
// zero length read without an error, which is treated as ErrTimeout.
func readFull(r io.Reader, buf []byte) error {
	got := 0
	for got < len(buf) {
		n, err := r.Read(buf[got:])
		got += n
		if got == len(buf) {
			return nil
		}
		if err != nil {
			if err == io.EOF {
				return errors.Wrapf(io.ErrUnexpectedEOF, "short reply (%d of %d bytes)", got, len(buf))
			}
			return err
		}
		if n == 0 {
			return errors.Wrapf(ErrTimeout, "short reply (%d of %d bytes)", got, len(buf))
		}
	}
	return nil
}
