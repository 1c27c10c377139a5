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

package stepper

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aamcrae/stepper/motion"
	"github.com/aamcrae/stepper/tmc"
)

func levels(l []*line) []int {
	var v []int
	for _, x := range l {
		v = append(v, x.v)
	}
	return v
}

func TestA4988Microstep(t *testing.T) {
	ms := []*line{{}, {}, {}}
	d := NewA4988(nil, ms[0], ms[1], ms[2])
	assert.Equal(t, []int{1, 2, 4, 8, 16}, d.Microsteps())
	tests := []struct {
		factor int
		want   []int
	}{
		{1, []int{0, 0, 0}},
		{2, []int{1, 0, 0}},
		{4, []int{0, 1, 0}},
		{8, []int{1, 1, 0}},
		{16, []int{1, 1, 1}},
	}
	for _, tc := range tests {
		require.NoError(t, d.SetMicrostep(tc.factor))
		assert.Equal(t, tc.want, levels(ms), MicrostepName(tc.factor))
	}
	var ce *motion.ConfigError
	assert.ErrorAs(t, d.SetMicrostep(32), &ce)
}

func TestTMC2208Microstep(t *testing.T) {
	ms := []*line{{}, {}}
	d := NewTMC2208(nil, ms[0], ms[1])
	assert.Equal(t, []int{2, 4, 8, 16}, d.Microsteps())
	tests := []struct {
		factor int
		want   []int
	}{
		{2, []int{1, 0}},
		{4, []int{0, 1}},
		{8, []int{0, 0}},
		{16, []int{1, 1}},
	}
	for _, tc := range tests {
		require.NoError(t, d.SetMicrostep(tc.factor))
		assert.Equal(t, tc.want, levels(ms), MicrostepName(tc.factor))
	}
	var ce *motion.ConfigError
	assert.ErrorAs(t, d.SetMicrostep(1), &ce)
}

func TestPinDriverEnable(t *testing.T) {
	en := &line{v: 1}
	d := NewA4988(en)
	require.NoError(t, d.Enable())
	assert.Equal(t, 0, en.v)
	require.NoError(t, d.Disable())
	assert.Equal(t, 1, en.v)
	assert.ErrorIs(t, d.SetMicrostep(2), ErrNoMicrostepLines)
	// No enable line.
	assert.NoError(t, NewA4988(nil).Enable())
}

func TestConfigureMicrostepping(t *testing.T) {
	ms := []*line{{}, {}, {}}
	tm := newTestMotor(t, NewA4988(nil, ms[0], ms[1], ms[2]))
	require.NoError(t, tm.ConfigureMicrostepping(8))
	assert.Equal(t, 8, tm.Microstep())
	assert.Equal(t, 0.225, tm.StepAngle())
	assert.Equal(t, []int{1, 1, 0}, levels(ms))

	var ce *motion.ConfigError
	assert.ErrorAs(t, tm.ConfigureMicrostepping(32), &ce)
	assert.Equal(t, 8, tm.Microstep())

	require.NoError(t, tm.StartRotation(90, 90, nil, Forward))
	assert.ErrorIs(t, tm.ConfigureMicrostepping(16), ErrBusy)
	assert.Equal(t, []int{1, 1, 0}, levels(ms))
}

func TestConfigureMicrosteppingNoLines(t *testing.T) {
	tm := newTestMotor(t, NewTMC2208(nil), WithMicrostep(8))
	require.NoError(t, tm.ConfigureMicrostepping(16))
	assert.Equal(t, 8, tm.Microstep())
	assert.Equal(t, logrus.WarnLevel, tm.hook.LastEntry().Level)

	tm = newTestMotor(t, nil)
	var ce *motion.ConfigError
	assert.ErrorAs(t, tm.ConfigureMicrostepping(2), &ce)
}

func TestParseMicrostep(t *testing.T) {
	for in, want := range map[string]int{"full": 1, "1/2": 2, "1/16": 16, "256": 256, " 1/8 ": 8} {
		f, err := ParseMicrostep(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, f, in)
	}
	for _, in := range []string{"1/3", "0", "512", "half"} {
		_, err := ParseMicrostep(in)
		assert.Error(t, err, in)
	}
	assert.Equal(t, "1/32", MicrostepName(32))
}

// chip answers register reads and writes on a simulated single wire bus.
type chip struct {
	regs   map[byte]uint32
	rx     bytes.Buffer
	writes []byte // Registers written, in order
}

func (c *chip) Write(p []byte) (int, error) {
	c.rx.Write(p)
	switch len(p) {
	case tmc.ReadRequestLen:
		c.rx.Write(tmc.Reply(p[2], c.regs[p[2]]))
	case tmc.WriteRequestLen:
		reg := p[2] &^ 0x80
		c.regs[reg] = binary.BigEndian.Uint32(p[3:7])
		c.writes = append(c.writes, reg)
	}
	return len(p), nil
}

func (c *chip) Read(p []byte) (int, error) {
	if c.rx.Len() == 0 {
		return 0, nil
	}
	return c.rx.Read(p)
}

func newUARTDriver(regs map[byte]uint32) (*UARTDriver, *chip) {
	c := &chip{regs: regs}
	l, _ := test.NewNullLogger()
	d := NewUARTDriver(tmc.NewDevice(c, 0, tmc.WithLogger(l)), nil)
	d.sleep = func(time.Duration) {}
	return d, c
}

func TestUARTEnable(t *testing.T) {
	d, c := newUARTDriver(map[byte]uint32{
		tmc.GCONF:    0x101,
		tmc.CHOPCONF: 0x10000050,
	})
	require.NoError(t, d.Enable())
	assert.Equal(t, uint32(0x1C1), c.regs[tmc.GCONF])
	assert.Equal(t, uint32(0x10000053), c.regs[tmc.CHOPCONF])
	assert.Equal(t, []byte{tmc.GCONF, tmc.CHOPCONF}, c.writes)

	require.NoError(t, d.Disable())
	assert.Equal(t, uint32(0x10000050), c.regs[tmc.CHOPCONF])
}

func TestUARTEnableLine(t *testing.T) {
	d, c := newUARTDriver(map[byte]uint32{tmc.GCONF: 0x101, tmc.CHOPCONF: 0x10000050})
	en := &line{v: 1}
	d.enable = en
	require.NoError(t, d.Enable())
	assert.Equal(t, 0, en.v)
	require.NoError(t, d.Disable())
	assert.Equal(t, 1, en.v)
	assert.Equal(t, uint32(0x10000050), c.regs[tmc.CHOPCONF])
}

func TestUARTMicrostep(t *testing.T) {
	d, c := newUARTDriver(map[byte]uint32{tmc.CHOPCONF: 0x10000053})
	tests := []struct {
		factor int
		want   uint32
	}{
		{256, 0x10000053},
		{16, 0x14000053},
		{2, 0x17000053},
		{1, 0x18000053},
	}
	for _, tc := range tests {
		require.NoError(t, d.SetMicrostep(tc.factor))
		assert.Equal(t, tc.want, c.regs[tmc.CHOPCONF], MicrostepName(tc.factor))
	}
	var ce *motion.ConfigError
	assert.ErrorAs(t, d.SetMicrostep(3), &ce)

	tm := newTestMotor(t, d)
	require.NoError(t, tm.ConfigureMicrostepping(64))
	assert.Equal(t, uint32(0x12000053), c.regs[tmc.CHOPCONF])
	assert.Equal(t, 64, tm.Microstep())
}

func TestUARTCurrentAndStatus(t *testing.T) {
	d, c := newUARTDriver(map[byte]uint32{
		tmc.DRVSTATUS: 0x80000002,
		tmc.GSTAT:     0x1,
	})
	require.NoError(t, d.SetCurrent(6, 20, 1))
	assert.Equal(t, uint32(0x00011406), c.regs[tmc.IHOLDIRUN])
	assert.Error(t, d.SetCurrent(32, 20, 1))

	s, err := d.Status()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), s.Drv["stst"])
	assert.Equal(t, uint32(1), s.Drv["ot"])
	assert.Equal(t, uint32(0), s.Drv["otpw"])
	assert.Equal(t, uint32(1), s.Flags["reset"])
}
