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
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aamcrae/stepper/motion"
)

// fakeClock only moves when slept or set.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time        { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

// line records the level and rising edges written to it.
type line struct {
	v     int
	edges int
	fail  error
}

func (l *line) Set(v int) error {
	if l.fail != nil && v == 1 {
		return l.fail
	}
	if v == 1 && l.v == 0 {
		l.edges++
	}
	l.v = v
	return nil
}

type testMotor struct {
	*Motor
	clock *fakeClock
	step  *line
	dir   *line
	hook  *test.Hook
}

func newTestMotor(t *testing.T, drv Driver, opts ...Option) *testMotor {
	l, hook := test.NewNullLogger()
	tm := &testMotor{
		clock: &fakeClock{now: time.Unix(1000, 0)},
		step:  &line{},
		dir:   &line{},
		hook:  hook,
	}
	opts = append([]Option{WithLogger(l), WithClock(tm.clock)}, opts...)
	m, err := NewMotor(tm.step, tm.dir, drv, opts...)
	require.NoError(t, err)
	tm.Motor = m
	return tm
}

// run calls Advance until the motion ends, jumping the clock to each
// pulse. It returns the number of calls that emitted no pulse.
func (tm *testMotor) run(t *testing.T, limit int) int {
	idle := 0
	for i := 0; tm.Busy(); i++ {
		require.Less(t, i, limit, "motion did not finish")
		before := tm.step.edges
		tm.Advance()
		if tm.step.edges == before {
			idle++
		}
		if next := tm.NextStep(); tm.Busy() && next.After(tm.clock.now) {
			tm.clock.now = next
		}
	}
	return idle
}

func TestConstantRotation(t *testing.T) {
	tm := newTestMotor(t, nil)
	assert.Equal(t, 1.8, tm.StepAngle())
	start := tm.clock.now
	require.NoError(t, tm.StartRotation(18, 90, nil, Forward))
	assert.True(t, tm.Busy())
	assert.Equal(t, 10, tm.Pending())
	assert.Equal(t, 1, tm.dir.v)
	assert.Equal(t, 0, tm.run(t, 100))
	assert.Equal(t, 10, tm.step.edges)
	assert.Equal(t, 0, tm.step.v, "step line left high")
	assert.Equal(t, int64(10), tm.Position())
	// 10 pulses at 20ms intervals, the last one starting at 180ms.
	assert.Equal(t, 180*time.Millisecond+motion.PulseWidth, tm.clock.now.Sub(start))
}

func TestBackwardRotation(t *testing.T) {
	tm := newTestMotor(t, nil)
	require.NoError(t, tm.StartRotation(9, 90, nil, Backward))
	assert.Equal(t, 0, tm.dir.v)
	tm.run(t, 100)
	assert.Equal(t, int64(-5), tm.Position())
}

func TestAdvanceWaitsForDeadline(t *testing.T) {
	tm := newTestMotor(t, nil)
	tm.Advance()
	assert.Equal(t, 0, tm.step.edges, "idle motor pulsed")
	require.NoError(t, tm.StartRotation(18, 90, nil, Forward))
	tm.Advance()
	assert.Equal(t, 1, tm.step.edges)
	// Not yet due.
	tm.clock.now = tm.clock.now.Add(time.Millisecond)
	tm.Advance()
	assert.Equal(t, 1, tm.step.edges)
	// A late call fires once, then waits a full period again.
	tm.clock.now = tm.clock.now.Add(time.Second)
	tm.Advance()
	tm.Advance()
	assert.Equal(t, 2, tm.step.edges)
}

func TestBusyRejection(t *testing.T) {
	tm := newTestMotor(t, nil)
	require.NoError(t, tm.StartRotation(18, 90, nil, Forward))
	tm.Advance()
	pending, next := tm.Pending(), tm.NextStep()
	require.NoError(t, tm.StartRotation(90, 45, nil, Backward))
	assert.True(t, tm.Busy())
	assert.Equal(t, pending, tm.Pending())
	assert.Equal(t, next, tm.NextStep())
	assert.Equal(t, 1, tm.dir.v)
	require.NotNil(t, tm.hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, tm.hook.LastEntry().Level)
	assert.Contains(t, tm.hook.LastEntry().Message, "busy")

	// Blocking rotations are rejected the same way.
	require.NoError(t, tm.Rotate(90, 45, nil, Backward))
	assert.Equal(t, pending, tm.Pending())
}

func TestRotationConfigErrors(t *testing.T) {
	tm := newTestMotor(t, nil)
	err := tm.StartRotation(-10, 90, nil, Forward)
	var ce *motion.ConfigError
	assert.ErrorAs(t, err, &ce)
	assert.False(t, tm.Busy())
	err = tm.StartRotation(10, 0, nil, Forward)
	assert.ErrorAs(t, err, &ce)
	assert.False(t, tm.Busy())
	// Less than one step is not a motion.
	require.NoError(t, tm.StartRotation(1, 90, nil, Forward))
	assert.False(t, tm.Busy())
}

func TestProfileRotation(t *testing.T) {
	tm := newTestMotor(t, nil, WithMicrostep(16))
	p, err := motion.NewProfile(motion.Trapezoidal, motion.Params{VMax: 360, AMax: 720, Distance: 720})
	require.NoError(t, err)
	start := tm.clock.now
	require.NoError(t, tm.StartRotation(0, 0, p, Forward))
	assert.Equal(t, 6400, tm.Pending())
	tm.run(t, 100000)
	assert.Equal(t, 6400, tm.step.edges)
	assert.Equal(t, int64(6400), tm.Position())
	// The last pulse fires at the start of the last step.
	last := tm.clock.now.Sub(start) - motion.PulseWidth
	assert.InDelta(t, p.TimeAt(6399*tm.StepAngle()), last.Seconds(), 1e-6)
}

func TestStop(t *testing.T) {
	tm := newTestMotor(t, nil)
	require.NoError(t, tm.StartRotation(360, 90, nil, Forward))
	tm.Advance()
	tm.Stop()
	assert.False(t, tm.Busy())
	assert.Equal(t, 0, tm.Pending())
	tm.clock.now = tm.clock.now.Add(time.Second)
	tm.Advance()
	assert.Equal(t, 1, tm.step.edges)
}

func TestStepLineFailure(t *testing.T) {
	tm := newTestMotor(t, nil)
	require.NoError(t, tm.StartRotation(18, 90, nil, Forward))
	tm.step.fail = errors.New("line gone")
	tm.Advance()
	assert.False(t, tm.Busy())
	assert.Equal(t, 0, tm.step.v)
	assert.Equal(t, int64(0), tm.Position())
	assert.Equal(t, logrus.ErrorLevel, tm.hook.LastEntry().Level)
}

func TestDynamicMotion(t *testing.T) {
	tm := newTestMotor(t, nil, WithMicrostep(16))
	p, err := motion.NewProfile(motion.SCurve, motion.Params{VMax: 360, AMax: 720, Distance: 720})
	require.NoError(t, err)
	g, err := motion.NewGenerator(p, tm.StepAngle())
	require.NoError(t, err)
	require.NoError(t, tm.StartDynamic(g, Forward))
	assert.Equal(t, -1, tm.Pending())
	for tm.step.edges < 3000 {
		tm.Advance()
		tm.clock.now = tm.NextStep()
	}
	assert.Equal(t, motion.Cruising, g.State())
	tm.Decelerate()
	assert.Equal(t, motion.Decelerating, g.State())
	tm.run(t, 100000)
	assert.Equal(t, motion.Done, g.State())
	assert.Greater(t, tm.Position(), int64(3000))
	assert.Equal(t, int64(tm.step.edges), tm.Position())
}

func TestDecelerateIgnoredForQueuedMotion(t *testing.T) {
	tm := newTestMotor(t, nil)
	require.NoError(t, tm.StartRotation(18, 90, nil, Forward))
	tm.Decelerate()
	assert.Equal(t, 10, tm.Pending())
	tm.Stop()
	var ce *motion.ConfigError
	assert.ErrorAs(t, tm.StartDynamic(nil, Forward), &ce)
}

func TestRotate(t *testing.T) {
	tm := newTestMotor(t, nil)
	start := tm.clock.now
	require.NoError(t, tm.Rotate(9, 90, nil, Backward))
	assert.False(t, tm.Busy())
	assert.Equal(t, 5, tm.step.edges)
	assert.Equal(t, int64(-5), tm.Position())
	assert.Equal(t, 100*time.Millisecond, tm.clock.now.Sub(start))
}

func TestRotateNoSteps(t *testing.T) {
	tm := newTestMotor(t, nil)
	tm.dir.v = 1
	require.NoError(t, tm.Rotate(1, 90, nil, Backward))
	assert.Equal(t, 1, tm.dir.v)
	assert.Equal(t, 0, tm.step.edges)
	require.NoError(t, tm.Rotate(3.6, 90, nil, Forward))
	assert.Equal(t, int64(2), tm.Position())
}

func TestNewMotorErrors(t *testing.T) {
	_, err := NewMotor(nil, &line{}, nil)
	assert.Error(t, err)
	_, err = NewMotor(&line{}, &line{}, nil, WithMicrostep(3))
	assert.Error(t, err)
	_, err = NewMotor(&line{}, &line{}, nil, WithStepsPerRev(0))
	assert.Error(t, err)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("backward")
	require.NoError(t, err)
	assert.Equal(t, Backward, d)
	_, err = ParseDirection("up")
	assert.Error(t, err)
}
