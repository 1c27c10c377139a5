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

// Package stepper drives stepper motors through step and direction lines,
// with non-blocking scheduling of the step pulses.
package stepper

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aamcrae/stepper/io"
	"github.com/aamcrae/stepper/motion"
)

// ErrBusy is returned when the microstep mode is changed during a motion.
var ErrBusy = errors.New("motor is busy")

// Direction of rotation.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// ParseDirection parses "forward" or "backward".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "forward", "fwd", "f":
		return Forward, nil
	case "backward", "back", "b":
		return Backward, nil
	}
	return Forward, motion.Configf("direction must be forward or backward, not %q", s)
}

// Clock supplies the time to a Motor.
type Clock interface {
	Now() time.Time
	Sleep(time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// delaySource supplies the delay following each step pulse.
type delaySource interface {
	next() (time.Duration, bool)
	done() bool
	pending() int
}

// queue is a precomputed delay sequence.
type queue []time.Duration

func (q *queue) next() (time.Duration, bool) {
	if len(*q) == 0 {
		return 0, false
	}
	d := (*q)[0]
	*q = (*q)[1:]
	return d, true
}

func (q *queue) done() bool   { return len(*q) == 0 }
func (q *queue) pending() int { return len(*q) }

// dynamic draws delays from a Generator.
type dynamic struct {
	gen   *motion.Generator
	pulse time.Duration
}

func (g *dynamic) next() (time.Duration, bool) {
	d, ok := g.gen.Next()
	if !ok {
		return 0, false
	}
	d -= g.pulse
	if d < 0 {
		d = 0
	}
	return d, true
}

func (g *dynamic) done() bool   { return g.gen.State() == motion.Done }
func (g *dynamic) pending() int { return -1 }

// Motor is a stepper motor driven through step and direction lines.
// A motion is started with StartRotation or StartDynamic, and the
// step pulses are emitted by calling Advance regularly. Only one
// motion may be in progress; requests made while busy are ignored.
type Motor struct {
	mu          sync.Mutex
	name        string
	step        io.Setter          // Step line
	dir         io.Setter          // Direction line, high is forward
	drv         Driver             // Enable and microstep control, may be nil
	log         logrus.FieldLogger // Logger
	clock       Clock              // Time source
	stepsPerRev int                // Full steps per revolution
	microstep   int                // Current microstep factor
	pulse       time.Duration      // Step pulse width
	busy        bool               // Motion in progress
	blocking    bool               // Motion is a blocking Rotate
	abort       bool               // Stop requested during Rotate
	source      delaySource        // Delays of the current motion
	next        time.Time          // Time of the next pulse
	inc         int64              // Position change per pulse
	position    int64              // Signed microsteps from the start, accessed atomically
}

// Option configures a Motor.
type Option func(*Motor)

// WithName names the motor in log entries.
func WithName(name string) Option {
	return func(m *Motor) {
		m.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Motor) {
		m.log = l
	}
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(m *Motor) {
		m.clock = c
	}
}

// WithStepsPerRev sets the number of full steps per revolution (default 200).
func WithStepsPerRev(n int) Option {
	return func(m *Motor) {
		m.stepsPerRev = n
	}
}

// WithPulseWidth sets the width of the step pulse (default 10µs).
func WithPulseWidth(d time.Duration) Option {
	return func(m *Motor) {
		m.pulse = d
	}
}

// WithMicrostep records the microstep factor the driver is already set to,
// e.g by fixed wiring of its mode select pins.
func WithMicrostep(f int) Option {
	return func(m *Motor) {
		m.microstep = f
	}
}

// NewMotor creates a Motor using the step and direction lines. drv may be
// nil if the driver has no enable or microstep control.
func NewMotor(step, dir io.Setter, drv Driver, opts ...Option) (*Motor, error) {
	if step == nil || dir == nil {
		return nil, motion.Configf("step and direction lines are required")
	}
	m := &Motor{
		name:        "motor",
		step:        step,
		dir:         dir,
		drv:         drv,
		clock:       systemClock{},
		stepsPerRev: 200,
		microstep:   1,
		pulse:       motion.PulseWidth,
		inc:         1,
	}
	for _, o := range opts {
		o(m)
	}
	if m.stepsPerRev <= 0 {
		return nil, motion.Configf("invalid steps per revolution %d", m.stepsPerRev)
	}
	if m.microstep < 1 || m.microstep > 256 || m.microstep&(m.microstep-1) != 0 {
		return nil, motion.Configf("invalid microstep factor %d", m.microstep)
	}
	if m.pulse <= 0 {
		return nil, motion.Configf("invalid pulse width %s", m.pulse)
	}
	if m.log == nil {
		m.log = logrus.StandardLogger()
	}
	m.log = m.log.WithField("motor", m.name)
	return m, nil
}

// Name returns the motor name.
func (m *Motor) Name() string {
	return m.name
}

// StepAngle returns the rotation in degrees of one (micro)step.
func (m *Motor) StepAngle() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stepAngle()
}

func (m *Motor) stepAngle() float64 {
	return 360 / float64(m.stepsPerRev*m.microstep)
}

// Microstep returns the current microstep factor.
func (m *Motor) Microstep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.microstep
}

// Busy returns true while a motion is in progress.
func (m *Motor) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// Pending returns the number of delays remaining in the current motion,
// or -1 for a dynamic motion.
func (m *Motor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.source == nil {
		return 0
	}
	return m.source.pending()
}

// NextStep returns the time the next pulse is due.
func (m *Motor) NextStep() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next
}

// Position returns the signed number of microsteps moved since the
// motor was created.
func (m *Motor) Position() int64 {
	return atomic.LoadInt64(&m.position)
}

// Enable enables the driver outputs.
func (m *Motor) Enable() error {
	if m.drv == nil {
		return nil
	}
	if err := m.drv.Enable(); err != nil {
		return errors.Wrapf(err, "%s: enable", m.name)
	}
	m.log.Info("driver enabled")
	return nil
}

// Disable disables the driver outputs.
func (m *Motor) Disable() error {
	if m.drv == nil {
		return nil
	}
	if err := m.drv.Disable(); err != nil {
		return errors.Wrapf(err, "%s: disable", m.name)
	}
	m.log.Info("driver disabled")
	return nil
}

// ConfigureMicrostepping selects the microstep factor. It fails with
// ErrBusy during a motion, and with a ConfigError if the driver cannot
// select factor.
func (m *Motor) ConfigureMicrostepping(factor int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return ErrBusy
	}
	if m.drv == nil {
		return motion.Configf("%s: no driver to select microstep mode", m.name)
	}
	supported := false
	for _, f := range m.drv.Microsteps() {
		if f == factor {
			supported = true
		}
	}
	if !supported {
		return motion.Configf("%s: unsupported microstep mode %s", m.name, MicrostepName(factor))
	}
	err := m.drv.SetMicrostep(factor)
	if errors.Is(err, ErrNoMicrostepLines) {
		m.log.Warnf("mode select lines not connected, microstepping left at %s", MicrostepName(m.microstep))
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "%s: microstep", m.name)
	}
	m.microstep = factor
	m.log.Infof("microstepping set to %s", MicrostepName(factor))
	return nil
}

// delays computes the delay sequence of a rotation. With a profile
// the profile's distance is travelled and angle is ignored.
func (m *Motor) delays(angle, speed float64, p *motion.Profile) ([]time.Duration, error) {
	if p != nil {
		return motion.StepDelays(p, m.stepAngle(), m.pulse)
	}
	return motion.ConstantDelays(angle, speed, m.stepAngle(), m.pulse)
}

// setDirection sets the direction line. It is called with the lock held.
func (m *Motor) setDirection(dir Direction) error {
	v := 1
	m.inc = 1
	if dir == Backward {
		v = 0
		m.inc = -1
	}
	return errors.Wrapf(m.dir.Set(v), "%s: direction", m.name)
}

// StartRotation starts a rotation and returns immediately; Advance must
// then be called regularly to emit the pulses. With a profile the motion
// follows the profile, otherwise angle degrees are turned at a constant
// speed in degrees per second. A request made while busy is logged and ignored.
func (m *Motor) StartRotation(angle, speed float64, p *motion.Profile, dir Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		m.log.Warn("motor is busy, rotation ignored")
		return nil
	}
	d, err := m.delays(angle, speed, p)
	if err != nil {
		return err
	}
	if len(d) == 0 {
		m.log.Debug("rotation has no steps")
		return nil
	}
	if err := m.setDirection(dir); err != nil {
		return err
	}
	q := queue(d)
	m.start(&q)
	m.log.Debugf("rotating %s: %d steps", dir, len(d))
	return nil
}

// StartDynamic starts a motion whose delays come from gen, which
// runs until Decelerate is called and the motor comes to rest.
// A request made while busy is logged and ignored.
func (m *Motor) StartDynamic(gen *motion.Generator, dir Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		m.log.Warn("motor is busy, motion ignored")
		return nil
	}
	if gen == nil {
		return motion.Configf("%s: no delay generator", m.name)
	}
	if err := m.setDirection(dir); err != nil {
		return err
	}
	m.start(&dynamic{gen: gen, pulse: m.pulse})
	m.log.Debugf("dynamic motion %s", dir)
	return nil
}

func (m *Motor) start(src delaySource) {
	m.source = src
	m.next = m.clock.Now()
	m.busy = true
}

// Decelerate brings a dynamic motion to rest. It has no effect on
// other motions.
func (m *Motor) Decelerate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.source.(*dynamic); ok && m.busy {
		g.gen.TriggerDecel()
		m.log.Debugf("decelerating from %g", g.gen.DecelVelocity())
	}
}

// Stop abandons the current motion immediately, without deceleration.
func (m *Motor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		m.log.Info("motion stopped")
	}
	if m.blocking {
		// Rotate clears busy when it returns.
		m.abort = true
		return
	}
	m.finish()
}

func (m *Motor) finish() {
	m.busy = false
	m.source = nil
}

// Advance emits the next step pulse if it is due. It never waits for
// a pulse to become due, and does nothing when the motor is idle.
func (m *Motor) Advance() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.busy || m.blocking {
		return
	}
	now := m.clock.Now()
	if now.Before(m.next) {
		return
	}
	d, ok := m.source.next()
	if !ok {
		m.finish()
		return
	}
	if err := m.pulseStep(); err != nil {
		m.log.Errorf("step: %v", err)
		m.finish()
		return
	}
	m.next = now.Add(m.pulse + d)
	if m.source.done() {
		m.finish()
	}
}

// pulseStep emits one pulse on the step line. On failure the line is
// driven low.
func (m *Motor) pulseStep() error {
	if err := m.step.Set(1); err != nil {
		m.step.Set(0)
		return err
	}
	m.clock.Sleep(m.pulse)
	if err := m.step.Set(0); err != nil {
		return err
	}
	atomic.AddInt64(&m.position, m.inc)
	return nil
}

// Rotate performs a rotation and returns when it is complete, or has
// been abandoned by Stop. A request made while busy is logged and ignored.
func (m *Motor) Rotate(angle, speed float64, p *motion.Profile, dir Direction) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		m.log.Warn("motor is busy, rotation ignored")
		return nil
	}
	d, err := m.delays(angle, speed, p)
	if err == nil && len(d) != 0 {
		err = m.setDirection(dir)
	}
	if err != nil || len(d) == 0 {
		m.mu.Unlock()
		return err
	}
	m.busy = true
	m.blocking = true
	m.mu.Unlock()

	if p != nil {
		m.log.Infof("rotating %s: %d steps over %.1f° (%s profile)", dir, len(d), p.Distance(), p.Shape())
	} else {
		m.log.Infof("rotating %s: %d steps over %.1f° at %.1f°/s", dir, len(d), angle, speed)
	}
	defer func() {
		m.mu.Lock()
		m.busy = false
		m.blocking = false
		m.abort = false
		m.mu.Unlock()
	}()
	for i, delay := range d {
		if m.aborted() {
			m.log.Infof("rotation stopped after %d steps", i)
			return nil
		}
		if err := m.pulseStep(); err != nil {
			return errors.Wrapf(err, "%s: step %d", m.name, i)
		}
		m.clock.Sleep(delay)
	}
	return nil
}

func (m *Motor) aborted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.abort
}

func (m *Motor) String() string {
	return fmt.Sprintf("%s (%d steps/rev, %s)", m.name, m.stepsPerRev, MicrostepName(m.Microstep()))
}
