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

// Online step delay generation

package motion

import (
	"math"
	"time"
)

// State is the phase of a Generator.
type State int

const (
	Accelerating State = iota
	Cruising
	Decelerating
	Done
)

func (s State) String() string {
	switch s {
	case Accelerating:
		return "accelerating"
	case Cruising:
		return "cruising"
	case Decelerating:
		return "decelerating"
	case Done:
		return "done"
	}
	return "unknown"
}

// DefaultMinVelocityRatio is the default minimum velocity of a
// Generator as a fraction of the profile's top velocity.
const DefaultMinVelocityRatio = 0.01

// Generator computes step delays one at a time by following the ramp up
// of a profile, cruising at the velocity reached, and ramping down to rest
// once TriggerDecel is called. It is not safe for concurrent use.
type Generator struct {
	profile *Profile
	step    float64               // Step size
	minV    float64               // Floor applied to the velocity
	first   float64               // Ramp time to cover the first step
	state   State                 // Current phase
	t       float64               // Elapsed virtual time
	s       float64               // Distance covered
	index   int                   // Steps taken
	cruiseV float64               // Velocity held while cruising
	decelV  float64               // Velocity when deceleration began
	down    func(float64) float64 // Deceleration velocity law
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithMinVelocity sets the lowest velocity used to time a step. The
// velocity at the very start of a ramp is zero, so it must be positive.
func WithMinVelocity(v float64) GeneratorOption {
	return func(g *Generator) {
		g.minV = v
	}
}

// NewGenerator creates a Generator following profile with steps of size step.
func NewGenerator(profile *Profile, step float64, opts ...GeneratorOption) (*Generator, error) {
	if profile == nil {
		return nil, Configf("no motion profile")
	}
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, Configf("invalid step size %g", step)
	}
	g := &Generator{
		profile: profile,
		step:    step,
		minV:    profile.VMax() * DefaultMinVelocityRatio,
		first:   math.Min(profile.TimeAt(step), profile.AccelTime()),
	}
	for _, o := range opts {
		o(g)
	}
	if !(g.minV > 0) {
		return nil, Configf("minimum velocity must be positive, not %g", g.minV)
	}
	return g, nil
}

// State returns the current phase.
func (g *Generator) State() State { return g.state }

// Time returns the elapsed virtual time in seconds.
func (g *Generator) Time() float64 { return g.t }

// Distance returns the distance covered by the delays returned so far.
func (g *Generator) Distance() float64 { return g.s }

// Steps returns the number of delays returned so far.
func (g *Generator) Steps() int { return g.index }

// CruiseVelocity returns the velocity held while cruising.
func (g *Generator) CruiseVelocity() float64 { return g.cruiseV }

// DecelVelocity returns the velocity at which deceleration began.
func (g *Generator) DecelVelocity() float64 { return g.decelV }

// TriggerDecel starts the ramp down to rest from the current velocity.
// It has no effect once decelerating or done.
func (g *Generator) TriggerDecel() {
	var v float64
	switch g.state {
	case Accelerating:
		v = math.Max(g.profile.RampUp(math.Max(g.t, g.first)), g.minV)
	case Cruising:
		v = g.cruiseV
	default:
		return
	}
	g.decelV = v
	g.down = g.profile.RampDown(g.t, v)
	g.state = Decelerating
}

// Next returns the delay until the next step. The ramp up is never
// evaluated earlier than the time it takes to cover one step. The second
// result is false, and no delay is produced, once the motion has come to rest.
func (g *Generator) Next() (time.Duration, bool) {
	var v float64
	switch g.state {
	case Done:
		return 0, false
	case Accelerating:
		v = g.profile.RampUp(math.Max(g.t, g.first))
		if g.t >= g.profile.AccelTime() {
			g.state = Cruising
			g.cruiseV = v
		}
	case Cruising:
		v = g.cruiseV
	case Decelerating:
		v = g.down(g.t)
		if v <= 0 {
			g.state = Done
			return 0, false
		}
	}
	if v < g.minV {
		v = g.minV
	}
	delay := math.Abs(g.step / v)
	g.t += delay
	g.s += g.step
	g.index++
	return seconds(delay), true
}
