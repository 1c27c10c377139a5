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

// Kinematic equations and numerical integration of acceleration laws.

package motion

import (
	"math"
)

// DefaultIntegrationSteps is the number of RK4 steps used when
// Integrate is asked for a non-positive step count.
const DefaultIntegrationSteps = 1000

// AccelFunc returns the acceleration at time t.
type AccelFunc func(t float64) float64

// ConstantAccel holds the known state of a body at time T0 and solves the
// uniform acceleration equations from there.
type ConstantAccel struct {
	T0 float64 // Reference time
	V0 float64 // Velocity at T0
	S0 float64 // Position at T0
}

// Velocity returns the velocity at time t under constant acceleration a.
func (c ConstantAccel) Velocity(a, t float64) float64 {
	return c.V0 + a*(t-c.T0)
}

// Position returns the position at time t under constant acceleration a.
func (c ConstantAccel) Position(a, t float64) float64 {
	dt := t - c.T0
	return c.S0 + c.V0*dt + 0.5*a*dt*dt
}

// TimeAt returns the earliest time at or after T0 at which position s is
// reached under constant acceleration a. NaN is returned if s is never reached.
func (c ConstantAccel) TimeAt(a, s float64) float64 {
	ds := s - c.S0
	if a == 0 {
		if c.V0 == 0 {
			if ds == 0 {
				return c.T0
			}
			return math.NaN()
		}
		dt := ds / c.V0
		if dt < 0 {
			return math.NaN()
		}
		return c.T0 + dt
	}
	disc := c.V0*c.V0 + 2*a*ds
	if disc < 0 {
		// Rounding at the turning point.
		if disc > -1e-12*c.V0*c.V0 {
			disc = 0
		} else {
			return math.NaN()
		}
	}
	// Smaller root of 0.5*a*dt^2 + v0*dt - ds = 0, in the
	// rationalised form that avoids cancellation.
	den := c.V0 + math.Sqrt(disc)
	if den == 0 {
		if ds == 0 {
			return c.T0
		}
		return math.NaN()
	}
	dt := 2 * ds / den
	if dt < 0 {
		return math.NaN()
	}
	return c.T0 + dt
}

// Integrate solves v' = a(t), s' = v from (t0, v0, s0) up to t with a
// fixed step fourth order Runge-Kutta scheme, and returns the velocity
// and position at t. It is used for acceleration laws that have no closed form,
// and to cross check those that do.
func Integrate(a AccelFunc, t0, v0, s0, t float64, steps int) (v, s float64) {
	if steps <= 0 {
		steps = DefaultIntegrationSteps
	}
	v, s = v0, s0
	if t == t0 {
		return v, s
	}
	h := (t - t0) / float64(steps)
	tc := t0
	for i := 0; i < steps; i++ {
		a1 := a(tc)
		a2 := a(tc + h/2)
		a4 := a(tc + h)
		// With acceleration independent of the state the RK4 stages
		// reduce to Simpson's rule for v, and to the matching
		// expansion for s.
		k1s := v
		k2s := v + h/2*a1
		k3s := v + h/2*a2
		k4s := v + h*a2
		s += h / 6 * (k1s + 2*k2s + 2*k3s + k4s)
		v += h / 6 * (a1 + 4*a2 + a4)
		tc = t0 + float64(i+1)*h
	}
	return v, s
}

// Sample is one point of a sampled motion.
type Sample struct {
	T float64 // Time
	A float64 // Acceleration
	V float64 // Velocity
	S float64 // Position
}

// IntegrateSamples integrates a from (t0, v0, s0) to t and returns n+1
// evenly spaced samples, including both end points.
func IntegrateSamples(a AccelFunc, t0, v0, s0, t float64, n int) []Sample {
	if n <= 0 {
		n = 1
	}
	out := make([]Sample, 0, n+1)
	h := (t - t0) / float64(n)
	v, s := v0, s0
	tc := t0
	out = append(out, Sample{T: tc, A: a(tc), V: v, S: s})
	for i := 1; i <= n; i++ {
		tn := t0 + float64(i)*h
		v, s = Integrate(a, tc, v, s, tn, 16)
		tc = tn
		out = append(out, Sample{T: tc, A: a(tc), V: v, S: s})
	}
	return out
}
