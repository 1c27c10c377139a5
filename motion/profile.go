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

// Package motion generates symmetric single axis motion profiles and
// converts them into step pulse timing.
//
// Units are not fixed: distances are usually degrees of motor rotation,
// so velocities are degrees/second and accelerations degrees/second².
// Times are always seconds.
package motion

import (
	"math"
	"strings"
)

// Shape selects the acceleration waveform of a profile.
type Shape int

const (
	// Trapezoidal profiles accelerate at a constant rate.
	Trapezoidal Shape = iota
	// SCurve profiles ramp the acceleration linearly up and down again.
	SCurve
)

func (s Shape) String() string {
	switch s {
	case Trapezoidal:
		return "trapezoid"
	case SCurve:
		return "scurve"
	}
	return "unknown"
}

// ParseShape converts a shape name into a Shape.
func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(name) {
	case "trapezoid", "trapezoidal":
		return Trapezoidal, nil
	case "scurve", "s-curve":
		return SCurve, nil
	}
	return 0, Configf("unknown profile shape %q", name)
}

// accelTime returns the acceleration duration needed to reach vm with peak acceleration am.
func (s Shape) accelTime(vm, am float64) float64 {
	if s == SCurve {
		return 2 * vm / am
	}
	return vm / am
}

// accel returns the peak acceleration that reaches vm in dtAcc.
func (s Shape) accel(vm, dtAcc float64) float64 {
	if s == SCurve {
		return 2 * vm / dtAcc
	}
	return vm / dtAcc
}

// Params holds the known quantities of a motion. Zero means unknown.
// The supported combinations are:
//
//	VMax, AMax (or AccelTime), Distance  - solves the travel time
//	VMax, AMax (or AccelTime), Time      - solves the travel distance
//	AccelTime, Time, Distance            - solves the required acceleration
//	Time, Distance                       - solves the minimum acceleration (no cruise)
type Params struct {
	VMax      float64 // Top velocity
	AMax      float64 // Peak acceleration
	Distance  float64 // Total travel distance
	Time      float64 // Total travel time
	AccelTime float64 // Acceleration duration
}

// Bits identifying which parameters are known.
const (
	knownV = 1 << iota
	knownA
	knownS
	knownT
	knownTA
)

// Profile is a resolved, immutable motion profile.
// Deceleration mirrors acceleration, so the decel time and distance
// are always equal to the accel time and distance.
type Profile struct {
	shape Shape
	vm    float64 // Top velocity
	am    float64 // Peak acceleration
	dsTot float64 // Total distance
	dtTot float64 // Total time
	dtAcc float64 // Acceleration (and deceleration) time
	dsAcc float64 // Acceleration (and deceleration) distance
	dtCov float64 // Constant velocity time
	dsCov float64 // Constant velocity distance
	jerk  float64 // Jerk of S-curve ramps
}

// NewProfile resolves a profile of the given shape from the known parameters.
// A ConfigError is returned if the known parameters do not match one of the
// supported combinations, a DistanceError if the distance is too short to
// reach the top velocity, and a TimingError if the time is too short.
func NewProfile(shape Shape, p Params) (*Profile, error) {
	if shape != Trapezoidal && shape != SCurve {
		return nil, Configf("unknown profile shape %d", int(shape))
	}
	known := 0
	for _, f := range []struct {
		v   float64
		bit int
		n   string
	}{
		{p.VMax, knownV, "top velocity"},
		{p.AMax, knownA, "acceleration"},
		{p.Distance, knownS, "distance"},
		{p.Time, knownT, "time"},
		{p.AccelTime, knownTA, "acceleration time"},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return nil, Configf("invalid %s %g", f.n, f.v)
		}
		if f.v > 0 {
			known |= f.bit
		}
	}
	pr := &Profile{shape: shape, vm: p.VMax, am: p.AMax, dsTot: p.Distance, dtTot: p.Time, dtAcc: p.AccelTime}
	// Top velocity plus acceleration time stands in for the acceleration.
	if known&(knownV|knownA|knownTA) == knownV|knownTA {
		pr.am = shape.accel(pr.vm, pr.dtAcc)
		known = known&^knownTA | knownA
	}
	switch known {
	case knownV | knownA | knownS:
		if err := pr.solveTime(); err != nil {
			return nil, err
		}
	case knownV | knownA | knownT:
		if err := pr.solveDistance(); err != nil {
			return nil, err
		}
	case knownTA | knownT | knownS:
		if err := pr.solveAccel(); err != nil {
			return nil, err
		}
	case knownT | knownS:
		pr.solveMinAccel()
	default:
		return nil, Configf("cannot resolve profile: parameters are missing or conflicting")
	}
	if shape == SCurve {
		h := pr.dtAcc / 2
		pr.jerk = pr.am / h
	}
	return pr, nil
}

// solveTime resolves the travel time from top velocity, acceleration and distance.
func (p *Profile) solveTime() error {
	if p.dtAcc == 0 {
		p.dtAcc = p.shape.accelTime(p.vm, p.am)
	}
	p.dsAcc = p.vm * p.dtAcc / 2
	p.dsCov = p.dsTot - 2*p.dsAcc
	if p.dsCov < 0 {
		return &DistanceError{Distance: p.dsTot, Required: 2 * p.dsAcc}
	}
	p.dtCov = p.dsCov / p.vm
	p.dtTot = p.dtAcc + p.dtCov + p.dtAcc
	return nil
}

// solveDistance resolves the travel distance from top velocity, acceleration and time.
func (p *Profile) solveDistance() error {
	if p.dtAcc == 0 {
		p.dtAcc = p.shape.accelTime(p.vm, p.am)
	}
	p.dsAcc = p.vm * p.dtAcc / 2
	p.dtCov = p.dtTot - 2*p.dtAcc
	if p.dtCov < 0 {
		return &TimingError{Time: p.dtTot, Required: 2 * p.dtAcc}
	}
	p.dsCov = p.vm * p.dtCov
	p.dsTot = p.dsAcc + p.dsCov + p.dsAcc
	return nil
}

// solveAccel resolves the acceleration needed to cover the distance in the
// time with the given acceleration time.
func (p *Profile) solveAccel() error {
	p.dtCov = p.dtTot - 2*p.dtAcc
	if p.dtCov < 0 {
		return &TimingError{Time: p.dtTot, Required: 2 * p.dtAcc}
	}
	p.vm = p.dsTot / (p.dtCov + p.dtAcc)
	p.dsCov = p.vm * p.dtCov
	p.dsAcc = (p.dsTot - p.dsCov) / 2
	p.am = p.shape.accel(p.vm, p.dtAcc)
	return nil
}

// solveMinAccel resolves the lowest acceleration covering the distance in
// the time, which leaves no constant velocity phase.
func (p *Profile) solveMinAccel() {
	p.dtAcc = p.dtTot / 2
	p.vm = 2 * p.dsTot / p.dtTot
	p.am = p.shape.accel(p.vm, p.dtAcc)
	p.dsAcc = p.dsTot / 2
	p.dtCov = 0
	p.dsCov = 0
}

// Shape returns the shape of the profile.
func (p *Profile) Shape() Shape { return p.shape }

// VMax returns the top velocity.
func (p *Profile) VMax() float64 { return p.vm }

// AMax returns the peak acceleration.
func (p *Profile) AMax() float64 { return p.am }

// Distance returns the total travel distance.
func (p *Profile) Distance() float64 { return p.dsTot }

// Duration returns the total travel time.
func (p *Profile) Duration() float64 { return p.dtTot }

// AccelTime returns the acceleration time.
func (p *Profile) AccelTime() float64 { return p.dtAcc }

// AccelDistance returns the distance covered while accelerating.
func (p *Profile) AccelDistance() float64 { return p.dsAcc }

// DecelTime returns the deceleration time.
func (p *Profile) DecelTime() float64 { return p.dtAcc }

// DecelDistance returns the distance covered while decelerating.
func (p *Profile) DecelDistance() float64 { return p.dsAcc }

// CruiseTime returns the time spent at top velocity.
func (p *Profile) CruiseTime() float64 { return p.dtCov }

// CruiseDistance returns the distance covered at top velocity.
func (p *Profile) CruiseDistance() float64 { return p.dsCov }

// ramp returns the acceleration, velocity and position at time tau
// into the acceleration phase, with 0 <= tau <= dtAcc.
func (p *Profile) ramp(tau float64) (a, v, s float64) {
	if p.shape == Trapezoidal {
		c := ConstantAccel{}
		return p.am, c.Velocity(p.am, tau), c.Position(p.am, tau)
	}
	h := p.dtAcc / 2
	j := p.jerk
	if tau <= h {
		return j * tau, j * tau * tau / 2, j * tau * tau * tau / 6
	}
	u := tau - h
	vh := j * h * h / 2
	sh := j * h * h * h / 6
	return p.am - j*u, vh + p.am*u - j*u*u/2, sh + vh*u + p.am*u*u/2 - j*u*u*u/6
}

// rampTime inverts the position law of the acceleration phase.
func (p *Profile) rampTime(s float64) float64 {
	if s <= 0 {
		return 0
	}
	if s >= p.dsAcc {
		return p.dtAcc
	}
	if p.shape == Trapezoidal {
		return ConstantAccel{}.TimeAt(p.am, s)
	}
	h := p.dtAcc / 2
	if sh := p.jerk * h * h * h / 6; s <= sh {
		return math.Cbrt(6 * s / p.jerk)
	}
	// Position is strictly increasing over the second half of the ramp.
	lo, hi := h, p.dtAcc
	for i := 0; i < 100 && hi-lo > 1e-15*p.dtAcc; i++ {
		mid := (lo + hi) / 2
		if _, _, sm := p.ramp(mid); sm < s {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// eval returns acceleration, velocity and position at time t.
func (p *Profile) eval(t float64) (a, v, s float64) {
	switch {
	case t <= 0:
		return 0, 0, 0
	case t >= p.dtTot:
		return 0, 0, p.dsTot
	case t <= p.dtAcc:
		return p.ramp(t)
	case t <= p.dtAcc+p.dtCov:
		return 0, p.vm, p.dsAcc + p.vm*(t-p.dtAcc)
	}
	// Deceleration is the time reverse of acceleration.
	a, v, s = p.ramp(p.dtTot - t)
	return -a, v, p.dsTot - s
}

// Acceleration returns the acceleration at time t.
func (p *Profile) Acceleration(t float64) float64 {
	a, _, _ := p.eval(t)
	return a
}

// Velocity returns the velocity at time t.
func (p *Profile) Velocity(t float64) float64 {
	_, v, _ := p.eval(t)
	return v
}

// Position returns the position at time t.
func (p *Profile) Position(t float64) float64 {
	_, _, s := p.eval(t)
	return s
}

// TimeAt returns the time at which position s is reached. Positions
// outside the travel distance are clamped to the start or end of the motion.
func (p *Profile) TimeAt(s float64) float64 {
	switch {
	case s <= 0:
		return 0
	case s >= p.dsTot:
		return p.dtTot
	case s <= p.dsAcc:
		return p.rampTime(s)
	case s <= p.dsAcc+p.dsCov:
		return p.dtAcc + (s-p.dsAcc)/p.vm
	}
	return p.dtTot - p.rampTime(p.dsTot-s)
}

// AccelFunc returns the acceleration law of the whole profile.
func (p *Profile) AccelFunc() AccelFunc {
	return p.Acceleration
}

// RampUp returns the velocity at time t of the acceleration phase,
// holding the top velocity once the phase is complete.
func (p *Profile) RampUp(t float64) float64 {
	if t >= p.dtAcc {
		return p.vm
	}
	if t <= 0 {
		return 0
	}
	_, v, _ := p.ramp(t)
	return v
}

// RampDown returns a velocity law that starts at v0 at time t0 and
// decelerates to rest with the profile's shape and peak deceleration.
// The returned function is zero once rest is reached.
func (p *Profile) RampDown(t0, v0 float64) func(t float64) float64 {
	if v0 <= 0 {
		return func(float64) float64 { return 0 }
	}
	if p.shape == Trapezoidal {
		c := ConstantAccel{T0: t0, V0: v0}
		return func(t float64) float64 {
			if t <= t0 {
				return v0
			}
			return math.Max(0, c.Velocity(-p.am, t))
		}
	}
	T := p.shape.accelTime(v0, p.am)
	j := 4 * v0 / (T * T)
	return func(t float64) float64 {
		tau := t - t0
		switch {
		case tau <= 0:
			return v0
		case tau <= T/2:
			return v0 - j*tau*tau/2
		case tau < T:
			return j * (T - tau) * (T - tau) / 2
		}
		return 0
	}
}

// Samples returns n+1 evenly spaced samples covering the whole motion.
func (p *Profile) Samples(n int) []Sample {
	if n <= 0 {
		n = 1
	}
	out := make([]Sample, n+1)
	for i := range out {
		t := p.dtTot * float64(i) / float64(n)
		a, v, s := p.eval(t)
		out[i] = Sample{T: t, A: a, V: v, S: s}
	}
	return out
}
