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

// Step delay sequences

package motion

import (
	"math"
	"time"
)

// PulseWidth is the default high time of a step pulse.
const PulseWidth = 10 * time.Microsecond

// Tolerance applied to step counts so that a distance that is a whole
// number of steps does not gain an extra step through rounding.
const stepEpsilon = 1e-9

// StepCount returns the number of steps of size step needed to cover distance.
// A final partial step counts as a whole step.
func StepCount(distance, step float64) int {
	if distance <= 0 || step <= 0 {
		return 0
	}
	return int(math.Ceil(distance/step - stepEpsilon))
}

// StepDelays samples the profile at every step boundary and returns the
// delay to wait after each step pulse. Each delay is net of the pulse
// width, so that pulses of that width separated by the delays follow the
// position law of the profile. The final step boundary may lie beyond the
// travel distance; it is timed at the end of the motion.
// Delays that would be negative (pulses wider than the step period) are zero.
func StepDelays(p *Profile, step float64, pulse time.Duration) ([]time.Duration, error) {
	if p == nil {
		return nil, Configf("no motion profile")
	}
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, Configf("invalid step size %g", step)
	}
	if pulse < 0 {
		return nil, Configf("invalid pulse width %s", pulse)
	}
	n := StepCount(p.Distance(), step)
	delays := make([]time.Duration, n)
	// Work from rounded absolute times so rounding does not accumulate.
	var prev time.Duration
	for k := 1; k <= n; k++ {
		var at time.Duration
		if k == n {
			at = seconds(p.Duration())
		} else {
			at = seconds(p.TimeAt(float64(k) * step))
		}
		d := at - prev - pulse
		if d < 0 {
			d = 0
		}
		delays[k-1] = d
		prev = at
	}
	return delays, nil
}

// ConstantDelays returns the delays for a constant speed rotation
// through angle at speed, with steps of size step. Only whole steps are taken.
func ConstantDelays(angle, speed, step float64, pulse time.Duration) ([]time.Duration, error) {
	switch {
	case angle <= 0 || math.IsNaN(angle) || math.IsInf(angle, 0):
		return nil, Configf("invalid angle %g", angle)
	case speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0):
		return nil, Configf("invalid speed %g", speed)
	case step <= 0:
		return nil, Configf("invalid step size %g", step)
	case pulse < 0:
		return nil, Configf("invalid pulse width %s", pulse)
	}
	n := int(angle/step + stepEpsilon)
	d := seconds(step/speed) - pulse
	if d < 0 {
		d = 0
	}
	delays := make([]time.Duration, n)
	for i := range delays {
		delays[i] = d
	}
	return delays, nil
}

// seconds converts floating point seconds to a Duration.
func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
