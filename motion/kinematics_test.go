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

package motion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantAccel(t *testing.T) {
	c := ConstantAccel{T0: 1, V0: 2, S0: 3}
	assert.InDelta(t, 8.0, c.Velocity(3, 3), 1e-12)
	assert.InDelta(t, 3.0+2*2+0.5*3*4, c.Position(3, 3), 1e-12)
	// TimeAt inverts Position.
	s := c.Position(3, 2.5)
	assert.InDelta(t, 2.5, c.TimeAt(3, s), 1e-12)
	// Decelerating: first crossing is returned.
	d := ConstantAccel{V0: 10}
	s = d.Position(-5, 1)
	assert.InDelta(t, 1.0, d.TimeAt(-5, s), 1e-12)
	// Never reached.
	assert.True(t, math.IsNaN(d.TimeAt(-5, 100)))
	assert.True(t, math.IsNaN(ConstantAccel{}.TimeAt(0, 1)))
	assert.Equal(t, 0.0, ConstantAccel{}.TimeAt(2, 0))
}

func TestIntegrateMatchesClosedForm(t *testing.T) {
	for _, shape := range []Shape{Trapezoidal, SCurve} {
		p, err := NewProfile(shape, Params{VMax: 360, AMax: 720, Distance: 720})
		require.NoError(t, err)
		a := p.AccelFunc()
		for _, tm := range []float64{
			p.AccelTime() / 3,
			p.AccelTime(),
			p.AccelTime() + p.CruiseTime()/2,
			p.Duration() - p.AccelTime()/4,
			p.Duration(),
		} {
			v, s := Integrate(a, 0, 0, 0, tm, 100000)
			assert.InDelta(t, p.Velocity(tm), v, 1e-4*p.VMax(), "%s velocity at %g", shape, tm)
			assert.InDelta(t, p.Position(tm), s, 1e-4*p.Distance(), "%s position at %g", shape, tm)
		}
	}
}

func TestIntegrateSamples(t *testing.T) {
	samples := IntegrateSamples(func(float64) float64 { return 2 }, 0, 0, 0, 3, 6)
	require.Len(t, samples, 7)
	last := samples[len(samples)-1]
	assert.InDelta(t, 3.0, last.T, 1e-12)
	assert.InDelta(t, 6.0, last.V, 1e-9)
	assert.InDelta(t, 9.0, last.S, 1e-9)
}
