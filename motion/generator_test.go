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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T, shape Shape) *Generator {
	p, err := NewProfile(shape, Params{VMax: 360, AMax: 720, Distance: 720})
	require.NoError(t, err)
	g, err := NewGenerator(p, testStep)
	require.NoError(t, err)
	return g
}

func TestGeneratorCruise(t *testing.T) {
	g := newTestGenerator(t, Trapezoidal)
	assert.Equal(t, Accelerating, g.State())
	var prev time.Duration
	for i := 0; g.State() == Accelerating; i++ {
		d, ok := g.Next()
		require.True(t, ok)
		if i > 0 {
			assert.LessOrEqual(t, d, prev, "step %d", i)
		}
		prev = d
		require.Less(t, i, 100000, "never reached cruise")
	}
	assert.Equal(t, Cruising, g.State())
	assert.Equal(t, 360.0, g.CruiseVelocity())
	// Cruising continues until deceleration is requested.
	for i := 0; i < 1000; i++ {
		d, ok := g.Next()
		require.True(t, ok)
		assert.Equal(t, seconds(testStep/360), d)
	}
	assert.Equal(t, Cruising, g.State())
}

func TestGeneratorDecelWhileAccelerating(t *testing.T) {
	for _, shape := range []Shape{Trapezoidal, SCurve} {
		g := newTestGenerator(t, shape)
		target := 0.1 * g.profile.AccelTime()
		for g.Time() < target {
			_, ok := g.Next()
			require.True(t, ok)
		}
		g.TriggerDecel()
		assert.Equal(t, Decelerating, g.State())
		assert.Greater(t, g.DecelVelocity(), 0.0)
		assert.Less(t, g.DecelVelocity(), g.profile.VMax())
		start := g.Steps()
		for i := 0; ; i++ {
			_, ok := g.Next()
			if !ok {
				break
			}
			require.Less(t, i, 100000, "%s: deceleration never finished", shape)
		}
		assert.Equal(t, Done, g.State())
		assert.Greater(t, g.Steps(), start)
		// Nothing further once done.
		for i := 0; i < 3; i++ {
			d, ok := g.Next()
			assert.False(t, ok)
			assert.Equal(t, time.Duration(0), d)
		}
		// Triggering again is ignored.
		g.TriggerDecel()
		assert.Equal(t, Done, g.State())
	}
}

func TestGeneratorDecelFromCruise(t *testing.T) {
	g := newTestGenerator(t, SCurve)
	for g.State() != Cruising {
		_, ok := g.Next()
		require.True(t, ok)
	}
	g.TriggerDecel()
	assert.Equal(t, 360.0, g.DecelVelocity())
	t0 := g.Time()
	down := g.down
	g.TriggerDecel()
	// A second request does not restart the ramp.
	assert.Equal(t, t0, g.Time())
	assert.Equal(t, down(t0+0.1), g.down(t0+0.1))
	var steps int
	for {
		_, ok := g.Next()
		if !ok {
			break
		}
		steps++
	}
	// Roughly the deceleration distance of the profile.
	dist := float64(steps) * testStep
	assert.InDelta(t, g.profile.DecelDistance(), dist, 0.05*g.profile.DecelDistance())
}

func TestGeneratorOptions(t *testing.T) {
	p, err := NewProfile(Trapezoidal, Params{Time: 2, Distance: 90})
	require.NoError(t, err)
	_, err = NewGenerator(p, testStep, WithMinVelocity(0))
	assert.Error(t, err)
	_, err = NewGenerator(nil, testStep)
	assert.Error(t, err)
	_, err = NewGenerator(p, 0)
	assert.Error(t, err)
	g, err := NewGenerator(p, testStep, WithMinVelocity(45))
	require.NoError(t, err)
	d, ok := g.Next()
	require.True(t, ok)
	// The first step is timed at the minimum velocity.
	assert.Equal(t, seconds(testStep/45), d)
}

func TestGeneratorFirstStep(t *testing.T) {
	g := newTestGenerator(t, Trapezoidal)
	p := g.profile
	t1 := p.TimeAt(testStep)
	require.Greater(t, p.RampUp(t1), p.VMax()*DefaultMinVelocityRatio)
	want := seconds(testStep / p.RampUp(t1))
	d, ok := g.Next()
	require.True(t, ok)
	assert.Equal(t, want, d)
	// Still inside the first step time, so the velocity is unchanged.
	d, ok = g.Next()
	require.True(t, ok)
	assert.Equal(t, want, d)
	g.Next()
	d, ok = g.Next()
	require.True(t, ok)
	assert.Less(t, d, want)
}
