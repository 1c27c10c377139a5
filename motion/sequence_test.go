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

// 200 full steps per revolution at 1/16 microstepping.
const testStep = 360.0 / (200 * 16)

func TestStepCount(t *testing.T) {
	assert.Equal(t, 800, StepCount(90, testStep))
	assert.Equal(t, 3, StepCount(2.5, 1))
	assert.Equal(t, 0, StepCount(0, 1))
	assert.Equal(t, 0, StepCount(1, 0))
}

func TestStepDelays(t *testing.T) {
	for _, shape := range []Shape{Trapezoidal, SCurve} {
		for _, tc := range []struct {
			params Params
			n      int
		}{
			{Params{VMax: 360, AMax: 720, Distance: 720}, 6400},
			{Params{Time: 2, Distance: 90}, 800},
			{Params{VMax: 90, AMax: 180, Distance: 100.05}, 890},
		} {
			params, n := tc.params, tc.n
			p, err := NewProfile(shape, params)
			require.NoError(t, err)
			delays, err := StepDelays(p, testStep, PulseWidth)
			require.NoError(t, err)
			require.Len(t, delays, n)
			var total time.Duration
			for _, d := range delays {
				require.GreaterOrEqual(t, d, time.Duration(0))
				total += d
			}
			total += time.Duration(n) * PulseWidth
			expected := time.Duration(p.Duration() * float64(time.Second))
			assert.InDelta(t, float64(expected), float64(total), float64(time.Microsecond), "%s %+v", shape, params)
		}
	}
}

// Delays shrink while accelerating and grow while decelerating.
func TestStepDelaysShape(t *testing.T) {
	p, err := NewProfile(Trapezoidal, Params{VMax: 360, AMax: 720, Distance: 720})
	require.NoError(t, err)
	delays, err := StepDelays(p, testStep, PulseWidth)
	require.NoError(t, err)
	accel := StepCount(p.AccelDistance(), testStep)
	for i := 1; i < accel; i++ {
		assert.LessOrEqual(t, delays[i], delays[i-1], "step %d", i)
	}
	cruise := delays[len(delays)/2]
	expected := time.Duration(testStep/p.VMax()*float64(time.Second)) - PulseWidth
	assert.InDelta(t, float64(expected), float64(cruise), 2)
	for i := len(delays) - accel + 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1], "step %d", i)
	}
}

func TestStepDelaysErrors(t *testing.T) {
	p, err := NewProfile(Trapezoidal, Params{Time: 2, Distance: 90})
	require.NoError(t, err)
	_, err = StepDelays(nil, testStep, PulseWidth)
	assert.Error(t, err)
	_, err = StepDelays(p, 0, PulseWidth)
	assert.Error(t, err)
	_, err = StepDelays(p, testStep, -time.Second)
	assert.Error(t, err)
}

func TestConstantDelays(t *testing.T) {
	// 90 deg/s with 0.1125 deg steps is 800 steps/s.
	delays, err := ConstantDelays(90, 90, testStep, PulseWidth)
	require.NoError(t, err)
	require.Len(t, delays, 800)
	for _, d := range delays {
		assert.Equal(t, 1250*time.Microsecond-PulseWidth, d)
	}
	// Partial steps are dropped.
	delays, err = ConstantDelays(1.5, 10, 1, 0)
	require.NoError(t, err)
	assert.Len(t, delays, 1)

	_, err = ConstantDelays(0, 90, testStep, PulseWidth)
	assert.Error(t, err)
	_, err = ConstantDelays(90, -1, testStep, PulseWidth)
	assert.Error(t, err)
}
