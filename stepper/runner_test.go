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

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner(t *testing.T) {
	l, _ := test.NewNullLogger()
	a, err := NewMotor(&line{}, &line{}, nil, WithLogger(l))
	require.NoError(t, err)
	b, err := NewMotor(&line{}, &line{}, nil, WithLogger(l))
	require.NoError(t, err)
	r := NewRunner(50*time.Microsecond, a, b)
	defer r.Close()

	// 10 steps at 2ms and 5 steps at 4ms.
	require.NoError(t, a.StartRotation(18, 900, nil, Forward))
	require.NoError(t, b.StartRotation(9, 450, nil, Backward))
	r.Wait()
	assert.False(t, a.Busy())
	assert.False(t, b.Busy())
	assert.Equal(t, int64(10), a.Position())
	assert.Equal(t, int64(-5), b.Position())

	// Wait returns at once when idle.
	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked with idle motors")
	}
}

func TestRunnerClose(t *testing.T) {
	l, _ := test.NewNullLogger()
	m, err := NewMotor(&line{}, &line{}, nil, WithLogger(l))
	require.NoError(t, err)
	r := NewRunner(0, m)
	require.NoError(t, m.StartRotation(3600, 90, nil, Forward))
	r.Close()
	assert.False(t, m.Busy())
	// Wait after Close does not block.
	r.Wait()
	r.Close()
}
