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
	"time"
)

// DefaultTick is the default interval between calls to Advance.
const DefaultTick = 100 * time.Microsecond

// Runner calls Advance on a set of motors from a background goroutine,
// for programs that have no scan loop of their own.
type Runner struct {
	motors []*Motor
	tick   time.Duration
	sync   chan chan struct{} // Requests to be signalled when idle
	stop   chan struct{}      // Closed to stop the handler
	done   chan struct{}      // Closed when the handler exits
}

// NewRunner starts advancing the motors every tick.
func NewRunner(tick time.Duration, motors ...*Motor) *Runner {
	if tick <= 0 {
		tick = DefaultTick
	}
	r := &Runner{
		motors: motors,
		tick:   tick,
		sync:   make(chan chan struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go r.handler()
	return r
}

// Wait waits until none of the motors are busy.
func (r *Runner) Wait() {
	c := make(chan struct{})
	select {
	case r.sync <- c:
		<-c
	case <-r.done:
	}
}

// Close stops the motors and the handler.
func (r *Runner) Close() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.done
	for _, m := range r.motors {
		m.Stop()
	}
}

// goroutine handler
// Advances the motors on each tick, and signals waiters once all are idle.
func (r *Runner) handler() {
	defer close(r.done)
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	var waiters []chan struct{}
	for {
		select {
		case <-r.stop:
			for _, c := range waiters {
				close(c)
			}
			return
		case c := <-r.sync:
			waiters = append(waiters, c)
		case <-ticker.C:
			for _, m := range r.motors {
				m.Advance()
			}
		}
		if len(waiters) != 0 && r.idle() {
			for _, c := range waiters {
				close(c)
			}
			waiters = nil
		}
	}
}

func (r *Runner) idle() bool {
	for _, m := range r.motors {
		if m.Busy() {
			return false
		}
	}
	return true
}
