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

// Motion errors

package motion

import (
	"fmt"
)

// ConfigError reports missing, conflicting or out of range motion parameters,
// or a microstep mode the driver cannot select.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "motion config: " + e.Msg
}

// Configf returns a ConfigError with a formatted message.
func Configf(format string, args ...interface{}) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// DistanceError reports a travel distance too short to reach the top
// velocity and come to rest again.
type DistanceError struct {
	Distance float64 // Requested travel distance
	Required float64 // Distance consumed by acceleration and deceleration
}

func (e *DistanceError) Error() string {
	return fmt.Sprintf("not enough travel distance: %g requested, %g needed for acceleration and deceleration", e.Distance, e.Required)
}

// TimingError reports a travel time too short for acceleration and deceleration.
type TimingError struct {
	Time     float64 // Requested travel time in seconds
	Required float64 // Time consumed by acceleration and deceleration
}

func (e *TimingError) Error() string {
	return fmt.Sprintf("not enough travel time: %gs requested, %gs needed for acceleration and deceleration", e.Time, e.Required)
}
