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

package tmc

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrTimeout is returned (wrapped in a CommunicationError) when the
// bus returns no data within its read timeout.
var ErrTimeout = errors.New("timeout")

// CommunicationError reports a failure to move bytes over the bus:
// a failed open, read or write, a timeout or a short reply.
type CommunicationError struct {
	Op  string // "read" or "write"
	Reg byte   // Register address
	Err error  // Underlying cause
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("tmc: %s register 0x%02x: %v", e.Op, e.Reg, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// ProtocolError reports a reply that arrived but is not valid: wrong sync
// byte, source address, register, echo or checksum.
type ProtocolError struct {
	Reg    byte   // Register address
	Reason string // What did not match
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("tmc: register 0x%02x: %s", e.Reg, e.Reason)
}
