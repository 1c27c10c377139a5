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

// UART datagram framing

package tmc

import (
	"encoding/binary"
	"fmt"
)

const (
	Sync       = 0x05 // First byte of every datagram
	MasterAddr = 0xFF // Source address of replies
	writeFlag  = 0x80 // Set in the register byte of writes

	ReadRequestLen  = 4
	WriteRequestLen = 8
	ReplyLen        = 8
)

// ReadRequest returns the datagram requesting register reg from slave addr.
func ReadRequest(addr, reg byte) []byte {
	b := []byte{Sync, addr, reg &^ writeFlag, 0}
	b[3] = CRC8(b[:3])
	return b
}

// WriteRequest returns the datagram writing v to register reg of slave addr.
func WriteRequest(addr, reg byte, v uint32) []byte {
	b := make([]byte, WriteRequestLen)
	b[0] = Sync
	b[1] = addr
	b[2] = reg | writeFlag
	binary.BigEndian.PutUint32(b[3:7], v)
	b[7] = CRC8(b[:7])
	return b
}

// Reply returns the datagram a driver sends in answer to a read of reg.
// It is the inverse of ParseReply.
func Reply(reg byte, v uint32) []byte {
	b := make([]byte, ReplyLen)
	b[0] = Sync
	b[1] = MasterAddr
	b[2] = reg
	binary.BigEndian.PutUint32(b[3:7], v)
	b[7] = CRC8(b[:7])
	return b
}

// ParseReply validates a reply to a read of register reg and returns the register value.
func ParseReply(b []byte, reg byte) (uint32, error) {
	if len(b) != ReplyLen {
		return 0, &ProtocolError{Reg: reg, Reason: fmt.Sprintf("reply length %d", len(b))}
	}
	if b[0] != Sync {
		return 0, &ProtocolError{Reg: reg, Reason: fmt.Sprintf("bad sync byte 0x%02x", b[0])}
	}
	if b[1] != MasterAddr {
		return 0, &ProtocolError{Reg: reg, Reason: fmt.Sprintf("bad source address 0x%02x", b[1])}
	}
	if b[2] != reg {
		return 0, &ProtocolError{Reg: reg, Reason: fmt.Sprintf("reply for register 0x%02x", b[2])}
	}
	if crc := CRC8(b[:7]); crc != b[7] {
		return 0, &ProtocolError{Reg: reg, Reason: fmt.Sprintf("CRC mismatch (got 0x%02x, want 0x%02x)", b[7], crc)}
	}
	return binary.BigEndian.Uint32(b[3:7]), nil
}
