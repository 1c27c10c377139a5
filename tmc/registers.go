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

// TMC2208 register map and bit-field schemas

package tmc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Register addresses.
const (
	GCONF      = 0x00
	GSTAT      = 0x01
	IFCNT      = 0x02
	SLAVECONF  = 0x03
	OTPPROG    = 0x04
	OTPREAD    = 0x05
	IOIN       = 0x06
	FACTORYCFG = 0x07
	IHOLDIRUN  = 0x10
	TPOWERDOWN = 0x11
	TSTEP      = 0x12
	TPWMTHRS   = 0x13
	VACTUAL    = 0x22
	MSCNT      = 0x6A
	MSCURACT   = 0x6B
	CHOPCONF   = 0x6C
	DRVSTATUS  = 0x6F
	PWMCONF    = 0x70
	PWMSCALE   = 0x71
	PWMAUTO    = 0x72
)

// Field is a named group of bits within a register.
type Field struct {
	Name  string
	Shift uint // Position of the least significant bit
	Width uint // Number of bits
}

// Mask returns the bits of the field in place.
func (f Field) Mask() uint32 {
	return (uint32(1)<<f.Width - 1) << f.Shift
}

// Get extracts the field from a register value.
func (f Field) Get(reg uint32) uint32 {
	return (reg & f.Mask()) >> f.Shift
}

// Put returns v shifted into the field's position.
func (f Field) Put(v uint32) uint32 {
	return (v << f.Shift) & f.Mask()
}

// Max returns the largest value the field can hold.
func (f Field) Max() uint32 {
	return uint32(1)<<f.Width - 1
}

// Register describes a named register and its fields.
type Register struct {
	Name   string
	Addr   byte
	Fields []Field
}

func bit(name string, shift uint) Field {
	return Field{Name: name, Shift: shift, Width: 1}
}

func bits(name string, shift, width uint) Field {
	return Field{Name: name, Shift: shift, Width: width}
}

var registers = []*Register{
	{"GCONF", GCONF, []Field{
		bit("i_scale_analog", 0),
		bit("internal_rsense", 1),
		bit("en_spreadcycle", 2),
		bit("shaft", 3),
		bit("index_otpw", 4),
		bit("index_step", 5),
		bit("pdn_disable", 6),
		bit("mstep_reg_select", 7),
		bit("multistep_filt", 8),
		bit("test_mode", 9),
	}},
	{"GSTAT", GSTAT, []Field{
		bit("reset", 0),
		bit("drv_err", 1),
		bit("uv_cp", 2),
	}},
	{"IFCNT", IFCNT, []Field{bits("ifcnt", 0, 8)}},
	{"SLAVECONF", SLAVECONF, []Field{bits("senddelay", 8, 4)}},
	{"IOIN", IOIN, []Field{
		bit("enn", 0),
		bit("ms1", 2),
		bit("ms2", 3),
		bit("diag", 4),
		bit("pdn_uart", 6),
		bit("step", 7),
		bit("sel_a", 8),
		bit("dir", 9),
		bits("version", 24, 8),
	}},
	{"IHOLD_IRUN", IHOLDIRUN, []Field{
		bits("ihold", 0, 5),
		bits("irun", 8, 5),
		bits("iholddelay", 16, 4),
	}},
	{"TPOWERDOWN", TPOWERDOWN, []Field{bits("tpowerdown", 0, 8)}},
	{"TSTEP", TSTEP, []Field{bits("tstep", 0, 20)}},
	{"TPWMTHRS", TPWMTHRS, []Field{bits("tpwmthrs", 0, 20)}},
	{"VACTUAL", VACTUAL, []Field{bits("vactual", 0, 24)}},
	{"MSCNT", MSCNT, []Field{bits("mscnt", 0, 10)}},
	{"MSCURACT", MSCURACT, []Field{
		bits("cur_a", 0, 9),
		bits("cur_b", 16, 9),
	}},
	{"CHOPCONF", CHOPCONF, []Field{
		bits("toff", 0, 4),
		bits("hstrt", 4, 3),
		bits("hend", 7, 4),
		bits("tbl", 15, 2),
		bit("vsense", 17),
		bits("mres", 24, 4),
		bit("intpol", 28),
		bit("dedge", 29),
		bit("diss2g", 30),
		bit("diss2vs", 31),
	}},
	{"DRV_STATUS", DRVSTATUS, []Field{
		bit("otpw", 0),
		bit("ot", 1),
		bit("s2ga", 2),
		bit("s2gb", 3),
		bit("s2vsa", 4),
		bit("s2vsb", 5),
		bit("ola", 6),
		bit("olb", 7),
		bit("t120", 8),
		bit("t143", 9),
		bit("t150", 10),
		bit("t157", 11),
		bits("cs_actual", 16, 5),
		bit("stealth", 30),
		bit("stst", 31),
	}},
	{"PWMCONF", PWMCONF, []Field{
		bits("pwm_ofs", 0, 8),
		bits("pwm_grad", 8, 8),
		bits("pwm_freq", 16, 2),
		bit("pwm_autoscale", 18),
		bit("pwm_autograd", 19),
		bits("freewheel", 20, 2),
		bits("pwm_reg", 24, 4),
		bits("pwm_lim", 28, 4),
	}},
	{"PWM_SCALE", PWMSCALE, []Field{
		bits("pwm_scale_sum", 0, 8),
		bits("pwm_scale_auto", 16, 9),
	}},
	{"PWM_AUTO", PWMAUTO, []Field{
		bits("pwm_ofs_auto", 0, 8),
		bits("pwm_grad_auto", 16, 8),
	}},
}

var byName = map[string]*Register{}
var byAddr = map[byte]*Register{}

func init() {
	for _, r := range registers {
		byName[r.Name] = r
		byAddr[r.Addr] = r
	}
}

// Lookup returns the register with the given name (case insensitive).
func Lookup(name string) (*Register, error) {
	r, ok := byName[strings.ToUpper(name)]
	if !ok {
		return nil, errors.Errorf("unknown register %q", name)
	}
	return r, nil
}

// LookupAddr returns the register at addr.
func LookupAddr(addr byte) (*Register, error) {
	r, ok := byAddr[addr]
	if !ok {
		return nil, errors.Errorf("unknown register 0x%02x", addr)
	}
	return r, nil
}

// Names returns the names of all known registers in address order.
func Names() []string {
	var n []string
	for _, r := range registers {
		n = append(n, r.Name)
	}
	return n
}

// Field returns the named field of the register.
func (r *Register) Field(name string) (Field, error) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, nil
		}
	}
	return Field{}, errors.Errorf("%s: unknown field %q", r.Name, name)
}

// Encode converts field values into the mask of the bits they occupy
// and the value of those bits. Unknown fields and values that do not
// fit their field are rejected.
func (r *Register) Encode(fields map[string]uint32) (mask, value uint32, err error) {
	for name, v := range fields {
		f, err := r.Field(name)
		if err != nil {
			return 0, 0, err
		}
		if v > f.Max() {
			return 0, 0, errors.Errorf("%s: value %d too large for %s (max %d)", r.Name, v, name, f.Max())
		}
		mask |= f.Mask()
		value |= f.Put(v)
	}
	return mask, value, nil
}

// Decode splits a register value into its fields.
func (r *Register) Decode(v uint32) map[string]uint32 {
	m := make(map[string]uint32, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Name] = f.Get(v)
	}
	return m
}

// Format returns the fields of v as "name=value" pairs in bit order.
func (r *Register) Format(v uint32) string {
	fields := append([]Field(nil), r.Fields...)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Shift < fields[j].Shift })
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%d", f.Name, f.Get(v))
	}
	return b.String()
}

// Decode splits the raw value of the named register into its fields.
func Decode(name string, v uint32) (map[string]uint32, error) {
	r, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return r.Decode(v), nil
}

// Encode converts field values of the named register into a mask/value pair.
func Encode(name string, fields map[string]uint32) (mask, value uint32, err error) {
	r, err := Lookup(name)
	if err != nil {
		return 0, 0, err
	}
	return r.Encode(fields)
}
