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

// Motor configuration files

package stepper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aamcrae/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/aamcrae/stepper/io"
	"github.com/aamcrae/stepper/motion"
	"github.com/aamcrae/stepper/tmc"
)

// Driver names used in configuration files.
const (
	DriverA4988       = "a4988"
	DriverTMC2208     = "tmc2208"
	DriverTMC2208UART = "tmc2208-uart"
	DriverCoils       = "coils"
)

// Config is the configuration of one motor, read from a configuration file.
type Config struct {
	Name        string
	Driver      string
	Gpio        io.Backend
	Step        int
	Dir         int
	Enable      int   // -1 if not connected
	MS          []int // Mode select GPIOs, MS1 first
	Coils       []int // Coil GPIOs of a unipolar motor
	StepsPerRev int
	Microstep   int
	Pulse       time.Duration
	Port        string // Serial backend
	UART        tmc.PortConfig
	Addr        int
	Current     []uint32 // ihold, irun, iholddelay; nil if not set
}

// section holds the values of a config file section by keyword.
type section map[string]string

// values flattens a config file section. The library splits each line
// on '=' and ',', so the tokens are rejoined with commas. Text after a
// '#' is a comment.
func values(s *config.Section) (section, error) {
	m := section{}
	for _, e := range s.GetEntries() {
		key := strings.TrimSpace(e.Keyword)
		if _, ok := m[key]; ok {
			return nil, errors.Errorf("%s: line %d: duplicate keyword %s", e.Filename, e.Lineno, key)
		}
		v := e.Args
		if i := strings.IndexByte(v, '#'); i >= 0 {
			v = v[:i]
		}
		f := strings.Split(v, ",")
		for i := range f {
			f[i] = strings.TrimSpace(f[i])
		}
		m[key] = strings.TrimRight(strings.Join(f, ","), ",")
	}
	return m, nil
}

func (s section) optional(key string) (string, bool) {
	v, ok := s[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (s section) required(key, format string, args ...interface{}) error {
	v, ok := s.optional(key)
	if !ok {
		return errors.Errorf("%s: missing", key)
	}
	n, err := fmt.Sscanf(v, format, args...)
	if err != nil {
		return errors.Wrap(err, key)
	}
	if n != len(args) {
		return errors.Errorf("%s: argument count", key)
	}
	return nil
}

func intList(v string) ([]int, error) {
	var l []int
	for _, f := range strings.Split(v, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		l = append(l, i)
	}
	return l, nil
}

// LoadConfig reads and validates a motor config from a config file section.
// Sample config:
//
//	[x-axis]
//	driver=tmc2208-uart          # a4988, tmc2208, tmc2208-uart or coils
//	gpio=cdev,gpiochip0          # sysfs (default), cdev[,chip] or rpio
//	step=18                      # Step GPIO
//	dir=23                       # Direction GPIO
//	enable=24                    # Enable GPIO (optional)
//	ms=17,27,22                  # Mode select GPIOs (optional)
//	coils=4,17,27,22             # Coil GPIOs, coils driver only
//	steps=200                    # Full steps per revolution
//	microstep=1/16               # Microstep mode
//	pulse=10us                   # Step pulse width (optional)
//	uart=/dev/serial0,115200     # Serial port, tmc2208-uart only
//	port=serial                  # Serial backend, serial or tarm (optional)
//	addr=0                       # Driver address (optional)
//	current=10,20,6              # ihold,irun,iholddelay (optional)
//	rms=0.8,0.11                 # Run current in amps and sense resistor (optional)
func LoadConfig(conf *config.Config, name string) (*Config, error) {
	s := conf.GetSection(name)
	if s == nil {
		return nil, errors.Errorf("no config for %s", name)
	}
	v, err := values(s)
	if err != nil {
		return nil, err
	}
	return parseConfig(v, name)
}

func parseConfig(s section, name string) (*Config, error) {
	c := &Config{Name: name, Enable: -1, StepsPerRev: 200, Microstep: 1, Pulse: motion.PulseWidth}
	var err error
	d, ok := s.optional("driver")
	if !ok {
		return nil, errors.New("driver: missing")
	}
	c.Driver = strings.ToLower(d)
	g, _ := s.optional("gpio")
	if c.Gpio, err = io.ParseBackend(g); err != nil {
		return nil, errors.Wrap(err, "gpio")
	}
	switch c.Driver {
	case DriverCoils:
		v, ok := s.optional("coils")
		if !ok {
			return nil, errors.New("coils: missing")
		}
		if c.Coils, err = intList(v); err != nil || len(c.Coils) != 4 {
			return nil, errors.Errorf("coils: 4 GPIOs required")
		}
		// The coils are driven in half-steps.
		c.StepsPerRev = 4096
		c.Microstep = 1
	case DriverA4988, DriverTMC2208, DriverTMC2208UART:
		if c.Driver == DriverTMC2208 {
			// Standalone mode with MS1 and MS2 low.
			c.Microstep = 8
		}
		if err := s.required("step", "%d", &c.Step); err != nil {
			return nil, err
		}
		if err := s.required("dir", "%d", &c.Dir); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("driver: unknown driver %q", c.Driver)
	}
	if _, ok := s.optional("enable"); ok {
		if err := s.required("enable", "%d", &c.Enable); err != nil {
			return nil, err
		}
	}
	if v, ok := s.optional("ms"); ok {
		if c.MS, err = intList(v); err != nil {
			return nil, errors.Wrap(err, "ms")
		}
		maxMS := 3
		if c.Driver == DriverTMC2208 || c.Driver == DriverTMC2208UART {
			maxMS = 2
		}
		if len(c.MS) > maxMS {
			return nil, errors.Errorf("ms: at most %d GPIOs", maxMS)
		}
	}
	if _, ok := s.optional("steps"); ok {
		if err := s.required("steps", "%d", &c.StepsPerRev); err != nil {
			return nil, err
		}
	}
	if v, ok := s.optional("microstep"); ok {
		if c.Microstep, err = ParseMicrostep(v); err != nil {
			return nil, errors.Wrap(err, "microstep")
		}
	}
	if v, ok := s.optional("pulse"); ok {
		if c.Pulse, err = time.ParseDuration(v); err != nil {
			return nil, errors.Wrap(err, "pulse")
		}
	}
	if c.Driver == DriverTMC2208UART {
		if err := parseUART(s, c); err != nil {
			return nil, err
		}
	}
	if c.StepsPerRev <= 0 {
		return nil, errors.Errorf("steps: invalid value %d", c.StepsPerRev)
	}
	return c, nil
}

func parseUART(s section, c *Config) error {
	v, ok := s.optional("uart")
	if !ok {
		return errors.New("uart: missing")
	}
	f := strings.Split(v, ",")
	c.UART.Device = strings.TrimSpace(f[0])
	if len(f) > 1 {
		b, err := strconv.Atoi(strings.TrimSpace(f[1]))
		if err != nil {
			return errors.Wrap(err, "uart")
		}
		c.UART.Baud = b
	}
	c.Port, _ = s.optional("port")
	if _, ok := s.optional("addr"); ok {
		if err := s.required("addr", "%d", &c.Addr); err != nil {
			return err
		}
		if c.Addr < 0 || c.Addr > 3 {
			return errors.Errorf("addr: %d out of range", c.Addr)
		}
	}
	if v, ok := s.optional("current"); ok {
		l, err := intList(v)
		if err != nil || len(l) != 3 {
			return errors.New("current: ihold,irun,iholddelay required")
		}
		for _, i := range l {
			c.Current = append(c.Current, uint32(i))
		}
	} else if v, ok := s.optional("rms"); ok {
		f := strings.Split(v, ",")
		amps, err := strconv.ParseFloat(strings.TrimSpace(f[0]), 64)
		if err != nil {
			return errors.Wrap(err, "rms")
		}
		rsense := tmc.DefaultRsense
		if len(f) > 1 {
			if rsense, err = strconv.ParseFloat(strings.TrimSpace(f[1]), 64); err != nil {
				return errors.Wrap(err, "rms")
			}
		}
		irun := tmc.CurrentScale(amps, rsense, false)
		c.Current = []uint32{irun / 2, irun, 6}
	}
	return nil
}

// LoadProfile reads a motion profile from a config file section.
// Sample config:
//
//	[slow]
//	shape=scurve     # trapezoid (default) or scurve
//	vmax=180         # Top speed in degrees/second
//	amax=360         # Acceleration in degrees/second²
//	distance=720     # Travel in degrees
//	time=4s          # Travel time
//	accel=500ms      # Acceleration time
func LoadProfile(conf *config.Config, name string) (*motion.Profile, error) {
	s := conf.GetSection(name)
	if s == nil {
		return nil, errors.Errorf("no profile %s", name)
	}
	v, err := values(s)
	if err != nil {
		return nil, err
	}
	return parseProfile(v)
}

func parseProfile(s section) (*motion.Profile, error) {
	shape := motion.Trapezoidal
	if v, ok := s.optional("shape"); ok {
		var err error
		if shape, err = motion.ParseShape(v); err != nil {
			return nil, err
		}
	}
	var p motion.Params
	for _, f := range []struct {
		key string
		v   *float64
	}{
		{"vmax", &p.VMax},
		{"amax", &p.AMax},
		{"distance", &p.Distance},
	} {
		if v, ok := s.optional(f.key); ok {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, errors.Wrap(err, f.key)
			}
			*f.v = x
		}
	}
	for _, f := range []struct {
		key string
		v   *float64
	}{
		{"time", &p.Time},
		{"accel", &p.AccelTime},
	} {
		if v, ok := s.optional(f.key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, errors.Wrap(err, f.key)
			}
			*f.v = d.Seconds()
		}
	}
	return motion.NewProfile(shape, p)
}

// Hardware is a motor with its lines and driver opened from a Config.
type Hardware struct {
	Motor  *Motor
	Driver Driver
	UART   *UARTDriver // nil unless the driver is configured over UART
	Coils  *io.Coils   // nil unless the motor is driven through coils
	config *Config
	lines  []io.Line
	port   tmc.Port
}

// Open opens the lines and serial port named in c and creates the motor.
func Open(c *Config, log logrus.FieldLogger, opts ...Option) (*Hardware, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Hardware{config: c}
	output := func(n int) (io.Line, error) {
		l, err := c.Gpio.Output(n)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: gpio %d", c.Name, n)
		}
		h.lines = append(h.lines, l)
		return l, nil
	}
	var step, dir, enable io.Setter
	var err error
	if c.Driver == DriverCoils {
		var p [4]io.Setter
		for i, n := range c.Coils {
			if p[i], err = output(n); err != nil {
				h.Close()
				return nil, err
			}
		}
		h.Coils = io.NewCoils(p[0], p[1], p[2], p[3])
		step, dir = h.Coils.Step(), h.Coils.Dir()
	} else {
		if step, err = output(c.Step); err != nil {
			h.Close()
			return nil, err
		}
		if dir, err = output(c.Dir); err != nil {
			h.Close()
			return nil, err
		}
		if c.Enable >= 0 {
			if enable, err = output(c.Enable); err != nil {
				h.Close()
				return nil, err
			}
			// Start disabled.
			if err := enable.Set(1); err != nil {
				h.Close()
				return nil, err
			}
		}
	}
	var ms []io.Setter
	for _, n := range c.MS {
		l, err := output(n)
		if err != nil {
			h.Close()
			return nil, err
		}
		ms = append(ms, l)
	}
	switch c.Driver {
	case DriverA4988:
		h.Driver = NewA4988(enable, ms...)
	case DriverTMC2208:
		h.Driver = NewTMC2208(enable, ms...)
	case DriverTMC2208UART:
		h.port, err = tmc.OpenPort(c.Port, c.UART)
		if err != nil {
			h.Close()
			return nil, err
		}
		dev := tmc.NewDevice(h.port, byte(c.Addr), tmc.WithLogger(log))
		h.UART = NewUARTDriver(dev, enable)
		h.Driver = h.UART
	}
	opts = append([]Option{
		WithName(c.Name),
		WithLogger(log),
		WithStepsPerRev(c.StepsPerRev),
		WithMicrostep(c.Microstep),
		WithPulseWidth(c.Pulse),
	}, opts...)
	if h.Motor, err = NewMotor(step, dir, h.Driver, opts...); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// Setup enables the driver and applies the configured microstep
// mode and current.
func (h *Hardware) Setup() error {
	if err := h.Motor.Enable(); err != nil {
		return err
	}
	if h.UART != nil && h.config.Current != nil {
		cur := h.config.Current
		if err := h.UART.SetCurrent(cur[0], cur[1], cur[2]); err != nil {
			return errors.Wrap(err, "current")
		}
	}
	if h.Driver != nil {
		return h.Motor.ConfigureMicrostepping(h.config.Microstep)
	}
	return nil
}

// Close stops the motor and releases the lines and serial port.
func (h *Hardware) Close() error {
	var err error
	if h.Motor != nil {
		h.Motor.Stop()
		err = multierr.Append(err, h.Motor.Disable())
	}
	if h.Coils != nil {
		err = multierr.Append(err, h.Coils.Off())
	}
	for _, l := range h.lines {
		err = multierr.Append(err, l.Close())
	}
	if h.port != nil {
		err = multierr.Append(err, h.port.Close())
	}
	return err
}
