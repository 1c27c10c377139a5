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

// Simulated motor program. A profile is run through a motor whose step
// line records each pulse, and the pulse times are compared with the
// times the profile gives for each step boundary.

package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/aamcrae/config"
	"github.com/sirupsen/logrus"

	"github.com/aamcrae/stepper/chart"
	"github.com/aamcrae/stepper/io"
	"github.com/aamcrae/stepper/motion"
	"github.com/aamcrae/stepper/stepper"
)

var configFile = flag.String("config", "", "Configuration file (optional)")
var section = flag.String("profile", "", "Profile section in the configuration file")
var shape = flag.String("shape", "trapezoidal", "Profile shape")
var vmax = flag.Float64("vmax", 360, "Top velocity, degrees/second")
var amax = flag.Float64("amax", 720, "Peak acceleration, degrees/second²")
var distance = flag.Float64("distance", 720, "Distance, degrees")
var stepsPerRev = flag.Int("steps", 200, "Full steps per revolution")
var microstep = flag.Int("microstep", 16, "Microstep factor")
var realTime = flag.Bool("real", false, "Run in real time using a Runner")
var output = flag.String("o", "", "Write a velocity chart of the profile to this PNG file")
var port = flag.Int("port", 0, "Serve profile charts on this port after the run")
var verbose = flag.Bool("v", false, "Verbose logging")

// simClock is a virtual clock advanced by Sleep and by the scan loop.
type simClock struct {
	now time.Time
}

func (c *simClock) Now() time.Time        { return c.now }
func (c *simClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

// recorder is a step line that records the time of each rising edge.
type recorder struct {
	mu    sync.Mutex
	now   func() time.Time
	level int
	edges []time.Time
}

func (r *recorder) Set(v int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v != 0 && r.level == 0 {
		r.edges = append(r.edges, r.now())
	}
	r.level = v
	return nil
}

func main() {
	flag.Parse()
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	p, err := profile()
	if err != nil {
		log.Fatalf("profile: %v", err)
	}
	fmt.Printf("%s: distance %g, duration %.4fs, vmax %g, amax %g\n",
		p.Shape(), p.Distance(), p.Duration(), p.VMax(), p.AMax())
	fmt.Printf("  accel %.4fs/%g, cruise %.4fs/%g\n",
		p.AccelTime(), p.AccelDistance(), p.CruiseTime(), p.CruiseDistance())
	clk := &simClock{now: time.Unix(0, 0)}
	rec := &recorder{now: clk.Now}
	opts := []stepper.Option{
		stepper.WithName("sim"),
		stepper.WithStepsPerRev(*stepsPerRev),
		stepper.WithMicrostep(*microstep),
	}
	if *realTime {
		rec.now = time.Now
	} else {
		opts = append(opts, stepper.WithClock(clk))
	}
	m, err := stepper.NewMotor(rec, io.SetterFunc(func(int) error { return nil }), nil, opts...)
	if err != nil {
		log.Fatalf("motor: %v", err)
	}
	if err := m.StartRotation(0, 0, p, stepper.Forward); err != nil {
		log.Fatalf("rotate: %v", err)
	}
	if *realTime {
		r := stepper.NewRunner(stepper.DefaultTick, m)
		r.Wait()
		r.Close()
	} else {
		for m.Busy() {
			if next := m.NextStep(); next.After(clk.now) {
				clk.now = next
			}
			m.Advance()
		}
	}
	report(p, m.StepAngle(), rec.edges)
	if *output != "" {
		if err := chart.Save(*output, p, chart.Velocity, 800, 600); err != nil {
			log.Fatalf("%s: %v", *output, err)
		}
	}
	if *port != 0 {
		s := chart.NewServer(logrus.StandardLogger())
		s.Add("sim", p)
		http.Handle("/chart", s)
		log.Printf("Serving charts on port %d", *port)
		log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", *port), nil))
	}
}

func profile() (*motion.Profile, error) {
	if *configFile != "" {
		conf, err := config.ParseFile(*configFile)
		if err != nil {
			return nil, err
		}
		return stepper.LoadProfile(conf, *section)
	}
	s, err := motion.ParseShape(*shape)
	if err != nil {
		return nil, err
	}
	return motion.NewProfile(s, motion.Params{VMax: *vmax, AMax: *amax, Distance: *distance})
}

// report prints the error of each pulse time against the profile.
func report(p *motion.Profile, step float64, edges []time.Time) {
	if len(edges) == 0 {
		fmt.Println("No pulses")
		return
	}
	var sum, worst float64
	worstStep := 0
	for k, e := range edges {
		want := p.TimeAt(float64(k) * step)
		got := e.Sub(edges[0]).Seconds()
		d := math.Abs(got - want)
		sum += d
		if d > worst {
			worst, worstStep = d, k
		}
	}
	fmt.Printf("%d pulses (expected %d), last at %s\n", len(edges),
		motion.StepCount(p.Distance(), step), edges[len(edges)-1].Sub(edges[0]))
	fmt.Printf("Error: mean %s, worst %s at step %d\n",
		seconds(sum/float64(len(edges))), seconds(worst), worstStep)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
