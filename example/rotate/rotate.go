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

// Program to rotate a configured stepper motor, either from a scan loop
// or with a blocking call.

package main

import (
	"flag"
	"log"
	"time"

	"github.com/aamcrae/config"
	"github.com/sirupsen/logrus"

	"github.com/aamcrae/stepper/motion"
	"github.com/aamcrae/stepper/stepper"
)

var configFile = flag.String("config", "", "Configuration file")
var motor = flag.String("motor", "", "Motor section in the configuration file")
var profile = flag.String("profile", "", "Profile section (optional)")
var angle = flag.Float64("angle", 360, "Rotation in degrees")
var speed = flag.Float64("speed", 90, "Speed in degrees/second")
var dir = flag.String("dir", "forward", "Direction, forward or backward")
var scan = flag.Duration("scan", time.Millisecond, "Scan loop period, 0 for a blocking rotation")
var verbose = flag.Bool("v", false, "Verbose logging")

func main() {
	flag.Parse()
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	conf, err := config.ParseFile(*configFile)
	if err != nil {
		log.Fatalf("%s: %v", *configFile, err)
	}
	mc, err := stepper.LoadConfig(conf, *motor)
	if err != nil {
		log.Fatalf("%s: %v", *configFile, err)
	}
	var p *motion.Profile
	if *profile != "" {
		p, err = stepper.LoadProfile(conf, *profile)
		if err != nil {
			log.Fatalf("%s: %v", *profile, err)
		}
	}
	d, err := stepper.ParseDirection(*dir)
	if err != nil {
		log.Fatalf("%v", err)
	}
	hw, err := stepper.Open(mc, logrus.StandardLogger())
	if err != nil {
		log.Fatalf("%s: %v", *motor, err)
	}
	defer hw.Close()
	if err := hw.Setup(); err != nil {
		log.Fatalf("%s: setup: %v", *motor, err)
	}
	m := hw.Motor
	start := time.Now()
	if *scan == 0 {
		if err := m.Rotate(*angle, *speed, p, d); err != nil {
			log.Fatalf("rotate: %v", err)
		}
	} else {
		if err := m.StartRotation(*angle, *speed, p, d); err != nil {
			log.Fatalf("rotate: %v", err)
		}
		// Scan loop.
		ticker := time.NewTicker(*scan)
		defer ticker.Stop()
		scans := 0
		for m.Busy() {
			<-ticker.C
			m.Advance()
			scans++
		}
		log.Printf("%d scans", scans)
	}
	log.Printf("Elapsed = %s, position = %d steps (%.2f°)", time.Since(start), m.Position(), float64(m.Position())*m.StepAngle())
}
