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

// Program to jog a motor while a button is held

package main

import (
	"flag"
	"log"

	"github.com/aamcrae/config"
	"github.com/sirupsen/logrus"

	"github.com/aamcrae/stepper/motion"
	"github.com/aamcrae/stepper/stepper"
)

var configFile = flag.String("config", "", "Configuration file")
var motor = flag.String("motor", "", "Motor section in the configuration file")
var profile = flag.String("profile", "", "Profile section giving the jog acceleration and speed")
var button = flag.Int("button", 4, "GPIO pin of the jog button")
var dir = flag.String("dir", "forward", "Direction, forward or backward")
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
	p, err := stepper.LoadProfile(conf, *profile)
	if err != nil {
		log.Fatalf("%s: %v", *profile, err)
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
	in, err := mc.Gpio.Input(*button, true)
	if err != nil {
		log.Fatalf("button %d: %v", *button, err)
	}
	defer in.Close()
	m := hw.Motor
	r := stepper.NewRunner(stepper.DefaultTick, m)
	defer r.Close()
	for {
		v, err := in.Get()
		if err != nil {
			log.Fatalf("button %d: Get: %v", *button, err)
		}
		if v != 0 {
			gen, err := motion.NewGenerator(p, m.StepAngle())
			if err != nil {
				log.Fatalf("%v", err)
			}
			if err := m.StartDynamic(gen, d); err != nil {
				log.Printf("jog: %v", err)
			}
			continue
		}
		m.Decelerate()
		r.Wait()
		log.Printf("Stopped at %d steps (%.2f°)", m.Position(), float64(m.Position())*m.StepAngle())
	}
}
