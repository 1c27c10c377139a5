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

// HTTP server for motion profile charts

package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/aamcrae/config"
	"github.com/sirupsen/logrus"

	"github.com/aamcrae/stepper/chart"
	"github.com/aamcrae/stepper/stepper"
)

var port = flag.Int("port", 8080, "Web server port number")
var configFile = flag.String("config", "", "Configuration file holding profiles (optional)")
var profiles = flag.String("profiles", "", "Comma separated profile sections to serve by name")
var verbose = flag.Bool("v", false, "Verbose logging")

func main() {
	flag.Parse()
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	s := chart.NewServer(logrus.StandardLogger())
	if *configFile != "" {
		conf, err := config.ParseFile(*configFile)
		if err != nil {
			log.Fatalf("%s: %v", *configFile, err)
		}
		for _, name := range strings.Split(*profiles, ",") {
			if name == "" {
				continue
			}
			p, err := stepper.LoadProfile(conf, name)
			if err != nil {
				log.Fatalf("%s: %s: %v", *configFile, name, err)
			}
			s.Add(name, p)
			log.Printf("Profile %s: %s, %.3fs", name, p.Shape(), p.Duration())
		}
	}
	http.Handle("/chart.png", s)
	url := fmt.Sprintf(":%d", *port)
	log.Printf("Starting server on %s", url)
	server := &http.Server{Addr: url}
	log.Fatal(server.ListenAndServe())
}
