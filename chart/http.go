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

// HTTP server for profile charts

package chart

import (
	"image/png"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aamcrae/stepper/motion"
)

// Server serves chart images of named profiles, or of profiles
// described by the request.
type Server struct {
	mu       sync.Mutex
	profiles map[string]*motion.Profile
	log      logrus.FieldLogger
}

// NewServer creates a Server.
func NewServer(log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{profiles: map[string]*motion.Profile{}, log: log}
}

// Add registers a named profile.
func (s *Server) Add(name string, p *motion.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[name] = p
}

// ProfileFromQuery builds a profile from the request parameters shape,
// vmax, amax, distance, time and accel.
func ProfileFromQuery(q url.Values) (*motion.Profile, error) {
	var err error
	shape := motion.Trapezoidal
	if v := q.Get("shape"); v != "" {
		if shape, err = motion.ParseShape(v); err != nil {
			return nil, err
		}
	}
	var p motion.Params
	for key, v := range map[string]*float64{"vmax": &p.VMax, "amax": &p.AMax, "distance": &p.Distance} {
		if s := q.Get(key); s != "" {
			if *v, err = strconv.ParseFloat(s, 64); err != nil {
				return nil, errors.Wrap(err, key)
			}
		}
	}
	for key, v := range map[string]*float64{"time": &p.Time, "accel": &p.AccelTime} {
		if s := q.Get(key); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, errors.Wrap(err, key)
			}
			*v = d.Seconds()
		}
	}
	return motion.NewProfile(shape, p)
}

func intParam(q url.Values, key string, def int) (int, error) {
	s := q.Get(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	return v, errors.Wrap(err, key)
}

// ServeHTTP writes a PNG chart. The query selects the profile by name,
// or describes one, and may set series, width and height.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var p *motion.Profile
	if name := q.Get("profile"); name != "" {
		s.mu.Lock()
		p = s.profiles[name]
		s.mu.Unlock()
		if p == nil {
			http.Error(w, "unknown profile "+name, http.StatusNotFound)
			return
		}
	} else {
		var err error
		if p, err = ProfileFromQuery(q); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	series, err := ParseSeries(q.Get("series"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	width, err := intParam(q, "width", 800)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	height, err := intParam(q, "height", 400)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	img, err := Render(p, series, width, height)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		s.log.Errorf("Error writing image: %v", err)
		return
	}
	s.log.Debugf("wrote %s chart %dx%d", series, width, height)
}
