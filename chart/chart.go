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

// Package chart draws motion profiles for inspection.
package chart

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"

	"github.com/aamcrae/stepper/motion"
)

// Series selects the quantity plotted against time.
type Series int

const (
	Velocity Series = iota
	Position
	Acceleration
)

func (s Series) String() string {
	switch s {
	case Position:
		return "position"
	case Acceleration:
		return "acceleration"
	}
	return "velocity"
}

func (s Series) unit() string {
	switch s {
	case Position:
		return "°"
	case Acceleration:
		return "°/s²"
	}
	return "°/s"
}

func (s Series) value(m motion.Sample) float64 {
	switch s {
	case Position:
		return m.S
	case Acceleration:
		return m.A
	}
	return m.V
}

// ParseSeries parses a series name.
func ParseSeries(name string) (Series, error) {
	switch strings.ToLower(name) {
	case "", "velocity", "v":
		return Velocity, nil
	case "position", "s":
		return Position, nil
	case "acceleration", "a":
		return Acceleration, nil
	}
	return Velocity, errors.Errorf("unknown series %q", name)
}

const margin = 40

// Render draws series of the profile as a width by height image.
// The closed form law is drawn solid, and the numerical integral of
// the acceleration law dashed over it.
func Render(p *motion.Profile, s Series, width, height int) (image.Image, error) {
	if width <= 2*margin || height <= 2*margin {
		return nil, errors.Errorf("chart size %dx%d too small", width, height)
	}
	n := width - 2*margin
	exact := p.Samples(n)
	numeric := motion.IntegrateSamples(p.AccelFunc(), 0, 0, 0, p.Duration(), n)

	lo, hi := 0.0, 0.0
	for _, m := range exact {
		lo = math.Min(lo, s.value(m))
		hi = math.Max(hi, s.value(m))
	}
	if hi == lo {
		hi = lo + 1
	}
	w, h := float64(width), float64(height)
	x := func(t float64) float64 {
		return margin + t/p.Duration()*(w-2*margin)
	}
	y := func(v float64) float64 {
		return h - margin - (v-lo)/(hi-lo)*(h-2*margin)
	}

	c := gg.NewContext(width, height)
	c.SetRGB(1, 1, 1)
	c.Clear()

	// Axes.
	c.SetRGB(0, 0, 0)
	c.SetLineWidth(1)
	c.DrawLine(margin, margin, margin, h-margin)
	c.DrawLine(margin, y(0), w-margin, y(0))
	c.Stroke()
	c.DrawStringAnchored(fmt.Sprintf("%.4g", hi), margin-4, y(hi), 1, 0.5)
	if lo < 0 {
		c.DrawStringAnchored(fmt.Sprintf("%.4g", lo), margin-4, y(lo), 1, 0.5)
	}
	c.DrawStringAnchored(fmt.Sprintf("%.3gs", p.Duration()), w-margin, h-margin/2, 1, 0.5)
	c.DrawString(fmt.Sprintf("%s (%s), %s profile", s, s.unit(), p.Shape()), margin, margin/2)

	// Phase boundaries.
	c.SetRGB(0.7, 0.7, 0.7)
	c.SetDash(2, 4)
	for _, t := range []float64{p.AccelTime(), p.Duration() - p.DecelTime()} {
		c.DrawLine(x(t), margin, x(t), h-margin)
	}
	c.Stroke()

	plot(c, exact, s, x, y)
	c.SetRGB(0, 0, 0.8)
	c.SetLineWidth(2)
	c.SetDash()
	c.Stroke()

	plot(c, numeric, s, x, y)
	c.SetRGB(0.9, 0.4, 0)
	c.SetLineWidth(1)
	c.SetDash(6, 6)
	c.Stroke()
	return c.Image(), nil
}

func plot(c *gg.Context, samples []motion.Sample, s Series, x, y func(float64) float64) {
	for i, m := range samples {
		if i == 0 {
			c.MoveTo(x(m.T), y(s.value(m)))
		} else {
			c.LineTo(x(m.T), y(s.value(m)))
		}
	}
}

// Save renders the chart to a PNG file.
func Save(name string, p *motion.Profile, s Series, width, height int) error {
	img, err := Render(p, s, width, height)
	if err != nil {
		return err
	}
	return gg.SavePNG(name, img)
}
