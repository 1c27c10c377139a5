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

// GPIO lines through the GPIO character device

package io

import (
	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

const consumer = "stepper"

// CdevLine is a line requested from a GPIO character device.
type CdevLine struct {
	line   *gpiocdev.Line
	offset int
	events chan struct{} // Edge notifications, nil if edges are not watched
}

// CdevOutput requests offset on chip as an output, initially low.
func CdevOutput(chip string, offset int) (*CdevLine, error) {
	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, errors.Wrapf(err, "%s:%d", chip, offset)
	}
	return &CdevLine{line: l, offset: offset}, nil
}

// CdevInput requests offset on chip as an input. If edge is set,
// Get blocks until the line changes.
func CdevInput(chip string, offset int, edge bool) (*CdevLine, error) {
	c := &CdevLine{offset: offset}
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithConsumer(consumer)}
	if edge {
		c.events = make(chan struct{}, 1)
		opts = append(opts, gpiocdev.WithBothEdges, gpiocdev.WithEventHandler(c.handler))
	}
	l, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "%s:%d", chip, offset)
	}
	c.line = l
	return c, nil
}

func (c *CdevLine) handler(gpiocdev.LineEvent) {
	select {
	case c.events <- struct{}{}:
	default:
	}
}

// Set drives the line.
func (c *CdevLine) Set(v int) error {
	return c.line.SetValue(v)
}

// Get returns the line value, first waiting for an edge if edges are watched.
func (c *CdevLine) Get() (int, error) {
	if c.events != nil {
		<-c.events
	}
	return c.line.Value()
}

// Close releases the line.
func (c *CdevLine) Close() error {
	return c.line.Close()
}
