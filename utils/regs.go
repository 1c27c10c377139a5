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

// Driver register console

package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aamcrae/stepper/tmc"
)

var device = flag.String("port", "/dev/serial0", "Serial device")
var backend = flag.String("backend", "serial", "Serial backend, serial or tarm")
var baud = flag.Int("baud", 115200, "Baud rate")
var addr = flag.Int("addr", 0, "Driver slave address (0-3)")
var timeout = flag.Duration("timeout", tmc.DefaultReadTimeout, "Reply timeout")
var echo = flag.Bool("echo", true, "Bus echoes transmitted bytes")
var verbose = flag.Bool("v", false, "Verbose logging")

func main() {
	flag.Parse()
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if *addr < 0 || *addr > 3 {
		log.Fatalf("address %d out of range", *addr)
	}
	p, err := tmc.OpenPort(*backend, tmc.PortConfig{Device: *device, Baud: *baud, ReadTimeout: *timeout})
	if err != nil {
		log.Fatalf("%s: %v", *device, err)
	}
	defer p.Close()
	dev := tmc.NewDevice(p, byte(*addr), tmc.WithEcho(*echo))
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("Enter command ('help' for help) ")
		text, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		f := strings.Fields(text)
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "help":
			fmt.Println("  help - print help")
			fmt.Println("  l - list registers")
			fmt.Println("  r REG - read register")
			fmt.Println("  w REG VALUE - write register")
			fmt.Println("  u REG field=value... - update fields of register")
			fmt.Println("  s - driver status")
			fmt.Println("  q - quit")
		case "q":
			return
		case "l":
			for _, n := range tmc.Names() {
				r, _ := tmc.Lookup(n)
				fmt.Printf("  0x%02x %s\n", r.Addr, n)
			}
		case "r":
			if len(f) != 2 {
				fmt.Println("Usage: r REG")
				break
			}
			read(dev, f[1])
		case "w":
			if len(f) != 3 {
				fmt.Println("Usage: w REG VALUE")
				break
			}
			r, err := lookup(f[1])
			if err != nil {
				fmt.Printf("%v\n", err)
				break
			}
			v, err := strconv.ParseUint(f[2], 0, 32)
			if err != nil {
				fmt.Printf("%s: %v\n", f[2], err)
				break
			}
			if err := dev.WriteRegister(r.Addr, uint32(v)); err != nil {
				fmt.Printf("%s: %v\n", r.Name, err)
			}
		case "u":
			if len(f) < 3 {
				fmt.Println("Usage: u REG field=value...")
				break
			}
			r, err := lookup(f[1])
			if err != nil {
				fmt.Printf("%v\n", err)
				break
			}
			fields, err := parseFields(f[2:])
			if err != nil {
				fmt.Printf("%v\n", err)
				break
			}
			if err := dev.UpdateRegister(r.Name, fields); err != nil {
				fmt.Printf("%s: %v\n", r.Name, err)
				break
			}
			read(dev, r.Name)
		case "s":
			start := time.Now()
			read(dev, "GSTAT")
			read(dev, "DRV_STATUS")
			read(dev, "IFCNT")
			fmt.Printf("(%s)\n", time.Since(start))
		default:
			fmt.Printf("Unrecognised input\n")
		}
	}
}

// lookup accepts a register name or address.
func lookup(s string) (*tmc.Register, error) {
	if a, err := strconv.ParseUint(s, 0, 8); err == nil {
		return tmc.LookupAddr(byte(a))
	}
	return tmc.Lookup(s)
}

func read(dev *tmc.Device, name string) {
	r, err := lookup(name)
	if err != nil {
		fmt.Printf("%v\n", err)
		return
	}
	v, err := dev.ReadRegister(r.Addr)
	if err != nil {
		fmt.Printf("%s: %v\n", r.Name, err)
		return
	}
	fmt.Printf("%s = 0x%08x: %s\n", r.Name, v, r.Format(v))
}

func parseFields(args []string) (map[string]uint32, error) {
	fields := make(map[string]uint32)
	for _, a := range args {
		kv := strings.SplitN(a, "=", 2)
		if len(kv) != 2 {
			return nil, errors.Errorf("%s: expected field=value", a)
		}
		v, err := strconv.ParseUint(kv[1], 0, 32)
		if err != nil {
			return nil, errors.Wrap(err, a)
		}
		fields[kv[0]] = uint32(v)
	}
	return fields, nil
}
