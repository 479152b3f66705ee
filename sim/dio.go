// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"regexp"
	"strings"
)

var rePin = regexp.MustCompile(`^(LED[0-7]|DIO[0-7]_[NP])$`)

func initDIO() {
	cmd(`DIG:PIN:DIR`, func(inst *instrument, m []string, args string) (string, error) {
		dir, pin, err := pinArgs(args)
		if err != nil {
			return "", err
		}
		switch dir {
		case "IN", "OUT":
		default:
			return "", errorf(codeExecution, "invalid pin direction %q", dir)
		}
		if strings.HasPrefix(pin, "LED") && dir != "OUT" {
			return "", errorf(codeExecution, "pin %s is output only", pin)
		}
		inst.dirs[pin] = dir
		return "", nil
	})
	cmd(`DIG:PIN:DIR\?`, func(inst *instrument, m []string, args string) (string, error) {
		pin, err := parsePin(args)
		if err != nil {
			return "", err
		}
		return inst.direction(pin), nil
	})
	cmd(`DIG:PIN\?`, func(inst *instrument, m []string, args string) (string, error) {
		pin, err := parsePin(args)
		if err != nil {
			return "", err
		}
		return fill(inst.pins[pin]), nil
	})
	cmd(`DIG:PIN`, func(inst *instrument, m []string, args string) (string, error) {
		pin, v, err := pinArgs(args)
		if err != nil {
			return "", err
		}
		if inst.direction(pin) != "OUT" {
			return "", errorf(codeExecution, "pin %s is not an output", pin)
		}
		on, err := parseOnOff(v)
		if err != nil {
			return "", err
		}
		inst.pins[pin] = on
		return "", nil
	})
}

func (inst *instrument) direction(pin string) string {
	if strings.HasPrefix(pin, "LED") {
		return "OUT"
	}
	if dir, ok := inst.dirs[pin]; ok {
		return dir
	}
	return "IN"
}

func parsePin(s string) (string, error) {
	pin := strings.ToUpper(strings.TrimSpace(s))
	if !rePin.MatchString(pin) {
		return "", errorf(codeExecution, "invalid pin %q", s)
	}
	return pin, nil
}

// pinArgs decodes "<a>,<b>" arguments where one of them names a pin.
func pinArgs(args string) (string, string, error) {
	toks := strings.Split(args, ",")
	if len(toks) != 2 {
		return "", "", errorf(codeExecution, "expected 2 arguments (got=%q)", args)
	}
	a := strings.ToUpper(strings.TrimSpace(toks[0]))
	b := strings.ToUpper(strings.TrimSpace(toks[1]))
	switch {
	case rePin.MatchString(b):
		return a, b, nil
	case rePin.MatchString(a):
		return a, b, nil
	}
	return "", "", errorf(codeExecution, "invalid pin in %q", args)
}
