// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"strconv"
	"strings"
)

func initGen() {
	cmd(`GEN:RST`, func(inst *instrument, m []string, args string) (string, error) {
		inst.resetGen()
		return "", nil
	})
	cmd(`GEN:AXI:START\?`, func(inst *instrument, m []string, args string) (string, error) {
		return strconv.FormatUint(inst.cfg.axiStart, 10), nil
	})
	cmd(`GEN:AXI:SIZE\?`, func(inst *instrument, m []string, args string) (string, error) {
		return strconv.FormatUint(inst.cfg.axiSize, 10), nil
	})

	cmd(`SOUR([12]):AXI:RESERVE`, func(inst *instrument, m []string, args string) (string, error) {
		toks := strings.Split(args, ",")
		if len(toks) != 2 {
			return "", errorf(codeExecution, "reserve needs 2 arguments (got=%q)", args)
		}
		beg, err := strconv.ParseUint(strings.TrimSpace(toks[0]), 10, 64)
		if err != nil {
			return "", errorf(codeExecution, "invalid start address %q", toks[0])
		}
		end, err := strconv.ParseUint(strings.TrimSpace(toks[1]), 10, 64)
		if err != nil {
			return "", errorf(codeExecution, "invalid end address %q", toks[1])
		}
		var (
			lo = inst.cfg.axiStart
			hi = inst.cfg.axiStart + inst.cfg.axiSize
		)
		if end <= beg || beg < lo || end > hi {
			return "", errorf(codeRange, "Data out of range: [%d, %d) not in [%d, %d)", beg, end, lo, hi)
		}
		g := &inst.gen[channel(m[1])-1]
		g.Reserved = true
		g.Start = beg
		g.End = end
		g.Waveform = make([]float32, (end-beg)/2)
		g.Written = 0
		return "", nil
	})
	cmd(`SOUR([12]):AXI:RELEASE`, func(inst *instrument, m []string, args string) (string, error) {
		g := &inst.gen[channel(m[1])-1]
		g.Reserved = false
		g.AXI = false
		g.Start = 0
		g.End = 0
		g.Waveform = nil
		g.Written = 0
		return "", nil
	})
	cmd(`SOUR([12]):AXI:DEC(?:IMATION)?`, func(inst *instrument, m []string, args string) (string, error) {
		n, err := parseInt(args)
		if err != nil {
			return "", err
		}
		if n < 1 {
			return "", errorf(codeRange, "Data out of range: decimation %d", n)
		}
		inst.gen[channel(m[1])-1].Decimation = n
		return "", nil
	})
	cmd(`SOUR([12]):AXI:DEC(?:IMATION)?\?`, func(inst *instrument, m []string, args string) (string, error) {
		return strconv.Itoa(inst.gen[channel(m[1])-1].Decimation), nil
	})
	cmd(`SOUR([12]):AXI:EN(?:ABLE)?`, func(inst *instrument, m []string, args string) (string, error) {
		v, err := parseOnOff(args)
		if err != nil {
			return "", err
		}
		g := &inst.gen[channel(m[1])-1]
		if v && !g.Reserved {
			return "", errorf(codeExecution, "AXI mode needs reserved memory")
		}
		g.AXI = v
		return "", nil
	})
	cmd(`SOUR([12]):AXI:EN(?:ABLE)?\?`, func(inst *instrument, m []string, args string) (string, error) {
		return onOff(inst.gen[channel(m[1])-1].AXI), nil
	})
	cmd(`SOUR([12]):AXI:OFFSET(\d+):DATA(\d+)`, func(inst *instrument, m []string, args string) (string, error) {
		g := &inst.gen[channel(m[1])-1]
		off, _ := strconv.Atoi(m[2])
		n, _ := strconv.Atoi(m[3])
		if n > inst.cfg.maxChunk {
			return "", errorf(codeTooMuch, "Too much data: %d samples (max=%d)", n, inst.cfg.maxChunk)
		}
		if !g.Reserved {
			return "", errorf(codeExecution, "no reserved memory")
		}
		vs, err := parseFloats(args)
		if err != nil {
			return "", err
		}
		if len(vs) != n {
			return "", errorf(codeExecution, "header announces %d samples, got %d", n, len(vs))
		}
		if off+n > len(g.Waveform) {
			return "", errorf(codeRange, "Data out of range: [%d, %d) beyond %d samples", off, off+n, len(g.Waveform))
		}
		copy(g.Waveform[off:], vs)
		g.Written += n
		return "", nil
	})
	cmd(`SOUR([12]):AXI:SET:CALIB`, func(inst *instrument, m []string, args string) (string, error) {
		inst.gen[channel(m[1])-1].Calibrated = true
		return "", nil
	})

	cmd(`SOUR([12]):BURS(?:T)?:STAT(?:E)?`, func(inst *instrument, m []string, args string) (string, error) {
		mode := strings.ToUpper(strings.TrimSpace(args))
		switch mode {
		case "BURST", "CONTINUOUS":
		default:
			return "", errorf(codeExecution, "invalid burst state %q", args)
		}
		inst.gen[channel(m[1])-1].Mode = mode
		return "", nil
	})
	cmd(`SOUR([12]):BURS(?:T)?:STAT(?:E)?\?`, func(inst *instrument, m []string, args string) (string, error) {
		return inst.gen[channel(m[1])-1].Mode, nil
	})
	cmd(`SOUR([12]):BURS(?:T)?:NCYC`, func(inst *instrument, m []string, args string) (string, error) {
		return "", setPositive(&inst.gen[channel(m[1])-1].Cycles, args)
	})
	cmd(`SOUR([12]):BURS(?:T)?:NOR`, func(inst *instrument, m []string, args string) (string, error) {
		return "", setPositive(&inst.gen[channel(m[1])-1].Reps, args)
	})
	cmd(`SOUR([12]):BURS(?:T)?:INT:PER`, func(inst *instrument, m []string, args string) (string, error) {
		return "", setPositive(&inst.gen[channel(m[1])-1].Period, args)
	})

	cmd(`OUTPUT([12]):STATE`, func(inst *instrument, m []string, args string) (string, error) {
		v, err := parseOnOff(args)
		if err != nil {
			return "", err
		}
		inst.gen[channel(m[1])-1].Output = v
		return "", nil
	})
	cmd(`OUTPUT([12]):STATE\?`, func(inst *instrument, m []string, args string) (string, error) {
		return onOff(inst.gen[channel(m[1])-1].Output), nil
	})
	cmd(`SOUR([12]):TRIG(?:GER)?:INT`, func(inst *instrument, m []string, args string) (string, error) {
		g := &inst.gen[channel(m[1])-1]
		if !g.Output {
			return "", errorf(codeExecution, "output %s is disabled", m[1])
		}
		g.Triggers++
		return "", nil
	})

	cmd(`SOUR([12]):TRAC:DATA:DATA`, func(inst *instrument, m []string, args string) (string, error) {
		vs, err := parseFloats(args)
		if err != nil {
			return "", err
		}
		switch {
		case len(vs) == 0:
			return "", errorf(codeExecution, "empty arbitrary waveform")
		case len(vs) > MaxChunk:
			return "", errorf(codeTooMuch, "Too much data: %d samples (max=%d)", len(vs), MaxChunk)
		}
		inst.gen[channel(m[1])-1].Arb = vs
		return "", nil
	})
	cmd(`SOUR([12]):FUNC`, func(inst *instrument, m []string, args string) (string, error) {
		fct := strings.ToUpper(strings.TrimSpace(args))
		switch fct {
		case "SINE", "SQUARE", "TRIANGLE", "SAWU", "SAWD", "PWM", "ARBITRARY", "DC", "DC_NEG":
		default:
			return "", errorf(codeExecution, "invalid function %q", args)
		}
		inst.gen[channel(m[1])-1].Func = fct
		return "", nil
	})
	cmd(`SOUR([12]):FUNC\?`, func(inst *instrument, m []string, args string) (string, error) {
		return inst.gen[channel(m[1])-1].Func, nil
	})
}

func setPositive(dst *int, args string) error {
	n, err := parseInt(args)
	if err != nil {
		return err
	}
	if n < 1 {
		return errorf(codeRange, "Data out of range: %d", n)
	}
	*dst = n
	return nil
}

// output returns the signal currently emitted by a generator channel.
func (g *GenState) output() []float32 {
	if !g.Output {
		return nil
	}
	switch {
	case g.AXI && g.Written > 0:
		return g.Waveform
	case g.Func == "ARBITRARY":
		return g.Arb
	}
	return nil
}
