// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Error codes of the instrument error queue.
const (
	codeCommand   = -100
	codeExecution = -200
	codeRange     = -222
	codeTooMuch   = -223
)

type instError struct {
	code int
	msg  string
}

func (e *instError) Error() string { return fmt.Sprintf("%d: %s", e.code, e.msg) }

func errorf(code int, format string, args ...interface{}) error {
	return &instError{code: code, msg: fmt.Sprintf(format, args...)}
}

// GenState is the state of a generator channel.
type GenState struct {
	Reserved   bool
	Start, End uint64
	Decimation int
	AXI        bool
	Waveform   []float32 // AXI buffer
	Written    int       // number of samples written to the AXI buffer

	Mode       string // BURST or CONTINUOUS
	Cycles     int
	Reps       int
	Period     int // µs
	Calibrated bool
	Output     bool
	Triggers   int

	Func string
	Arb  []float32
}

type acqChan struct {
	started bool
	src     string
	dec     int
	level   float64
	delay   int
	polls   int
	trig    bool
}

type instrument struct {
	cfg config

	gen [2]GenState

	acq struct {
		split bool
		dec   int
		level float64
		delay int
		ch    [4]acqChan
	}

	pins map[string]bool
	dirs map[string]string

	errs []*instError
}

func newInstrument(cfg config) *instrument {
	inst := &instrument{
		cfg:  cfg,
		pins: make(map[string]bool),
		dirs: make(map[string]string),
	}
	inst.resetGen()
	inst.resetAcq()
	return inst
}

func (inst *instrument) resetGen() {
	for i := range inst.gen {
		inst.gen[i] = GenState{Decimation: 1, Mode: "CONTINUOUS", Cycles: 1, Reps: 1, Period: 1}
	}
}

func (inst *instrument) resetAcq() {
	inst.acq.split = false
	inst.acq.dec = 1
	inst.acq.level = 0
	inst.acq.delay = 0
	for i := range inst.acq.ch {
		inst.acq.ch[i] = acqChan{dec: 1}
	}
}

func (inst *instrument) push(err error) {
	ierr, ok := err.(*instError)
	if !ok {
		ierr = &instError{code: codeExecution, msg: err.Error()}
	}
	inst.errs = append(inst.errs, ierr)
}

func (inst *instrument) pop() string {
	if len(inst.errs) == 0 {
		return `0,"No error"`
	}
	e := inst.errs[0]
	inst.errs = inst.errs[1:]
	return fmt.Sprintf("%d,%q", e.code, e.msg)
}

type command struct {
	re *regexp.Regexp
	f  func(inst *instrument, m []string, args string) (string, error)
}

var commands []command

func cmd(pattern string, f func(inst *instrument, m []string, args string) (string, error)) {
	commands = append(commands, command{
		re: regexp.MustCompile("^" + pattern + "$"),
		f:  f,
	})
}

func (inst *instrument) exec(hdr, args string) (string, error) {
	for _, c := range commands {
		m := c.re.FindStringSubmatch(hdr)
		if m == nil {
			continue
		}
		return c.f(inst, m, args)
	}
	return "", errorf(codeCommand, "Command error: unknown header %q", hdr)
}

func init() {
	cmd(`\*IDN\?`, func(inst *instrument, m []string, args string) (string, error) {
		return "REDPITAYA,INSTR2020,0,SIM", nil
	})
	cmd(`\*RST`, func(inst *instrument, m []string, args string) (string, error) {
		inst.resetGen()
		inst.resetAcq()
		inst.errs = nil
		return "", nil
	})
	cmd(`SYST(?:EM)?:ERR(?:OR)?(?::NEXT)?\?`, func(inst *instrument, m []string, args string) (string, error) {
		return inst.pop(), nil
	})

	initGen()
	initAcq()
	initDIO()
}

func channel(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON", "1":
		return true, nil
	case "OFF", "0":
		return false, nil
	}
	return false, errorf(codeExecution, "invalid boolean %q", s)
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}

func parseInt(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errorf(codeExecution, "invalid integer %q", s)
	}
	return v, nil
}

func parseFloats(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	if s == "" {
		return nil, nil
	}
	toks := strings.Split(s, ",")
	vs := make([]float32, len(toks))
	for i, tok := range toks {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 32)
		if err != nil {
			return nil, errorf(codeExecution, "invalid value #%d %q", i, tok)
		}
		vs[i] = float32(v)
	}
	return vs, nil
}
