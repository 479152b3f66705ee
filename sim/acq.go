// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"strconv"
	"strings"
)

func initAcq() {
	cmd(`ACQ:RST`, func(inst *instrument, m []string, args string) (string, error) {
		inst.resetAcq()
		return "", nil
	})
	cmd(`ACQ:DEC(?::FACTOR)?`, func(inst *instrument, m []string, args string) (string, error) {
		n, err := parseDecimation(args)
		if err != nil {
			return "", err
		}
		inst.acq.dec = n
		for i := range inst.acq.ch {
			inst.acq.ch[i].dec = n
		}
		return "", nil
	})
	cmd(`ACQ:DEC(?::FACTOR)?\?`, func(inst *instrument, m []string, args string) (string, error) {
		return strconv.Itoa(inst.acq.dec), nil
	})
	cmd(`ACQ:DEC(?::FACTOR)?:CH([1-4])`, func(inst *instrument, m []string, args string) (string, error) {
		n, err := parseDecimation(args)
		if err != nil {
			return "", err
		}
		inst.acq.ch[channel(m[1])-1].dec = n
		return "", nil
	})
	cmd(`ACQ:SPLIT:TRIG`, func(inst *instrument, m []string, args string) (string, error) {
		v, err := parseOnOff(args)
		if err != nil {
			return "", err
		}
		inst.acq.split = v
		return "", nil
	})
	cmd(`ACQ:TRIG:LEV(?:EL)?`, func(inst *instrument, m []string, args string) (string, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(args), 64)
		if err != nil {
			return "", errorf(codeExecution, "invalid trigger level %q", args)
		}
		inst.acq.level = v
		return "", nil
	})
	cmd(`ACQ:TRIG:LEV(?:EL)?:CH([1-4])`, func(inst *instrument, m []string, args string) (string, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(args), 64)
		if err != nil {
			return "", errorf(codeExecution, "invalid trigger level %q", args)
		}
		inst.acq.ch[channel(m[1])-1].level = v
		return "", nil
	})
	cmd(`ACQ:TRIG:DLY:CH([1-4])`, func(inst *instrument, m []string, args string) (string, error) {
		n, err := parseInt(args)
		if err != nil {
			return "", err
		}
		inst.acq.ch[channel(m[1])-1].delay = n
		return "", nil
	})
	cmd(`ACQ:TRIG:DLY`, func(inst *instrument, m []string, args string) (string, error) {
		n, err := parseInt(args)
		if err != nil {
			return "", err
		}
		inst.acq.delay = n
		return "", nil
	})

	cmd(`ACQ:START`, func(inst *instrument, m []string, args string) (string, error) {
		for i := range inst.acq.ch {
			inst.acq.ch[i].arm()
		}
		return "", nil
	})
	cmd(`ACQ:START:CH([1-4])`, func(inst *instrument, m []string, args string) (string, error) {
		if !inst.acq.split {
			return "", errorf(codeExecution, "split trigger mode is disabled")
		}
		inst.acq.ch[channel(m[1])-1].arm()
		return "", nil
	})
	cmd(`ACQ:STOP`, func(inst *instrument, m []string, args string) (string, error) {
		for i := range inst.acq.ch {
			inst.acq.ch[i].started = false
		}
		return "", nil
	})
	cmd(`ACQ:TRIG`, func(inst *instrument, m []string, args string) (string, error) {
		src, err := parseSource(args)
		if err != nil {
			return "", err
		}
		for i := range inst.acq.ch {
			inst.acq.ch[i].src = src
		}
		return "", nil
	})
	cmd(`ACQ:TRIG:CH([1-4])`, func(inst *instrument, m []string, args string) (string, error) {
		src, err := parseSource(args)
		if err != nil {
			return "", err
		}
		inst.acq.ch[channel(m[1])-1].src = src
		return "", nil
	})
	cmd(`ACQ:TRIG:STAT\?`, func(inst *instrument, m []string, args string) (string, error) {
		state := inst.trigState(0)
		for i := 1; i < len(inst.acq.ch); i++ {
			inst.trigState(i)
		}
		return state, nil
	})
	cmd(`ACQ:TRIG:STAT:CH([1-4])\?`, func(inst *instrument, m []string, args string) (string, error) {
		return inst.trigState(channel(m[1]) - 1), nil
	})
	cmd(`ACQ:TRIG:FILL\?`, func(inst *instrument, m []string, args string) (string, error) {
		return fill(inst.acq.ch[0].trig), nil
	})
	cmd(`ACQ:TRIG:FILL:CH([1-4])\?`, func(inst *instrument, m []string, args string) (string, error) {
		return fill(inst.acq.ch[channel(m[1])-1].trig), nil
	})
	cmd(`ACQ:TPOS\?`, func(inst *instrument, m []string, args string) (string, error) {
		return strconv.Itoa(inst.trigPos(inst.acq.delay)), nil
	})
	cmd(`ACQ:TPOS:CH([1-4])\?`, func(inst *instrument, m []string, args string) (string, error) {
		return strconv.Itoa(inst.trigPos(inst.acq.ch[channel(m[1])-1].delay)), nil
	})
	cmd(`ACQ:SOUR([1-4]):DATA\?`, func(inst *instrument, m []string, args string) (string, error) {
		ch := channel(m[1])
		if !inst.acq.ch[ch-1].trig {
			return "", errorf(codeExecution, "channel %d has not triggered", ch)
		}
		wave := inst.gen[(ch-1)%2].output()
		var o strings.Builder
		o.WriteString("{")
		for i := 0; i < inst.cfg.acqSize; i++ {
			if i > 0 {
				o.WriteString(",")
			}
			var v float32
			if len(wave) > 0 {
				v = wave[i%len(wave)]
			}
			o.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
		}
		o.WriteString("}")
		return o.String(), nil
	})
}

func (c *acqChan) arm() {
	c.started = true
	c.trig = false
	c.polls = 0
}

// trigState reports TD once the armed channel i has triggered.
func (inst *instrument) trigState(i int) string {
	c := &inst.acq.ch[i]
	if !c.trig && c.started && c.src != "" && c.src != "DISABLED" {
		if c.src == "NOW" || c.polls >= inst.cfg.latency {
			c.trig = true
		}
		c.polls++
	}
	if c.trig {
		return "TD"
	}
	return "WAIT"
}

// trigPos returns the write pointer at trigger time for a trigger delay.
func (inst *instrument) trigPos(delay int) int {
	n := inst.cfg.acqSize
	if n <= 0 {
		return 0
	}
	return ((delay % n) + n) % n
}

func fill(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func parseDecimation(args string) (int, error) {
	n, err := parseInt(args)
	if err != nil {
		return 0, err
	}
	if n < 1 || n > 65536 {
		return 0, errorf(codeRange, "Data out of range: decimation %d", n)
	}
	return n, nil
}

func parseSource(args string) (string, error) {
	src := strings.ToUpper(strings.TrimSpace(args))
	switch src {
	case "DISABLED", "NOW",
		"CH1_PE", "CH1_NE", "CH2_PE", "CH2_NE",
		"CH3_PE", "CH3_NE", "CH4_PE", "CH4_NE",
		"EXT_PE", "EXT_NE", "AWG_PE", "AWG_NE":
		return src, nil
	}
	return "", errorf(codeExecution, "invalid trigger source %q", args)
}
