// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package la

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// SetDecoderSettings updates the settings of the named decoder from a
// JSON object. Keys absent from the object keep their current value.
// Settings are left untouched if the object is invalid.
func (c *Controller) SetDecoderSettings(name, settings string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.decs[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownDecoder, name)
	}

	dec, err := update(e.typ, e.dec, []byte(settings))
	if err != nil {
		return fmt.Errorf("la: could not set %v settings for %q: %w", e.typ, name, err)
	}
	e.dec = dec
	return nil
}

// SetDecoderSettingsUInt sets a single settings key of the named decoder.
func (c *Controller) SetDecoderSettingsUInt(name, key string, v uint32) error {
	raw := []byte("{" + strconv.Quote(key) + ":" + strconv.FormatUint(uint64(v), 10) + "}")
	return c.SetDecoderSettings(name, string(raw))
}

// DecoderSettings returns the settings of the named decoder as a JSON object.
func (c *Controller) DecoderSettings(name string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.decs[name]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownDecoder, name)
	}
	raw, err := json.Marshal(e.dec.settings())
	if err != nil {
		return "", fmt.Errorf("la: could not encode %v settings: %w", e.typ, err)
	}
	return string(raw), nil
}

func update(typ DecoderType, cur decoder, settings []byte) (decoder, error) {
	dec, err := newDecoder(typ)
	if err != nil {
		return nil, err
	}

	old, err := json.Marshal(cur.settings())
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(old, dec.settings())
	if err != nil {
		return nil, err
	}

	jdec := json.NewDecoder(bytes.NewReader(settings))
	jdec.DisallowUnknownFields()
	err = jdec.Decode(dec.settings())
	if err != nil {
		return nil, err
	}

	err = dec.validate()
	if err != nil {
		return nil, err
	}
	return dec, nil
}

func checkLine(name string, line uint32, required bool) error {
	switch {
	case line == 0 && required:
		return fmt.Errorf("missing %s line", name)
	case line > 8:
		return fmt.Errorf("invalid %s line %d (max=8)", name, line)
	}
	return nil
}

// level returns the logic level of the 1-based line in sample v.
func level(v byte, line uint32, invert bool) bool {
	bit := v&(1<<(line-1)) != 0
	return bit != invert
}
