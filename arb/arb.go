// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arb manages a catalog of arbitrary waveforms.
//
// Waveforms are stored as CSV files (one sample per line or comma
// separated values, full scale ±1.0, at most MaxSamples samples) in a
// directory. Their display names and colors are persisted in an SQL
// database (sqlite3 by default, mysql supported).
package arb // import "github.com/go-lpc/redpitaya/arb"

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// MaxSamples is the largest number of samples of an ARB signal.
const MaxSamples = 16384

var (
	// ErrNotFound is returned when a signal index or name is unknown.
	ErrNotFound = errors.New("arb: signal not found")

	// ErrInvalid is returned when the data of an invalid signal is requested.
	ErrInvalid = errors.New("arb: invalid signal")

	// ErrDuplicate is returned when renaming a signal to an existing name.
	ErrDuplicate = errors.New("arb: duplicate signal name")
)

// palette holds the default colors assigned to new signals.
var palette = []uint32{
	0xff0000, 0x00ff00, 0x0000ff, 0xffff00, 0xff00ff, 0x00ffff, 0xff8000, 0x8000ff,
}

// File describes an ARB file of the catalog.
type File struct {
	Name     string
	Color    uint32 // RGB
	FileName string
	Valid    bool
}

type entry struct {
	File
	data []float32
	err  error // why the file is invalid
}

type config struct {
	msg *log.Logger
	drv string
	dsn string
}

// Option configures a Catalog.
type Option func(*config)

// WithLogger sets the catalog logger.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithDB sets the database driver ("sqlite3" or "mysql") and data source
// name holding the metadata.
func WithDB(driver, dsn string) Option {
	return func(cfg *config) {
		cfg.drv = driver
		cfg.dsn = dsn
	}
}

// Catalog is a catalog of ARB files.
// Catalog is safe for concurrent use.
type Catalog struct {
	dir string
	msg *log.Logger
	db  *store

	mu    sync.RWMutex
	files []entry
}

// Open opens the catalog of the ARB files in dir.
// The metadata database defaults to an sqlite3 arb.db file in dir.
func Open(dir string, opts ...Option) (*Catalog, error) {
	cfg := config{
		msg: log.New(os.Stdout, "arb: ", 0),
		drv: "sqlite3",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.dsn == "" && cfg.drv == "sqlite3" {
		cfg.dsn = filepath.Join(dir, "arb.db")
	}

	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("arb: could not stat ARB directory: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("arb: %q is not a directory", dir)
	}

	db, err := openStore(cfg.drv, cfg.dsn)
	if err != nil {
		return nil, err
	}

	return &Catalog{dir: dir, msg: cfg.msg, db: db}, nil
}

// Close closes the metadata database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Load scans the ARB directory, parses every CSV file and synchronizes
// the metadata database.
func (c *Catalog) Load(ctx context.Context) error {
	fnames, err := filepath.Glob(filepath.Join(c.dir, "*.csv"))
	if err != nil {
		return fmt.Errorf("arb: could not list ARB files: %w", err)
	}
	sort.Strings(fnames)

	known, err := c.db.all(ctx)
	if err != nil {
		return err
	}

	var (
		files = make([]entry, 0, len(fnames))
		names = make(map[string]bool, len(fnames))
		keep  = make(map[string]bool, len(fnames))
	)
	for _, m := range known {
		names[m.name] = true
	}

	for i, fname := range fnames {
		base := filepath.Base(fname)
		keep[base] = true

		e := entry{File: File{FileName: base}}
		e.data, e.err = ReadSignal(fname)
		e.Valid = e.err == nil
		if e.err != nil {
			c.msg.Printf("invalid ARB file %q: %+v", base, e.err)
		}

		m, ok := known[base]
		if !ok {
			m = meta{
				file:  base,
				name:  uniqueName(names, strings.TrimSuffix(base, filepath.Ext(base))),
				color: palette[i%len(palette)],
			}
			names[m.name] = true
			err = c.db.put(ctx, m)
			if err != nil {
				return err
			}
		}
		e.Name = m.name
		e.Color = m.color
		files = append(files, e)
	}

	err = c.db.prune(ctx, known, keep)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.files = files
	c.mu.Unlock()
	return nil
}

func uniqueName(names map[string]bool, name string) string {
	if !names[name] {
		return name
	}
	for i := 1; ; i++ {
		v := fmt.Sprintf("%s_%d", name, i)
		if !names[v] {
			return v
		}
	}
}

// Count returns the number of files of the catalog.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.files)
}

// Files returns the description of all the files of the catalog.
func (c *Catalog) Files() []File {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]File, len(c.files))
	for i, e := range c.files {
		out[i] = e.File
	}
	return out
}

func (c *Catalog) at(i int) (entry, error) {
	if i < 0 || i >= len(c.files) {
		return entry{}, fmt.Errorf("arb: index %d out of range [0, %d): %w", i, len(c.files), ErrNotFound)
	}
	return c.files[i], nil
}

func (c *Catalog) byName(name string) (int, error) {
	for i, e := range c.files {
		if e.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("arb: no signal named %q: %w", name, ErrNotFound)
}

// Name returns the display name of the i-th file.
func (c *Catalog) Name(i int) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, err := c.at(i)
	return e.Name, err
}

// Color returns the RGB color of the i-th file.
func (c *Catalog) Color(i int) (uint32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, err := c.at(i)
	return e.Color, err
}

// FileName returns the file name of the i-th file.
func (c *Catalog) FileName(i int) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, err := c.at(i)
	return e.FileName, err
}

// Signal copies the samples of the i-th file into buf and returns the
// number of samples of the signal.
func (c *Catalog) Signal(i int, buf []float32) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, err := c.at(i)
	if err != nil {
		return 0, err
	}
	return e.copyTo(buf)
}

// SignalByName copies the samples of the named signal into buf and
// returns the number of samples of the signal.
func (c *Catalog) SignalByName(name string, buf []float32) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, err := c.byName(name)
	if err != nil {
		return 0, err
	}
	return c.files[i].copyTo(buf)
}

func (e entry) copyTo(buf []float32) (int, error) {
	if !e.Valid {
		return 0, fmt.Errorf("arb: signal %q: %v: %w", e.Name, e.err, ErrInvalid)
	}
	if len(buf) < len(e.data) {
		return 0, fmt.Errorf("arb: buffer too small for signal %q (len=%d, want=%d)", e.Name, len(buf), len(e.data))
	}
	return copy(buf, e.data), nil
}

// IsValid reports whether the named signal holds valid data.
func (c *Catalog) IsValid(name string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, err := c.byName(name)
	if err != nil {
		return false, err
	}
	return c.files[i].Valid, nil
}

// Rename changes the display name of the i-th file.
// Names are unique within the catalog.
func (c *Catalog) Rename(ctx context.Context, i int, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("arb: empty signal name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.at(i)
	if err != nil {
		return err
	}
	if j, err := c.byName(name); err == nil && j != i {
		return fmt.Errorf("arb: could not rename %q to %q: %w", e.Name, name, ErrDuplicate)
	}

	err = c.db.put(ctx, meta{file: e.FileName, name: name, color: e.Color})
	if err != nil {
		return err
	}
	c.files[i].Name = name
	return nil
}

// SetColor changes the RGB color of the i-th file.
func (c *Catalog) SetColor(ctx context.Context, i int, rgb uint32) error {
	if rgb > 0xffffff {
		return fmt.Errorf("arb: invalid RGB color 0x%x", rgb)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.at(i)
	if err != nil {
		return err
	}
	err = c.db.put(ctx, meta{file: e.FileName, name: e.Name, color: rgb})
	if err != nil {
		return err
	}
	c.files[i].Color = rgb
	return nil
}

// valid returns the valid entries of the catalog.
func (c *Catalog) valid() []entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]entry, 0, len(c.files))
	for _, e := range c.files {
		if e.Valid {
			out = append(out, e)
		}
	}
	return out
}
