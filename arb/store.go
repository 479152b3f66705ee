// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

const dbTimeout = 5 * time.Second

// store persists the metadata of ARB files.
type store struct {
	db  *sql.DB
	drv string
}

// meta is the metadata of an ARB file.
type meta struct {
	file  string
	name  string
	color uint32
}

func openStore(drv, dsn string) (*store, error) {
	db, err := sql.Open(drv, dsn)
	if err != nil {
		return nil, fmt.Errorf("arb: could not open %s db: %w", drv, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("arb: could not ping %s db: %w", drv, err)
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS arb_files (
		file  VARCHAR(255) NOT NULL PRIMARY KEY,
		name  VARCHAR(255) NOT NULL,
		color INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("arb: could not create arb_files table: %w", err)
	}

	return &store{db: db, drv: drv}, nil
}

func (st *store) Close() error {
	return st.db.Close()
}

// all returns the metadata of all known files, indexed by file name.
func (st *store) all(ctx context.Context) (map[string]meta, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := st.db.QueryContext(ctx, "SELECT file, name, color FROM arb_files")
	if err != nil {
		return nil, fmt.Errorf("arb: could not query ARB metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]meta)
	for rows.Next() {
		var (
			m     meta
			color int64
		)
		err = rows.Scan(&m.file, &m.name, &color)
		if err != nil {
			return nil, fmt.Errorf("arb: could not get ARB metadata: %w", err)
		}
		m.color = uint32(color)
		out[m.file] = m
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("arb: could not scan db for ARB metadata: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("arb: context error while retrieving ARB metadata: %w", err)
	}

	return out, nil
}

// put inserts or replaces the metadata of a file.
func (st *store) put(ctx context.Context, m meta) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := st.db.ExecContext(ctx,
		"REPLACE INTO arb_files (file, name, color) VALUES (?, ?, ?)",
		m.file, m.name, int64(m.color),
	)
	if err != nil {
		return fmt.Errorf("arb: could not store metadata of %q: %w", m.file, err)
	}
	return nil
}

// prune removes the metadata of files not in keep.
func (st *store) prune(ctx context.Context, known map[string]meta, keep map[string]bool) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	for file := range known {
		if keep[file] {
			continue
		}
		_, err := st.db.ExecContext(ctx, "DELETE FROM arb_files WHERE file = ?", file)
		if err != nil {
			return fmt.Errorf("arb: could not remove metadata of %q: %w", file, err)
		}
	}
	return nil
}
