// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-lpc/redpitaya/scpi"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

func (app *app) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive SCPI shell",
		Long: `shell opens an interactive session with the instrument.

Commands whose first word ends with '?' are sent as queries and their
reply is displayed. Other commands are sent as-is. Type 'quit' or
'exit' (or Ctrl-D) to leave the shell.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := app.dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			term := liner.NewLiner()
			defer term.Close()
			term.SetCtrlCAborts(true)

			hist := historyFile()
			if f, err := os.Open(hist); err == nil {
				_, _ = term.ReadHistory(f)
				f.Close()
			}
			defer func() {
				f, err := os.Create(hist)
				if err != nil {
					return
				}
				defer f.Close()
				_, _ = term.WriteHistory(f)
			}()

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "connected to %s\n", c.RemoteAddr())
			for {
				line, err := term.Prompt("rp> ")
				if err != nil {
					if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
						return nil
					}
					return fmt.Errorf("could not read command: %w", err)
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				term.AppendHistory(line)

				switch strings.ToLower(line) {
				case "quit", "exit":
					return nil
				}

				reply, err := execLine(ctx, c, line)
				switch {
				case err != nil:
					fmt.Fprintf(w, "error: %+v\n", err)
				case reply != "":
					fmt.Fprintf(w, "%s\n", reply)
				}
			}
		},
	}
}

// execLine sends a shell line to the instrument and returns the reply of
// queries.
func execLine(ctx context.Context, c *scpi.Client, line string) (string, error) {
	name := line
	if i := strings.IndexByte(line, ' '); i >= 0 {
		name = line[:i]
	}
	if strings.HasSuffix(name, "?") {
		return c.Query(ctx, line)
	}
	return "", c.Tx(ctx, line)
}

func historyFile() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ".rpctl_history")
}
