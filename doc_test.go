// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package redpitaya

import (
	"runtime/debug"
	"testing"
)

func TestVersion(t *testing.T) {
	for _, tc := range []struct {
		name    string
		b       *debug.BuildInfo
		version string
		sum     string
	}{
		{name: "nil"},
		{
			name:    "main",
			b:       &debug.BuildInfo{Main: debug.Module{Path: root, Version: "(devel)"}},
			version: "(devel)",
		},
		{
			name: "dep",
			b: &debug.BuildInfo{
				Main: debug.Module{Path: "example.org/daq"},
				Deps: []*debug.Module{
					{Path: "golang.org/x/sync", Version: "v0.1.0"},
					{Path: root, Version: "v0.3.1", Sum: "h1:xyz"},
				},
			},
			version: "v0.3.1",
			sum:     "h1:xyz",
		},
		{
			name: "replace-path-version",
			b: &debug.BuildInfo{
				Deps: []*debug.Module{{
					Path: root, Version: "v0.3.1",
					Replace: &debug.Module{Path: "example.org/fork", Version: "v0.3.2", Sum: "h1:abc"},
				}},
			},
			version: "example.org/fork v0.3.2",
			sum:     "h1:abc",
		},
		{
			name: "replace-version",
			b: &debug.BuildInfo{
				Deps: []*debug.Module{{
					Path: root, Version: "v0.3.1",
					Replace: &debug.Module{Version: "v0.3.2", Sum: "h1:abc"},
				}},
			},
			version: "v0.3.2",
			sum:     "h1:abc",
		},
		{
			name: "replace-path",
			b: &debug.BuildInfo{
				Deps: []*debug.Module{{
					Path: root, Version: "v0.3.1",
					Replace: &debug.Module{Path: "../redpitaya"},
				}},
			},
			version: "../redpitaya",
		},
		{
			name: "replace-empty",
			b: &debug.BuildInfo{
				Deps: []*debug.Module{{
					Path: root, Version: "v0.3.1",
					Replace: &debug.Module{},
				}},
			},
			version: "v0.3.1*",
		},
		{
			name: "missing",
			b:    &debug.BuildInfo{Main: debug.Module{Path: "example.org/daq"}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			version, sum := versionOf(tc.b)
			if version != tc.version {
				t.Fatalf("invalid version: got=%q, want=%q", version, tc.version)
			}
			if sum != tc.sum {
				t.Fatalf("invalid sum: got=%q, want=%q", sum, tc.sum)
			}
		})
	}
}
