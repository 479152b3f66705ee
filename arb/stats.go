// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arb

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stat holds summary statistics of a signal.
type Stat struct {
	Min, Max float64
	Mean     float64
	Std      float64 // population standard deviation
}

// Stats computes summary statistics of sig.
func Stats(sig []float32) Stat {
	if len(sig) == 0 {
		return Stat{}
	}
	xs := make([]float64, len(sig))
	for i, v := range sig {
		xs[i] = float64(v)
	}
	mean, std := stat.PopMeanStdDev(xs, nil)
	return Stat{
		Min:  floats.Min(xs),
		Max:  floats.Max(xs),
		Mean: mean,
		Std:  std,
	}
}
