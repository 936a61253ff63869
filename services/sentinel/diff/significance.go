// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultLowConfidenceThreshold is the smallest per-side sample size whose
// p-value is trusted without a low-confidence flag.
const DefaultLowConfidenceThreshold = 30

// TestResult is the outcome of a two-sample proportion test.
type TestResult struct {
	// T is the Welch t statistic. Zero when not tested.
	T float64 `json:"t"`

	// DF is the Welch-Satterthwaite degrees of freedom. Zero when not tested.
	DF float64 `json:"df"`

	// PValue is the two-sided p-value, 1 when not tested.
	PValue float64 `json:"p_value"`

	// Tested is false when either sample was too small or had no variance.
	Tested bool `json:"tested"`
}

// WelchProportionTest compares two sample proportions.
//
// Description:
//
//	Each side is treated as a sample with mean p and standard deviation
//	sqrt(p(1-p)) over n observations. The Welch t statistic and the
//	Welch-Satterthwaite degrees of freedom give a two-sided p-value from
//	the Student-t survival function. Both n must be at least 2 and the
//	pooled standard error must be positive; otherwise the result is
//	reported untested with p-value 1.
//
// Inputs:
//
//	p1, n1 - Left proportion and sample size.
//	p2, n2 - Right proportion and sample size.
//
// Outputs:
//
//	TestResult - Never contains NaN.
func WelchProportionTest(p1 float64, n1 uint64, p2 float64, n2 uint64) TestResult {
	untested := TestResult{PValue: 1}
	if n1 < 2 || n2 < 2 {
		return untested
	}

	s1 := p1 * (1 - p1) / float64(n1)
	s2 := p2 * (1 - p2) / float64(n2)
	se2 := s1 + s2
	if se2 <= 0 || math.IsNaN(se2) {
		return untested
	}

	t := (p1 - p2) / math.Sqrt(se2)
	df := se2 * se2 / (s1*s1/float64(n1-1) + s2*s2/float64(n2-1))
	if math.IsNaN(df) || df <= 0 {
		return untested
	}

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.Survival(math.Abs(t))
	if p > 1 {
		p = 1
	}
	return TestResult{T: t, DF: df, PValue: p, Tested: true}
}
