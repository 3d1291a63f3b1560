package rules

import (
	"math"
	"testing"

	qcrundomain "iqc-platform/internal/qcrun/domain"
)

func TestComputeZ_KnownOffsets(t *testing.T) {
	// computeZ(mean + k*sd, mean, sd) == k for finite k, sd > 0
	cases := []float64{-3.5, -2, -1, -0.25, 0, 0.25, 1, 2, 3.5, 10}
	for _, k := range cases {
		mean, sd := 100.0, 5.0
		z := ComputeZ(mean+k*sd, mean, sd)
		if z == nil {
			t.Fatalf("ComputeZ(k=%v) returned nil", k)
		}
		if math.Abs(*z-k) > 1e-9 {
			t.Errorf("ComputeZ(k=%v) = %v, want %v", k, *z, k)
		}
	}
}

func TestComputeZ_Undefined(t *testing.T) {
	cases := []struct {
		name            string
		value, mean, sd float64
	}{
		{"zero sd", 100, 100, 0},
		{"negative sd", 100, 100, -1},
		{"nan value", math.NaN(), 100, 5},
		{"nan mean", 100, math.NaN(), 5},
		{"inf value", math.Inf(1), 100, 5},
		{"inf sd", 100, 100, math.Inf(1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if z := ComputeZ(tc.value, tc.mean, tc.sd); z != nil {
				t.Errorf("ComputeZ = %v, want nil", *z)
			}
		})
	}
}

func TestDetermineSide(t *testing.T) {
	cases := []struct {
		z    float64
		want qcrundomain.Side
	}{
		{0, qcrundomain.SideOn},
		{0.05, qcrundomain.SideOn},
		{-0.05, qcrundomain.SideOn},
		{0.050001, qcrundomain.SideAbove},
		{-0.050001, qcrundomain.SideBelow},
		{2.5, qcrundomain.SideAbove},
		{-2.5, qcrundomain.SideBelow},
	}
	for _, tc := range cases {
		if got := DetermineSide(tc.z, DefaultSideTolerance); got != tc.want {
			t.Errorf("DetermineSide(%v) = %q, want %q", tc.z, got, tc.want)
		}
	}
}

func TestDetermineSide_CustomTolerance(t *testing.T) {
	if got := DetermineSide(0.2, 0.5); got != qcrundomain.SideOn {
		t.Errorf("DetermineSide(0.2, tol=0.5) = %q, want on", got)
	}
	// Non-positive tolerance falls back to the default band.
	if got := DetermineSide(0.03, 0); got != qcrundomain.SideOn {
		t.Errorf("DetermineSide(0.03, tol=0) = %q, want on", got)
	}
}

func TestSameSide(t *testing.T) {
	cases := []struct {
		z1, z2 float64
		want   bool
	}{
		{1, 2, true},
		{-1, -2, true},
		{1, -1, false},
		{0, 1, false},  // "on" never shares a side
		{0, 0, false},  // two "on" points do not share a side
		{0.01, 1, false},
	}
	for _, tc := range cases {
		if got := SameSide(tc.z1, tc.z2, DefaultSideTolerance); got != tc.want {
			t.Errorf("SameSide(%v, %v) = %v, want %v", tc.z1, tc.z2, got, tc.want)
		}
	}
}
