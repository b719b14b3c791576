// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

import "testing"

func TestIsBitSet(t *testing.T) {
	n := uint64(0b1010)
	cases := map[int]bool{0: false, 1: true, 2: false, 3: true, 4: false}
	for pos, want := range cases {
		if got := IsBitSet(n, pos); got != want {
			t.Errorf("IsBitSet(%b, %d) = %v, want %v", n, pos, got, want)
		}
	}
}

func TestPopcount64(t *testing.T) {
	tests := []struct {
		in  uint64
		out int
	}{
		{0, 0},
		{1, 1},
		{0b1010101, 4},
		{^uint64(0), 64},
	}
	for _, tt := range tests {
		if got := popcount64(tt.in); got != tt.out {
			t.Errorf("popcount64(%b) = %d, want %d", tt.in, got, tt.out)
		}
	}
}

func TestCeilLog2(t *testing.T) {
	tests := []struct {
		in  int
		out uint
	}{
		{0, 0}, {1, 0}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {8, 3}, {9, 4}, {22, 5},
	}
	for _, tt := range tests {
		if got := ceilLog2(tt.in); got != tt.out {
			t.Errorf("ceilLog2(%d) = %d, want %d", tt.in, got, tt.out)
		}
	}
}
