// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

// FileAlignmentHardcodedValue is the constant subtracted from
// base_of_code to derive the RVA-to-file-offset delta (§3).
const FileAlignmentHardcodedValue = 0x200

// TinyPESize is the size in bytes of the smallest possible PE executable.
// The decoder does not check it; a buffer too short for the envelope fails
// with *ReadOverflowError on the first read past its end.
const TinyPESize = 97

// IsBitSet returns true when bit pos of n is set — used to walk the
// `valid`/`sorted` table bitmaps (§4.5) and the `heap_sizes` flags (§4.4).
func IsBitSet(n uint64, pos int) bool {
	return n&(1<<uint(pos)) != 0
}

// popcount64 returns the number of set bits in n, used to derive the
// number of row-count entries that follow the tables-stream header
// (§4.5, §8: "popcount(valid) equals the number of row-count entries read").
func popcount64(n uint64) int {
	count := 0
	for n != 0 {
		n &= n - 1
		count++
	}
	return count
}

// ceilLog2 returns ceil(log2(n)) for n >= 1, used to compute the tag-bit
// width `k` of a coded-token column (§4.5).
func ceilLog2(n int) uint {
	if n <= 1 {
		return 0
	}
	k := uint(0)
	v := 1
	for v < n {
		v <<= 1
		k++
	}
	return k
}
