// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

import "golang.org/x/text/encoding/unicode"

// decodeUTF16LE decodes a UTF-16LE byte run, adapted from the teacher's
// DecodeUTF16String (helper.go) for the `#US` heap (§4.13 domain stack).
func decodeUTF16LE(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	s, err := decoder.Bytes(b)
	if err != nil {
		return "", err
	}
	return string(s), nil
}
