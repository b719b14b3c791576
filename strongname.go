// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

import (
	"encoding/hex"

	"go.mozilla.org/pkcs7"
)

// StrongNameInfo summarizes the PKCS#7 blob referenced by
// ImageCOR20Header.StrongNameSignature, when present (§4.13 domain stack).
// This is inspection only: no trust-chain verification is attempted
// (non-goal, §1) and no signature is recomputed against the image bytes.
type StrongNameInfo struct {
	Present bool   `json:"present"`
	Valid   bool   `json:"valid"`
	Issuer  string `json:"issuer,omitempty"`
	Serial  string `json:"serial,omitempty"`
}

// StrongName inspects the strong-name signature directory of the CLR
// header, if any. It returns a zero-value, Present=false StrongNameInfo
// when the directory entry is empty — most CLI images distributed as
// plain DLLs carry no such signature.
func (img *DllImage) StrongName() (StrongNameInfo, error) {
	dir := img.CLI.CLRHeader.StrongNameSignature
	if dir.Size == 0 {
		return StrongNameInfo{}, nil
	}

	offset := img.rvaToFileOffset(dir.VirtualAddress)
	if uint64(offset)+uint64(dir.Size) > uint64(len(img.data)) {
		return StrongNameInfo{}, &ReadOverflowError{Pos: int(offset), Want: int(dir.Size), Size: len(img.data)}
	}
	raw := img.data[offset : offset+dir.Size]

	info := StrongNameInfo{Present: true}

	p7, err := pkcs7.Parse(raw)
	if err != nil {
		// A strong-name directory filled with a raw hash rather than a
		// PKCS#7 structure is legitimate (delay-signed or hash-only
		// assemblies); report presence without a parse failure.
		return info, nil
	}

	info.Valid = true
	if len(p7.Signers) > 0 {
		info.Serial = hex.EncodeToString(p7.Signers[0].IssuerAndSerialNumber.SerialNumber.Bytes())
	}
	for _, cert := range p7.Certificates {
		info.Issuer = cert.Issuer.CommonName
		break
	}
	return info, nil
}
