// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/go-kratos/kratos/v2/log"
)

// DllImage owns the raw bytes of a loaded managed-assembly container for
// as long as it is alive, plus everything decoded from them (§3). String
// and blob heap contents are shared by reference with the reflection
// layer built on top of it.
type DllImage struct {
	DOSHeader ImageDOSHeader `json:"dos_header"`
	PE        PEInfo         `json:"pe"`
	Sections  []Section      `json:"sections"`
	CLI       CLIData        `json:"cli"`
	FileInfo  FileInfo       `json:"file_info"`

	data   []byte
	mm     mmap.MMap
	f      *os.File
	opts   *Options
	logger *log.Helper

	reflection *ReflectionInfo
}

// Options configures a load. The zero value is a valid Options.
type Options struct {
	// Fast skips eager method-body materialization for every method in a
	// class when true; bodies are parsed lazily on the first
	// MethodInfo.Body call (§4.10).
	Fast bool

	// MaxMethodBodySize caps the `code_size` a method body decoder will
	// accept, defaulting to MaxDefaultMethodBodySize.
	MaxMethodBodySize uint32

	// StepLimit bounds the number of instructions an exec() call will run
	// before returning StepLimitExceededError, when the caller does not
	// supply one directly to Execute. Zero means unbounded.
	StepLimit uint64

	// Logger is a custom structured logger; if nil, a filtered stdout
	// logger is used (§4.10).
	Logger log.Logger
}

// MaxDefaultMethodBodySize is the default cap on a single method body's
// code_size, guarding against a corrupt fat header claiming an enormous
// size.
const MaxDefaultMethodBodySize = 16 * 1024 * 1024

func normalizeOptions(opts *Options) *Options {
	if opts == nil {
		opts = &Options{}
	}
	if opts.MaxMethodBodySize == 0 {
		opts.MaxMethodBodySize = MaxDefaultMethodBodySize
	}
	return opts
}

// NewBytes instantiates a DllImage from an in-memory buffer. This is the
// primary façade entrypoint named by spec.md §6 (`load(bytes)`); see Load.
func NewBytes(data []byte, opts *Options) (*DllImage, error) {
	opts = normalizeOptions(opts)
	img := &DllImage{
		data:   data,
		opts:   opts,
		logger: helperFor(opts.Logger),
	}
	return img, nil
}

// NewFile memory-maps an assembly from disk, mirroring the teacher's
// mmap-backed File.New (§4.13 domain stack: mmap-go). The in-memory
// Load/NewBytes path remains the spec-mandated entrypoint; this is an
// ambient convenience for the CLI driver (§6).
func NewFile(name string, opts *Options) (*DllImage, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	opts = normalizeOptions(opts)
	img := &DllImage{
		data:   data,
		mm:     data,
		f:      f,
		opts:   opts,
		logger: helperFor(opts.Logger),
	}
	return img, nil
}

// Close releases the mmap (if any) and the backing file handle.
func (img *DllImage) Close() error {
	if img.mm != nil {
		_ = img.mm.Unmap()
	}
	if img.f != nil {
		return img.f.Close()
	}
	return nil
}

// Parse runs the full decode pipeline: PE envelope, CLI header and
// metadata root, tables stream, string and blob heaps (§4.2-§4.5).
func (img *DllImage) Parse() error {
	c := NewByteCursor(img.data)

	if err := img.ParseDOSHeader(c); err != nil {
		return &LoadError{Stage: "dos header", Err: err}
	}
	if err := img.ParseNTHeader(c); err != nil {
		return &LoadError{Stage: "nt header", Err: err}
	}
	if err := img.ParseSections(c); err != nil {
		return &LoadError{Stage: "sections", Err: err}
	}
	if err := img.parseCLIHeaderDirectory(c); err != nil {
		return &LoadError{Stage: "cli header", Err: err}
	}
	return nil
}

// Reflection lazily constructs the reflection-layer cache over this image
// (§4.7). Repeated calls return the same cache.
func (img *DllImage) Reflection() *ReflectionInfo {
	if img.reflection == nil {
		img.reflection = newReflectionInfo(img)
	}
	return img.reflection
}
