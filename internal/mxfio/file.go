// Package mxfio provides the file abstraction used by the MXF engine: a
// uniform sequential-plus-seek view over disk files, stdin/stdout, a paged
// multi-file backing store, and an in-memory buffer.
//
// Seekability is a first-class query. Operations that require seeking fail
// explicitly with ErrNotSeekable on streams that cannot seek.
package mxfio

import (
	"errors"
	"io"
)

var (
	// ErrNotSeekable is returned by Seek on a stream that cannot seek
	// (other than the forward-only skip supported by stdio streams).
	ErrNotSeekable = errors.New("mxfio: stream is not seekable")
)

// File is the capability set the MXF engine requires from its backing
// store. All offsets are absolute byte offsets from the start of the
// stream (including any run-in).
type File interface {
	io.Reader
	io.Writer
	io.Closer

	// GetByte reads a single byte. It returns io.EOF at end of stream.
	GetByte() (byte, error)

	// PutByte writes a single byte.
	PutByte(b byte) error

	// Seek repositions the stream. Non-seekable streams support only
	// forward skips relative to the current position and return
	// ErrNotSeekable otherwise.
	Seek(offset int64, whence int) (int64, error)

	// Tell returns the current stream position.
	Tell() int64

	// EOF reports whether a previous read hit the end of the stream.
	EOF() bool

	// Size returns the total stream size in bytes, or -1 if unknown.
	Size() int64

	// IsSeekable reports whether Seek supports arbitrary repositioning.
	IsSeekable() bool

	// MinLLen returns the minimum BER length size (1..9) used when
	// writing KLV lengths to this file.
	MinLLen() uint8

	// SetMinLLen sets the minimum BER length size used for writes so
	// lengths can later be rewritten in place.
	SetMinLLen(llen uint8)

	// RunInLen returns the length of the run-in preceding the header
	// partition pack, recorded when the header pack was located.
	RunInLen() uint16

	// SetRunInLen records the run-in length.
	SetRunInLen(n uint16)
}

// fileState carries the per-file settings shared by every File
// implementation.
type fileState struct {
	minLLen  uint8
	runInLen uint16
	eof      bool
}

func (s *fileState) MinLLen() uint8 {
	if s.minLLen == 0 {
		return 1
	}
	return s.minLLen
}

func (s *fileState) SetMinLLen(llen uint8) {
	if llen < 1 {
		llen = 1
	} else if llen > 9 {
		llen = 9
	}
	s.minLLen = llen
}

func (s *fileState) RunInLen() uint16     { return s.runInLen }
func (s *fileState) SetRunInLen(n uint16) { s.runInLen = n }
func (s *fileState) EOF() bool            { return s.eof }
