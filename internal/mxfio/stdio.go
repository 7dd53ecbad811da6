package mxfio

import (
	"bufio"
	"io"
	"os"
)

// StdioFile wraps a non-seekable stream (typically stdin or stdout) with
// read-through buffering and a forward-only skip. Seek supports only
// non-negative offsets relative to the current position; anything else
// fails with ErrNotSeekable.
type StdioFile struct {
	fileState
	r   *bufio.Reader
	w   *bufio.Writer
	pos int64
}

// Stdin returns a read-only File over standard input.
func Stdin() *StdioFile {
	return &StdioFile{r: bufio.NewReader(os.Stdin)}
}

// Stdout returns a write-only File over standard output.
func Stdout() *StdioFile {
	return &StdioFile{w: bufio.NewWriter(os.Stdout)}
}

// NewStreamReader wraps an arbitrary non-seekable reader.
func NewStreamReader(r io.Reader) *StdioFile {
	return &StdioFile{r: bufio.NewReader(r)}
}

// NewStreamWriter wraps an arbitrary non-seekable writer.
func NewStreamWriter(w io.Writer) *StdioFile {
	return &StdioFile{w: bufio.NewWriter(w)}
}

func (s *StdioFile) Read(p []byte) (int, error) {
	if s.r == nil {
		return 0, io.ErrClosedPipe
	}
	n, err := s.r.Read(p)
	s.pos += int64(n)
	if err == io.EOF {
		s.eof = true
	}
	return n, err
}

func (s *StdioFile) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, io.ErrClosedPipe
	}
	n, err := s.w.Write(p)
	s.pos += int64(n)
	return n, err
}

func (s *StdioFile) GetByte() (byte, error) {
	if s.r == nil {
		return 0, io.ErrClosedPipe
	}
	b, err := s.r.ReadByte()
	if err == io.EOF {
		s.eof = true
		return 0, io.EOF
	}
	if err != nil {
		return 0, err
	}
	s.pos++
	return b, nil
}

func (s *StdioFile) PutByte(b byte) error {
	if s.w == nil {
		return io.ErrClosedPipe
	}
	if err := s.w.WriteByte(b); err != nil {
		return err
	}
	s.pos++
	return nil
}

// Seek implements the forward-only skip: whence must be io.SeekCurrent
// and offset must be non-negative. The skipped bytes are read and
// discarded.
func (s *StdioFile) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekCurrent || offset < 0 || s.r == nil {
		return s.pos, ErrNotSeekable
	}
	n, err := io.CopyN(io.Discard, s.r, offset)
	s.pos += n
	if err == io.EOF {
		s.eof = true
	}
	return s.pos, err
}

func (s *StdioFile) Tell() int64      { return s.pos }
func (s *StdioFile) Size() int64      { return -1 }
func (s *StdioFile) IsSeekable() bool { return false }

func (s *StdioFile) Close() error {
	if s.w != nil {
		return s.w.Flush()
	}
	return nil
}
