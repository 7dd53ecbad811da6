package mxfio

import (
	"io"

	"github.com/orcaman/writerseeker"
)

// MemoryFile is a grow-on-write in-memory File whose contents FlushTo
// copies to another File. The writer orchestrator does not use it: it
// writes partition packs, header metadata and index segments directly
// to its output file.
type MemoryFile struct {
	fileState
	ws  *writerseeker.WriterSeeker
	pos int64
}

// NewMemoryFile returns an empty memory file.
func NewMemoryFile() *MemoryFile {
	return &MemoryFile{ws: &writerseeker.WriterSeeker{}}
}

func (m *MemoryFile) Read(p []byte) (int, error) {
	br := m.ws.BytesReader()
	if _, err := br.Seek(m.pos, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := br.Read(p)
	m.pos += int64(n)
	if err == io.EOF {
		m.eof = true
	}
	// keep the write position in sync with the read position
	if _, serr := m.ws.Seek(m.pos, io.SeekStart); serr != nil && err == nil {
		err = serr
	}
	return n, err
}

func (m *MemoryFile) Write(p []byte) (int, error) {
	n, err := m.ws.Write(p)
	m.pos += int64(n)
	return n, err
}

func (m *MemoryFile) GetByte() (byte, error) {
	var b [1]byte
	n, err := m.Read(b[:])
	if n == 0 && err == nil {
		err = io.EOF
	}
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (m *MemoryFile) PutByte(b byte) error {
	_, err := m.Write([]byte{b})
	return err
}

func (m *MemoryFile) Seek(offset int64, whence int) (int64, error) {
	pos, err := m.ws.Seek(offset, whence)
	if err != nil {
		return m.pos, err
	}
	m.pos = pos
	m.eof = false
	return pos, nil
}

func (m *MemoryFile) Tell() int64 { return m.pos }

func (m *MemoryFile) Size() int64 {
	// a fresh BytesReader is positioned at 0, so Len is the total size
	return int64(m.ws.BytesReader().Len())
}

func (m *MemoryFile) IsSeekable() bool { return true }

// Bytes returns the accumulated contents.
func (m *MemoryFile) Bytes() []byte {
	br := m.ws.BytesReader()
	buf := make([]byte, br.Len())
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil
	}
	return buf
}

// FlushTo copies the accumulated contents to dst.
func (m *MemoryFile) FlushTo(dst File) (int64, error) {
	return io.Copy(dst, m.ws.BytesReader())
}

func (m *MemoryFile) Close() error { return m.ws.Close() }
