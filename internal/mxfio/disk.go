package mxfio

import (
	"io"
	"os"
)

// DiskFile is a File backed by an on-disk file.
type DiskFile struct {
	fileState
	f   *os.File
	pos int64
}

// OpenRead opens an existing file for reading.
func OpenRead(name string) (*DiskFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return &DiskFile{f: f}, nil
}

// OpenNew creates a new file for writing, truncating any existing file.
func OpenNew(name string) (*DiskFile, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return &DiskFile{f: f}, nil
}

// OpenModify opens an existing file for reading and writing.
func OpenModify(name string) (*DiskFile, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &DiskFile{f: f}, nil
}

func (d *DiskFile) Read(p []byte) (int, error) {
	n, err := d.f.Read(p)
	d.pos += int64(n)
	if err == io.EOF {
		d.eof = true
	}
	return n, err
}

func (d *DiskFile) Write(p []byte) (int, error) {
	n, err := d.f.Write(p)
	d.pos += int64(n)
	return n, err
}

func (d *DiskFile) GetByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(d.f, b[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			d.eof = true
			return 0, io.EOF
		}
		return 0, err
	}
	d.pos++
	return b[0], nil
}

func (d *DiskFile) PutByte(b byte) error {
	_, err := d.Write([]byte{b})
	return err
}

func (d *DiskFile) Seek(offset int64, whence int) (int64, error) {
	pos, err := d.f.Seek(offset, whence)
	if err != nil {
		return d.pos, err
	}
	d.pos = pos
	d.eof = false
	return pos, nil
}

func (d *DiskFile) Tell() int64 { return d.pos }

func (d *DiskFile) Size() int64 {
	fi, err := d.f.Stat()
	if err != nil {
		return -1
	}
	return fi.Size()
}

func (d *DiskFile) IsSeekable() bool { return true }

func (d *DiskFile) Close() error { return d.f.Close() }
