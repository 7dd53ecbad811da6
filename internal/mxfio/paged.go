package mxfio

import (
	"fmt"
	"io"
	"os"
)

// maxDescriptors caps the number of page files held open at once. The
// least recently used descriptor is closed when the cap is reached.
const maxDescriptors = 32

// PageMode selects how a paged file is opened.
type PageMode int

const (
	PageRead PageMode = iota
	PageNew
	PageModify
)

type pageDescriptor struct {
	f    *os.File
	page *page

	prev *pageDescriptor
	next *pageDescriptor
}

type page struct {
	index     int
	size      int64 // valid bytes in this page
	truncated bool
	desc      *pageDescriptor
}

// PagedFile is a File whose stream is split into fixed-size pages stored
// as individual files named by a template containing a single %d verb
// (e.g. "capture%d.mxf"). Old pages can be truncated away, which lets a
// ring-buffer recorder reclaim disk space while continuing to write.
type PagedFile struct {
	fileState
	template string
	pageSize int64
	mode     PageMode

	pages []*page
	pos   int64

	// LRU list of open descriptors; head is least recently used.
	descHead *pageDescriptor
	descTail *pageDescriptor
	numDescs int
}

// OpenPaged opens a paged file. template must contain exactly one %d
// verb; pageSize fixes the size of every page except the last.
func OpenPaged(template string, pageSize int64, mode PageMode) (*PagedFile, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("mxfio: invalid page size %d", pageSize)
	}
	p := &PagedFile{template: template, pageSize: pageSize, mode: mode}
	if mode == PageRead || mode == PageModify {
		// discover existing pages
		for i := 0; ; i++ {
			fi, err := os.Stat(p.pageName(i))
			if err != nil {
				break
			}
			p.pages = append(p.pages, &page{index: i, size: fi.Size()})
		}
		if mode == PageRead && len(p.pages) == 0 {
			return nil, fmt.Errorf("mxfio: no pages found for %q", template)
		}
	}
	return p, nil
}

func (p *PagedFile) pageName(index int) string {
	return fmt.Sprintf(p.template, index)
}

// openPage returns an open descriptor for the page, maintaining the LRU
// list and evicting the least recently used descriptor at the cap.
func (p *PagedFile) openPage(pg *page) (*pageDescriptor, error) {
	if pg.truncated {
		return nil, fmt.Errorf("mxfio: page %d was truncated", pg.index)
	}
	if pg.desc != nil {
		p.touch(pg.desc)
		return pg.desc, nil
	}

	if p.numDescs >= maxDescriptors {
		lru := p.descHead
		p.unlink(lru)
		lru.page.desc = nil
		lru.f.Close()
		p.numDescs--
	}

	var f *os.File
	var err error
	switch p.mode {
	case PageRead:
		f, err = os.Open(p.pageName(pg.index))
	default:
		f, err = os.OpenFile(p.pageName(pg.index), os.O_RDWR|os.O_CREATE, 0666)
	}
	if err != nil {
		return nil, err
	}

	d := &pageDescriptor{f: f, page: pg}
	pg.desc = d
	p.pushTail(d)
	p.numDescs++
	return d, nil
}

func (p *PagedFile) unlink(d *pageDescriptor) {
	if d.prev != nil {
		d.prev.next = d.next
	} else {
		p.descHead = d.next
	}
	if d.next != nil {
		d.next.prev = d.prev
	} else {
		p.descTail = d.prev
	}
	d.prev, d.next = nil, nil
}

func (p *PagedFile) pushTail(d *pageDescriptor) {
	d.prev = p.descTail
	if p.descTail != nil {
		p.descTail.next = d
	}
	p.descTail = d
	if p.descHead == nil {
		p.descHead = d
	}
}

func (p *PagedFile) touch(d *pageDescriptor) {
	if p.descTail == d {
		return
	}
	p.unlink(d)
	p.pushTail(d)
}

// pageAt returns the page covering pos, extending the page list when
// writing past the current end.
func (p *PagedFile) pageAt(pos int64, forWrite bool) (*page, error) {
	index := int(pos / p.pageSize)
	if index >= len(p.pages) {
		if !forWrite {
			return nil, io.EOF
		}
		for i := len(p.pages); i <= index; i++ {
			p.pages = append(p.pages, &page{index: i})
		}
	}
	return p.pages[index], nil
}

func (p *PagedFile) Read(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		pg, err := p.pageAt(p.pos, false)
		if err != nil {
			if total > 0 {
				return total, nil
			}
			p.eof = true
			return 0, io.EOF
		}
		inPage := p.pos - int64(pg.index)*p.pageSize
		if inPage >= pg.size {
			if total > 0 {
				return total, nil
			}
			p.eof = true
			return 0, io.EOF
		}
		want := int64(len(buf) - total)
		if want > pg.size-inPage {
			want = pg.size - inPage
		}
		d, err := p.openPage(pg)
		if err != nil {
			return total, err
		}
		n, err := d.f.ReadAt(buf[total:total+int(want)], inPage)
		total += n
		p.pos += int64(n)
		if err != nil && err != io.EOF {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

func (p *PagedFile) Write(buf []byte) (int, error) {
	if p.mode == PageRead {
		return 0, os.ErrPermission
	}
	total := 0
	for total < len(buf) {
		pg, err := p.pageAt(p.pos, true)
		if err != nil {
			return total, err
		}
		inPage := p.pos - int64(pg.index)*p.pageSize
		want := int64(len(buf) - total)
		if want > p.pageSize-inPage {
			want = p.pageSize - inPage
		}
		d, err := p.openPage(pg)
		if err != nil {
			return total, err
		}
		n, err := d.f.WriteAt(buf[total:total+int(want)], inPage)
		total += n
		p.pos += int64(n)
		if inPage+int64(n) > pg.size {
			pg.size = inPage + int64(n)
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (p *PagedFile) GetByte() (byte, error) {
	var b [1]byte
	n, err := p.Read(b[:])
	if n == 0 && err == nil {
		err = io.EOF
	}
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (p *PagedFile) PutByte(b byte) error {
	_, err := p.Write([]byte{b})
	return err
}

func (p *PagedFile) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = p.pos + offset
	case io.SeekEnd:
		pos = p.Size() + offset
	default:
		return p.pos, fmt.Errorf("mxfio: invalid whence %d", whence)
	}
	if pos < 0 {
		return p.pos, fmt.Errorf("mxfio: negative seek position %d", pos)
	}
	p.pos = pos
	p.eof = false
	return pos, nil
}

func (p *PagedFile) Tell() int64 { return p.pos }

func (p *PagedFile) Size() int64 {
	if len(p.pages) == 0 {
		return 0
	}
	last := p.pages[len(p.pages)-1]
	return int64(last.index)*p.pageSize + last.size
}

func (p *PagedFile) IsSeekable() bool { return true }

// TruncateBefore removes whole pages that lie entirely before position,
// deleting their files. Reads into the truncated range fail.
func (p *PagedFile) TruncateBefore(position int64) error {
	lastPage := int(position / p.pageSize)
	for _, pg := range p.pages {
		if pg.index >= lastPage || pg.truncated {
			continue
		}
		if pg.desc != nil {
			p.unlink(pg.desc)
			pg.desc.f.Close()
			pg.desc = nil
			p.numDescs--
		}
		if err := os.Remove(p.pageName(pg.index)); err != nil {
			return err
		}
		pg.truncated = true
	}
	return nil
}

func (p *PagedFile) Close() error {
	var firstErr error
	for d := p.descHead; d != nil; d = d.next {
		d.page.desc = nil
		if err := d.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.descHead, p.descTail, p.numDescs = nil, nil, 0
	return firstErr
}
