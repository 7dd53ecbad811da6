package mxfio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemoryFileReadWriteSeek(t *testing.T) {
	t.Parallel()

	f := NewMemoryFile()
	if _, err := f.Write([]byte("hello world")); err != nil {
		t.Fatal(err)
	}
	if f.Size() != 11 {
		t.Fatalf("Size = %d, want 11", f.Size())
	}

	// rewrite in place
	if _, err := f.Seek(6, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte("there")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello there" {
		t.Fatalf("contents = %q, want %q", got, "hello there")
	}
	if !f.EOF() {
		t.Error("EOF not reported after reading to the end")
	}
	if !f.IsSeekable() {
		t.Error("memory file is not seekable")
	}
}

func TestMemoryFileFlushTo(t *testing.T) {
	t.Parallel()

	src := NewMemoryFile()
	if _, err := src.Write([]byte("staged partition bytes")); err != nil {
		t.Fatal(err)
	}
	dst := NewMemoryFile()
	n, err := src.FlushTo(dst)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(src.Size()) {
		t.Fatalf("FlushTo copied %d bytes, want %d", n, src.Size())
	}
	if diff := cmp.Diff(src.Bytes(), dst.Bytes()); diff != "" {
		t.Fatalf("flushed bytes differ (-want +got):\n%s", diff)
	}
}

func TestStdioForwardSkipOnly(t *testing.T) {
	t.Parallel()

	f := NewStreamReader(bytes.NewReader([]byte{1, 2, 3, 4, 5}))
	if f.IsSeekable() {
		t.Fatal("stream reader reports seekable")
	}
	if _, err := f.Seek(2, io.SeekCurrent); err != nil {
		t.Fatal(err)
	}
	b, err := f.GetByte()
	if err != nil {
		t.Fatal(err)
	}
	if b != 3 {
		t.Fatalf("byte after skip = %d, want 3", b)
	}
	if _, err := f.Seek(0, io.SeekStart); err != ErrNotSeekable {
		t.Fatalf("absolute seek error = %v, want ErrNotSeekable", err)
	}
	if _, err := f.Seek(-1, io.SeekCurrent); err != ErrNotSeekable {
		t.Fatalf("backward seek error = %v, want ErrNotSeekable", err)
	}
}

func TestDiskFile(t *testing.T) {
	t.Parallel()

	name := filepath.Join(t.TempDir(), "test.bin")
	f, err := OpenNew(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Seek(4, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if err := f.PutByte('x'); err != nil {
		t.Fatal(err)
	}
	if f.Tell() != 5 {
		t.Fatalf("Tell = %d, want 5", f.Tell())
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenRead(name)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "0123x56789" {
		t.Fatalf("contents = %q", got)
	}
	if r.Size() != 10 {
		t.Fatalf("Size = %d, want 10", r.Size())
	}
}

func TestPagedFile(t *testing.T) {
	t.Parallel()

	template := filepath.Join(t.TempDir(), "page%d.bin")
	const pageSize = 64

	f, err := OpenPaged(template, pageSize, PageNew)
	if err != nil {
		t.Fatal(err)
	}

	// span several pages and exercise descriptor reuse
	payload := make([]byte, pageSize*5+13)
	for i := range payload {
		payload[i] = byte(i)
	}
	if _, err := f.Write(payload); err != nil {
		t.Fatal(err)
	}
	if f.Size() != int64(len(payload)) {
		t.Fatalf("Size = %d, want %d", f.Size(), len(payload))
	}

	// rewrite across a page boundary
	if _, err := f.Seek(pageSize-2, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte{0xaa, 0xbb, 0xcc, 0xdd}); err != nil {
		t.Fatal(err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(payload))
	if _, err := io.ReadFull(f, got); err != nil {
		t.Fatal(err)
	}
	copy(payload[pageSize-2:], []byte{0xaa, 0xbb, 0xcc, 0xdd})
	if !bytes.Equal(got, payload) {
		t.Fatal("paged contents differ after rewrite")
	}

	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	// the pages exist on disk
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(fmt.Sprintf(template, i)); err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
	}

	// reopen for modification and truncate the first pages away
	r, err := OpenPaged(template, pageSize, PageModify)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.Size() != int64(len(payload)) {
		t.Fatalf("reopened Size = %d, want %d", r.Size(), len(payload))
	}
	if err := r.TruncateBefore(pageSize * 2); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(fmt.Sprintf(template, 0)); !os.IsNotExist(err) {
		t.Fatalf("page 0 still exists after truncation: %v", err)
	}
	if _, err := r.Seek(pageSize*2, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	b, err := r.GetByte()
	if err != nil {
		t.Fatal(err)
	}
	if b != byte(pageSize*2) {
		t.Fatalf("byte after truncation = %#x, want %#x", b, byte(pageSize*2))
	}
}

func TestPagedFileManyPages(t *testing.T) {
	t.Parallel()

	template := filepath.Join(t.TempDir(), "many%d.bin")
	const pageSize = 16

	f, err := OpenPaged(template, pageSize, PageNew)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	// more pages than the descriptor cache holds
	payload := make([]byte, pageSize*(maxDescriptors+8))
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	if _, err := f.Write(payload); err != nil {
		t.Fatal(err)
	}
	if f.numDescs > maxDescriptors {
		t.Fatalf("%d descriptors open, cap is %d", f.numDescs, maxDescriptors)
	}

	// read back from the start, which re-opens evicted pages
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(payload))
	if _, err := io.ReadFull(f, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("contents differ after descriptor eviction")
	}
}
