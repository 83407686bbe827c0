package archive

import (
	"bytes"
	"fmt"
	"io"

	"github.com/yeka/zip"
)

// Builder collects archive entries in memory and serializes them once.
// Writing the same path twice replaces the earlier content but keeps the
// entry at its original position.
type Builder struct {
	password string
	order    []string
	entries  map[string][]byte
}

// NewBuilder returns an empty builder. A non-empty password encrypts every
// entry with AES-256.
func NewBuilder(password string) *Builder {
	return &Builder{
		password: password,
		entries:  make(map[string][]byte),
	}
}

// Put stores data under path
func (b *Builder) Put(path string, data []byte) {
	if _, ok := b.entries[path]; !ok {
		b.order = append(b.order, path)
	}
	b.entries[path] = data
}

// Len returns the number of distinct entries
func (b *Builder) Len() int { return len(b.order) }

// Size returns the total uncompressed size of all entries
func (b *Builder) Size() int64 {
	var n int64
	for _, data := range b.entries {
		n += int64(len(data))
	}
	return n
}

// WriteTo serializes the archive to w
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	bc := &countingWriter{w: w}
	zw := zip.NewWriter(bc)

	for _, path := range b.order {
		fw, err := b.create(zw, path)
		if err != nil {
			return bc.n, fmt.Errorf("create entry %s: %w", path, err)
		}
		if _, err := fw.Write(b.entries[path]); err != nil {
			return bc.n, fmt.Errorf("write entry %s: %w", path, err)
		}
	}

	if err := zw.Close(); err != nil {
		return bc.n, fmt.Errorf("finalize archive: %w", err)
	}
	return bc.n, nil
}

// Bytes serializes the archive into a new buffer
func (b *Builder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *Builder) create(zw *zip.Writer, path string) (io.Writer, error) {
	if b.password != "" {
		return zw.Encrypt(path, b.password, zip.AES256Encryption)
	}
	return zw.CreateHeader(&zip.FileHeader{
		Name:   path,
		Method: zip.Deflate,
	})
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
