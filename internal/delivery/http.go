package delivery

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"folderzip/internal/models"
)

// HTTPSink writes the finished archive as a download response
type HTTPSink struct {
	w       http.ResponseWriter
	sent    bool
	written int64
}

// NewHTTPSink wraps w. Nothing is written until Save is called.
func NewHTTPSink(w http.ResponseWriter) *HTTPSink {
	return &HTTPSink{w: w}
}

// Save sends the archive with download headers
func (s *HTTPSink) Save(blob []byte, fileName string) error {
	h := s.w.Header()
	h.Set("Content-Type", "application/zip")
	h.Set("Content-Disposition", ContentDisposition(fileName))
	h.Set("Content-Length", strconv.Itoa(len(blob)))
	s.w.WriteHeader(http.StatusOK)
	s.sent = true

	bc := &models.ByteCounter{Writer: s.w}
	_, err := bc.Write(blob)
	s.written = bc.Count
	if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return nil
}

// Sent reports whether the response status has been written
func (s *HTTPSink) Sent() bool { return s.sent }

// Written returns the number of archive bytes sent to the client
func (s *HTTPSink) Written() int64 { return s.written }

// ContentDisposition builds an attachment header value for fileName,
// falling back to RFC 2231 encoding for non-ASCII names.
func ContentDisposition(fileName string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": fileName}); v != "" {
		return v
	}
	return `attachment; filename="export.zip"`
}
