package models

import "io"

// Folder is the top-level grouping an export is requested for
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Topic is a document category within a folder
type Topic struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Attachment is one uploaded file belonging to exactly one topic.
// FilePath is an opaque key into the blob store.
type Attachment struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	TopicID  string `json:"topic_id"`
}

// ExportResult tallies the outcome of one folder export.
// DownloadedFiles + FailedFiles == TotalFiles; attachments whose topic could
// not be resolved are reported in SkippedFiles and excluded from TotalFiles.
type ExportResult struct {
	Success         bool `json:"success"`
	DownloadedFiles int  `json:"downloadedFiles"`
	FailedFiles     int  `json:"failedFiles"`
	TotalFiles      int  `json:"totalFiles"`
	SkippedFiles    int  `json:"skippedFiles"`
}

// CallbackPayload is sent to the callback URL after an export
type CallbackPayload struct {
	FolderID         string `json:"folder_id"`
	Status           string `json:"status"`
	Timestamp        string `json:"timestamp"`
	Message          string `json:"message,omitempty"`
	DurationMs       int64  `json:"duration_ms"`
	DownloadedFiles  int    `json:"downloaded_files"`
	FailedFiles      int    `json:"failed_files"`
	TotalFiles       int    `json:"total_files"`
	ArchiveSizeBytes int64  `json:"archive_size_bytes"`
}

// ByteCounter wraps an io.Writer and counts bytes written
type ByteCounter struct {
	Writer io.Writer
	Count  int64
}

func (bc *ByteCounter) Write(p []byte) (int, error) {
	n, err := bc.Writer.Write(p)
	bc.Count += int64(n)
	return n, err
}
