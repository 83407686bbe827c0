package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"folderzip/internal/archive"
	"folderzip/internal/metrics"
	"folderzip/internal/models"
)

var (
	ErrNoTopics           = errors.New("folder has no topics to export")
	ErrNoAttachments      = errors.New("folder has no files to export")
	ErrAllDownloadsFailed = errors.New("no files could be downloaded")
	ErrSerialization      = errors.New("failed to build archive")
	ErrTooManyFiles       = errors.New("folder has too many files to export")
)

// Records looks up the topics and attachments of a folder.
// Both methods return an empty slice when nothing matches.
type Records interface {
	ListTopics(ctx context.Context, folderID string) ([]models.Topic, error)
	ListAttachments(ctx context.Context, topicIDs []string) ([]models.Attachment, error)
}

// Blobs opens attachment content by storage key
type Blobs interface {
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
}

// Sink receives the finished archive
type Sink interface {
	Save(blob []byte, fileName string) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(blob []byte, fileName string) error

func (f SinkFunc) Save(blob []byte, fileName string) error { return f(blob, fileName) }

// Exporter packs the attachments of a folder into a ZIP archive
type Exporter struct {
	logger        *zap.Logger
	records       Records
	blobs         Blobs
	metrics       *metrics.Metrics
	maxConcurrent int64
	maxFiles      int
}

// New creates an exporter. maxConcurrent bounds parallel blob downloads;
// maxFiles <= 0 disables the attachment count limit.
func New(logger *zap.Logger, records Records, blobs Blobs, m *metrics.Metrics, maxConcurrent int64, maxFiles int) *Exporter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Exporter{
		logger:        logger,
		records:       records,
		blobs:         blobs,
		metrics:       m,
		maxConcurrent: maxConcurrent,
		maxFiles:      maxFiles,
	}
}

type exportOptions struct {
	password string
}

// Option customizes a single export
type Option func(*exportOptions)

// WithPassword encrypts every archive entry with password
func WithPassword(password string) Option {
	return func(o *exportOptions) { o.password = password }
}

// slot holds the outcome of one attachment download
type slot struct {
	path string
	data []byte
	ok   bool
}

// Export builds the archive for folderID and hands it to sink as
// "<folderName>.zip". Individual download failures are counted, not returned.
func (e *Exporter) Export(ctx context.Context, folderID, folderName string, sink Sink, opts ...Option) (models.ExportResult, error) {
	start := time.Now()
	var o exportOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := e.logger.With(zap.String("folder_id", folderID))

	result, err := e.export(ctx, logger, folderID, folderName, sink, o)

	e.metrics.DurationHist.Observe(time.Since(start).Seconds())
	e.metrics.ExportsTotal.WithLabelValues(exportStatus(result, err)).Inc()

	if err != nil {
		logger.Warn("export failed", zap.Error(err),
			zap.Int("downloaded", result.DownloadedFiles),
			zap.Int("failed", result.FailedFiles),
			zap.Int("total", result.TotalFiles))
		return result, err
	}

	logger.Info("export completed",
		zap.String("folder_name", folderName),
		zap.Int("downloaded", result.DownloadedFiles),
		zap.Int("failed", result.FailedFiles),
		zap.Int("skipped", result.SkippedFiles),
		zap.Int("total", result.TotalFiles),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

func (e *Exporter) export(ctx context.Context, logger *zap.Logger, folderID, folderName string, sink Sink, o exportOptions) (models.ExportResult, error) {
	var result models.ExportResult

	topics, err := e.records.ListTopics(ctx, folderID)
	if err != nil {
		return result, fmt.Errorf("query topics: %w", err)
	}
	if len(topics) == 0 {
		return result, ErrNoTopics
	}

	topicIDs := make([]string, 0, len(topics))
	byID := make(map[string]models.Topic, len(topics))
	for _, t := range topics {
		topicIDs = append(topicIDs, t.ID)
		byID[t.ID] = t
	}

	attachments, err := e.records.ListAttachments(ctx, topicIDs)
	if err != nil {
		return result, fmt.Errorf("query attachments: %w", err)
	}
	if len(attachments) == 0 {
		return result, ErrNoAttachments
	}
	if e.maxFiles > 0 && len(attachments) > e.maxFiles {
		return result, fmt.Errorf("%w: %d attachments, limit %d", ErrTooManyFiles, len(attachments), e.maxFiles)
	}

	slots, downloaded, failed, skipped := e.fetchAll(ctx, logger, attachments, byID)

	result.DownloadedFiles = downloaded
	result.FailedFiles = failed
	result.SkippedFiles = skipped
	result.TotalFiles = len(attachments) - skipped

	e.metrics.FilesRequestedHist.Observe(float64(result.TotalFiles))
	e.metrics.FilesSuccessHist.Observe(float64(downloaded))

	if downloaded == 0 {
		return result, ErrAllDownloadsFailed
	}

	builder := archive.NewBuilder(o.password)
	for _, s := range slots {
		if s.ok {
			builder.Put(s.path, s.data)
		}
	}

	blob, err := builder.Bytes()
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	e.metrics.IncomingBytesHist.Observe(float64(builder.Size()))
	e.metrics.ArchiveBytesHist.Observe(float64(len(blob)))
	if size := builder.Size(); size > 0 {
		e.metrics.CompressionRatio.Observe(float64(len(blob)) / float64(size))
	}

	fileName := folderName + ".zip"
	if err := sink.Save(blob, fileName); err != nil {
		e.metrics.DeliveryFailuresTotal.Inc()
		logger.Error("archive delivery failed", zap.String("file_name", fileName), zap.Error(err))
	}

	result.Success = true
	return result, nil
}

// fetchAll downloads every attachment whose topic is known. Results land in
// per-attachment slots so the archive can be assembled in record order.
func (e *Exporter) fetchAll(ctx context.Context, logger *zap.Logger, attachments []models.Attachment, byID map[string]models.Topic) ([]slot, int, int, int) {
	slots := make([]slot, len(attachments))
	sem := semaphore.NewWeighted(e.maxConcurrent)

	var (
		wg         sync.WaitGroup
		downloaded atomic.Int64
		failed     atomic.Int64
		skipped    int
	)

	for i, a := range attachments {
		topic, ok := byID[a.TopicID]
		if !ok {
			skipped++
			e.metrics.OrphanFilesTotal.Inc()
			e.metrics.FilesFetchTotal.WithLabelValues("skipped").Inc()
			logger.Warn("skipping attachment with unknown topic",
				zap.String("attachment_id", a.ID),
				zap.String("topic_id", a.TopicID))
			continue
		}

		if ctx.Err() != nil {
			failed.Add(1)
			e.metrics.FilesFetchTotal.WithLabelValues("error").Inc()
			logger.Warn("export canceled before download", zap.String("file_name", a.FileName))
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			failed.Add(1)
			e.metrics.FilesFetchTotal.WithLabelValues("error").Inc()
			logger.Warn("export canceled before download", zap.String("file_name", a.FileName), zap.Error(err))
			continue
		}

		wg.Add(1)
		go func(i int, a models.Attachment, title string) {
			defer wg.Done()
			defer sem.Release(1)

			data, err := e.fetch(ctx, a.FilePath)
			if err != nil {
				failed.Add(1)
				e.metrics.FilesFetchTotal.WithLabelValues("error").Inc()
				logger.Warn("failed to download attachment",
					zap.String("file_name", a.FileName),
					zap.String("attachment_id", a.ID),
					zap.Error(err))
				return
			}

			slots[i] = slot{path: archive.EntryPath(title, a.FileName, a.ID), data: data, ok: true}
			downloaded.Add(1)
			e.metrics.FilesFetchTotal.WithLabelValues("success").Inc()
		}(i, a, topic.Title)
	}

	wg.Wait()
	return slots, int(downloaded.Load()), int(failed.Load()), skipped
}

func (e *Exporter) fetch(ctx context.Context, key string) ([]byte, error) {
	body, err := e.blobs.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func exportStatus(result models.ExportResult, err error) string {
	switch {
	case err != nil:
		return "failed"
	case result.FailedFiles > 0:
		return "partial"
	default:
		return "completed"
	}
}
