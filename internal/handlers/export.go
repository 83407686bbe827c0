package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"folderzip/internal/auth"
	"folderzip/internal/database"
	"folderzip/internal/delivery"
	"folderzip/internal/exporter"
	"folderzip/internal/metrics"
	"folderzip/internal/models"
)

// ExportHandler serves folder archive downloads
type ExportHandler struct {
	logger        *zap.Logger
	db            database.Store
	exporter      *exporter.Exporter
	verifier      *auth.Verifier
	metrics       *metrics.Metrics
	notifier      *Notifier
	allowPassword bool
	active        *semaphore.Weighted
}

// NewExportHandler creates a new export handler.
// maxActive <= 0 leaves the number of concurrent exports unbounded;
// a nil notifier disables completion callbacks.
func NewExportHandler(
	logger *zap.Logger,
	db database.Store,
	exp *exporter.Exporter,
	verifier *auth.Verifier,
	m *metrics.Metrics,
	notifier *Notifier,
	allowPassword bool,
	maxActive int64,
) *ExportHandler {
	h := &ExportHandler{
		logger:        logger,
		db:            db,
		exporter:      exp,
		verifier:      verifier,
		metrics:       m,
		notifier:      notifier,
		allowPassword: allowPassword,
	}
	if maxActive > 0 {
		h.active = semaphore.NewWeighted(maxActive)
	}
	return h
}

// Export handles GET /folders/{id}/export
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	logger := LoggerWithRequestID(h.logger, ctx)

	id := mux.Vars(r)["id"]
	if id == "" {
		h.fail(w, "missing folder id", http.StatusBadRequest)
		return
	}
	logger = logger.With(zap.String("folder_id", id))

	query := r.URL.Query()
	if err := h.verifier.Verify(id, query.Get("expiry"), query.Get("signature")); err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrExpired) {
			status = http.StatusGone
			logger.Warn("expired request")
		} else {
			logger.Warn("verification failed", zap.Error(err))
		}
		h.fail(w, err.Error(), status)
		return
	}

	var opts []exporter.Option
	if password := query.Get("password"); password != "" {
		if !h.allowPassword {
			h.fail(w, "password protected archives are disabled", http.StatusBadRequest)
			return
		}
		opts = append(opts, exporter.WithPassword(password))
	}

	if h.active != nil {
		if !h.active.TryAcquire(1) {
			h.metrics.RejectedExports.Inc()
			logger.Warn("export rejected, too many active exports")
			h.fail(w, "too many exports in progress", http.StatusServiceUnavailable)
			return
		}
		defer h.active.Release(1)
	}

	h.metrics.ActiveExports.Inc()
	defer h.metrics.ActiveExports.Dec()

	name, err := h.folderName(r, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			logger.Info("folder not found")
			h.fail(w, "folder not found", http.StatusNotFound)
			return
		}
		logger.Error("folder lookup failed", zap.Error(err))
		h.fail(w, "internal error", http.StatusInternalServerError)
		return
	}

	sink := delivery.NewHTTPSink(w)
	result, err := h.exporter.Export(ctx, id, name, sink, opts...)

	if ctx.Err() != nil {
		h.metrics.ClientDisconnectsTotal.Inc()
		logger.Warn("client disconnected", zap.Error(ctx.Err()))
	}

	status := "completed"
	message := ""
	switch {
	case err != nil:
		status = "failed"
		message = err.Error()
		code := statusForExportError(err)
		if code == http.StatusInternalServerError {
			logger.Error("export failed", zap.Error(err))
		}
		if !sink.Sent() {
			h.fail(w, exportErrorMessage(err), code)
		}
	case result.FailedFiles > 0:
		status = "partial"
		message = fmt.Sprintf("processed %d of %d files", result.DownloadedFiles, result.TotalFiles)
		h.metrics.RequestsTotal.WithLabelValues("200").Inc()
	default:
		h.metrics.RequestsTotal.WithLabelValues("200").Inc()
	}

	duration := time.Since(start)
	if h.notifier != nil {
		go h.notifier.Send(models.CallbackPayload{
			FolderID:         id,
			Status:           status,
			Timestamp:        time.Now().UTC().Format(time.RFC3339),
			Message:          message,
			DurationMs:       duration.Milliseconds(),
			DownloadedFiles:  result.DownloadedFiles,
			FailedFiles:      result.FailedFiles,
			TotalFiles:       result.TotalFiles,
			ArchiveSizeBytes: sink.Written(),
		})
	}

	logger.Info("export handled",
		zap.String("status", status),
		zap.Int64("bytes", sink.Written()),
		zap.Duration("duration", duration))
}

// folderName prefers the name query parameter and falls back to the stored folder
func (h *ExportHandler) folderName(r *http.Request, id string) (string, error) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		folder, err := h.db.GetFolder(r.Context(), id)
		if err != nil {
			return "", err
		}
		name = strings.TrimSpace(folder.Name)
	}
	if strings.HasSuffix(strings.ToLower(name), ".zip") {
		name = name[:len(name)-4]
	}
	if name == "" {
		name = id
	}
	return name, nil
}

func (h *ExportHandler) fail(w http.ResponseWriter, msg string, code int) {
	http.Error(w, msg, code)
	h.metrics.RequestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

func statusForExportError(err error) int {
	switch {
	case errors.Is(err, exporter.ErrNoTopics), errors.Is(err, exporter.ErrNoAttachments):
		return http.StatusNotFound
	case errors.Is(err, exporter.ErrAllDownloadsFailed):
		return http.StatusBadGateway
	case errors.Is(err, exporter.ErrTooManyFiles):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// exportErrorMessage hides backend details from clients
func exportErrorMessage(err error) string {
	for _, known := range []error{
		exporter.ErrNoTopics,
		exporter.ErrNoAttachments,
		exporter.ErrAllDownloadsFailed,
		exporter.ErrTooManyFiles,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}
