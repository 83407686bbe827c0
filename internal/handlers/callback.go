package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"folderzip/internal/metrics"
	"folderzip/internal/models"
)

// Notifier posts export results to a callback URL
type Notifier struct {
	url        string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewNotifier returns nil when url is empty
func NewNotifier(logger *zap.Logger, m *metrics.Metrics, url string, maxRetries int, retryDelay time.Duration) *Notifier {
	if url == "" {
		return nil
	}
	return &Notifier{
		url:        url,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		metrics:    m,
	}
}

// Send delivers payload, retrying with exponential backoff. It reports
// whether the callback was accepted.
func (n *Notifier) Send(payload models.CallbackPayload) bool {
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			n.metrics.CallbackRetries.Inc()
			time.Sleep(n.retryDelay * time.Duration(1<<(attempt-1)))
			n.logger.Info("retrying callback", zap.String("url", n.url), zap.Int("attempt", attempt))
		}

		err := n.post(payload)
		if err == nil {
			n.metrics.CallbacksTotal.WithLabelValues("success").Inc()
			return true
		}

		n.logger.Warn("callback attempt failed", zap.String("url", n.url), zap.Int("attempt", attempt), zap.Error(err))
	}

	n.metrics.CallbacksTotal.WithLabelValues("failure").Inc()
	n.logger.Error("callback failed after retries",
		zap.String("url", n.url),
		zap.String("folder_id", payload.FolderID),
		zap.Int("total_attempts", n.maxRetries+1))
	return false
}

func (n *Notifier) post(payload models.CallbackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request creation error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("bad status: %d", resp.StatusCode)
	}
	return nil
}
