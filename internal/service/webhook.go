package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultHTTPStatusThreshold = 300

// SecurityWebhook delivers security events (token replay detections) to an
// external receiver. Delivery is fire-and-forget: a dead receiver never
// blocks or fails the request that detected the event.
type SecurityWebhook struct {
	client     *http.Client
	log        *zap.SugaredLogger
	webhookURL string
}

func NewSecurityWebhook(log *zap.SugaredLogger, webhookURL string) *SecurityWebhook {
	return &SecurityWebhook{
		client:     &http.Client{},
		log:        log,
		webhookURL: webhookURL,
	}
}

func (s *SecurityWebhook) NotifyReplayDetected(ctx context.Context, sessionID, userID string) {
	s.notify(ctx, map[string]interface{}{
		"event":       "refresh_token_replay",
		"session_id":  sessionID,
		"user_id":     userID,
		"detected_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *SecurityWebhook) notify(ctx context.Context, data map[string]interface{}) {
	go func() {
		if s.webhookURL == "" {
			return
		}

		payload, err := json.Marshal(data)
		if err != nil {
			s.log.Errorw("failed to marshal webhook payload", "error", err)
			return
		}

		// The originating request finishes independently of delivery.
		req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, s.webhookURL, bytes.NewBuffer(payload))
		if err != nil {
			s.log.Errorw("failed to create webhook request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.log.Errorw("failed to send webhook", "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= defaultHTTPStatusThreshold {
			s.log.Warnw("webhook returned non-2xx status", "status", resp.StatusCode)
		}
	}()
}
