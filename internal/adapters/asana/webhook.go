package asana

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/alekspetrov/qa-handoff/internal/logging"
)

const (
	headerHookSecret    = "X-Hook-Secret"
	headerHookSignature = "X-Hook-Signature"

	maxWebhookBody = 1 << 20
)

// WebhookHandler receives Asana task events and hands the GIDs of tasks
// whose watched field changed to a callback.
type WebhookHandler struct {
	webhookSecret string
	watchField    string
	onTask        func(ctx context.Context, taskGID string) error
	logger        *slog.Logger
}

// NewWebhookHandler creates a webhook handler. watchField is the GID of the
// custom field whose changes are of interest; empty accepts any custom
// field change.
func NewWebhookHandler(webhookSecret, watchField string) *WebhookHandler {
	return &WebhookHandler{
		webhookSecret: webhookSecret,
		watchField:    watchField,
		logger:        logging.WithComponent("asana-webhook"),
	}
}

// OnTask sets the callback invoked once per affected task.
func (h *WebhookHandler) OnTask(callback func(ctx context.Context, taskGID string) error) {
	h.onTask = callback
}

// VerifySignature checks the HMAC-SHA256 X-Hook-Signature of a payload.
// Without a configured secret nothing verifies.
func (h *WebhookHandler) VerifySignature(payload []byte, signature string) bool {
	if h.webhookSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(payload)
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expectedSig))
}

// ServeHTTP answers the registration handshake and dispatches signed event
// deliveries.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if secret := r.Header.Get(headerHookSecret); secret != "" {
		// Handshake: echo the secret back to confirm the subscription.
		h.logger.Info("Webhook handshake received")
		w.Header().Set(headerHookSecret, secret)
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !h.VerifySignature(body, r.Header.Get(headerHookSignature)) {
		h.logger.Warn("Rejected webhook with invalid signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	dispatched := h.Handle(r.Context(), &payload)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"dispatched": dispatched})
}

// Handle processes a webhook payload and returns how many tasks were
// dispatched. Each task is dispatched at most once per payload.
func (h *WebhookHandler) Handle(ctx context.Context, payload *WebhookPayload) int {
	seen := make(map[string]bool)
	dispatched := 0
	for _, event := range payload.Events {
		if !h.relevant(event) {
			continue
		}
		gid := event.Resource.GID
		if seen[gid] {
			continue
		}
		seen[gid] = true

		if h.onTask == nil {
			continue
		}
		if err := h.onTask(ctx, gid); err != nil {
			h.logger.Error("Failed to dispatch task",
				slog.String("task", gid),
				slog.Any("error", err))
			continue
		}
		dispatched++
	}
	return dispatched
}

// relevant reports whether an event is a custom-field change on a task
// that touches the watched field.
func (h *WebhookHandler) relevant(event WebhookEvent) bool {
	if event.Resource.ResourceType != "task" || event.Resource.GID == "" {
		return false
	}
	if WebhookEventType(event.Action) != EventTaskChanged {
		return false
	}
	if event.Change == nil || event.Change.Field != "custom_fields" {
		return false
	}
	if h.watchField == "" {
		return true
	}
	return event.Change.NewValue != nil && event.Change.NewValue.GID == h.watchField
}
