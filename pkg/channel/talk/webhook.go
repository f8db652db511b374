package talk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Webhook signature headers (server to bot direction).
const (
	headerRandom    = "X-Nextcloud-Talk-Random"
	headerSignature = "X-Nextcloud-Talk-Signature"
)

const maxWebhookBodySize = 1 << 20

// ackResponse is the protocol-mandated reply body. The remote server only
// inspects the status code; the body mirrors it for operators reading logs.
type ackResponse struct {
	Status int    `json:"status"`
	Text   string `json:"text"`
}

func (a *Adapter) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Post(a.webhookPath(), a.handleWebhook)
	return r
}

// handleWebhook runs the inbound pipeline: verify, decode, admit, publish.
// Signature verification is the sole authorization boundary; nothing is
// parsed before it passes. Verified requests are always acknowledged with
// 200 unless the body cannot be parsed at all.
func (a *Adapter) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if a.currentState() != stateListening {
		a.respond(w, http.StatusServiceUnavailable, "Service Unavailable")
		return
	}

	// The signature covers the exact body bytes, so they are read in full
	// before any parsing.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
	if err != nil {
		a.respond(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if len(body) > maxWebhookBodySize {
		a.respond(w, http.StatusRequestEntityTooLarge, "Payload Too Large")
		return
	}

	nonce := r.Header.Get(headerRandom)
	signature := r.Header.Get(headerSignature)
	if nonce == "" || signature == "" || !Verify(a.cfg.BotSecret, nonce, body, signature) {
		a.log.Warn("Rejected webhook with invalid signature", "request_id", middleware.GetReqID(r.Context()))
		a.respond(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	msg, ok, err := decodeInbound(body)
	if err != nil {
		a.log.Warn("Rejected webhook with malformed body", "error", err)
		a.respond(w, http.StatusBadRequest, "Bad Request")
		return
	}
	if !ok {
		// Wrong event type or incomplete payload: acknowledge so the
		// server neither retries nor disables the bot.
		a.respond(w, http.StatusOK, "OK")
		return
	}

	decision := a.policy.admit(msg.SenderID, msg.ChatID, msg.Content)
	if !decision.Admit {
		a.log.Info("Dropped message by admission policy", "reason", decision.Reason, "sender_id", msg.SenderID, "chat_id", msg.ChatID)
		a.respond(w, http.StatusOK, "OK")
		return
	}
	msg.Content = decision.Content

	publishCtx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if !a.bus.PublishInbound(publishCtx, msg) {
		a.log.Error("Failed to publish inbound message", "chat_id", msg.ChatID)
		a.respond(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	a.log.Debug("Inbound message published", "sender_id", msg.SenderID, "chat_id", msg.ChatID)
	a.respond(w, http.StatusOK, "OK")
}

func (a *Adapter) respond(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ackResponse{Status: status, Text: text}); err != nil {
		a.log.Error("Failed to write webhook response", "error", err)
	}
}
