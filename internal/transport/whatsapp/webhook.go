// Package whatsapp speaks the WhatsApp Cloud API: the inbound webhook
// Meta calls with messages, and the outbound Graph API sender for
// replies.
package whatsapp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"whatsapp-options-agent/internal/interfaces"
	"whatsapp-options-agent/internal/logger"
)

type Webhook struct {
	verifyToken string
	handler     interfaces.CommandHandler
	replier     interfaces.Replier
}

func NewWebhook(verifyToken string, handler interfaces.CommandHandler, replier interfaces.Replier) *Webhook {
	return &Webhook{
		verifyToken: verifyToken,
		handler:     handler,
		replier:     replier,
	}
}

func (wh *Webhook) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/webhook", wh.verify)
	r.Post("/webhook", wh.receive)
	return r
}

// verify answers Meta's subscription handshake: echo hub.challenge when
// the verify token matches, 403 otherwise.
func (wh *Webhook) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == wh.verifyToken {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	logger.Warn(r.Context(), "Webhook verification failed", "mode", q.Get("hub.mode"))
	w.WriteHeader(http.StatusForbidden)
}

// receive always acknowledges with 200 so Meta does not re-deliver;
// processing failures become reply text or log lines, never webhook
// errors.
func (wh *Webhook) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logger.Warn(ctx, "Ignoring malformed webhook payload", "error", err)
		writeJSON(w, map[string]string{"status": "ignored"})
		return
	}

	from, text, ok := payload.firstTextMessage()
	if !ok {
		writeJSON(w, map[string]string{"status": "ignored"})
		return
	}

	reply := wh.handler.Handle(ctx, from, text)
	if err := wh.replier.SendText(ctx, from, reply); err != nil {
		logger.ErrorWithErr(ctx, "Failed to send WhatsApp reply", err, "to", from)
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
