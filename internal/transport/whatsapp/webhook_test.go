package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	from, text string
	calls      int
	reply      string
}

func (h *recordingHandler) Handle(ctx context.Context, from, text string) string {
	h.calls++
	h.from, h.text = from, text
	return h.reply
}

type recordingReplier struct {
	to, text string
	calls    int
}

func (r *recordingReplier) SendText(ctx context.Context, to, text string) error {
	r.calls++
	r.to, r.text = to, text
	return nil
}

func newTestWebhook() (*Webhook, *recordingHandler, *recordingReplier) {
	handler := &recordingHandler{reply: "✅ Order placed!"}
	replier := &recordingReplier{}
	return NewWebhook("secret-token", handler, replier), handler, replier
}

func textPayload(from, body string) string {
	payload := map[string]any{
		"entry": []any{map[string]any{
			"changes": []any{map[string]any{
				"value": map[string]any{
					"messages": []any{map[string]any{
						"from": from,
						"type": "text",
						"text": map[string]string{"body": body},
					}},
				},
			}},
		}},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func TestVerifyHandshake(t *testing.T) {
	wh, _, _ := newTestWebhook()
	srv := httptest.NewServer(wh.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var buf [16]byte
	n, _ := resp.Body.Read(buf[:])
	assert.Equal(t, "12345", string(buf[:n]))
}

func TestVerifyRejectsWrongToken(t *testing.T) {
	wh, _, _ := newTestWebhook()
	srv := httptest.NewServer(wh.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestReceiveDispatchesAndReplies(t *testing.T) {
	wh, handler, replier := newTestWebhook()
	srv := httptest.NewServer(wh.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhook", "application/json",
		strings.NewReader(textPayload("919876543210", "BUY NIFTY 24000 CE 50")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, handler.calls)
	assert.Equal(t, "919876543210", handler.from)
	assert.Equal(t, "BUY NIFTY 24000 CE 50", handler.text)
	assert.Equal(t, 1, replier.calls)
	assert.Equal(t, "919876543210", replier.to)
	assert.Equal(t, "✅ Order placed!", replier.text)
}

func TestReceiveIgnoresMalformedPayload(t *testing.T) {
	wh, handler, replier := newTestWebhook()
	srv := httptest.NewServer(wh.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ignored", body["status"])
	assert.Zero(t, handler.calls)
	assert.Zero(t, replier.calls)
}

func TestReceiveIgnoresNonTextMessages(t *testing.T) {
	wh, handler, replier := newTestWebhook()
	srv := httptest.NewServer(wh.Router())
	defer srv.Close()

	payload := `{"entry":[{"changes":[{"value":{"messages":[{"from":"919876543210","type":"image"}]}}]}]}`
	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, handler.calls)
	assert.Zero(t, replier.calls)
}

func TestReceiveAcknowledgesStatusUpdates(t *testing.T) {
	wh, handler, _ := newTestWebhook()
	srv := httptest.NewServer(wh.Router())
	defer srv.Close()

	payload := `{"entry":[{"changes":[{"value":{"statuses":[{"status":"delivered"}]}}]}]}`
	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, handler.calls)
}

func TestSenderPostsGraphMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, map[string]string{"status": "sent"})
	}))
	defer srv.Close()

	s := NewSender(srv.URL, "graph-token", "123456789")
	require.NoError(t, s.SendText(context.Background(), "919876543210", "📊 No open positions."))

	assert.Equal(t, "/123456789/messages", gotPath)
	assert.Equal(t, "Bearer graph-token", gotAuth)
	assert.Equal(t, "whatsapp", gotBody["messaging_product"])
	assert.Equal(t, "919876543210", gotBody["to"])
	text := gotBody["text"].(map[string]any)
	assert.Equal(t, "📊 No open positions.", text["body"])
}

func TestSenderSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid token"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewSender(srv.URL, "bad-token", "123456789")
	err := s.SendText(context.Background(), "919876543210", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}
