package whatsapp

import (
	"context"
	"fmt"
	"time"

	"whatsapp-options-agent/internal/api"
	"whatsapp-options-agent/internal/interfaces"
	"whatsapp-options-agent/internal/logger"
)

// Sender posts text replies through the Graph API messages endpoint.
type Sender struct {
	client        *api.Client
	phoneNumberID string
}

var _ interfaces.Replier = (*Sender)(nil)

func NewSender(graphBaseURL, token, phoneNumberID string) *Sender {
	return &Sender{
		client: api.NewClient(
			api.WithBaseURL(graphBaseURL),
			api.WithTimeout(10*time.Second),
			api.WithHeader("Authorization", "Bearer "+token),
		),
		phoneNumberID: phoneNumberID,
	}
}

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

func (s *Sender) SendText(ctx context.Context, to, text string) error {
	msg := textMessage{MessagingProduct: "whatsapp", To: to, Type: "text"}
	msg.Text.Body = text

	resp, err := s.client.POST(ctx, "/"+s.phoneNumberID+"/messages", msg, nil)
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("whatsapp send: HTTP %d: %s", resp.StatusCode, resp.String())
	}
	logger.Debug(ctx, "WhatsApp reply delivered", "to", to, "chars", len(text))
	return nil
}
