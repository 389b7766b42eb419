package whatsapp

// Webhook payloads arrive with most fields optional; Meta sends status
// updates, reactions and media through the same endpoint. Only text
// messages carry a usable command, everything else is ignored.

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// firstTextMessage digs the first inbound text message out of the
// payload. The second return is false when the payload carries none.
func (p *webhookPayload) firstTextMessage() (from, body string, ok bool) {
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.Text == nil {
					continue
				}
				return msg.From, msg.Text.Body, true
			}
		}
	}
	return "", "", false
}
