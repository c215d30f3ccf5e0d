package handler

// WebhookRequest is the normalized inbound message from the chat transport.
// The transport guarantees in-order, non-overlapping delivery per
// conversation; the handlers rely on that rather than locking per message.
type WebhookRequest struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

type WebhookResponse struct {
	Replies []Reply `json:"replies"`
}

type Reply struct {
	Text string `json:"text"`
}

func NewTextResponse(text string) *WebhookResponse {
	return &WebhookResponse{
		Replies: []Reply{{Text: text}},
	}
}
