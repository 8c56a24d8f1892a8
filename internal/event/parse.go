package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Wire structures for the WhatsApp Cloud API webhook envelope. Only the
// fields the relay consumes are declared; the rest of the payload is ignored.
type envelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []wireMessage     `json:"messages"`
				Statuses []json.RawMessage `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type wireMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *wireMedia `json:"image"`
	Audio    *wireMedia `json:"audio"`
	Document *wireMedia `json:"document"`
}

type wireMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
}

// Parse extracts the first message from a webhook delivery and classifies it.
// Deliveries without messages (e.g. delivery status callbacks) return
// ErrNoMessages; structurally broken payloads return ErrMalformedPayload.
func Parse(payload []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(env.Entry) == 0 || len(env.Entry[0].Changes) == 0 {
		return Message{}, fmt.Errorf("%w: missing entry or changes", ErrMalformedPayload)
	}
	value := env.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		if len(value.Statuses) > 0 {
			return Message{}, ErrNoMessages
		}
		return Message{}, fmt.Errorf("%w: missing messages", ErrMalformedPayload)
	}
	return classify(value.Messages[0])
}

func classify(wire wireMessage) (Message, error) {
	typeTag := strings.TrimSpace(wire.Type)
	if typeTag == "" {
		return Message{}, fmt.Errorf("%w: missing message type", ErrMalformedPayload)
	}

	msg := Message{
		From:      strings.TrimSpace(wire.From),
		MessageID: strings.TrimSpace(wire.ID),
	}
	switch typeTag {
	case "text":
		if wire.Text == nil {
			return Message{}, fmt.Errorf("%w: text message without body", ErrMalformedPayload)
		}
		msg.Type = TypeText
		msg.Body = wire.Text.Body
		return msg, nil
	case "image":
		return withMedia(msg, TypeImage, wire.Image)
	case "audio":
		return withMedia(msg, TypeAudio, wire.Audio)
	case "document":
		return withMedia(msg, TypeDocument, wire.Document)
	default:
		msg.Type = TypeUnsupported
		return msg, nil
	}
}

func withMedia(msg Message, mediaType Type, media *wireMedia) (Message, error) {
	if media == nil || strings.TrimSpace(media.ID) == "" {
		return Message{}, fmt.Errorf("%w: %s message without media id", ErrMalformedPayload, mediaType)
	}
	msg.Type = mediaType
	msg.Media = MediaRef{
		ID:       strings.TrimSpace(media.ID),
		MimeType: strings.TrimSpace(media.MimeType),
	}
	return msg, nil
}
