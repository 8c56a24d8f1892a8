package event

import (
	"errors"
	"fmt"
	"testing"
)

func wrapDelivery(message string) string {
	return fmt.Sprintf(`{"entry":[{"changes":[{"value":{"messages":[%s]}}]}]}`, message)
}

func TestParseText(t *testing.T) {
	t.Parallel()

	msg, err := Parse([]byte(wrapDelivery(`{"from":"15550001111","id":"wamid.1","type":"text","text":{"body":"Hello"}}`)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != TypeText {
		t.Fatalf("unexpected type: %s", msg.Type)
	}
	if msg.Body != "Hello" {
		t.Fatalf("unexpected body: %q", msg.Body)
	}
	if msg.From != "15550001111" {
		t.Fatalf("unexpected sender: %q", msg.From)
	}
	if msg.Type.IsMedia() {
		t.Fatal("text must not classify as media")
	}
}

func TestParseMediaTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		payload  string
		wantType Type
		wantMime string
	}{
		{
			name:     "image",
			payload:  `{"from":"1","id":"wamid.2","type":"image","image":{"id":"media-1","mime_type":"image/jpeg"}}`,
			wantType: TypeImage,
			wantMime: "image/jpeg",
		},
		{
			name:     "audio",
			payload:  `{"from":"1","id":"wamid.3","type":"audio","audio":{"id":"media-2","mime_type":"audio/ogg"}}`,
			wantType: TypeAudio,
			wantMime: "audio/ogg",
		},
		{
			name:     "document",
			payload:  `{"from":"1","id":"wamid.4","type":"document","document":{"id":"media-3","mime_type":"application/pdf"}}`,
			wantType: TypeDocument,
			wantMime: "application/pdf",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := Parse([]byte(wrapDelivery(tt.payload)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Type != tt.wantType {
				t.Fatalf("unexpected type: %s", msg.Type)
			}
			if !msg.Type.IsMedia() {
				t.Fatalf("%s must classify as media", tt.wantType)
			}
			if msg.Media.ID == "" {
				t.Fatal("media id missing")
			}
			if msg.Media.MimeType != tt.wantMime {
				t.Fatalf("unexpected mime: %q", msg.Media.MimeType)
			}
		})
	}
}

func TestParseUnknownTypeIsUnsupported(t *testing.T) {
	t.Parallel()

	msg, err := Parse([]byte(wrapDelivery(`{"from":"1","id":"wamid.5","type":"sticker"}`)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != TypeUnsupported {
		t.Fatalf("unexpected type: %s", msg.Type)
	}
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `{{`},
		{name: "empty object", payload: `{}`},
		{name: "no changes", payload: `{"entry":[{}]}`},
		{name: "no messages or statuses", payload: `{"entry":[{"changes":[{"value":{}}]}]}`},
		{name: "missing type key", payload: wrapDelivery(`{"from":"1","id":"wamid.6"}`)},
		{name: "text without body", payload: wrapDelivery(`{"from":"1","type":"text"}`)},
		{name: "image without media id", payload: wrapDelivery(`{"from":"1","type":"image","image":{"mime_type":"image/png"}}`)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.payload))
			if !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestParseStatusDeliveryIsNoOp(t *testing.T) {
	t.Parallel()

	payload := `{"entry":[{"changes":[{"value":{"statuses":[{"status":"delivered"}]}}]}]}`
	_, err := Parse([]byte(payload))
	if !errors.Is(err, ErrNoMessages) {
		t.Fatalf("expected ErrNoMessages, got %v", err)
	}
}
