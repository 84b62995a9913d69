package bridge

import "testing"

func TestDecodeAckStructuredID(t *testing.T) {
	ack := DecodeAck(map[string]any{"id": map[string]any{"id": "abc"}})
	if got := ack.MessageID(); got != "abc" {
		t.Errorf("message id = %q, want abc", got)
	}
	if _, ok := ack.(TextAck); !ok {
		t.Errorf("ack type = %T, want TextAck", ack)
	}
}

func TestDecodeAckFlatID(t *testing.T) {
	ack := DecodeAck(map[string]any{"id": "xyz"})
	if got := ack.MessageID(); got != "xyz" {
		t.Errorf("message id = %q, want xyz", got)
	}
}

func TestDecodeAckMediaShape(t *testing.T) {
	ack := DecodeAck(map[string]any{
		"id":       map[string]any{"id": "m-9"},
		"mimetype": "image/jpeg",
	})
	media, ok := ack.(MediaAck)
	if !ok {
		t.Fatalf("ack type = %T, want MediaAck", ack)
	}
	if media.MessageID() != "m-9" || media.Mimetype != "image/jpeg" {
		t.Errorf("media ack = %+v", media)
	}
}

func TestDecodeAckNoID(t *testing.T) {
	cases := []any{
		map[string]any{"status": "ok"},
		map[string]any{},
		nil,
		"bare string",
	}
	for _, raw := range cases {
		ack := DecodeAck(raw)
		if got := ack.MessageID(); got != "unknown" {
			t.Errorf("DecodeAck(%v).MessageID() = %q, want unknown", raw, got)
		}
	}
}

func TestDecodeAckNumericID(t *testing.T) {
	// An id the decoder cannot classify is still stringified rather
	// than dropped.
	ack := DecodeAck(map[string]any{"id": 42})
	if got := ack.MessageID(); got != "42" {
		t.Errorf("message id = %q, want 42", got)
	}
}

func TestNormalizeMessageID(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"plain", "plain"},
		{map[string]any{"id": "nested"}, "nested"},
		{"", "unknown"},
		{nil, "unknown"},
	}
	for _, tc := range cases {
		if got := NormalizeMessageID(tc.in); got != tc.want {
			t.Errorf("NormalizeMessageID(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
