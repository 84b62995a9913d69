package bridge

import "fmt"

// SendAck is the decoded result of a send primitive.
type SendAck interface {
	MessageID() string
}

// TextAck acknowledges a text send with a server-assigned message id.
type TextAck struct {
	ID string
}

func (a TextAck) MessageID() string { return a.ID }

// MediaAck acknowledges a media send.
type MediaAck struct {
	ID       string
	Mimetype string
}

func (a MediaAck) MessageID() string { return a.ID }

// UnknownAck wraps a response the decoder could not classify. Its
// message id is the stringified id field when one exists, otherwise
// the literal "unknown".
type UnknownAck struct {
	Raw any
}

func (a UnknownAck) MessageID() string {
	if a.Raw == nil {
		return "unknown"
	}
	return fmt.Sprint(a.Raw)
}

// DecodeAck classifies a raw bridge send response before any field
// access. The id extraction tries the structured {id:{id:string}}
// shape first, then a flat id, then gives up with "unknown".
func DecodeAck(raw any) SendAck {
	m, ok := raw.(map[string]any)
	if !ok {
		return UnknownAck{}
	}

	id, ok := m["id"]
	if !ok {
		return UnknownAck{}
	}

	switch v := id.(type) {
	case map[string]any:
		if inner, ok := v["id"].(string); ok {
			if mt, ok := m["mimetype"].(string); ok && mt != "" {
				return MediaAck{ID: inner, Mimetype: mt}
			}
			return TextAck{ID: inner}
		}
		return UnknownAck{Raw: v}
	case string:
		return TextAck{ID: v}
	default:
		return UnknownAck{Raw: v}
	}
}

// NormalizeMessageID flattens a possibly-structured bridge message
// identifier into the single string used as the dedup key.
func NormalizeMessageID(id any) string {
	switch v := id.(type) {
	case string:
		if v == "" {
			return "unknown"
		}
		return v
	case map[string]any:
		if inner, ok := v["id"].(string); ok && inner != "" {
			return inner
		}
	case nil:
		return "unknown"
	}
	return fmt.Sprint(id)
}
