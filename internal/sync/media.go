package sync

import (
	"context"
	"encoding/base64"

	"go.uber.org/zap"

	"github.com/osari/wabridge/internal/bridge"
	"github.com/osari/wabridge/internal/store"
)

// resolveMedia produces the content placeholder and inline media
// reference for a media message. The cache is consulted first; on a
// miss the message is re-fetched by id for a fresh retrievable
// reference and decrypted through the bridge, and the result is stored
// before use. Decryption cost is paid at most once per message id.
func (e *Engine) resolveMedia(ctx context.Context, client bridge.Client, id string, rm *bridge.Message) (content, mediaRef string) {
	if e.cache.Has(id) {
		entry, err := e.cache.Get(id)
		if err != nil || entry == nil {
			e.logger.Warn("media cache read failed", zap.String("msg_id", id), zap.Error(err))
			return ContentMediaError, ""
		}
		return ContentMedia, inlineRef(entry.MimeType, entry.Data)
	}

	fresh, err := client.GetMessageByID(ctx, id)
	if err != nil || fresh == nil {
		e.logger.Warn("media refetch failed", zap.String("msg_id", id), zap.Error(err))
		return ContentMediaError, ""
	}

	data, err := client.DecryptFile(ctx, fresh)
	if err != nil {
		e.logger.Warn("media decrypt failed", zap.String("msg_id", id), zap.Error(err))
		return ContentMediaError, ""
	}
	if len(data) == 0 {
		e.logger.Warn("no media data received", zap.String("msg_id", id))
		return ContentMediaUnavailable, ""
	}

	mime := mediaMimeType(rm)
	if err := e.cache.Put(id, data, mime); err != nil {
		// The decrypted bytes are still good; losing the cache write
		// only means paying the decrypt again next time.
		e.logger.Warn("media cache write failed", zap.String("msg_id", id), zap.Error(err))
	}
	return ContentMedia, inlineRef(mime, data)
}

func mediaMimeType(rm *bridge.Message) string {
	if rm.Mimetype != "" {
		return rm.Mimetype
	}
	switch messageKind(rm.Type) {
	case store.KindImage:
		return "image/jpeg"
	case store.KindVideo:
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

func inlineRef(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
