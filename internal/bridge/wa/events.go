package wa

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"github.com/osari/wabridge/internal/bridge"
)

// handleEvent feeds the snapshot from whatsmeow events and maps
// connection lifecycle onto the bridge status callback.
func (a *Adapter) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		a.snapshot.addMessage(parseLiveMessage(evt))
	case *events.HistorySync:
		a.handleHistorySync(evt)
	case *events.Receipt:
		if evt.Type == types.ReceiptTypeDelivered || evt.Type == types.ReceiptTypeRead {
			a.snapshot.markDelivered(evt.MessageIDs)
		}
	case *events.Connected:
		a.logger.Info("bridge connected")
		a.onStatus(bridge.StatusLogged)
	case *events.LoggedOut:
		a.logger.Warn("bridge logged out", zap.String("reason", evt.Reason.String()))
		a.onStatus(bridge.StatusNotLogged)
	case *events.StreamReplaced:
		a.logger.Warn("stream replaced by another client")
		a.onStatus(bridge.StatusBrowserClose)
	case *events.ClientOutdated:
		a.logger.Error("client version rejected by server")
		a.onStatus(bridge.StatusBrowserClose)
	case *events.Disconnected:
		// Transient; whatsmeow reconnects on its own.
		a.logger.Warn("bridge disconnected, awaiting reconnect")
	}
}

func (a *Adapter) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	for _, conv := range data.GetConversations() {
		chatJID := conv.GetID()
		a.snapshot.upsertChat(
			chatJID,
			conv.GetName(),
			int(conv.GetUnreadCount()),
			int64(conv.GetConversationTimestamp()),
		)

		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			a.snapshot.addMessage(parseHistoryMessage(chatJID, wmsg))
		}
	}
}

func parseLiveMessage(evt *events.Message) *rawMessage {
	ack := 0
	if evt.Info.IsFromMe {
		ack = 1
	}
	return &rawMessage{
		id:        evt.Info.ID,
		chatJID:   evt.Info.Chat.String(),
		body:      extractTextBody(evt.Message),
		kind:      detectMessageType(evt.Message),
		mimetype:  mediaMimetype(evt.Message),
		timestamp: evt.Info.Timestamp.Unix(),
		fromMe:    evt.Info.IsFromMe,
		ack:       ack,
		content:   evt.Message,
	}
}

func parseHistoryMessage(chatJID string, wmsg *waWeb.WebMessageInfo) *rawMessage {
	info := wmsg.GetMessage()
	ack := 0
	if wmsg.GetStatus() >= waWeb.WebMessageInfo_DELIVERY_ACK {
		ack = 1
	}
	return &rawMessage{
		id:        wmsg.GetKey().GetID(),
		chatJID:   chatJID,
		body:      extractTextBody(info),
		kind:      detectMessageType(info),
		mimetype:  mediaMimetype(info),
		timestamp: int64(wmsg.GetMessageTimestamp()),
		fromMe:    wmsg.GetKey().GetFromMe(),
		ack:       ack,
		content:   info,
	}
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		return doc.GetCaption()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "chat"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}

func mediaMimetype(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetMimetype()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetMimetype()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetMimetype()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetMimetype()
	default:
		return ""
	}
}
