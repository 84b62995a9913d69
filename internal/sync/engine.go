// Package sync reconciles the remote chat and message feed into local
// view state: poll, normalize, deduplicate, resolve media through the
// cache.
package sync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/osari/wabridge/internal/bridge"
	"github.com/osari/wabridge/internal/bus"
	"github.com/osari/wabridge/internal/mediacache"
	"github.com/osari/wabridge/internal/store"
)

// Placeholder content substituted for media message bodies.
const (
	ContentMedia            = "[Media]"
	ContentMediaError       = "[Media Error]"
	ContentMediaUnavailable = "[Media Unavailable]"
)

// ClientSource yields the live bridge client, or an error when the
// session is not authenticated.
type ClientSource interface {
	Client() (bridge.Client, error)
}

// Engine polls the bridge and merges results into the view store.
type Engine struct {
	source ClientSource
	db     *store.DB
	cache  *mediacache.Cache
	bus    *bus.Bus
	logger *zap.Logger

	// now is swappable for tests.
	now func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewEngine creates a sync engine over the given client source, view
// store and media cache.
func NewEngine(source ClientSource, db *store.DB, cache *mediacache.Cache, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		source:   source,
		db:       db,
		cache:    cache,
		bus:      b,
		logger:   logger,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

// PollChats fetches the full remote chat list, resolves contact
// metadata and replaces the view-store chat collection wholesale. A
// single chat's contact-fetch failure degrades only that chat's
// metadata, never the poll.
func (e *Engine) PollChats(ctx context.Context) error {
	client, err := e.source.Client()
	if err != nil {
		return err
	}

	remote, err := client.GetAllChats(ctx)
	if err != nil {
		return fmt.Errorf("get chats: %w", err)
	}

	chats := make([]store.Chat, 0, len(remote))
	for _, rc := range remote {
		contact, cErr := client.GetContact(ctx, rc.ID)
		if cErr != nil {
			e.logger.Warn("contact lookup failed", zap.String("chat", rc.ID), zap.Error(cErr))
			contact = nil
		}
		chats = append(chats, e.buildChat(rc, contact))
	}

	if err := e.db.ReplaceChats(chats); err != nil {
		return fmt.Errorf("replace chats: %w", err)
	}
	e.bus.PublishKind("sync.chats_replaced", len(chats))
	return nil
}

// PollMessages fetches the full remote message list for a chat and
// appends every message not seen before, in first-seen order. Existing
// messages are never replaced or reordered, so re-polling an unchanged
// snapshot is a no-op. A concurrent poll for the same chat is
// suppressed to avoid duplicate media-decrypt work.
func (e *Engine) PollMessages(ctx context.Context, chatID string) error {
	e.mu.Lock()
	if _, busy := e.inflight[chatID]; busy {
		e.mu.Unlock()
		return nil
	}
	e.inflight[chatID] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inflight, chatID)
		e.mu.Unlock()
	}()

	client, err := e.source.Client()
	if err != nil {
		return err
	}

	remote, err := client.GetAllMessagesInChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get messages for %s: %w", chatID, err)
	}

	appended := 0
	for i := range remote {
		rm := &remote[i]
		id := bridge.NormalizeMessageID(rm.ID)

		exists, err := e.db.HasMessage(chatID, id)
		if err != nil {
			return fmt.Errorf("dedup check: %w", err)
		}
		if exists {
			continue
		}

		msg := store.Message{
			ChatID:    chatID,
			MsgID:     id,
			Content:   rm.Body,
			Kind:      messageKind(rm.Type),
			Timestamp: e.normalizeTimestamp(rm.Timestamp),
			Outbound:  rm.FromMe,
			Delivered: rm.Ack > 0,
		}

		if msg.Kind != store.KindText {
			// The expensive path. Failures degrade this message to a
			// placeholder and never abort the poll.
			msg.Content, msg.MediaRef = e.resolveMedia(ctx, client, id, rm)
		}

		inserted, err := e.db.AppendMessage(&msg)
		if err != nil {
			return fmt.Errorf("append message: %w", err)
		}
		if inserted {
			appended++
			e.bus.PublishKind("sync.message_appended", map[string]string{"chat_id": chatID, "msg_id": id})
		}
	}

	if appended > 0 {
		e.logger.Info("messages merged", zap.String("chat", chatID), zap.Int("appended", appended))
	}
	return nil
}

func (e *Engine) buildChat(rc bridge.Chat, contact *bridge.Contact) store.Chat {
	c := store.Chat{
		ID:                 rc.ID,
		DisplayName:        displayName(rc, contact),
		LastMessagePreview: rc.LastMessageBody,
		UnreadCount:        rc.UnreadCount,
		Presence:           store.PresenceOffline,
		IsGroup:            rc.IsGroup,
	}

	// Last activity fallback: presence timestamp, then chat-level
	// timestamp, then last message timestamp, then now.
	switch {
	case rc.LastSeen > 0:
		c.LastActivityAt = secondsToMillis(rc.LastSeen)
	case rc.Timestamp > 0:
		c.LastActivityAt = secondsToMillis(rc.Timestamp)
	case rc.LastMessageAt > 0:
		c.LastActivityAt = secondsToMillis(rc.LastMessageAt)
	default:
		c.LastActivityAt = e.now().UnixMilli()
	}

	if rc.LastSeen > 0 {
		c.LastSeenAt = secondsToMillis(rc.LastSeen)
	}
	if contact != nil {
		if contact.IsOnline || rc.PresenceOnline {
			c.Presence = store.PresenceOnline
		}
		c.IsBusiness = contact.IsBusiness
	} else if rc.PresenceOnline {
		c.Presence = store.PresenceOnline
	}
	return c
}

// displayName resolves a chat's name with the fallback ladder: chat
// name, contact push name, contact registered name, contact short
// name, contact id local part, "Unknown".
func displayName(rc bridge.Chat, contact *bridge.Contact) string {
	if rc.Name != "" {
		return rc.Name
	}
	if contact != nil {
		switch {
		case contact.PushName != "":
			return contact.PushName
		case contact.Name != "":
			return contact.Name
		case contact.ShortName != "":
			return contact.ShortName
		}
		if local := localPart(contact.ID); local != "" {
			return local
		}
	}
	if local := localPart(rc.ID); local != "" {
		return local
	}
	return "Unknown"
}

func localPart(id string) string {
	if at := strings.IndexByte(id, '@'); at > 0 {
		return id[:at]
	}
	return id
}

func messageKind(bridgeType string) string {
	switch bridgeType {
	case store.KindImage, store.KindVideo, store.KindDocument:
		return bridgeType
	default:
		return store.KindText
	}
}
