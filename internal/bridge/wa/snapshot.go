package wa

import (
	"sort"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow/proto/waE2E"

	"github.com/osari/wabridge/internal/bridge"
)

// rawMessage keeps everything the bridge surface needs about one
// message, including the decrypted-payload keys inside content.
type rawMessage struct {
	id        string
	chatJID   string
	body      string
	kind      string
	mimetype  string
	timestamp int64 // epoch seconds
	fromMe    bool
	ack       int
	content   *waE2E.Message
}

func (r *rawMessage) toBridge() bridge.Message {
	return bridge.Message{
		ID:        r.id,
		ChatID:    r.chatJID,
		Body:      r.body,
		Type:      r.kind,
		Mimetype:  r.mimetype,
		Timestamp: r.timestamp,
		FromMe:    r.fromMe,
		Ack:       r.ack,
	}
}

type chatState struct {
	jid             string
	name            string
	unreadCount     int
	lastMessageBody string
	lastMessageAt   int64 // epoch seconds
}

// snapshot is the event-fed view of the account: chats and their
// messages as learned from history syncs and live events.
type snapshot struct {
	mu       sync.Mutex
	chats    map[string]*chatState
	messages map[string][]*rawMessage
	index    map[string]*rawMessage
}

func newSnapshot() *snapshot {
	return &snapshot{
		chats:    make(map[string]*chatState),
		messages: make(map[string][]*rawMessage),
		index:    make(map[string]*rawMessage),
	}
}

// upsertChat merges chat metadata, keeping the freshest last-message
// info.
func (s *snapshot) upsertChat(jid, name string, unread int, lastAt int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[jid]
	if !ok {
		c = &chatState{jid: jid}
		s.chats[jid] = c
	}
	if name != "" {
		c.name = name
	}
	if unread > 0 {
		c.unreadCount = unread
	}
	if lastAt > c.lastMessageAt {
		c.lastMessageAt = lastAt
	}
}

// addMessage records a message once; repeats of the same id are
// dropped. The owning chat's last-message info advances when the
// message is newer.
func (s *snapshot) addMessage(m *rawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.index[m.id]; seen {
		return
	}
	s.index[m.id] = m
	s.messages[m.chatJID] = append(s.messages[m.chatJID], m)

	c, ok := s.chats[m.chatJID]
	if !ok {
		c = &chatState{jid: m.chatJID}
		s.chats[m.chatJID] = c
	}
	if m.timestamp >= c.lastMessageAt {
		c.lastMessageAt = m.timestamp
		c.lastMessageBody = m.body
	}
}

// markDelivered flips the ack bit for the given message ids.
func (s *snapshot) markDelivered(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if m, ok := s.index[id]; ok && m.ack == 0 {
			m.ack = 1
		}
	}
}

func (s *snapshot) allChats() []bridge.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bridge.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, bridge.Chat{
			ID:              c.jid,
			Name:            c.name,
			Timestamp:       c.lastMessageAt,
			UnreadCount:     c.unreadCount,
			LastMessageBody: c.lastMessageBody,
			LastMessageAt:   c.lastMessageAt,
			IsGroup:         strings.HasSuffix(c.jid, "@g.us"),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt > out[j].LastMessageAt })
	return out
}

func (s *snapshot) chatMessages(jid string) []bridge.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	raws := s.messages[jid]
	out := make([]bridge.Message, 0, len(raws))
	for _, r := range raws {
		out = append(out, r.toBridge())
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := out[i].Timestamp.(int64)
		tj, _ := out[j].Timestamp.(int64)
		return ti < tj
	})
	return out
}

func (s *snapshot) byID(id string) *rawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index[id]
}
