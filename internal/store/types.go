package store

// Presence values for a chat peer.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
	PresenceTyping  = "typing"
)

// Message kinds.
const (
	KindText     = "text"
	KindImage    = "image"
	KindVideo    = "video"
	KindDocument = "document"
)

// Chat is one synced conversation summary. The whole collection is
// replaced on every chat poll.
type Chat struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"name"`
	LastMessagePreview string `json:"lastMessage"`
	LastActivityAt     int64  `json:"timestamp"`
	UnreadCount        int    `json:"unreadCount"`
	Presence           string `json:"status"`
	LastSeenAt         int64  `json:"lastSeen,omitempty"`
	IsBusiness         bool   `json:"isBusiness"`
	IsGroup            bool   `json:"isGroup"`
}

// Message is one synced message. Rows are append-only: once inserted
// under its dedup key a message is never updated or reordered.
type Message struct {
	Seq       int64  `json:"-"`
	ChatID    string `json:"chatId"`
	MsgID     string `json:"id"`
	Content   string `json:"content"`
	Kind      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Outbound  bool   `json:"outbound"`
	Delivered bool   `json:"delivered"`
	MediaRef  string `json:"mediaUrl,omitempty"`
}
