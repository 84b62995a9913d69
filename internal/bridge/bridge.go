// Package bridge defines the capability surface of the external chat
// bridge. Everything above this package depends on the Client interface
// and the raw payload types only, never on a concrete bridge.
package bridge

import "context"

// Status strings reported by the bridge's status callback.
const (
	StatusLogged       = "isLogged"
	StatusNotLogged    = "notLogged"
	StatusBrowserClose = "browserClose"
)

// QRCallback receives the latest pairing code whenever the bridge
// rotates it.
type QRCallback func(code string)

// StatusCallback receives bridge status transitions as raw status
// strings (see the Status* constants).
type StatusCallback func(status string)

// Options configures bridge client creation.
type Options struct {
	// Session names the credential store the bridge should use.
	Session string
	// DataDir is where the bridge may persist its own state.
	DataDir string
}

// Factory creates a live bridge client. The callbacks are registered
// before any connection work starts and stay valid for the lifetime of
// the returned client.
type Factory func(ctx context.Context, opts Options, onQR QRCallback, onStatus StatusCallback) (Client, error)

// Client is the narrow set of primitives the bridge provides. All
// blocking calls take a context; Close is idempotent.
type Client interface {
	SendText(ctx context.Context, chatID, text string) (SendAck, error)
	SendImage(ctx context.Context, chatID, filePath, filename, caption string) (SendAck, error)
	SendFile(ctx context.Context, chatID, filePath, filename, caption string) (SendAck, error)

	GetAllChats(ctx context.Context) ([]Chat, error)
	GetAllMessagesInChat(ctx context.Context, chatID string) ([]Message, error)
	GetMessageByID(ctx context.Context, id string) (*Message, error)
	GetContact(ctx context.Context, chatID string) (*Contact, error)

	// DecryptFile downloads and decrypts the media attached to msg.
	// A nil byte slice with nil error means the bridge had no data.
	DecryptFile(ctx context.Context, msg *Message) ([]byte, error)

	Close() error
}

// Chat is a remote conversation summary as the bridge reports it.
// All timestamps are in epoch seconds, zero when the bridge has none.
type Chat struct {
	ID              string
	Name            string
	Timestamp       int64
	UnreadCount     int
	LastMessageBody string
	LastMessageAt   int64
	PresenceOnline  bool
	LastSeen        int64
	IsGroup         bool
}

// Contact is the bridge's contact metadata for a chat peer.
type Contact struct {
	ID         string
	Name       string
	PushName   string
	ShortName  string
	IsOnline   bool
	IsBusiness bool
	IsUser     bool
}

// Message is one remote message in the bridge's loosely-shaped form.
// ID may be a plain string or a structured identifier; Timestamp may be
// an epoch-seconds number or anything else the bridge emits. Both are
// normalized by the sync engine, not here.
type Message struct {
	ID        any
	ChatID    string
	Body      string
	Type      string
	Mimetype  string
	Timestamp any
	FromMe    bool
	Ack       int
}
