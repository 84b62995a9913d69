// Package bridgetest provides an in-memory bridge.Client for tests.
package bridgetest

import (
	"context"
	"errors"
	"sync"

	"github.com/osari/wabridge/internal/bridge"
)

// Fake is a scriptable in-memory bridge client. Zero value is usable;
// populate the public fields to script responses.
type Fake struct {
	mu sync.Mutex

	Chats    []bridge.Chat
	Messages map[string][]bridge.Message
	Contacts map[string]*bridge.Contact
	// Media maps normalized message id to decrypted bytes. A present
	// key with a nil slice models "bridge had no data".
	Media map[string][]byte

	ContactErr error
	ChatsErr   error
	DecryptErr error
	SendErr    error

	SendAck bridge.SendAck

	DecryptCalls int
	SentTexts    []SentText
	SentFiles    []SentFile
	Closed       bool
}

// SentText records one SendText invocation.
type SentText struct {
	ChatID string
	Text   string
}

// SentFile records one SendImage/SendFile invocation.
type SentFile struct {
	ChatID   string
	FilePath string
	Filename string
	Caption  string
	AsImage  bool
}

var _ bridge.Client = (*Fake)(nil)

func (f *Fake) ack() bridge.SendAck {
	if f.SendAck != nil {
		return f.SendAck
	}
	return bridge.TextAck{ID: "fake-id"}
}

func (f *Fake) SendText(_ context.Context, chatID, text string) (bridge.SendAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	f.SentTexts = append(f.SentTexts, SentText{ChatID: chatID, Text: text})
	return f.ack(), nil
}

func (f *Fake) SendImage(_ context.Context, chatID, filePath, filename, caption string) (bridge.SendAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	f.SentFiles = append(f.SentFiles, SentFile{ChatID: chatID, FilePath: filePath, Filename: filename, Caption: caption, AsImage: true})
	return f.ack(), nil
}

func (f *Fake) SendFile(_ context.Context, chatID, filePath, filename, caption string) (bridge.SendAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	f.SentFiles = append(f.SentFiles, SentFile{ChatID: chatID, FilePath: filePath, Filename: filename, Caption: caption, AsImage: false})
	return f.ack(), nil
}

func (f *Fake) GetAllChats(_ context.Context) ([]bridge.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ChatsErr != nil {
		return nil, f.ChatsErr
	}
	return append([]bridge.Chat(nil), f.Chats...), nil
}

func (f *Fake) GetAllMessagesInChat(_ context.Context, chatID string) ([]bridge.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bridge.Message(nil), f.Messages[chatID]...), nil
}

func (f *Fake) GetMessageByID(_ context.Context, id string) (*bridge.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msgs := range f.Messages {
		for i := range msgs {
			if bridge.NormalizeMessageID(msgs[i].ID) == id {
				m := msgs[i]
				return &m, nil
			}
		}
	}
	return nil, errors.New("message not found")
}

func (f *Fake) GetContact(_ context.Context, chatID string) (*bridge.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ContactErr != nil {
		return nil, f.ContactErr
	}
	if c, ok := f.Contacts[chatID]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, errors.New("contact not found")
}

func (f *Fake) DecryptFile(_ context.Context, msg *bridge.Message) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DecryptCalls++
	if f.DecryptErr != nil {
		return nil, f.DecryptErr
	}
	data, ok := f.Media[bridge.NormalizeMessageID(msg.ID)]
	if !ok {
		return nil, errors.New("no media for message")
	}
	return data, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
