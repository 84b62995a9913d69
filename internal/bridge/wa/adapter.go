// Package wa implements bridge.Client on top of whatsmeow.
package wa

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/osari/wabridge/internal/bridge"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter wraps the whatsmeow client and serves the bridge capability
// surface from an event-fed snapshot of chats and messages.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	logger    *zap.Logger
	onStatus  bridge.StatusCallback

	snapshot *snapshot
}

// NewFactory returns a bridge.Factory backed by whatsmeow. The device
// credential store lives at dbPath.
func NewFactory(dbPath string, logger *zap.Logger) bridge.Factory {
	return func(ctx context.Context, opts bridge.Options, onQR bridge.QRCallback, onStatus bridge.StatusCallback) (bridge.Client, error) {
		return newAdapter(ctx, dbPath, opts, onQR, onStatus, logger)
	}
}

func newAdapter(ctx context.Context, dbPath string, opts bridge.Options, onQR bridge.QRCallback, onStatus bridge.StatusCallback, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("WABridge", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create credential store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	a := &Adapter{
		client:    whatsmeow.NewClient(deviceStore, nil),
		container: container,
		logger:    logger,
		onStatus:  onStatus,
		snapshot:  newSnapshot(),
	}
	a.client.AddEventHandler(a.handleEvent)

	if a.client.Store.ID != nil {
		// Credentials exist: connect directly, the Connected event
		// reports isLogged.
		if err := a.client.Connect(); err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		return a, nil
	}

	// No credentials: run the QR pairing flow. GetQRChannel must be
	// called before Connect.
	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("get QR channel: %w", err)
	}
	if err := a.client.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	go func() {
		for item := range qrChan {
			switch item.Event {
			case "code":
				logger.Info("new pairing code received")
				onQR(item.Code)
				onStatus(bridge.StatusNotLogged)
			case "success":
				logger.Info("pairing succeeded")
				onStatus(bridge.StatusLogged)
				return
			case "timeout":
				logger.Warn("pairing timed out")
				onStatus(bridge.StatusBrowserClose)
				return
			default:
				if item.Error != nil {
					logger.Error("pairing failed", zap.Error(item.Error))
					onStatus(bridge.StatusBrowserClose)
					return
				}
			}
		}
	}()

	return a, nil
}

var _ bridge.Client = (*Adapter)(nil)

// SendText sends a plain text message.
func (a *Adapter) SendText(ctx context.Context, chatID, text string) (bridge.SendAck, error) {
	to, err := types.ParseJID(chatID)
	if err != nil {
		return nil, fmt.Errorf("parse JID: %w", err)
	}
	resp, err := a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return bridge.TextAck{ID: resp.ID}, nil
}

// SendImage uploads the staged file and sends it as an image message
// with an optional caption.
func (a *Adapter) SendImage(ctx context.Context, chatID, filePath, filename, caption string) (bridge.SendAck, error) {
	to, err := types.ParseJID(chatID)
	if err != nil {
		return nil, fmt.Errorf("parse JID: %w", err)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read staged file: %w", err)
	}
	mime := mimetype.Detect(data).String()

	up, err := a.client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	msg := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:       proto.String(caption),
		Mimetype:      proto.String(mime),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}}
	resp, err := a.client.SendMessage(ctx, to, msg)
	if err != nil {
		return nil, fmt.Errorf("send image: %w", err)
	}
	return bridge.MediaAck{ID: resp.ID, Mimetype: mime}, nil
}

// SendFile uploads the staged file and sends it as a document,
// preserving the original filename.
func (a *Adapter) SendFile(ctx context.Context, chatID, filePath, filename, caption string) (bridge.SendAck, error) {
	to, err := types.ParseJID(chatID)
	if err != nil {
		return nil, fmt.Errorf("parse JID: %w", err)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read staged file: %w", err)
	}
	mime := mimetype.Detect(data).String()

	up, err := a.client.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}

	msg := &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Title:         proto.String(filename),
		FileName:      proto.String(filename),
		Caption:       proto.String(caption),
		Mimetype:      proto.String(mime),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}}
	resp, err := a.client.SendMessage(ctx, to, msg)
	if err != nil {
		return nil, fmt.Errorf("send document: %w", err)
	}
	return bridge.MediaAck{ID: resp.ID, Mimetype: mime}, nil
}

// GetAllChats returns the accumulated chat snapshot.
func (a *Adapter) GetAllChats(_ context.Context) ([]bridge.Chat, error) {
	return a.snapshot.allChats(), nil
}

// GetAllMessagesInChat returns the accumulated messages for one chat.
func (a *Adapter) GetAllMessagesInChat(_ context.Context, chatID string) ([]bridge.Message, error) {
	return a.snapshot.chatMessages(chatID), nil
}

// GetMessageByID returns a message with a still-retrievable media
// reference, or an error when the id is unknown.
func (a *Adapter) GetMessageByID(_ context.Context, id string) (*bridge.Message, error) {
	raw := a.snapshot.byID(id)
	if raw == nil {
		return nil, fmt.Errorf("message %s not in snapshot", id)
	}
	m := raw.toBridge()
	return &m, nil
}

// GetContact resolves contact metadata from the device store.
func (a *Adapter) GetContact(ctx context.Context, chatID string) (*bridge.Contact, error) {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return nil, fmt.Errorf("parse JID: %w", err)
	}
	info, err := a.client.Store.Contacts.GetContact(ctx, jid.ToNonAD())
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	if !info.Found {
		return nil, fmt.Errorf("contact %s not found", chatID)
	}
	return &bridge.Contact{
		ID:         chatID,
		Name:       info.FullName,
		PushName:   info.PushName,
		ShortName:  info.FirstName,
		IsBusiness: info.BusinessName != "",
		IsUser:     !strings.HasSuffix(chatID, "@g.us"),
	}, nil
}

// DecryptFile downloads and decrypts the media carried by msg. The
// message must still be present in the snapshot so its media keys are
// available.
func (a *Adapter) DecryptFile(ctx context.Context, msg *bridge.Message) ([]byte, error) {
	raw := a.snapshot.byID(bridge.NormalizeMessageID(msg.ID))
	if raw == nil || raw.content == nil {
		return nil, fmt.Errorf("no downloadable content for message")
	}

	var downloadable whatsmeow.DownloadableMessage
	switch {
	case raw.content.GetImageMessage() != nil:
		downloadable = raw.content.GetImageMessage()
	case raw.content.GetVideoMessage() != nil:
		downloadable = raw.content.GetVideoMessage()
	case raw.content.GetDocumentMessage() != nil:
		downloadable = raw.content.GetDocumentMessage()
	default:
		return nil, fmt.Errorf("message carries no media")
	}

	data, err := a.client.Download(ctx, downloadable)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	return data, nil
}

// Close disconnects from the bridge. Idempotent.
func (a *Adapter) Close() error {
	a.client.Disconnect()
	return nil
}
