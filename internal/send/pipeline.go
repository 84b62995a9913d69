// Package send stages outbound requests and dispatches them through
// the matching bridge primitive.
package send

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/osari/wabridge/internal/bridge"
)

var (
	// ErrInvalidRequest is returned when the request is missing the
	// chat id or carries neither text nor an attachment.
	ErrInvalidRequest = errors.New("message or file is required")

	// ErrSendFailure wraps a bridge send primitive failure. Sends are
	// fail-once; there is no automatic retry.
	ErrSendFailure = errors.New("send failed")
)

// ClientSource yields the live bridge client, or an error when the
// session is not authenticated.
type ClientSource interface {
	Client() (bridge.Client, error)
}

// Attachment is a single outbound file.
type Attachment struct {
	Filename string
	MimeType string
	Data     []byte
}

// Request is one outbound send: text, an attachment, or both. When
// both are present the text becomes the attachment caption.
type Request struct {
	ChatID     string
	Text       string
	Attachment *Attachment
}

// Result is the normalized outcome of a send.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

// Pipeline validates, stages and dispatches outbound requests.
type Pipeline struct {
	source  ClientSource
	logger  *zap.Logger
	tempDir string
}

// NewPipeline creates a send pipeline staging attachments under the
// OS temp directory.
func NewPipeline(source ClientSource, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		source:  source,
		logger:  logger,
		tempDir: os.TempDir(),
	}
}

// Send dispatches one outbound request and normalizes the bridge's
// acknowledgement into a stable result shape.
func (p *Pipeline) Send(ctx context.Context, req Request) (Result, error) {
	if req.ChatID == "" || (req.Text == "" && req.Attachment == nil) {
		return Result{}, ErrInvalidRequest
	}

	client, err := p.source.Client()
	if err != nil {
		return Result{}, err
	}

	var ack bridge.SendAck
	if req.Attachment != nil {
		ack, err = p.sendAttachment(ctx, client, req)
	} else {
		ack, err = client.SendText(ctx, req.ChatID, req.Text)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSendFailure, err)
	}

	return Result{Success: true, MessageID: ack.MessageID()}, nil
}

func (p *Pipeline) sendAttachment(ctx context.Context, client bridge.Client, req Request) (bridge.SendAck, error) {
	att := req.Attachment

	// Unique staging name so concurrent sends of the same filename
	// cannot collide.
	staged := filepath.Join(p.tempDir, uuid.NewString()+"-"+filepath.Base(att.Filename))
	if err := os.WriteFile(staged, att.Data, 0600); err != nil {
		return nil, fmt.Errorf("stage attachment: %w", err)
	}
	defer func() {
		if err := os.Remove(staged); err != nil {
			p.logger.Warn("failed to clean up staged file", zap.String("path", staged), zap.Error(err))
		}
	}()

	mime := att.MimeType
	if mime == "" {
		mime = mimetype.Detect(att.Data).String()
	}

	p.logger.Info("sending file",
		zap.String("chat", req.ChatID),
		zap.String("name", att.Filename),
		zap.String("mime", mime),
		zap.Int("size", len(att.Data)))

	if strings.HasPrefix(mime, "image/") {
		return client.SendImage(ctx, req.ChatID, staged, att.Filename, req.Text)
	}
	return client.SendFile(ctx, req.ChatID, staged, att.Filename, req.Text)
}
