// Package poller drives the externally-timed poll cycles: a short
// authentication-status loop while the session is pending, and a
// longer chat/message loop once it is authenticated.
package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/osari/wabridge/internal/bus"
	"github.com/osari/wabridge/internal/session"
	"github.com/osari/wabridge/internal/store"
	syncengine "github.com/osari/wabridge/internal/sync"
)

// Poller owns the two poll timers.
type Poller struct {
	sessionMgr *session.Manager
	engine     *syncengine.Engine
	db         *store.DB
	bus        *bus.Bus
	logger     *zap.Logger

	authInterval time.Duration
	syncInterval time.Duration

	cancel context.CancelFunc
	// cycleBusy is closed-loop overlap suppression: a sync tick that
	// fires while the previous cycle still runs is skipped.
	cycleBusy chan struct{}
}

// New creates a poller over the session manager and sync engine.
func New(sm *session.Manager, engine *syncengine.Engine, db *store.DB, b *bus.Bus, authInterval, syncInterval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		sessionMgr:   sm,
		engine:       engine,
		db:           db,
		bus:          b,
		logger:       logger,
		authInterval: authInterval,
		syncInterval: syncInterval,
		cycleBusy:    make(chan struct{}, 1),
	}
}

// Start launches the poll loops in the background.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
}

// Stop stops the loops.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) loop(ctx context.Context) {
	authTicker := time.NewTicker(p.authInterval)
	defer authTicker.Stop()
	syncTicker := time.NewTicker(p.syncInterval)
	defer syncTicker.Stop()

	for {
		select {
		case <-authTicker.C:
			if p.sessionMgr.Authenticated() {
				continue
			}
			st := p.sessionMgr.Status()
			p.logger.Debug("session pending", zap.String("state", string(st.State)), zap.Int("attempts", st.Attempts))
		case <-syncTicker.C:
			if !p.sessionMgr.Authenticated() {
				continue
			}
			select {
			case p.cycleBusy <- struct{}{}:
			default:
				p.logger.Warn("sync cycle still running, skipping tick")
				continue
			}
			go func() {
				defer func() { <-p.cycleBusy }()
				p.runCycle(ctx)
			}()
		case <-ctx.Done():
			return
		}
	}
}

// runCycle is one fetch-and-merge pass: refresh the chat list, then
// each known chat's messages. Per-chat failures are isolated.
func (p *Poller) runCycle(ctx context.Context) {
	if err := p.engine.PollChats(ctx); err != nil {
		p.logger.Error("chat poll failed", zap.Error(err))
		return
	}

	ids, err := p.db.ChatIDs()
	if err != nil {
		p.logger.Error("chat id listing failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := p.engine.PollMessages(ctx, id); err != nil {
			p.logger.Error("message poll failed", zap.String("chat", id), zap.Error(err))
		}
	}
	p.bus.PublishKind("sync.cycle_complete", len(ids))
}
