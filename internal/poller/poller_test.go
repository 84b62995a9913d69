package poller

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/osari/wabridge/internal/bridge"
	"github.com/osari/wabridge/internal/bridge/bridgetest"
	"github.com/osari/wabridge/internal/bus"
	"github.com/osari/wabridge/internal/mediacache"
	"github.com/osari/wabridge/internal/session"
	"github.com/osari/wabridge/internal/store"
	syncengine "github.com/osari/wabridge/internal/sync"
)

var dbSeq atomic.Int64

func testStack(t *testing.T, client bridge.Client) (*session.Manager, *syncengine.Engine, *store.DB, *bus.Bus, bridge.StatusCallback) {
	t.Helper()

	var onStatus bridge.StatusCallback
	factory := func(_ context.Context, _ bridge.Options, _ bridge.QRCallback, cb bridge.StatusCallback) (bridge.Client, error) {
		onStatus = cb
		return client, nil
	}

	b := bus.New()
	sm := session.NewManager(factory, bridge.Options{}, b, zap.NewNop())
	if _, err := sm.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	db, err := store.OpenMemory(fmt.Sprintf("pollertest%d", dbSeq.Add(1)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	engine := syncengine.NewEngine(sm, db, mediacache.New(filepath.Join(t.TempDir(), "mc")), b, zap.NewNop())
	return sm, engine, db, b, onStatus
}

func TestSyncCycleOnceAuthenticated(t *testing.T) {
	fake := &bridgetest.Fake{
		Chats: []bridge.Chat{{ID: "c1@c.us", Name: "One", Timestamp: 100}},
		Messages: map[string][]bridge.Message{
			"c1@c.us": {{ID: "m1", Body: "hi", Type: "chat", Timestamp: int64(100)}},
		},
	}
	sm, engine, db, b, onStatus := testStack(t, fake)
	onStatus(bridge.StatusLogged)

	p := New(sm, engine, db, b, time.Hour, 10*time.Millisecond, zap.NewNop())
	done, unsub := b.Subscribe("sync.cycle_complete", 4)
	defer unsub()

	p.Start(context.Background())
	defer p.Stop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("no sync cycle completed")
	}

	chats, err := db.ListChats()
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].ID != "c1@c.us" {
		t.Fatalf("chats = %+v", chats)
	}
	msgs, err := db.ListMessages("c1@c.us")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].MsgID != "m1" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestNoSyncWhileUnauthenticated(t *testing.T) {
	fake := &bridgetest.Fake{
		Chats: []bridge.Chat{{ID: "c1@c.us", Timestamp: 100}},
	}
	sm, engine, db, b, _ := testStack(t, fake)

	p := New(sm, engine, db, b, time.Hour, 10*time.Millisecond, zap.NewNop())
	p.Start(context.Background())
	defer p.Stop()

	time.Sleep(100 * time.Millisecond)

	n, err := db.ChatCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("chat count = %d, want 0 before authentication", n)
	}
}

// blockingChatsClient stalls chat fetches until released so a sync
// cycle can be held open across ticks.
type blockingChatsClient struct {
	*bridgetest.Fake
	entered chan struct{}
	release chan struct{}
	fetches atomic.Int32
}

func (c *blockingChatsClient) GetAllChats(ctx context.Context) ([]bridge.Chat, error) {
	c.fetches.Add(1)
	c.entered <- struct{}{}
	<-c.release
	return c.Fake.GetAllChats(ctx)
}

func TestSyncTickSkippedWhileCycleRunning(t *testing.T) {
	bc := &blockingChatsClient{
		Fake:    &bridgetest.Fake{Chats: []bridge.Chat{{ID: "c1@c.us", Timestamp: 100}}},
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
	sm, engine, db, b, onStatus := testStack(t, bc)
	onStatus(bridge.StatusLogged)

	done, unsub := b.Subscribe("sync.cycle_complete", 4)
	defer unsub()

	p := New(sm, engine, db, b, time.Hour, 10*time.Millisecond, zap.NewNop())
	p.Start(context.Background())
	defer p.Stop()

	<-bc.entered // first cycle is now inside the chat fetch

	// Many ticks fire while the cycle is held open; every one of them
	// must be skipped rather than start a second cycle.
	time.Sleep(150 * time.Millisecond)
	if got := bc.fetches.Load(); got != 1 {
		t.Fatalf("chat fetches = %d, want 1 while a cycle is running", got)
	}

	close(bc.release)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("held-open cycle never completed after release")
	}
}
