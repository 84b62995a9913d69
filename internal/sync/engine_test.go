package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
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
)

var dbSeq atomic.Int64

type fixedSource struct {
	client bridge.Client
	err    error
}

func (s fixedSource) Client() (bridge.Client, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.client, nil
}

func testEngine(t *testing.T, fake *bridgetest.Fake) *Engine {
	t.Helper()
	return testEngineClient(t, fake)
}

func testEngineClient(t *testing.T, client bridge.Client) *Engine {
	t.Helper()
	db, err := store.OpenMemory(fmt.Sprintf("synctest%d", dbSeq.Add(1)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cache := mediacache.New(filepath.Join(t.TempDir(), "media-cache"))
	return NewEngine(fixedSource{client: client}, db, cache, bus.New(), zap.NewNop())
}

func TestPollMessagesDedup(t *testing.T) {
	fake := &bridgetest.Fake{
		Messages: map[string][]bridge.Message{
			"c1": {
				{ID: "a", Body: "first", Type: "chat", Timestamp: int64(100)},
				{ID: "b", Body: "second", Type: "chat", Timestamp: int64(200)},
				{ID: "a", Body: "dupe", Type: "chat", Timestamp: int64(300)},
				{ID: "c", Body: "third", Type: "chat", Timestamp: int64(400)},
			},
		},
	}
	e := testEngine(t, fake)

	if err := e.PollMessages(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}

	msgs, err := e.db.ListMessages("c1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, id := range want {
		if msgs[i].MsgID != id {
			t.Errorf("position %d = %q, want %q", i, msgs[i].MsgID, id)
		}
	}
	if msgs[0].Content != "first" {
		t.Errorf("content = %q, want body from first occurrence", msgs[0].Content)
	}
}

func TestPollMessagesIdempotentRepoll(t *testing.T) {
	fake := &bridgetest.Fake{
		Messages: map[string][]bridge.Message{
			"c1": {
				{ID: "a", Body: "one", Type: "chat", Timestamp: int64(100)},
				{ID: "b", Body: "two", Type: "chat", Timestamp: int64(200)},
			},
		},
	}
	e := testEngine(t, fake)

	if err := e.PollMessages(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	first, err := e.db.ListMessages("c1")
	if err != nil {
		t.Fatal(err)
	}

	if err := e.PollMessages(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	second, err := e.db.ListMessages("c1")
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("re-poll changed count: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("position %d changed: %+v -> %+v", i, first[i], second[i])
		}
	}
}

func TestPollMessagesStructuredID(t *testing.T) {
	fake := &bridgetest.Fake{
		Messages: map[string][]bridge.Message{
			"c1": {
				{ID: map[string]any{"id": "abc"}, Body: "x", Type: "chat", Timestamp: int64(100)},
				{ID: "abc", Body: "same message, flat id", Type: "chat", Timestamp: int64(100)},
			},
		},
	}
	e := testEngine(t, fake)

	if err := e.PollMessages(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	msgs, err := e.db.ListMessages("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (normalized ids collide)", len(msgs))
	}
	if msgs[0].MsgID != "abc" {
		t.Errorf("msg id = %q, want abc", msgs[0].MsgID)
	}
}

func TestTimestampNormalization(t *testing.T) {
	e := testEngine(t, &bridgetest.Fake{})
	fixedNow := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixedNow }

	got := e.normalizeTimestamp(int64(1700000000))
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC).UnixMilli()
	if got != want {
		t.Errorf("epoch seconds: got %d, want %d", got, want)
	}

	if got := e.normalizeTimestamp("1700000000"); got != want {
		t.Errorf("numeric string: got %d, want %d", got, want)
	}

	if got := e.normalizeTimestamp("2023-11-14T22:13:20Z"); got != want {
		t.Errorf("RFC3339 string: got %d, want %d", got, want)
	}

	if got := e.normalizeTimestamp("not a time"); got != fixedNow.UnixMilli() {
		t.Errorf("unparsable: got %d, want current time %d", got, fixedNow.UnixMilli())
	}
	if got := e.normalizeTimestamp(nil); got != fixedNow.UnixMilli() {
		t.Errorf("nil: got %d, want current time %d", got, fixedNow.UnixMilli())
	}
}

func TestMediaResolutionAndCache(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0x01}
	fake := &bridgetest.Fake{
		Messages: map[string][]bridge.Message{
			"c1": {
				{ID: "m1", Type: "image", Mimetype: "image/jpeg", Timestamp: int64(100)},
			},
		},
		Media: map[string][]byte{"m1": payload},
	}
	e := testEngine(t, fake)

	if err := e.PollMessages(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if fake.DecryptCalls != 1 {
		t.Fatalf("decrypt calls = %d, want 1", fake.DecryptCalls)
	}

	msgs, _ := e.db.ListMessages("c1")
	if len(msgs) != 1 {
		t.Fatal("message missing")
	}
	if msgs[0].Content != ContentMedia {
		t.Errorf("content = %q, want %q", msgs[0].Content, ContentMedia)
	}
	if !strings.HasPrefix(msgs[0].MediaRef, "data:image/jpeg;base64,") {
		t.Errorf("media ref %q is not an inline jpeg reference", msgs[0].MediaRef)
	}
	if !e.cache.Has("m1") {
		t.Error("decrypted media not stored in cache")
	}
}

func TestCacheShortCircuitsDecrypt(t *testing.T) {
	fake := &bridgetest.Fake{
		Messages: map[string][]bridge.Message{
			"c1": {
				{ID: "m1", Type: "image", Mimetype: "image/jpeg", Timestamp: int64(100)},
			},
		},
	}
	e := testEngine(t, fake)

	// Pre-populate the cache: the decrypt primitive must never fire.
	if err := e.cache.Put("m1", []byte("cached"), "image/jpeg"); err != nil {
		t.Fatal(err)
	}

	if err := e.PollMessages(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if fake.DecryptCalls != 0 {
		t.Errorf("decrypt calls = %d, want 0 (cache hit)", fake.DecryptCalls)
	}

	msgs, _ := e.db.ListMessages("c1")
	if msgs[0].Content != ContentMedia {
		t.Errorf("content = %q, want %q", msgs[0].Content, ContentMedia)
	}
	if !strings.Contains(msgs[0].MediaRef, "base64,") {
		t.Errorf("media ref %q not synthesized from cache", msgs[0].MediaRef)
	}
}

func TestMediaUnavailable(t *testing.T) {
	fake := &bridgetest.Fake{
		Messages: map[string][]bridge.Message{
			"c1": {
				{ID: "m1", Type: "video", Timestamp: int64(100)},
			},
		},
		Media: map[string][]byte{"m1": nil},
	}
	e := testEngine(t, fake)

	if err := e.PollMessages(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	msgs, _ := e.db.ListMessages("c1")
	if msgs[0].Content != ContentMediaUnavailable {
		t.Errorf("content = %q, want %q", msgs[0].Content, ContentMediaUnavailable)
	}
	if msgs[0].MediaRef != "" {
		t.Errorf("media ref = %q, want empty", msgs[0].MediaRef)
	}
}

func TestMediaErrorDoesNotFailPoll(t *testing.T) {
	fake := &bridgetest.Fake{
		Messages: map[string][]bridge.Message{
			"c1": {
				{ID: "m1", Type: "document", Timestamp: int64(100)},
				{ID: "m2", Body: "still fine", Type: "chat", Timestamp: int64(200)},
			},
		},
		DecryptErr: errors.New("download failed"),
	}
	e := testEngine(t, fake)

	if err := e.PollMessages(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	msgs, _ := e.db.ListMessages("c1")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (sibling unaffected)", len(msgs))
	}
	if msgs[0].Content != ContentMediaError {
		t.Errorf("content = %q, want %q", msgs[0].Content, ContentMediaError)
	}
	if msgs[1].Content != "still fine" {
		t.Errorf("sibling content = %q", msgs[1].Content)
	}
}

func TestPollChatsDisplayNameFallback(t *testing.T) {
	fake := &bridgetest.Fake{
		Chats: []bridge.Chat{
			{ID: "named@c.us", Name: "Explicit", Timestamp: 500},
			{ID: "push@c.us", Timestamp: 400},
			{ID: "registered@c.us", Timestamp: 300},
			{ID: "short@c.us", Timestamp: 200},
			{ID: "bare@c.us", Timestamp: 100},
		},
		Contacts: map[string]*bridge.Contact{
			"push@c.us":       {ID: "push@c.us", PushName: "Pusha"},
			"registered@c.us": {ID: "registered@c.us", Name: "Reggie"},
			"short@c.us":      {ID: "short@c.us", ShortName: "Shorty"},
			"bare@c.us":       {ID: "bare@c.us"},
		},
	}
	e := testEngine(t, fake)

	if err := e.PollChats(context.Background()); err != nil {
		t.Fatal(err)
	}
	chats, err := e.db.ListChats()
	if err != nil {
		t.Fatal(err)
	}

	byID := map[string]string{}
	for _, c := range chats {
		byID[c.ID] = c.DisplayName
	}
	want := map[string]string{
		"named@c.us":      "Explicit",
		"push@c.us":       "Pusha",
		"registered@c.us": "Reggie",
		"short@c.us":      "Shorty",
		"bare@c.us":       "bare",
	}
	for id, name := range want {
		if byID[id] != name {
			t.Errorf("chat %s display name = %q, want %q", id, byID[id], name)
		}
	}
}

func TestPollChatsContactFailureDegradesOnly(t *testing.T) {
	fake := &bridgetest.Fake{
		Chats: []bridge.Chat{
			{ID: "a@c.us", Timestamp: 100},
			{ID: "b@c.us", Name: "Bee", Timestamp: 200},
		},
		ContactErr: errors.New("contact service down"),
	}
	e := testEngine(t, fake)

	if err := e.PollChats(context.Background()); err != nil {
		t.Fatal(err)
	}
	chats, err := e.db.ListChats()
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 {
		t.Fatalf("got %d chats, want 2 (poll must not abort)", len(chats))
	}

	byID := map[string]store.Chat{}
	for _, c := range chats {
		byID[c.ID] = c
	}
	if byID["a@c.us"].DisplayName != "a" {
		t.Errorf("degraded chat name = %q, want id local part", byID["a@c.us"].DisplayName)
	}
	if byID["b@c.us"].DisplayName != "Bee" {
		t.Errorf("named chat = %q, want Bee", byID["b@c.us"].DisplayName)
	}
}

func TestPollChatsLastActivityFallback(t *testing.T) {
	e := testEngine(t, &bridgetest.Fake{})
	fixedNow := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixedNow }

	cases := []struct {
		name string
		chat bridge.Chat
		want int64
	}{
		{"presence", bridge.Chat{ID: "a@c.us", LastSeen: 30, Timestamp: 20, LastMessageAt: 10}, 30000},
		{"chat level", bridge.Chat{ID: "a@c.us", Timestamp: 20, LastMessageAt: 10}, 20000},
		{"last message", bridge.Chat{ID: "a@c.us", LastMessageAt: 10}, 10000},
		{"now", bridge.Chat{ID: "a@c.us"}, fixedNow.UnixMilli()},
	}
	for _, tc := range cases {
		got := e.buildChat(tc.chat, nil).LastActivityAt
		if got != tc.want {
			t.Errorf("%s: last activity = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestPollRequiresAuthenticatedClient(t *testing.T) {
	db, err := store.OpenMemory(fmt.Sprintf("synctest%d", dbSeq.Add(1)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	e := NewEngine(fixedSource{err: session.ErrUnauthenticated}, db, mediacache.New(t.TempDir()), bus.New(), zap.NewNop())

	if err := e.PollChats(context.Background()); !errors.Is(err, session.ErrUnauthenticated) {
		t.Errorf("PollChats err = %v, want ErrUnauthenticated", err)
	}
	if err := e.PollMessages(context.Background(), "c1"); !errors.Is(err, session.ErrUnauthenticated) {
		t.Errorf("PollMessages err = %v, want ErrUnauthenticated", err)
	}
}

// blockingClient stalls message fetches until released so a poll can
// be held open mid-flight.
type blockingClient struct {
	*bridgetest.Fake
	entered chan struct{}
	release chan struct{}
	fetches atomic.Int32
}

func (c *blockingClient) GetAllMessagesInChat(ctx context.Context, chatID string) ([]bridge.Message, error) {
	c.fetches.Add(1)
	c.entered <- struct{}{}
	<-c.release
	return c.Fake.GetAllMessagesInChat(ctx, chatID)
}

func TestConcurrentPollSameChatSuppressed(t *testing.T) {
	bc := &blockingClient{
		Fake: &bridgetest.Fake{
			Messages: map[string][]bridge.Message{
				"c1": {{ID: "a", Body: "hi", Type: "chat", Timestamp: int64(100)}},
			},
		},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	e := testEngineClient(t, bc)

	firstDone := make(chan error, 1)
	go func() { firstDone <- e.PollMessages(context.Background(), "c1") }()
	<-bc.entered // first poll is now inside the bridge fetch

	// A second poll for the same chat while one is in flight must
	// return immediately without touching the bridge.
	if err := e.PollMessages(context.Background(), "c1"); err != nil {
		t.Fatalf("suppressed poll returned %v, want nil", err)
	}
	if got := bc.fetches.Load(); got != 1 {
		t.Fatalf("bridge fetches = %d, want 1 while a poll is in flight", got)
	}

	close(bc.release)
	if err := <-firstDone; err != nil {
		t.Fatal(err)
	}
	if n, _ := e.db.MessageCount("c1"); n != 1 {
		t.Errorf("message count = %d, want 1", n)
	}

	// Once the first poll finishes the chat is pollable again.
	if err := e.PollMessages(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if got := bc.fetches.Load(); got != 2 {
		t.Errorf("bridge fetches = %d, want 2 after the first poll finished", got)
	}
}
