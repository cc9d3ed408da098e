// ABOUTME: Tests for the websocket realtime channel over a live test server
// ABOUTME: Covers the hello handshake, commit broadcasts, presence, live-typing, disconnect cleanup

package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/corkboard/internal/auth"
	"github.com/2389/corkboard/internal/board"
	"github.com/2389/corkboard/internal/presence"
	"github.com/2389/corkboard/internal/protocol"
)

func wsURL(ts *httptest.Server, query string) string {
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, query), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *protocol.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev protocol.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return &ev
}

// readHello consumes the handshake and returns the assigned connection id.
func readHello(t *testing.T, conn *websocket.Conn) *protocol.Event {
	t.Helper()
	ev := readEvent(t, conn)
	require.Equal(t, protocol.TypeHello, ev.Type)
	require.NotEmpty(t, ev.ConnID)
	return ev
}

func TestWS_HelloCarriesFullState(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	createItem(t, s.Handler(), board.KindNote, "existing", "body")

	conn := dial(t, ts, "name=Ada")
	hello := readHello(t, conn)

	require.Len(t, hello.Items, 1)
	assert.Equal(t, "existing", hello.Items[0].Title)
	assert.Equal(t, []int64{1}, hello.Order)
	assert.Empty(t, hello.Editors)
}

func TestWS_CommitsBroadcastToEveryConnection(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	a := dial(t, ts, "name=Ada")
	b := dial(t, ts, "name=Brin")
	readHello(t, a)
	readHello(t, b)

	created := createItem(t, s.Handler(), board.KindNote, "shared", "")

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		require.Equal(t, protocol.TypeItemCreated, ev.Type)
		require.NotNil(t, ev.Item)
		assert.Equal(t, created.ID, ev.Item.ID)
		assert.Equal(t, "shared", ev.Item.Title)
	}
}

func TestWS_EditingLifecycle(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	createItem(t, s.Handler(), board.KindNote, "n", "")

	editor := dial(t, ts, "name=Ada")
	observer := dial(t, ts, "name=Brin")
	editorID := readHello(t, editor).ConnID
	readHello(t, observer)

	require.NoError(t, editor.WriteJSON(&protocol.Event{Type: protocol.TypeEditStart, ItemID: 1}))

	// editing-started reaches everyone, the editor included.
	for _, conn := range []*websocket.Conn{editor, observer} {
		ev := readEvent(t, conn)
		assert.Equal(t, protocol.TypeEditingStarted, ev.Type)
		assert.Equal(t, int64(1), ev.ItemID)
		assert.Equal(t, editorID, ev.ConnID)
		require.NotNil(t, ev.User)
		assert.Equal(t, "Ada", ev.User.Name)
	}

	require.NoError(t, editor.WriteJSON(&protocol.Event{Type: protocol.TypeEditStop, ItemID: 1}))
	ev := readEvent(t, observer)
	assert.Equal(t, protocol.TypeEditingStopped, ev.Type)
	assert.Equal(t, int64(1), ev.ItemID)

	// A duplicate stop announces nothing; the next event the observer sees
	// is the later commit, not a second editing-stopped.
	require.NoError(t, editor.WriteJSON(&protocol.Event{Type: protocol.TypeEditStop, ItemID: 1}))
	createItem(t, s.Handler(), board.KindNote, "marker", "")
	assert.Equal(t, protocol.TypeItemCreated, readEvent(t, observer).Type)
}

func TestWS_EditStartForUnknownItemIsIgnored(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dial(t, ts, "name=Ada")
	readHello(t, conn)

	require.NoError(t, conn.WriteJSON(&protocol.Event{Type: protocol.TypeEditStart, ItemID: 99}))

	createItem(t, s.Handler(), board.KindNote, "marker", "")
	assert.Equal(t, protocol.TypeItemCreated, readEvent(t, conn).Type)
}

func TestWS_LiveTypingSkipsSender(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	createItem(t, s.Handler(), board.KindTodo, "t", "a\nb")

	sender := dial(t, ts, "name=Ada")
	receiver := dial(t, ts, "name=Brin")
	readHello(t, sender)
	readHello(t, receiver)

	title := "groceri"
	require.NoError(t, sender.WriteJSON(&protocol.Event{
		Type:   protocol.TypeLiveTyping,
		ItemID: 1,
		Fields: &board.Patch{Title: &title, Checks: []bool{true, false}},
	}))

	ev := readEvent(t, receiver)
	require.Equal(t, protocol.TypeLiveTyping, ev.Type)
	assert.Equal(t, int64(1), ev.ItemID)
	require.NotNil(t, ev.Fields)
	require.NotNil(t, ev.Fields.Title)
	assert.Equal(t, "groceri", *ev.Fields.Title)
	assert.Equal(t, []bool{true, false}, ev.Fields.Checks)

	// The sender never sees its own preview: its next event is the
	// subsequent commit.
	createItem(t, s.Handler(), board.KindNote, "marker", "")
	assert.Equal(t, protocol.TypeItemCreated, readEvent(t, sender).Type)
}

func TestWS_ConcurrentUpdatesBroadcastInCommitOrder(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	createItem(t, s.Handler(), board.KindNote, "start", "")

	watcher := dial(t, ts, "name=Watcher")
	readHello(t, watcher)

	// Race many updates against the same item. Whatever order they commit
	// in, the broadcasts must leave in that same order, so the last event
	// any client sees carries the title the board actually holds.
	const updates = 20
	var wg sync.WaitGroup
	for i := 0; i < updates; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := strings.NewReader(fmt.Sprintf(`{"title":"rev-%d"}`, i))
			req := httptest.NewRequest(http.MethodPatch, "/api/items/1", body)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		}(i)
	}
	wg.Wait()

	var last *protocol.Event
	for i := 0; i < updates; i++ {
		ev := readEvent(t, watcher)
		require.Equal(t, protocol.TypeItemUpdated, ev.Type)
		last = ev
	}

	it, ok := s.board.Get(1)
	require.True(t, ok)
	require.NotNil(t, last.Item)
	assert.Equal(t, it.Title, last.Item.Title, "final event must match committed state")
}

func TestWS_DisconnectStopsAllEdits(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	createItem(t, s.Handler(), board.KindNote, "a", "")
	createItem(t, s.Handler(), board.KindNote, "b", "")

	editor := dial(t, ts, "name=Ada")
	observer := dial(t, ts, "name=Brin")
	editorID := readHello(t, editor).ConnID
	readHello(t, observer)

	require.NoError(t, editor.WriteJSON(&protocol.Event{Type: protocol.TypeEditStart, ItemID: 1}))
	require.NoError(t, editor.WriteJSON(&protocol.Event{Type: protocol.TypeEditStart, ItemID: 2}))
	assert.Equal(t, protocol.TypeEditingStarted, readEvent(t, observer).Type)
	assert.Equal(t, protocol.TypeEditingStarted, readEvent(t, observer).Type)

	require.NoError(t, editor.Close())

	// Exactly one editing-stopped per item, ascending by item id.
	for _, wantID := range []int64{1, 2} {
		ev := readEvent(t, observer)
		assert.Equal(t, protocol.TypeEditingStopped, ev.Type)
		assert.Equal(t, wantID, ev.ItemID)
		assert.Equal(t, editorID, ev.ConnID)
	}
}

func TestWS_LateJoinerSeesCurrentEditors(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	createItem(t, s.Handler(), board.KindNote, "n", "")

	editor := dial(t, ts, "name=Ada")
	editorID := readHello(t, editor).ConnID
	require.NoError(t, editor.WriteJSON(&protocol.Event{Type: protocol.TypeEditStart, ItemID: 1}))
	assert.Equal(t, protocol.TypeEditingStarted, readEvent(t, editor).Type)

	late := dial(t, ts, "name=Brin")
	hello := readHello(t, late)
	require.Len(t, hello.Editors, 1)
	assert.Equal(t, int64(1), hello.Editors[0].ItemID)
	assert.Equal(t, editorID, hello.Editors[0].ConnID)
	assert.Equal(t, "Ada", hello.Editors[0].User.Name)
}

func TestWS_AnonymousModeDefaultsName(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	createItem(t, s.Handler(), board.KindNote, "n", "")

	conn := dial(t, ts, "")
	readHello(t, conn)

	require.NoError(t, conn.WriteJSON(&protocol.Event{Type: protocol.TypeEditStart, ItemID: 1}))
	ev := readEvent(t, conn)
	require.NotNil(t, ev.User)
	assert.Equal(t, "anonymous", ev.User.Name)
}

func TestWS_TokenAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "test-secret"
	s := newTestServer(t, cfg)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	// No token: the upgrade is rejected before the handshake completes.
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	verifier, err := auth.NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)
	token, err := verifier.Generate(presence.User{Name: "Ada"}, time.Hour)
	require.NoError(t, err)

	conn := dial(t, ts, "token="+token)
	readHello(t, conn)
}
