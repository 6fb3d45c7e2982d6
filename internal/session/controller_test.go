package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/bulletmania/internal/models"
	"github.com/jason-s-yu/bulletmania/internal/readiness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockResolver returns canned results and can hold a room's resolve until
// its gate is closed.
type mockResolver struct {
	mu      sync.Mutex
	results map[string]*readiness.Result
	errs    map[string]error
	gates   map[string]chan struct{}
	entered chan string
	calls   map[string]int
}

func newMockResolver() *mockResolver {
	return &mockResolver{
		results: map[string]*readiness.Result{},
		errs:    map[string]error{},
		gates:   map[string]chan struct{}{},
		calls:   map[string]int{},
	}
}

func (m *mockResolver) ResolveConnection(ctx context.Context, roomID string) (*readiness.Result, error) {
	m.mu.Lock()
	m.calls[roomID]++
	gate := m.gates[roomID]
	res, err := m.results[roomID], m.errs[roomID]
	m.mu.Unlock()

	if m.entered != nil {
		m.entered <- roomID
	}
	if gate != nil {
		// deliberately ignores ctx so a stale result is still delivered
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: %s", readiness.ErrRoomNotFound, roomID)
	}
	return res, nil
}

func (m *mockResolver) callCount(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[roomID]
}

// mockLobbies serves lobby info for the post-close refresh.
type mockLobbies struct {
	mu    sync.Mutex
	infos map[string]*models.LobbyInfo
	calls map[string]int
}

func newMockLobbies() *mockLobbies {
	return &mockLobbies{infos: map[string]*models.LobbyInfo{}, calls: map[string]int{}}
}

func (m *mockLobbies) set(info *models.LobbyInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos[info.RoomID] = info
}

func (m *mockLobbies) remove(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.infos, roomID)
}

func (m *mockLobbies) GetLobbyInfo(ctx context.Context, roomID string) (*models.LobbyInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[roomID]++
	info, ok := m.infos[roomID]
	if !ok {
		return nil, errors.New("404")
	}
	return info, nil
}

func (m *mockLobbies) callCount(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[roomID]
}

// mockConn is a connection handle whose close can be triggered by the test.
type mockConn struct {
	roomID string
	dialer *mockDialer
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	code   int
}

func (c *mockConn) Done() <-chan struct{} { return c.done }

func (c *mockConn) Disconnect(code int) error {
	c.serverClose(code)
	return nil
}

func (c *mockConn) serverClose(code int) {
	c.once.Do(func() {
		c.mu.Lock()
		c.code = code
		c.mu.Unlock()
		c.dialer.release()
		close(c.done)
	})
}

func (c *mockConn) closeCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// mockDialer tracks how many handles are open at once.
type mockDialer struct {
	mu      sync.Mutex
	live    int
	maxLive int
	conns   []*mockConn
	err     error
}

func (d *mockDialer) Open(ctx context.Context, roomID string, details models.ConnectionDetails) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.live++
	if d.live > d.maxLive {
		d.maxLive = d.live
	}
	c := &mockConn{roomID: roomID, dialer: d, done: make(chan struct{})}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *mockDialer) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live--
}

func (d *mockDialer) opened() []*mockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*mockConn(nil), d.conns...)
}

type fixture struct {
	resolver *mockResolver
	lobbies  *mockLobbies
	dialer   *mockDialer
	ctrl     *Controller
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		resolver: newMockResolver(),
		lobbies:  newMockLobbies(),
		dialer:   &mockDialer{},
	}
	f.ctrl = New(f.resolver, f.lobbies, f.dialer, nil)
	t.Cleanup(f.ctrl.Close)
	return f
}

func lobbyInfo(roomID string) *models.LobbyInfo {
	return &models.LobbyInfo{
		RoomID:        roomID,
		Region:        models.RegionChicago,
		Visibility:    models.VisibilityPublic,
		CreatedBy:     "creator",
		InitialConfig: models.InitialConfig{Capacity: 6, WinningScore: 5},
		State:         &models.LobbyState{PlayerNicknameMap: map[string]string{}},
	}
}

func (f *fixture) addRoom(roomID string) {
	f.resolver.mu.Lock()
	f.resolver.results[roomID] = &readiness.Result{
		LobbyInfo:      lobbyInfo(roomID),
		ConnectionInfo: models.ConnectionDetails{Host: "10.0.0.1", Port: 7000, TransportType: models.TransportTCP},
	}
	f.resolver.mu.Unlock()
	f.lobbies.set(lobbyInfo(roomID))
}

func TestNavigateConnects(t *testing.T) {
	f := newFixture(t)
	f.addRoom("abc")

	f.ctrl.Navigate(context.Background(), "abc")

	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	require.NotNil(t, snap.Metadata)
	assert.Equal(t, "10.0.0.1:7000", snap.Metadata.ServerURL)
	assert.Equal(t, 6, snap.Metadata.Capacity)
	assert.Equal(t, "creator", snap.Metadata.CreatorID)
	assert.Len(t, f.dialer.opened(), 1)
	assert.Equal(t, "Connected to room abc", snap.Status())
}

func TestNavigateEndedGameDoesNotConnect(t *testing.T) {
	f := newFixture(t)
	f.addRoom("done")
	f.resolver.results["done"].LobbyInfo.State = &models.LobbyState{
		IsGameEnd:         true,
		WinningPlayerID:   "p1",
		PlayerNicknameMap: map[string]string{"p1": "Ann"},
	}

	f.ctrl.Navigate(context.Background(), "done")

	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateEnded, snap.State)
	assert.True(t, snap.IsGameEnd())
	assert.Empty(t, f.dialer.opened())
	assert.Contains(t, snap.Status(), "Ann won!")

	f.ctrl.Navigate(context.Background(), "done")
	assert.Equal(t, 1, f.resolver.callCount("done"))
	assert.Empty(t, f.dialer.opened())
}

func TestNavigateRoomNotFoundIsNotRetried(t *testing.T) {
	f := newFixture(t)

	f.ctrl.Navigate(context.Background(), "missing")
	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateRoomNotFound, snap.State)
	assert.Equal(t, "missing", snap.RoomIDNotFound)
	assert.Equal(t, "Room missing not found", snap.Status())

	f.ctrl.Navigate(context.Background(), "missing")
	assert.Equal(t, 1, f.resolver.callCount("missing"))
	assert.Empty(t, f.dialer.opened())
}

func TestNavigatePollTimeout(t *testing.T) {
	f := newFixture(t)
	f.resolver.errs["slow"] = fmt.Errorf("%w: slow", readiness.ErrPollTimeout)

	f.ctrl.Navigate(context.Background(), "slow")
	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateRoomNotFound, snap.State)
	assert.ErrorIs(t, snap.Err, readiness.ErrPollTimeout)
	assert.Equal(t, "Failed to connect to room slow", snap.Status())
}

func TestDialFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.addRoom("abc")
	f.dialer.err = errors.New("connection refused")

	f.ctrl.Navigate(context.Background(), "abc")
	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateRoomNotFound, snap.State)
	assert.ErrorIs(t, snap.Err, ErrConnectFailed)
	assert.Equal(t, "Failed to connect to room abc", snap.Status())
}

func TestCloseWithWinnerRendersResult(t *testing.T) {
	f := newFixture(t)
	f.addRoom("abc")
	f.ctrl.Navigate(context.Background(), "abc")
	require.Equal(t, StateConnected, f.ctrl.Snapshot().State)

	ended := lobbyInfo("abc")
	ended.State = &models.LobbyState{
		IsGameEnd:         true,
		WinningPlayerID:   "p1",
		PlayerNicknameMap: map[string]string{"p1": "Ann"},
	}
	f.lobbies.set(ended)

	f.dialer.opened()[0].serverClose(1000)

	require.Eventually(t, func() bool {
		return f.ctrl.Snapshot().State == StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	snap := f.ctrl.Snapshot()
	assert.True(t, snap.FailedToConnect)
	assert.True(t, snap.IsGameEnd())
	assert.Equal(t, "Connection was closed\nGame has ended\nAnn won!", snap.Status())
	assert.False(t, snap.Connected)

	// no reconnection for the same room
	f.ctrl.Navigate(context.Background(), "abc")
	assert.Len(t, f.dialer.opened(), 1)
	assert.Equal(t, 1, f.resolver.callCount("abc"))
}

func TestCloseWithoutGameEndMeansFull(t *testing.T) {
	f := newFixture(t)
	f.addRoom("abc")
	f.ctrl.Navigate(context.Background(), "abc")

	f.dialer.opened()[0].serverClose(4000)

	require.Eventually(t, func() bool {
		return f.ctrl.Snapshot().State == StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Connection was closed\nGame is full", f.ctrl.Snapshot().Status())
}

func TestCloseWithFailedRefreshKeepsMetadata(t *testing.T) {
	f := newFixture(t)
	f.addRoom("abc")
	f.ctrl.Navigate(context.Background(), "abc")
	require.Equal(t, StateConnected, f.ctrl.Snapshot().State)

	f.lobbies.remove("abc")
	f.dialer.opened()[0].serverClose(1006)

	require.Eventually(t, func() bool {
		return f.ctrl.Snapshot().State == StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, 1, f.lobbies.callCount("abc"))
	assert.True(t, snap.FailedToConnect)
	assert.False(t, snap.Connected)
	require.NotNil(t, snap.Metadata)
	assert.Equal(t, "10.0.0.1:7000", snap.Metadata.ServerURL)
	assert.Equal(t, 6, snap.Metadata.Capacity)
	assert.False(t, snap.IsGameEnd())
	assert.Equal(t, "Connection was closed\nGame is full", snap.Status())
}

func TestReplacementClosesPredecessorFirst(t *testing.T) {
	f := newFixture(t)
	f.addRoom("a")
	f.addRoom("b")

	f.ctrl.Navigate(context.Background(), "a")
	f.ctrl.Navigate(context.Background(), "b")

	conns := f.dialer.opened()
	require.Len(t, conns, 2)
	assert.Equal(t, 1, f.dialer.maxLive)
	assert.Equal(t, NormalClosure, conns[0].closeCode())

	snap := f.ctrl.Snapshot()
	assert.Equal(t, "b", snap.RoomID)
	assert.Equal(t, StateConnected, snap.State)

	// the superseded connection's close must not trigger a refresh
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.lobbies.callCount("a"))
	assert.Equal(t, StateConnected, f.ctrl.Snapshot().State)
}

func TestStaleResolveIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.addRoom("a")
	f.addRoom("b")
	gate := make(chan struct{})
	f.resolver.gates["a"] = gate
	f.resolver.entered = make(chan string, 4)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.ctrl.Navigate(context.Background(), "a")
	}()
	require.Equal(t, "a", <-f.resolver.entered)

	f.ctrl.Navigate(context.Background(), "b")
	<-f.resolver.entered
	require.Equal(t, StateConnected, f.ctrl.Snapshot().State)

	close(gate)
	wg.Wait()

	snap := f.ctrl.Snapshot()
	assert.Equal(t, "b", snap.RoomID)
	assert.Equal(t, StateConnected, snap.State)
	conns := f.dialer.opened()
	require.Len(t, conns, 1)
	assert.Equal(t, "b", conns[0].roomID)
}

func TestSupersededFailureKeepsCurrentRoom(t *testing.T) {
	f := newFixture(t)
	f.addRoom("b")
	gate := make(chan struct{})
	f.resolver.gates["missing"] = gate
	f.resolver.entered = make(chan string, 4)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.ctrl.Navigate(context.Background(), "missing")
	}()
	<-f.resolver.entered
	f.ctrl.Navigate(context.Background(), "b")
	<-f.resolver.entered

	close(gate)
	<-done

	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	assert.Empty(t, snap.RoomIDNotFound)
}

func TestNicknameGate(t *testing.T) {
	f := newFixture(t)
	f.addRoom("abc")
	f.ctrl.Navigate(context.Background(), "abc")

	_, ok := f.ctrl.Connection()
	assert.False(t, ok)
	assert.True(t, f.ctrl.Snapshot().NeedsNickname())

	assert.ErrorIs(t, f.ctrl.AckNickname(""), ErrEmptyNickname)
	require.NoError(t, f.ctrl.AckNickname("Ann"))

	conn, ok := f.ctrl.Connection()
	require.True(t, ok)
	assert.Same(t, f.dialer.opened()[0], conn)
	assert.False(t, f.ctrl.Snapshot().NeedsNickname())
}

func TestNavigateHomeClosesConnection(t *testing.T) {
	f := newFixture(t)
	f.addRoom("abc")
	f.ctrl.Navigate(context.Background(), "abc")

	f.ctrl.Navigate(context.Background(), "")

	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.True(t, snap.ShowLobbyBrowser())
	assert.Equal(t, NormalClosure, f.dialer.opened()[0].closeCode())
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	f := newFixture(t)
	f.addRoom("abc")
	updates, stop := f.ctrl.Subscribe()
	defer stop()

	f.ctrl.Navigate(context.Background(), "abc")

	first := <-updates
	assert.Equal(t, StateResolving, first.State)
	second := <-updates
	assert.Equal(t, StateConnected, second.State)
}

func TestCloseTearsDownConnection(t *testing.T) {
	f := newFixture(t)
	f.addRoom("abc")
	updates, _ := f.ctrl.Subscribe()
	f.ctrl.Navigate(context.Background(), "abc")

	f.ctrl.Close()

	assert.Equal(t, NormalClosure, f.dialer.opened()[0].closeCode())
	for range updates {
	}
	f.ctrl.Navigate(context.Background(), "other")
	assert.Zero(t, f.resolver.callCount("other"))
}
