package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/bulletmania/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newGameServer starts a websocket server that greets the client and then
// hands the connection to fn.
func newGameServer(t *testing.T, fn func(r *http.Request, c *websocket.Conn)) models.ConnectionDetails {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{Subprotocol}})
		if err != nil {
			return
		}
		defer c.CloseNow()
		fn(r, c)
	}))
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return models.ConnectionDetails{Host: host, Port: port, TransportType: models.TransportTCP}
}

func waitDone(t *testing.T, c *Conn) {
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection did not close")
	}
}

func TestOpenReceivesMessagesAndServerClose(t *testing.T) {
	var gotAuth, gotPath string
	details := newGameServer(t, func(r *http.Request, c *websocket.Conn) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		ctx := context.Background()
		c.Write(ctx, websocket.MessageText, []byte(`{"type":"hello"}`))
		c.Close(websocket.StatusCode(4000), "room is full")
	})

	d := &Dialer{Token: "tok"}
	conn, err := d.Open(context.Background(), "room1", details)
	require.NoError(t, err)

	select {
	case msg := <-conn.Messages():
		assert.JSONEq(t, `{"type":"hello"}`, string(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
	waitDone(t, conn)

	assert.Equal(t, 4000, conn.CloseStatus())
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "/room1", gotPath)
	assert.ErrorIs(t, conn.Send(context.Background(), []byte("x")), ErrClosed)
}

func TestDisconnectClosesDone(t *testing.T) {
	details := newGameServer(t, func(r *http.Request, c *websocket.Conn) {
		for {
			if _, _, err := c.Read(context.Background()); err != nil {
				return
			}
		}
	})

	d := &Dialer{}
	conn, err := d.Open(context.Background(), "room1", details)
	require.NoError(t, err)

	conn.Disconnect(NormalClosure)
	waitDone(t, conn)
	assert.Equal(t, NormalClosure, conn.CloseStatus())
}

func TestRoomURL(t *testing.T) {
	d := &Dialer{}

	u, err := d.roomURL("abc", models.LocalConnectionDetails)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:4000/abc", u)

	u, err = d.roomURL("abc", models.ConnectionDetails{Host: "1.proxy.example.dev", Port: 443, TransportType: models.TransportTCP})
	require.NoError(t, err)
	assert.Equal(t, "wss://1.proxy.example.dev:443/abc", u)

	u, err = d.roomURL("abc", models.ConnectionDetails{Host: "127.0.0.1", Port: 9000, TransportType: models.TransportTLS})
	require.NoError(t, err)
	assert.Equal(t, "wss://127.0.0.1:9000/abc", u)

	_, err = d.roomURL("abc", models.ConnectionDetails{Host: "1.2.3.4", Port: 9000, TransportType: models.TransportUDP})
	assert.ErrorIs(t, err, ErrUnsupportedTransport)
}

func TestUnansweredPingClosesConnection(t *testing.T) {
	stop := make(chan struct{})
	details := newGameServer(t, func(r *http.Request, c *websocket.Conn) {
		// Never read, so pings are never answered.
		select {
		case <-stop:
		case <-time.After(10 * time.Second):
		}
	})
	t.Cleanup(func() { close(stop) })

	d := &Dialer{PingInterval: 20 * time.Millisecond, PingTimeout: 50 * time.Millisecond}
	conn, err := d.Open(context.Background(), "room1", details)
	require.NoError(t, err)

	waitDone(t, conn)
	assert.Equal(t, -1, conn.CloseStatus())
	assert.Error(t, conn.Err())
	assert.ErrorIs(t, conn.Send(context.Background(), []byte("x")), ErrClosed)
}

func TestFullInboundBufferCountsDrops(t *testing.T) {
	stop := make(chan struct{})
	details := newGameServer(t, func(r *http.Request, c *websocket.Conn) {
		for i := 0; i < 70; i++ {
			if err := c.Write(context.Background(), websocket.MessageText, []byte(`{"type":"tick"}`)); err != nil {
				return
			}
		}
		select {
		case <-stop:
		case <-time.After(10 * time.Second):
		}
	})
	t.Cleanup(func() { close(stop) })

	conn, err := (&Dialer{}).Open(context.Background(), "room1", details)
	require.NoError(t, err)
	defer conn.Disconnect(NormalClosure)

	require.Eventually(t, func() bool {
		return conn.Dropped() == 6
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, conn.Messages(), 64)
}
