// internal/devserver/ws_codes.go
package devserver

import "github.com/coder/websocket"

// Close codes the game endpoint uses when refusing or ending a connection.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // Client did not negotiate the game subprotocol.
	InvalidAuthTokenError websocket.StatusCode = 3001 // Bearer token missing, expired or not signed by this server.
	RoomFullError         websocket.StatusCode = 4000 // Room already holds its capacity of players.
	RoomEndedError        websocket.StatusCode = 4001 // Game in this room has finished.
)
