package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jason-s-yu/bulletmania/internal/models"
	"github.com/jason-s-yu/bulletmania/internal/readiness"
)

// Snapshot is a point-in-time copy of the controller's state.
type Snapshot struct {
	RoomID          string
	State           State
	Metadata        *models.SessionMetadata
	FailedToConnect bool
	// RoomIDNotFound is the room whose resolve failed, if any.
	RoomIDNotFound string
	// Err is why the room could not be resolved or connected to.
	Err           error
	Nickname      string
	NicknameAcked bool
	Connected     bool
}

// IsGameEnd reports whether the current metadata says the game is over.
func (s Snapshot) IsGameEnd() bool {
	return s.Metadata != nil && s.Metadata.IsGameEnd
}

// NeedsNickname reports whether the nickname prompt should be shown.
func (s Snapshot) NeedsNickname() bool {
	return s.RoomID != "" && !s.State.Terminal() && !s.NicknameAcked && !s.IsGameEnd()
}

// ShowLobbyBrowser reports whether the lobby browser/creator should be shown.
func (s Snapshot) ShowLobbyBrowser() bool {
	return s.RoomID == "" && !s.Connected && !s.IsGameEnd()
}

// Status renders the lines shown to the player for the current state.
func (s Snapshot) Status() string {
	var lines []string
	switch s.State {
	case StateIdle:
		return ""
	case StateResolving:
		lines = append(lines, fmt.Sprintf("Connecting to room %s...", s.RoomID))
	case StateConnected:
		lines = append(lines, fmt.Sprintf("Connected to room %s", s.RoomID))
	case StateDisconnected:
		lines = append(lines, "Connection was closed")
		if s.IsGameEnd() {
			lines = append(lines, "Game has ended", fmt.Sprintf("%s won!", s.Metadata.WinnerName()))
		} else {
			lines = append(lines, "Game is full")
		}
	case StateEnded:
		lines = append(lines, "Game has ended")
		if s.Metadata != nil && s.Metadata.WinningPlayerID != "" {
			lines = append(lines, fmt.Sprintf("%s won!", s.Metadata.WinnerName()))
		}
	case StateRoomNotFound:
		if errors.Is(s.Err, readiness.ErrRoomNotFound) {
			lines = append(lines, fmt.Sprintf("Room %s not found", s.RoomIDNotFound))
		} else {
			lines = append(lines, fmt.Sprintf("Failed to connect to room %s", s.RoomIDNotFound))
		}
	}
	return strings.Join(lines, "\n")
}
