// internal/models/lobby.go
package models

import "time"

// Visibility controls who can see and join a lobby.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	// VisibilityLocal marks a developer room served by a locally running game server.
	VisibilityLocal Visibility = "local"
)

// Valid reports whether v is one of the known visibilities.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityLocal:
		return true
	}
	return false
}

// Region is a deployment region offered by the orchestration service.
type Region string

const (
	RegionSeattle      Region = "Seattle"
	RegionChicago      Region = "Chicago"
	RegionLondon       Region = "London"
	RegionFrankfurt    Region = "Frankfurt"
	RegionMumbai       Region = "Mumbai"
	RegionSingapore    Region = "Singapore"
	RegionTokyo        Region = "Tokyo"
	RegionSydney       Region = "Sydney"
	RegionWashingtonDC Region = "Washington_DC"
	RegionSaoPaulo     Region = "Sao_Paulo"
)

// Regions lists every region in display order.
var Regions = []Region{
	RegionSeattle,
	RegionChicago,
	RegionLondon,
	RegionFrankfurt,
	RegionMumbai,
	RegionSingapore,
	RegionTokyo,
	RegionSydney,
	RegionWashingtonDC,
	RegionSaoPaulo,
}

// Valid reports whether r is a known region.
func (r Region) Valid() bool {
	for _, known := range Regions {
		if r == known {
			return true
		}
	}
	return false
}

// InitialConfig is the configuration a lobby was created with.
type InitialConfig struct {
	Capacity     int `json:"capacity"`
	WinningScore int `json:"winningScore"`
}

// LobbyState is the game-controlled part of a lobby. The server owns it; the
// client only ever sees a snapshot.
type LobbyState struct {
	IsGameEnd         bool              `json:"isGameEnd"`
	WinningPlayerID   string            `json:"winningPlayerId,omitempty"`
	PlayerNicknameMap map[string]string `json:"playerNicknameMap"`
}

// LobbyInfo is the lobby record the orchestration service keeps for a room.
type LobbyInfo struct {
	RoomID        string        `json:"roomId"`
	AppID         string        `json:"appId"`
	Region        Region        `json:"region"`
	Visibility    Visibility    `json:"visibility"`
	CreatedBy     string        `json:"createdBy"`
	CreatedAt     time.Time     `json:"createdAt"`
	InitialConfig InitialConfig `json:"initialConfig"`
	State         *LobbyState   `json:"state,omitempty"`
}

// IsGameEnd is nil-safe access to State.IsGameEnd.
func (l *LobbyInfo) IsGameEnd() bool {
	return l != nil && l.State != nil && l.State.IsGameEnd
}

// RoomConfig is the JSON document sent as the roomConfig string when a lobby
// is created. The game server seeds its lobby state from it.
type RoomConfig struct {
	Capacity          int               `json:"capacity"`
	WinningScore      int               `json:"winningScore"`
	PlayerNicknameMap map[string]string `json:"playerNicknameMap"`
	IsGameEnd         bool              `json:"isGameEnd"`
}
