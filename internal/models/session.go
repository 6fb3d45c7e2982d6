package models

// SessionMetadata is the client-side view of the current room. It is always
// rebuilt from a fresh LobbyInfo snapshot, never patched field by field.
type SessionMetadata struct {
	ServerURL         string            `json:"serverUrl"`
	Region            Region            `json:"region"`
	RoomID            string            `json:"roomId"`
	Capacity          int               `json:"capacity"`
	WinningScore      int               `json:"winningScore"`
	IsGameEnd         bool              `json:"isGameEnd"`
	WinningPlayerID   string            `json:"winningPlayerId,omitempty"`
	PlayerNicknameMap map[string]string `json:"playerNicknameMap"`
	CreatorID         string            `json:"creatorId"`
}

// NewSessionMetadata merges a lobby snapshot with the room's connection details.
func NewSessionMetadata(info *LobbyInfo, details ConnectionDetails) SessionMetadata {
	md := SessionMetadata{
		ServerURL:         details.Addr(),
		Region:            info.Region,
		RoomID:            info.RoomID,
		Capacity:          info.InitialConfig.Capacity,
		WinningScore:      info.InitialConfig.WinningScore,
		CreatorID:         info.CreatedBy,
		PlayerNicknameMap: map[string]string{},
	}
	if info.State != nil {
		md.IsGameEnd = info.State.IsGameEnd
		md.WinningPlayerID = info.State.WinningPlayerID
		for id, nick := range info.State.PlayerNicknameMap {
			md.PlayerNicknameMap[id] = nick
		}
	}
	return md
}

// WinnerName returns the winner's nickname, or their id when no nickname is known.
func (m SessionMetadata) WinnerName() string {
	if nick, ok := m.PlayerNicknameMap[m.WinningPlayerID]; ok && nick != "" {
		return nick
	}
	return m.WinningPlayerID
}

// Clone returns a deep copy so snapshots handed to callers cannot be mutated.
func (m SessionMetadata) Clone() SessionMetadata {
	nicknames := make(map[string]string, len(m.PlayerNicknameMap))
	for id, nick := range m.PlayerNicknameMap {
		nicknames[id] = nick
	}
	m.PlayerNicknameMap = nicknames
	return m
}
