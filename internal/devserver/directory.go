package devserver

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jason-s-yu/bulletmania/internal/models"
)

// ErrLobbyNotFound is returned for unknown room ids.
var ErrLobbyNotFound = errors.New("lobby not found")

// Directory stores lobby records.
type Directory interface {
	Create(ctx context.Context, info *models.LobbyInfo) error
	Get(ctx context.Context, roomID string) (*models.LobbyInfo, error)
	// ListPublic returns public lobbies, newest first. An empty region matches all.
	ListPublic(ctx context.Context, region models.Region) ([]models.LobbyInfo, error)
	// UpdateState applies fn to the lobby's state atomically.
	UpdateState(ctx context.Context, roomID string, fn func(*models.LobbyState)) (*models.LobbyInfo, error)
}

// MemoryDirectory keeps lobbies in process memory.
type MemoryDirectory struct {
	mu      sync.Mutex
	lobbies map[string]*models.LobbyInfo
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{lobbies: make(map[string]*models.LobbyInfo)}
}

func (d *MemoryDirectory) Create(ctx context.Context, info *models.LobbyInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.lobbies[info.RoomID]; exists {
		return errors.New("lobby " + info.RoomID + " already exists")
	}
	d.lobbies[info.RoomID] = cloneLobby(info)
	return nil
}

func (d *MemoryDirectory) Get(ctx context.Context, roomID string) (*models.LobbyInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.lobbies[roomID]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	return cloneLobby(l), nil
}

func (d *MemoryDirectory) ListPublic(ctx context.Context, region models.Region) ([]models.LobbyInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []models.LobbyInfo{}
	for _, l := range d.lobbies {
		if l.Visibility != models.VisibilityPublic {
			continue
		}
		if region != "" && l.Region != region {
			continue
		}
		out = append(out, *cloneLobby(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (d *MemoryDirectory) UpdateState(ctx context.Context, roomID string, fn func(*models.LobbyState)) (*models.LobbyInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.lobbies[roomID]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	if l.State == nil {
		l.State = &models.LobbyState{}
	}
	if l.State.PlayerNicknameMap == nil {
		l.State.PlayerNicknameMap = map[string]string{}
	}
	fn(l.State)
	return cloneLobby(l), nil
}

func cloneLobby(l *models.LobbyInfo) *models.LobbyInfo {
	c := *l
	if l.State != nil {
		s := *l.State
		s.PlayerNicknameMap = make(map[string]string, len(l.State.PlayerNicknameMap))
		for k, v := range l.State.PlayerNicknameMap {
			s.PlayerNicknameMap[k] = v
		}
		c.State = &s
	}
	return &c
}
