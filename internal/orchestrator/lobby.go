package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/jason-s-yu/bulletmania/internal/models"
)

// CreateLobbyRequest is the body of the lobby creation call. RoomConfig is a
// JSON encoded models.RoomConfig.
type CreateLobbyRequest struct {
	Visibility models.Visibility `json:"visibility"`
	Region     models.Region     `json:"region"`
	RoomConfig string            `json:"roomConfig"`
}

// NewCreateLobbyRequest encodes cfg into the request's roomConfig string.
func NewCreateLobbyRequest(visibility models.Visibility, region models.Region, cfg models.RoomConfig) (CreateLobbyRequest, error) {
	if cfg.PlayerNicknameMap == nil {
		cfg.PlayerNicknameMap = map[string]string{}
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return CreateLobbyRequest{}, fmt.Errorf("marshal room config: %w", err)
	}
	return CreateLobbyRequest{Visibility: visibility, Region: region, RoomConfig: string(data)}, nil
}

// GetLobbyInfo fetches the lobby record for roomID.
func (c *Client) GetLobbyInfo(ctx context.Context, roomID string) (*models.LobbyInfo, error) {
	var info models.LobbyInfo
	path := fmt.Sprintf("/lobby/v3/%s/info/roomid/%s", url.PathEscape(c.appID), url.PathEscape(roomID))
	if err := c.getJSON(ctx, path, nil, &info); err != nil {
		return nil, err
	}
	if info.RoomID == "" {
		return nil, fmt.Errorf("lobby info for %s: missing roomId", roomID)
	}
	return &info, nil
}

// ListActivePublicLobbies lists public lobbies, optionally filtered by region.
func (c *Client) ListActivePublicLobbies(ctx context.Context, region models.Region) ([]models.LobbyInfo, error) {
	path := fmt.Sprintf("/lobby/v3/%s/list/public", url.PathEscape(c.appID))
	if region != "" {
		path += "?region=" + url.QueryEscape(string(region))
	}
	lobbies := []models.LobbyInfo{}
	if err := c.getJSON(ctx, path, nil, &lobbies); err != nil {
		return nil, err
	}
	return lobbies, nil
}

// CreateLobby asks the orchestration service to provision a new room on
// behalf of the player holding playerToken.
func (c *Client) CreateLobby(ctx context.Context, playerToken string, req CreateLobbyRequest) (*models.LobbyInfo, error) {
	var info models.LobbyInfo
	path := fmt.Sprintf("/lobby/v3/%s/create", url.PathEscape(c.appID))
	headers := map[string]string{"Authorization": playerToken}
	if err := c.postJSON(ctx, path, headers, req, &info); err != nil {
		return nil, err
	}
	if info.RoomID == "" {
		return nil, fmt.Errorf("create lobby: missing roomId in response")
	}
	return &info, nil
}
