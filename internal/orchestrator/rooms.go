package orchestrator

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jason-s-yu/bulletmania/internal/models"
)

// GetConnectionInfo reports whether roomID has exposed a port yet.
func (c *Client) GetConnectionInfo(ctx context.Context, roomID string) (*models.ConnectionInfo, error) {
	var info models.ConnectionInfo
	path := fmt.Sprintf("/rooms/v2/%s/connectioninfo/%s", url.PathEscape(c.appID), url.PathEscape(roomID))
	if err := c.getJSON(ctx, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
