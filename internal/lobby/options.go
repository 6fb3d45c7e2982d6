package lobby

import (
	"fmt"

	"github.com/jason-s-yu/bulletmania/internal/models"
)

// CapacityChoices are the player counts a lobby can be created with.
var CapacityChoices = []int{1, 2, 3, 4, 5, 6, 7}

// WinningScoreChoices are the kill targets a lobby can be created with.
var WinningScoreChoices = []int{5, 10, 15, 20, 25}

// Options describe a lobby to create.
type Options struct {
	Visibility   models.Visibility
	Region       models.Region
	Capacity     int
	WinningScore int
}

// DefaultOptions mirrors the creation form's initial selection.
func DefaultOptions() Options {
	return Options{
		Visibility:   models.VisibilityPublic,
		Region:       models.RegionChicago,
		Capacity:     6,
		WinningScore: 5,
	}
}

// Validate checks every field against the offered choices. Local lobbies
// are only offered in dev mode.
func (o Options) Validate(devMode bool) error {
	if !o.Visibility.Valid() {
		return fmt.Errorf("invalid visibility %q", o.Visibility)
	}
	if o.Visibility == models.VisibilityLocal && !devMode {
		return fmt.Errorf("local lobbies are only available in dev mode")
	}
	if !o.Region.Valid() {
		return fmt.Errorf("invalid region %q", o.Region)
	}
	if !contains(CapacityChoices, o.Capacity) {
		return fmt.Errorf("invalid capacity %d", o.Capacity)
	}
	if !contains(WinningScoreChoices, o.WinningScore) {
		return fmt.Errorf("invalid winning score %d", o.WinningScore)
	}
	return nil
}

// RoomConfig is the initial room configuration for these options.
func (o Options) RoomConfig() models.RoomConfig {
	return models.RoomConfig{
		Capacity:          o.Capacity,
		WinningScore:      o.WinningScore,
		PlayerNicknameMap: map[string]string{},
		IsGameEnd:         false,
	}
}

func contains(choices []int, v int) bool {
	for _, c := range choices {
		if c == v {
			return true
		}
	}
	return false
}
