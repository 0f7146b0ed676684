package session

import (
	"fmt"

	"github.com/fitlive/livechat/internal/config"
	"github.com/google/uuid"
)

// ClientID returns the persisted client identifier from the config at path,
// generating and saving a new one on first use.
func ClientID(path string) (string, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if cfg.ClientID != "" {
		return cfg.ClientID, nil
	}

	onDisk, err := config.Load(path)
	if err != nil {
		onDisk = &config.Config{}
	}
	onDisk.ClientID = uuid.NewString()
	if err := config.Save(path, onDisk); err != nil {
		return "", fmt.Errorf("save client id: %w", err)
	}
	return onDisk.ClientID, nil
}
