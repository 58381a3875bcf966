package notify

import (
	"fmt"

	"confdb/internal/config"
	"confdb/internal/core"
)

// NewNotifierFromConfig builds the notifier named by the configuration.
func NewNotifierFromConfig(cfg config.NotifierConfig, logger core.Logger) (core.Notifier, error) {
	switch cfg.Type {
	case "", "none":
		return core.NewNopNotifier(), nil
	case "email":
		return NewEmailNotifier(cfg, logger)
	case "webhook":
		return NewWebhookNotifier(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown notifier type: %s", cfg.Type)
	}
}
