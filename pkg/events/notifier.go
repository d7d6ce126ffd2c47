package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/cuemby/procpool/pkg/config"
	"github.com/cuemby/procpool/pkg/log"
	"github.com/cuemby/procpool/pkg/types"
)

// Notifier posts status updates to parent tasks living on other
// daemons. It is always wired into the consumer; whether it actually
// sends anything is a config decision.
type Notifier struct {
	enabled bool
	budget  time.Duration
	client  *http.Client
	logger  zerolog.Logger
}

// NewNotifier builds a notifier from runtime.app settings.
func NewNotifier(cfg *config.Config) *Notifier {
	return &Notifier{
		enabled: cfg.Runtime.App.NotifyParents,
		budget:  time.Duration(cfg.Runtime.App.NotifyTimeout) * time.Second,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  log.WithComponent("notifier"),
	}
}

// Notify posts {"update_data": {"status": <status>}} to the parent's
// update endpoint, retrying transient failures with exponential backoff
// until the configured budget runs out. Client errors from the parent
// stop the retries immediately. A disabled notifier reports success
// without sending.
func (n *Notifier) Notify(parentURL string, status types.Status) error {
	if !n.enabled || parentURL == "" {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"update_data": map[string]any{"status": status},
	})
	if err != nil {
		return fmt.Errorf("failed to encode parent notification: %w", err)
	}
	url := strings.TrimRight(parentURL, "/") + "/update"

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = n.budget

	err = backoff.Retry(func() error {
		resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			// The parent rejected the update, retrying will not help
			return backoff.Permanent(fmt.Errorf("parent rejected notification: %s", resp.Status))
		default:
			return fmt.Errorf("parent notification failed: %s", resp.Status)
		}
	}, policy)
	if err != nil {
		n.logger.Warn().Err(err).Str("parent_url", parentURL).Str("status", string(status)).
			Msg("giving up on parent notification")
		return err
	}

	n.logger.Debug().Str("parent_url", parentURL).Str("status", string(status)).
		Msg("parent notified")
	return nil
}
