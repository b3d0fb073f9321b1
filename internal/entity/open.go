package entity

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

// Open returns the store cfg selects together with a closer for it. The
// hosted API is addressed per application: a non-empty AppID scopes the
// base URL to {base}/apps/{app_id}.
func Open(cfg model.BackendConfig, apiKey string) (Store, io.Closer, error) {
	switch cfg.Kind {
	case model.BackendHTTP:
		if cfg.BaseURL == "" {
			return nil, nil, fmt.Errorf("backend kind %q needs base_url", cfg.Kind)
		}
		base := strings.TrimRight(cfg.BaseURL, "/")
		if cfg.AppID != "" {
			base += "/apps/" + cfg.AppID
		}
		c := NewClient(base, apiKey, time.Duration(cfg.TimeoutSec)*time.Second)
		return c, io.NopCloser(nil), nil
	case model.BackendSQLite, "":
		s, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
}
