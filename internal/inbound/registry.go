package inbound

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"

	"github.com/google/uuid"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/credential"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

// ErrUnknownSource is returned for a source id that is not configured.
var ErrUnknownSource = errors.New("unknown source")

// Registry edits the IMAP sources of the config file. Passwords go to the
// keyring, never to the file.
type Registry struct {
	mu    gosync.Mutex
	cfg   *model.AppConfig
	path  string
	creds credential.Store
	store entity.Store

	// dial builds the mailbox used by Test; replaced in tests.
	dial func(src model.SourceConfig, password string) (Mailbox, error)
}

// NewRegistry returns a Registry saving cfg to path.
func NewRegistry(cfg *model.AppConfig, path string, creds credential.Store, store entity.Store) *Registry {
	return &Registry{
		cfg:   cfg,
		path:  path,
		creds: creds,
		store: store,
		dial: func(src model.SourceConfig, password string) (Mailbox, error) {
			return NewIMAPMailbox(src, password)
		},
	}
}

// Sources returns the configured IMAP sources.
func (r *Registry) Sources() []model.SourceConfig {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.SourceConfig
	for _, src := range r.cfg.Inbound.Sources {
		if src.Type == SourceIMAP {
			out = append(out, src)
		}
	}
	return out
}

// Save adds or replaces src and persists the config. An empty password
// keeps the stored one. The returned Importer is nil when the source is
// disabled.
func (r *Registry) Save(src model.SourceConfig, password string) (*Importer, error) {
	src.Type = SourceIMAP
	if src.ID == "" {
		src.ID = uuid.NewString()[:8]
	}
	if strings.TrimSpace(src.Config["target_address"]) == "" {
		return nil, fmt.Errorf("source %s: target_address is required", src.ID)
	}
	if _, err := NewIMAPMailbox(src, password); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if password != "" {
		if r.creds == nil {
			return nil, errors.New("no keyring available to store the password")
		}
		if err := r.creds.Set(PasswordKey(src.ID), password); err != nil {
			return nil, err
		}
	}
	if src.PollIntervalSec == 0 {
		src.PollIntervalSec = r.cfg.Sync.PollIntervalSec
	}

	sources := r.cfg.Inbound.Sources
	replaced := false
	for i := range sources {
		if sources[i].ID == src.ID {
			sources[i] = src
			replaced = true
		}
	}
	if !replaced {
		sources = append(sources, src)
	}
	r.cfg.Inbound.Sources = sources

	if err := model.SaveConfig(r.path, r.cfg); err != nil {
		return nil, err
	}

	imps := Importers([]model.SourceConfig{src}, r.store, r.creds)
	if len(imps) == 0 {
		return nil, nil
	}
	return imps[0], nil
}

// Delete removes the source with id and its stored password.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sources := r.cfg.Inbound.Sources
	for i := range sources {
		if sources[i].ID != id {
			continue
		}
		r.cfg.Inbound.Sources = append(sources[:i:i], sources[i+1:]...)
		if r.creds != nil {
			if err := r.creds.Delete(PasswordKey(id)); err != nil {
				return err
			}
		}
		return model.SaveConfig(r.path, r.cfg)
	}
	return fmt.Errorf("%w: %s", ErrUnknownSource, id)
}

// Test logs in and reads one message. An empty password uses the stored
// one.
func (r *Registry) Test(ctx context.Context, src model.SourceConfig, password string) error {
	if password == "" {
		password = credential.Lookup(r.creds, PasswordEnv(src.ID), PasswordKey(src.ID))
	}
	if password == "" {
		return errors.New("no password stored for this source")
	}
	mb, err := r.dial(src, password)
	if err != nil {
		return err
	}
	_, err = mb.Recent(ctx, 1)
	return err
}
