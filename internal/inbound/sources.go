package inbound

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/credential"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

// SourceIMAP is the only importable source type.
const SourceIMAP = "imap"

// PasswordKey is the keyring key holding the password of source id.
func PasswordKey(id string) string { return "imap-" + id }

// PasswordEnv is the environment variable that overrides PasswordKey.
func PasswordEnv(id string) string {
	return "KMAIL_IMAP_PASSWORD_" + strings.ToUpper(strings.ReplaceAll(id, "-", "_"))
}

// Importers builds an Importer for every enabled IMAP source. Sources that
// are misconfigured or have no password are logged and skipped.
func Importers(sources []model.SourceConfig, store entity.Store, creds credential.Store) []*Importer {
	var out []*Importer
	for _, src := range sources {
		log := logrus.WithFields(logrus.Fields{"source": src.ID, "name": src.Name})
		if !src.Enabled {
			continue
		}
		if src.Type != SourceIMAP {
			log.WithField("type", src.Type).Warn("skipping source of unknown type")
			continue
		}

		target := strings.TrimSpace(src.Config["target_address"])
		if target == "" {
			log.Warn("skipping source without target_address")
			continue
		}

		password := credential.Lookup(creds, PasswordEnv(src.ID), PasswordKey(src.ID))
		if password == "" {
			log.Warn("skipping source: password not found in environment or keyring")
			continue
		}

		mb, err := NewIMAPMailbox(src, password)
		if err != nil {
			log.WithError(err).Warn("skipping source")
			continue
		}
		out = append(out, NewImporter(src.ID, store, mb, target))
	}
	return out
}
