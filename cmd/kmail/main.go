package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/addressbook"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/app"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/credential"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/inbound"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/logging"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/mailbox"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/relay"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/scan"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/session"
	appsync "github.com/mrzeku2000XTTT/FluxKmail/internal/sync"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/wallet"
)

// walletTimeout covers approval prompts, which wait on the user.
const walletTimeout = 3 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kmail:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config.yaml")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	// The screen belongs to the TUI, so logs go to a file.
	logFile, err := logging.Setup(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer logFile.Close()

	creds, err := credential.Open(model.ConfigDir())
	if err != nil {
		return err
	}

	store, closer, err := entity.Open(cfg.Backend,
		credential.Lookup(creds, "KMAIL_BACKEND_API_KEY", credential.KeyBackendAPI))
	if err != nil {
		return err
	}
	defer closer.Close()

	rl, err := relay.FromConfig(cfg.Relay, relay.Secrets{
		APIKey:       credential.Lookup(creds, "KMAIL_RELAY_API_KEY", credential.KeyRelayAPI),
		SMTPPassword: credential.Lookup(creds, "KMAIL_SMTP_PASSWORD", credential.KeySMTPPassword),
	})
	if err != nil {
		return err
	}

	provider := wallet.NewRPCProvider(cfg.Wallet.RPCURL, walletTimeout)
	mb := mailbox.New(store, rl, mailbox.OptionsFromConfig(cfg))
	sessions := session.NewManager(store, creds, provider, session.Options{
		SignChallenge: cfg.Wallet.SignChallenge,
	})
	sessions.OnInvalidate(mb)

	scanner := scan.New(
		credential.Lookup(creds, "ANTHROPIC_API_KEY", credential.KeyAnthropicAPI),
		cfg.Scan.Model, cfg.Scan.MaxTokens)

	poller := appsync.New()
	app.RegisterSources(poller, sessions, mb, inbound.Importers(cfg.Inbound.Sources, store, creds), cfg)

	logrus.WithFields(logrus.Fields{
		"backend": cfg.Backend.Kind,
		"relay":   cfg.Relay.Kind,
		"config":  *configPath,
	}).Info("starting kmail")

	p := tea.NewProgram(app.New(app.Deps{
		Sessions: sessions,
		Mailbox:  mb,
		Book:     addressbook.New(store),
		Scanner:  scanner,
		Wallet:   provider,
		Poller:   poller,
		Sources:  inbound.NewRegistry(cfg, *configPath, creds, store),
		Config:   cfg,
	}), tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}
