package app

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/inbound"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/mailbox"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/session"
	appsync "github.com/mrzeku2000XTTT/FluxKmail/internal/sync"
)

// countsSourceID is the poller id of the folder badge refresh.
const countsSourceID = "counts"

// RegisterSources gives the poller the folder badge refresh of whoever is
// signed in plus one job per importer. Call it before the program starts.
func RegisterSources(p *appsync.Poller, sessions *session.Manager, mb *mailbox.Synchronizer, importers []*inbound.Importer, cfg *model.AppConfig) {
	interval := time.Duration(cfg.Sync.PollIntervalSec) * time.Second

	p.RegisterSource(appsync.NewCountsSource(func() string {
		address, err := sessions.Require()
		if err != nil {
			return ""
		}
		return address
	}, mb.FolderCounts), interval)

	intervals := make(map[string]time.Duration, len(cfg.Inbound.Sources))
	for _, src := range cfg.Inbound.Sources {
		intervals[src.ID] = time.Duration(src.PollIntervalSec) * time.Second
	}
	for _, imp := range importers {
		p.RegisterSource(appsync.NewImportSource(imp, mb), intervals[imp.ID()])
		logrus.WithFields(logrus.Fields{"source": imp.ID(), "interval": intervals[imp.ID()]}).
			Info("registered import source")
	}
}

// syncImporter puts the poller in line with a saved or deleted source. A
// nil importer stops polling the source.
func (m *Model) syncImporter(id string, imp *inbound.Importer) {
	if imp == nil {
		m.deps.Poller.RemoveSource(appsync.ImportSourceID(id))
		return
	}
	interval := time.Duration(m.deps.Config.Sync.PollIntervalSec) * time.Second
	for _, src := range m.deps.Sources.Sources() {
		if src.ID == id {
			interval = time.Duration(src.PollIntervalSec) * time.Second
		}
	}
	m.deps.Poller.RegisterSource(appsync.NewImportSource(imp, m.deps.Mailbox), interval)
}

// handleSync applies a poll result. Results for anyone but the current
// identity are ignored.
func (m *Model) handleSync(msg appsync.SyncResultMsg) tea.Cmd {
	if msg.Error != nil {
		logrus.WithField("source", msg.Source).WithError(msg.Error).Debug("poll failed")
		return nil
	}
	if msg.Identity == "" || msg.Identity != m.identity {
		return nil
	}

	if msg.Counts != nil {
		m.mailList.SetCounts(msg.Counts)
	}
	if msg.NewItems > 0 {
		m.setStatus(pluralize(msg.NewItems, "new message") + " imported")
		m.deps.Poller.RefreshSource(countsSourceID)
		return m.mailList.Load()
	}
	return nil
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
