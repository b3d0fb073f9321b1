package sync

import (
	"context"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
)

// SyncState represents the current state of a source poll.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus holds the poll state for a single source.
type SyncStatus struct {
	SourceID string
	State    SyncState
	LastSync time.Time
	Error    error
}

// Outcome is what one poll produced.
type Outcome struct {
	// Identity is the mailbox the poll concerned, when any.
	Identity string

	// NewItems counts messages added to Identity's inbox.
	NewItems int

	// Counts is set by sources that refresh folder badges.
	Counts model.FolderCounts
}

// Source is a job the poller runs periodically.
type Source interface {
	ID() string
	Poll(ctx context.Context) (Outcome, error)
}

// SyncResultMsg is a tea.Msg sent when a poll completes.
type SyncResultMsg struct {
	Source string
	Outcome
	Error error
}

// fetchTimeout is the maximum time allowed for a single poll.
const fetchTimeout = 30 * time.Second

const defaultInterval = 120 * time.Second

type sourceEntry struct {
	src      Source
	interval time.Duration
	trigger  chan struct{}

	// done is closed when the source is removed.
	done chan struct{}
}

// Poller orchestrates background polling of registered sources.
type Poller struct {
	sources  []*sourceEntry
	statuses map[string]*SyncStatus
	resultCh chan SyncResultMsg
	stopCh   chan struct{}
	wg       gosync.WaitGroup
	mu       gosync.Mutex
	running  bool
}

// New creates an empty Poller.
func New() *Poller {
	return &Poller{
		statuses: make(map[string]*SyncStatus),
		resultCh: make(chan SyncResultMsg, 16),
		stopCh:   make(chan struct{}),
	}
}

// RegisterSource adds src, polled every interval. A source with the same
// id is replaced. Sources registered after Start begin polling at once.
func (p *Poller) RegisterSource(src Source, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if interval <= 0 {
		interval = defaultInterval
	}
	p.removeLocked(src.ID())

	entry := &sourceEntry{
		src:      src,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	p.sources = append(p.sources, entry)
	p.statuses[src.ID()] = &SyncStatus{SourceID: src.ID(), State: SyncIdle}

	if p.running {
		p.wg.Add(1)
		go p.pollSource(entry)
	}
}

// RemoveSource stops polling the source with id. Unknown ids are ignored.
func (p *Poller) RemoveSource(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(id)
}

func (p *Poller) removeLocked(id string) {
	for i, entry := range p.sources {
		if entry.src.ID() != id {
			continue
		}
		close(entry.done)
		p.sources = append(p.sources[:i], p.sources[i+1:]...)
		delete(p.statuses, id)
		return
	}
}

// Start returns a tea.Cmd that starts all polling goroutines and waits for
// the first result.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	sources := append([]*sourceEntry(nil), p.sources...)
	p.mu.Unlock()

	for _, entry := range sources {
		p.wg.Add(1)
		go p.pollSource(entry)
	}

	return p.waitForResult()
}

// Stop halts all polling goroutines and waits for them to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
}

// RefreshAll triggers an immediate poll of all registered sources.
func (p *Poller) RefreshAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.sources {
		select {
		case entry.trigger <- struct{}{}:
		default:
			// A poll is already queued.
		}
	}
}

// RefreshSource triggers an immediate poll of one source.
func (p *Poller) RefreshSource(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.sources {
		if entry.src.ID() != id {
			continue
		}
		select {
		case entry.trigger <- struct{}{}:
		default:
		}
	}
}

// GetStatuses returns the current status of all registered sources.
func (p *Poller) GetStatuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(p.statuses))
	for _, entry := range p.sources {
		statuses = append(statuses, *p.statuses[entry.src.ID()])
	}
	return statuses
}

func (p *Poller) pollSource(entry *sourceEntry) {
	defer p.wg.Done()

	ticker := time.NewTicker(entry.interval)
	defer ticker.Stop()

	p.poll(entry)

	for {
		select {
		case <-p.stopCh:
			return
		case <-entry.done:
			return
		case <-ticker.C:
			p.poll(entry)
		case <-entry.trigger:
			p.poll(entry)
		}
	}
}

// poll runs one fetch and reports it on the result channel.
func (p *Poller) poll(entry *sourceEntry) {
	id := entry.src.ID()
	p.setStatus(id, SyncRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	// Stop cancels a poll in flight.
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-entry.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	out, err := entry.src.Poll(ctx)
	if err != nil {
		logrus.WithField("source", id).WithError(err).Warn("poll failed")
		p.setStatus(id, SyncError, err)
		p.sendResult(SyncResultMsg{Source: id, Error: err})
		return
	}

	p.setStatus(id, SyncIdle, nil)
	p.sendResult(SyncResultMsg{Source: id, Outcome: out})
}

func (p *Poller) setStatus(id string, state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[id]
	if !ok {
		return
	}

	status.State = state
	status.Error = err
	if state == SyncIdle && err == nil {
		status.LastSync = time.Now()
	}
}

// sendResult sends msg without blocking.
func (p *Poller) sendResult(msg SyncResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		select {
		case result := <-p.resultCh:
			return result
		case <-p.stopCh:
			return nil
		}
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next result.
// Call it after handling a SyncResultMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
