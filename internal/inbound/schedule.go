package inbound

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

// fetchTimeout bounds one import run.
const fetchTimeout = 2 * time.Minute

// Schedule pairs an importer with how often it runs.
type Schedule struct {
	Importer *Importer
	Interval time.Duration
}

// RunAll imports from every schedule immediately and then on its
// interval until ctx is done. It returns once every loop has stopped.
func RunAll(ctx context.Context, schedules []Schedule) {
	var wg conc.WaitGroup
	for _, s := range schedules {
		wg.Go(func() { runSchedule(ctx, s) })
	}
	wg.Wait()
}

func runSchedule(ctx context.Context, s Schedule) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		importOnce(ctx, s.Importer)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func importOnce(ctx context.Context, imp *Importer) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	res, err := imp.Import(ctx)
	log := logrus.WithField("source", imp.ID())
	if errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		log.WithError(err).Warn("import failed")
		return
	}
	if res.Imported > 0 {
		log.WithField("imported", res.Imported).Info("imported messages")
	}
}
