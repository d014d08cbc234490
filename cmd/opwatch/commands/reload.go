package commands

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/opwatch/opwatch/pkg/config"
)

// intervalSource is the effective poll interval for a watch loop. Config
// reloads update it from the watcher goroutine while the loop reads it
// between ticks.
type intervalSource struct {
	nanos atomic.Int64
}

func newIntervalSource(initial time.Duration) *intervalSource {
	s := &intervalSource{}
	s.set(initial)
	return s
}

func (s *intervalSource) set(d time.Duration) {
	s.nanos.Store(int64(d))
}

func (s *intervalSource) get() time.Duration {
	return time.Duration(s.nanos.Load())
}

// watchPollInterval follows edits to the config file for as long as a watch
// loop runs, feeding the configured poll interval into the returned source.
// The caller stops the watcher when the loop ends.
func watchPollInterval(path string, initial time.Duration, logger zerolog.Logger) (*config.Watcher, *intervalSource, error) {
	source := newIntervalSource(initial)

	watcher := config.NewWatcher(path, logger, func(cfg *config.Config) {
		next := cfg.Tracker.PollInterval.Std()
		if next == source.get() {
			return
		}
		logger.Info().
			Str("poll_interval", next.String()).
			Msg("Poll interval updated from config")
		source.set(next)
	})

	if err := watcher.Start(); err != nil {
		return nil, nil, err
	}

	return watcher, source, nil
}
