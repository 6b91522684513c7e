package knowledge

import (
	"context"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vaultchat/vaultchat/internal/logging"
)

// reindexQuiet is the debounce window after the last filesystem event
// before the index is rebuilt.
const reindexQuiet = 500 * time.Millisecond

// Watch reindexes the vaults whenever their contents change. It blocks until
// ctx is cancelled and is intended to run in its own goroutine.
func (s *Service) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for name, root := range s.vaults {
		if err := watcher.Add(root); err != nil {
			logging.Warn().Str("vault", name).Err(err).Msg("vault not watchable")
		}
	}

	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			// Collapse bursts of events into one reindex.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reindexQuiet, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn().Err(err).Msg("vault watcher error")

		case <-pending:
			if _, err := s.Reindex(ctx); err != nil {
				logging.Error().Err(err).Msg("vault reindex failed")
			}
		}
	}
}
