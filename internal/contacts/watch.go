package contacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before the cache is reset after an
// AddressBook write. The Contacts app touches the WAL many times per edit.
const DefaultDebounce = 2 * time.Second

// Watch resets the resolver's cache whenever an AddressBook database under the
// resolver's directory changes. It blocks until ctx is cancelled.
func (r *Resolver) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dirs := []string{r.dir}
	sources, _ := filepath.Glob(filepath.Join(r.dir, "Sources", "*"))
	for _, d := range sources {
		if fi, err := os.Stat(d); err == nil && fi.IsDir() {
			dirs = append(dirs, d)
		}
	}
	for _, d := range dirs {
		if err := watcher.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}
	r.logger.Info().Str("dir", r.dir).Int("dirs", len(dirs)).Dur("debounce", debounce).Msg("watching contacts")

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	reset := func() {
		n := r.cache.Len()
		r.cache.Reset()
		r.logger.Info().Int("dropped", n).Msg("contacts changed, name cache reset")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.Contains(filepath.Base(event.Name), ".abcddb") {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reset)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn().Err(err).Msg("contacts watch error")
		}
	}
}
