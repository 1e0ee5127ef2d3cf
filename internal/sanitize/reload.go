package sanitize

import (
	"bufio"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 500 * time.Millisecond

// Reloader keeps a Filter's supplemental deny list in sync with a token
// file: one token per line, blank lines and #-comments ignored.
type Reloader struct {
	filter  *Filter
	path    string
	watcher *fsnotify.Watcher
	cancel  chan struct{}
}

// NewReloader loads path into filter and starts watching it for changes.
func NewReloader(filter *Filter, path string) (*Reloader, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	r := &Reloader{
		filter:  filter,
		path:    path,
		watcher: w,
		cancel:  make(chan struct{}),
	}

	if err := r.reload(); err != nil {
		w.Close()
		return nil, err
	}

	// Watch the containing directory rather than the file itself so
	// rename-over saves (editors, atomic writes) keep being observed.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	go r.watchLoop()
	return r, nil
}

// watchLoop processes fsnotify events with debouncing.
func (r *Reloader) watchLoop() {
	var timer *time.Timer

	for {
		select {
		case <-r.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.path) {
				continue
			}

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, func() {
				if err := r.reload(); err != nil {
					log.Printf("sanitize: reload %s: %v", r.path, err)
				}
			})

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("sanitize: watcher error: %v", err)
		}
	}
}

func (r *Reloader) reload() error {
	f, err := os.Open(r.path)
	if err != nil {
		return err
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	r.filter.SetExtra(tokens)
	log.Printf("sanitize: loaded %d extra deny tokens from %s", len(tokens), r.path)
	return nil
}

// Close stops the watcher.
func (r *Reloader) Close() {
	close(r.cancel)
	r.watcher.Close()
}
