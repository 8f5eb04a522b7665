package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lattice-mcp/mcp-sdk-go/protocol"
)

// rootsFile is the on-disk shape a WatchRootsFile-managed root set is
// loaded from: a flat JSON array of {"uri": "...", "name": "..."}.
type rootsFile = []protocol.Root

// WatchRootsFile loads path into the client's RootsRegistry and keeps it in
// sync with the file's contents: watch the parent directory rather than
// the file itself, so atomic renames (the common "editor saves a new file
// and renames over the old one" pattern)
// are still caught. Roots changes trigger notifications/roots/list_changed
// automatically via RootsRegistry.OnChange, wired in Connect.
func (c *Client) WatchRootsFile(ctx context.Context, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if err := c.loadRootsFile(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go c.watchRootsLoop(ctx, watcher, path, filename, logger)
	return nil
}

func (c *Client) watchRootsLoop(ctx context.Context, watcher *fsnotify.Watcher, path, filename string, logger *slog.Logger) {
	defer watcher.Close()

	const debounce = 150 * time.Millisecond
	var timer *time.Timer

	reload := func() {
		if err := c.loadRootsFile(path); err != nil {
			logger.Warn("client: failed to reload roots file", "path", path, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("client: roots watcher error", "error", err)
		}
	}
}

func (c *Client) loadRootsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var roots rootsFile
	if err := json.Unmarshal(data, &roots); err != nil {
		return err
	}
	c.roots.Set(roots)
	return nil
}
