// Package backup writes scheduled snapshots of the bottle store.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

const (
	filePrefix = "bottles-"
	fileSuffix = ".json"
	timeLayout = "20060102-150405"
)

// Snapshotter produces the bytes of one backup.
type Snapshotter interface {
	Snapshot() ([]byte, error)
}

type Config struct {
	Cron string
	Dir  string
	Keep int
}

type Manager struct {
	cfg Config
	src Snapshotter
	now func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func New(src Snapshotter, cfg Config, opts ...Option) (*Manager, error) {
	if !gronx.New().IsValid(cfg.Cron) {
		return nil, fmt.Errorf("invalid cron expression %q", cfg.Cron)
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("backup dir is required")
	}
	if cfg.Keep < 1 {
		cfg.Keep = 1
	}
	m := &Manager{cfg: cfg, src: src, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start runs the schedule in the background until ctx ends or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	logger.InfoCF("backup", "Backups scheduled", map[string]any{"cron": m.cfg.Cron, "dir": m.cfg.Dir})
	go func() {
		defer close(m.done)
		m.scheduleLoop(ctx)
	}()
}

func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Manager) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(m.cfg.Cron, m.now(), false)
		if err != nil {
			logger.ErrorCF("backup", "Failed to compute next run", map[string]any{"cron": m.cfg.Cron, "error": err.Error()})
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			m.runJob()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) runJob() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	if _, err := m.RunNow(); err != nil {
		logger.ErrorCF("backup", "Backup failed", map[string]any{"error": err.Error()})
	}
}

// RunNow writes one snapshot and prunes old ones, returning the new file.
func (m *Manager) RunNow() (string, error) {
	data, err := m.src.Snapshot()
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	path := filepath.Join(m.cfg.Dir, filePrefix+m.now().Format(timeLayout)+fileSuffix)
	tmp, err := os.CreateTemp(m.cfg.Dir, ".bottles-*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	removed, err := m.prune()
	logger.InfoCF("backup", "Backup written", map[string]any{"path": path, "bytes": len(data), "pruned": removed})
	return path, err
}

// List returns backup files oldest first.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			names = append(names, filepath.Join(m.cfg.Dir, name))
		}
	}
	// The timestamp layout sorts lexically.
	slices.Sort(names)
	return names, nil
}

func (m *Manager) prune() (int, error) {
	files, err := m.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for len(files) > m.cfg.Keep {
		if err := os.Remove(files[0]); err != nil {
			return removed, err
		}
		files = files[1:]
		removed++
	}
	return removed, nil
}
