package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/roomload-go/internal/domain/entities"
	"github.com/0xcro3dile/roomload-go/internal/domain/ports"
)

// ReportSuffix replaces a drawing's extension in the report file name.
const ReportSuffix = ".report.json"

// DefaultDebounce is how long a drawing must stay quiet before analysis.
const DefaultDebounce = 500 * time.Millisecond

// WatchUseCase analyzes drawings as they appear in a directory.
type WatchUseCase struct {
	watcher  ports.FileWatcher
	reader   ports.DrawingReader
	analyzer *AnalyzeUseCase
	opts     AnalyzeOptions
	debounce time.Duration
	logger   *zap.Logger
}

// NewWatchUseCase creates a WatchUseCase. A debounce <= 0 uses
// DefaultDebounce.
func NewWatchUseCase(
	watcher ports.FileWatcher,
	reader ports.DrawingReader,
	analyzer *AnalyzeUseCase,
	opts AnalyzeOptions,
	debounce time.Duration,
	logger *zap.Logger,
) *WatchUseCase {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchUseCase{
		watcher:  watcher,
		reader:   reader,
		analyzer: analyzer,
		opts:     opts,
		debounce: debounce,
		logger:   logger,
	}
}

// ReportPath returns where the report for drawingPath is written.
func ReportPath(drawingPath string) string {
	return strings.TrimSuffix(drawingPath, filepath.Ext(drawingPath)) + ReportSuffix
}

// Run processes drawings already in dir that have no up-to-date report,
// then follows changes until ctx is cancelled. A deleted drawing takes its
// report with it.
func (uc *WatchUseCase) Run(ctx context.Context, dir string) error {
	events, err := uc.watcher.Watch(ctx, dir)
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	if err := uc.scan(ctx, dir); err != nil {
		uc.logger.Warn("initial scan failed", zap.String("dir", dir), zap.Error(err))
	}

	ready := make(chan firing)
	deb := newDebouncer(uc.debounce, func(f firing) {
		select {
		case ready <- f:
		case <-ctx.Done():
		}
	})
	defer deb.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Operation == ports.FileDeleted {
				deb.cancel(ev.Path)
				uc.removeReport(ev.Path)
				continue
			}
			deb.schedule(ev.Path)
		case f := <-ready:
			if !deb.claim(f) {
				continue
			}
			if err := uc.ProcessFile(ctx, f.path); err != nil {
				uc.logger.Warn("drawing not analyzed", zap.String("path", f.path), zap.Error(err))
			}
		}
	}
}

// firing identifies one scheduled analysis of path.
type firing struct {
	path string
	gen  uint64
}

type pendingRun struct {
	timer *time.Timer
	gen   uint64
}

// debouncer keeps at most one pending analysis per path. A firing is only
// honoured while it is still the latest one scheduled for its path. It is
// owned by the Run loop and not safe for concurrent use.
type debouncer struct {
	delay   time.Duration
	fire    func(firing)
	gen     uint64
	pending map[string]pendingRun
}

func newDebouncer(delay time.Duration, fire func(firing)) *debouncer {
	return &debouncer{delay: delay, fire: fire, pending: make(map[string]pendingRun)}
}

func (d *debouncer) schedule(path string) {
	d.cancel(path)
	d.gen++
	f := firing{path: path, gen: d.gen}
	d.pending[path] = pendingRun{
		timer: time.AfterFunc(d.delay, func() { d.fire(f) }),
		gen:   f.gen,
	}
}

func (d *debouncer) cancel(path string) {
	if p, ok := d.pending[path]; ok {
		p.timer.Stop()
		delete(d.pending, path)
	}
}

// claim reports whether f is the current firing for its path and, if so,
// retires it.
func (d *debouncer) claim(f firing) bool {
	p, ok := d.pending[f.path]
	if !ok || p.gen != f.gen {
		return false
	}
	delete(d.pending, f.path)
	return true
}

func (d *debouncer) stop() {
	for path := range d.pending {
		d.cancel(path)
	}
}

// ProcessFile analyzes one drawing and writes its report.
func (uc *WatchUseCase) ProcessFile(ctx context.Context, path string) error {
	content, err := uc.reader.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading drawing: %w", err)
	}

	report, err := uc.analyzer.Analyze(ctx, content, uc.opts)
	if err != nil {
		return err
	}

	out := ReportPath(path)
	if err := WriteReport(out, report); err != nil {
		return err
	}
	uc.logger.Info("report written", zap.String("path", out), zap.Int("rooms", report.TotalRooms))
	return nil
}

func (uc *WatchUseCase) scan(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".dxf") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if reportIsCurrent(path) {
			continue
		}
		if err := uc.ProcessFile(ctx, path); err != nil {
			uc.logger.Warn("drawing not analyzed", zap.String("path", path), zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

func (uc *WatchUseCase) removeReport(drawingPath string) {
	err := os.Remove(ReportPath(drawingPath))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		uc.logger.Warn("removing report", zap.String("path", drawingPath), zap.Error(err))
	}
}

func reportIsCurrent(drawingPath string) bool {
	src, err := os.Stat(drawingPath)
	if err != nil {
		return false
	}
	rep, err := os.Stat(ReportPath(drawingPath))
	if err != nil {
		return false
	}
	return !rep.ModTime().Before(src.ModTime())
}

// WriteReport writes report as indented JSON, replacing path atomically.
func WriteReport(path string, report *entities.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
