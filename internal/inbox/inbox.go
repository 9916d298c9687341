// Package inbox ingests generator output dropped as files into a watched
// directory. Each file is exposed under its inbox-relative path.
package inbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/starford/livetext/internal/apperr"
	"github.com/starford/livetext/internal/checksum"
	"github.com/starford/livetext/internal/storage"
	"github.com/starford/livetext/internal/workspace"
)

// Exposer is the part of the workspace the inbox drives.
type Exposer interface {
	Expose(ctx context.Context, req workspace.ExposeRequest) (*workspace.Artifact, error)
	Remove(ctx context.Context, name string) error
}

// Ingester keeps the workspace in step with the inbox directory. It only
// removes artifacts it exposed itself.
type Ingester struct {
	svc    Exposer
	store  storage.Provider
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]string // name -> checksum of the last ingested bytes
}

// New creates an Ingester.
func New(svc Exposer, store storage.Provider, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ingester{svc: svc, store: store, logger: logger, seen: make(map[string]string)}
}

// Sync walks the inbox and brings the workspace up to date:
//   - new/changed files are exposed
//   - artifacts whose file disappeared are removed
func (in *Ingester) Sync(ctx context.Context) error {
	metas, err := in.store.List("")
	if err != nil {
		return err
	}

	in.mu.Lock()
	known := make(map[string]string, len(in.seen))
	for k, v := range in.seen {
		known[k] = v
	}
	in.mu.Unlock()

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if known[m.Path] == m.Checksum {
			continue
		}
		data, err := in.store.Read(m.Path)
		if err != nil {
			in.logger.Warn("inbox: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if _, err := in.ingest(ctx, m.Path, data); err != nil {
			in.logger.Warn("inbox: expose failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		}
	}

	for name := range known {
		if _, ok := disk[name]; !ok {
			in.forget(ctx, name)
		}
	}
	return nil
}

// ingest exposes data under name unless identical bytes were already
// ingested. It reports whether an expose happened.
func (in *Ingester) ingest(ctx context.Context, name string, data []byte) (bool, error) {
	sum := checksum.Sum(data)
	in.mu.Lock()
	same := in.seen[name] == sum
	in.mu.Unlock()
	if same {
		return false, nil
	}

	if _, err := in.svc.Expose(ctx, workspace.ExposeRequest{Name: name, Content: string(data)}); err != nil {
		return false, err
	}
	in.mu.Lock()
	in.seen[name] = sum
	in.mu.Unlock()
	in.logger.Debug("inbox: exposed", slog.String("path", name))
	return true, nil
}

// forget removes an inbox-sourced artifact.
func (in *Ingester) forget(ctx context.Context, name string) {
	in.mu.Lock()
	_, ok := in.seen[name]
	delete(in.seen, name)
	in.mu.Unlock()
	if !ok {
		return
	}
	if err := in.svc.Remove(ctx, name); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		in.logger.Warn("inbox: remove failed", slog.String("path", name), slog.String("error", err.Error()))
		return
	}
	in.logger.Debug("inbox: removed", slog.String("path", name))
}
