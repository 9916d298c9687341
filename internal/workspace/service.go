// Package workspace owns the live set of editable artifacts. It exposes
// generated text through textitem mirrors, polls them for human edits and
// keeps the index, metrics and subscribers in step.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/livetext/internal/apperr"
	"github.com/starford/livetext/internal/checksum"
	"github.com/starford/livetext/internal/editor"
	"github.com/starford/livetext/internal/index"
	"github.com/starford/livetext/internal/metrics"
	"github.com/starford/livetext/internal/mirror"
	"github.com/starford/livetext/internal/parser"
	"github.com/starford/livetext/internal/textitem"
)

// Publisher receives artifact lifecycle events.
type Publisher interface {
	PublishArtifactEvent(kind, name string)
}

// Config controls mirror placement and exposure limits.
type Config struct {
	MirrorDir       string
	Overwrite       bool
	MinOverrideSize int
	// MaxArtifactBytes rejects larger content. Zero disables the limit.
	MaxArtifactBytes int
	MirrorOptions    []mirror.Option
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithLauncher sets the editor used by Open.
func WithLauncher(l editor.Launcher) Option {
	return func(s *Service) { s.launcher = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// live is one mirror shared by every name whose content and suffix hash
// to the same path.
type live struct {
	item  *textitem.Item
	names map[string]struct{}
}

type binding struct {
	grammar   parser.Grammar
	path      string
	updatedAt time.Time
}

// Service coordinates items, the index and event delivery. All methods are
// safe for concurrent use; they are serialized by one mutex, so a poll that
// is settling a change delays other callers.
type Service struct {
	mu       sync.Mutex
	db       index.ArtifactIndex
	grammars parser.Grammars
	cfg      Config
	prefix   string

	pub      Publisher
	launcher editor.Launcher
	logger   *slog.Logger

	byPath map[string]*live
	byName map[string]*binding
}

// NewService creates a workspace over db.
func NewService(db index.ArtifactIndex, grammars parser.Grammars, cfg Config, opts ...Option) *Service {
	s := &Service{
		db:       db,
		grammars: grammars,
		cfg:      cfg,
		logger:   slog.New(slog.DiscardHandler),
		byPath:   make(map[string]*live),
		byName:   make(map[string]*binding),
	}
	if cfg.MirrorDir != "" {
		s.prefix = filepath.Clean(cfg.MirrorDir) + string(os.PathSeparator)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Expose publishes generated text under name. Content identical to a live
// artifact with the same suffix shares its mirror. Re-exposing a name
// rebinds it to the new content.
func (s *Service) Expose(ctx context.Context, req ExposeRequest) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := cleanName(req.Name)
	if err != nil {
		return nil, err
	}
	if s.cfg.MaxArtifactBytes > 0 && len(req.Content) > s.cfg.MaxArtifactBytes {
		return nil, fmt.Errorf("workspace: %s is %d bytes, limit %d: %w",
			name, len(req.Content), s.cfg.MaxArtifactBytes, apperr.ErrOversizedInput)
	}
	g, err := s.grammarFor(name, req.Grammar)
	if err != nil {
		return nil, err
	}

	content := []byte(req.Content)
	suffix := g.Suffix
	if suffix == "" {
		suffix = filepath.Ext(name)
	}
	mirrorPath := textitem.MirrorPath(s.prefix, checksum.Sum(content), suffix)
	overwrite := s.cfg.Overwrite || req.Overwrite

	s.mu.Lock()
	defer s.mu.Unlock()

	lv, shared := s.byPath[mirrorPath]
	if !shared || overwrite {
		it, err := textitem.New(content, textitem.Config{
			Overwrite:       overwrite,
			Prefix:          s.prefix,
			Suffix:          suffix,
			MinOverrideSize: s.cfg.MinOverrideSize,
		}, s.logger, s.cfg.MirrorOptions...)
		if err != nil {
			return nil, fmt.Errorf("workspace: expose %s: %w", name, err)
		}
		if shared {
			lv.item = it
		} else {
			lv = &live{item: it, names: make(map[string]struct{})}
			s.byPath[mirrorPath] = lv
		}
		metrics.RecordExpose(it.Source().String())
	}

	s.bind(name, g, mirrorPath, lv)

	// Overwriting a shared mirror changes the text behind every alias.
	for alias := range lv.names {
		if err := s.reindex(alias); err != nil {
			return nil, err
		}
	}
	metrics.SetArtifactsLive(len(s.byName))

	s.logger.Info("workspace: exposed",
		slog.String("name", name),
		slog.String("path", mirrorPath),
		slog.String("source", lv.item.Source().String()),
		slog.Bool("shared", shared))
	s.publish(EventExposed, name)

	return s.artifact(name)
}

// Poll checks every live mirror once. It returns the names whose text
// changed, sorted. Failures of individual items are joined; the remaining
// items are still polled.
func (s *Service) Poll(ctx context.Context) ([]string, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var changed []string
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		lv := s.byPath[p]
		ok, err := lv.item.PollForChanges(ctx)
		if err != nil {
			s.logger.Warn("workspace: poll failed", slog.String("path", p), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("workspace: poll %s: %w", p, err))
			continue
		}
		if !ok {
			continue
		}
		for _, name := range sortedKeys(lv.names) {
			s.byName[name].updatedAt = time.Now().UTC()
			if err := s.reindex(name); err != nil {
				errs = append(errs, err)
			}
			changed = append(changed, name)
			s.logger.Info("workspace: adopted edit", slog.String("name", name), slog.String("path", p))
			s.publish(EventChanged, name)
		}
	}
	sort.Strings(changed)
	metrics.RecordPoll(time.Since(start), len(changed), len(errs))
	return changed, errors.Join(errs...)
}

// Get returns the live artifact with its current text and sections. A name
// that is only indexed, such as one exposed by another process sharing the
// database, is served from its index row, stored sections and mirror file
// with Source "indexed".
func (s *Service) Get(_ context.Context, name string) (*Artifact, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.artifact(name)
	if errors.Is(err, apperr.ErrNotFound) {
		return s.indexed(name)
	}
	return a, err
}

// Section returns section i of the artifact's current text.
func (s *Service) Section(_ context.Context, name string, i int) (*SectionDetail, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, lv, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	text, err := lv.item.CurrentText()
	if err != nil {
		return nil, err
	}
	sec, err := b.grammar.Split(text).Section(i)
	if err != nil {
		return nil, fmt.Errorf("workspace: %s: %w", name, err)
	}
	return &SectionDetail{
		SectionInfo: sectionInfo(b.grammar, text, i, sec),
		Content:     string(sec.Bytes(text)),
	}, nil
}

// List returns indexed artifacts, optionally filtered by grammar.
func (s *Service) List(_ context.Context, grammar string) ([]ArtifactListItem, error) {
	rows, err := s.db.ListArtifacts(grammar)
	if err != nil {
		return nil, err
	}
	items := make([]ArtifactListItem, len(rows))
	for i, r := range rows {
		items[i] = ArtifactListItem{
			Name:       r.Name,
			Grammar:    r.Grammar,
			Hash:       r.Hash,
			MirrorPath: r.MirrorPath,
			Source:     r.Source,
			Size:       r.Size,
			UpdatedAt:  r.UpdatedAt,
		}
	}
	return items, nil
}

// Remove forgets an artifact. Its mirror file stays on disk so a later
// expose of the same content picks up any edit made to it.
func (s *Service) Remove(_ context.Context, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; !ok {
		return apperr.ErrNotFound
	}
	if err := s.db.DeleteArtifact(name); err != nil {
		return fmt.Errorf("workspace: remove %s: %w", name, err)
	}
	s.unbind(name)
	metrics.SetArtifactsLive(len(s.byName))
	s.logger.Info("workspace: removed", slog.String("name", name))
	s.publish(EventRemoved, name)
	return nil
}

// Open launches the configured editor on the artifact's mirror file.
func (s *Service) Open(_ context.Context, name string, foreground bool) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, lv, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	if s.launcher == nil {
		return "", fmt.Errorf("workspace: no editor configured")
	}
	if err := lv.item.OpenInEditor(s.launcher, foreground); err != nil {
		return "", err
	}
	return lv.item.Path(), nil
}

// MaxArtifactBytes returns the configured content limit; zero means none.
func (s *Service) MaxArtifactBytes() int { return s.cfg.MaxArtifactBytes }

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Grammars returns the configured grammars sorted by name.
func (s *Service) Grammars() []parser.Grammar {
	out := make([]parser.Grammar, 0, len(s.grammars))
	for _, g := range s.grammars {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the live artifact names, sorted.
func (s *Service) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.byName)
}

// Prune deletes index rows for artifacts that are not live, such as rows
// left by a previous process. It returns how many rows were removed.
func (s *Service) Prune(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hashes, err := s.db.AllHashes()
	if err != nil {
		return 0, err
	}
	removed := 0
	for name := range hashes {
		if _, ok := s.byName[name]; ok {
			continue
		}
		if err := s.db.DeleteArtifact(name); err != nil {
			return removed, fmt.Errorf("workspace: prune %s: %w", name, err)
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("workspace: pruned stale index rows", slog.Int("count", removed))
	}
	return removed, nil
}

func (s *Service) grammarFor(name, grammar string) (parser.Grammar, error) {
	if grammar != "" {
		return s.grammars.Lookup(grammar)
	}
	if g, ok := s.grammars.ForPath(name); ok {
		return g, nil
	}
	return parser.Grammar{}, nil
}

// bind points name at the live entry for mirrorPath, detaching it from any
// previous mirror.
func (s *Service) bind(name string, g parser.Grammar, mirrorPath string, lv *live) {
	if old, ok := s.byName[name]; ok && old.path != mirrorPath {
		s.unbind(name)
	}
	s.byName[name] = &binding{grammar: g, path: mirrorPath, updatedAt: time.Now().UTC()}
	lv.names[name] = struct{}{}
}

func (s *Service) unbind(name string) {
	b, ok := s.byName[name]
	if !ok {
		return
	}
	delete(s.byName, name)
	if lv, ok := s.byPath[b.path]; ok {
		delete(lv.names, name)
		if len(lv.names) == 0 {
			delete(s.byPath, b.path)
		}
	}
}

func (s *Service) lookup(name string) (*binding, *live, error) {
	b, ok := s.byName[name]
	if !ok {
		return nil, nil, apperr.ErrNotFound
	}
	lv, ok := s.byPath[b.path]
	if !ok {
		return nil, nil, fmt.Errorf("workspace: %s has no mirror: %w", name, apperr.ErrInconsistentState)
	}
	return b, lv, nil
}

func (s *Service) reindex(name string) error {
	b, lv, err := s.lookup(name)
	if err != nil {
		return err
	}
	text, err := lv.item.CurrentText()
	if err != nil {
		return err
	}
	secs := b.grammar.Split(text).Sections()
	rows := make([]index.SectionRow, len(secs))
	for i, sec := range secs {
		info := sectionInfo(b.grammar, text, i, sec)
		rows[i] = index.SectionRow{
			Position:    i,
			MarkerIndex: info.MarkerIndex,
			Marker:      info.Marker,
			Offset:      info.Offset,
			Length:      info.Length,
			Header:      info.Header,
		}
	}
	err = s.db.UpsertArtifact(index.ArtifactRow{
		Name:       name,
		Hash:       lv.item.Hash(),
		Grammar:    b.grammar.Name,
		MirrorPath: lv.item.Path(),
		Source:     lv.item.Source().String(),
		Size:       len(text),
		UpdatedAt:  b.updatedAt,
	}, string(text), rows)
	if err != nil {
		return fmt.Errorf("workspace: index %s: %w", name, err)
	}
	return nil
}

func (s *Service) artifact(name string) (*Artifact, error) {
	b, lv, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	text, err := lv.item.CurrentText()
	if err != nil {
		return nil, err
	}
	secs := b.grammar.Split(text).Sections()
	infos := make([]SectionInfo, len(secs))
	for i, sec := range secs {
		infos[i] = sectionInfo(b.grammar, text, i, sec)
	}
	return &Artifact{
		Name:       name,
		Grammar:    b.grammar.Name,
		Hash:       lv.item.Hash(),
		MirrorPath: lv.item.Path(),
		Source:     lv.item.Source().String(),
		Content:    string(text),
		Sections:   infos,
		UpdatedAt:  b.updatedAt,
	}, nil
}

// SourceIndexed marks an artifact read back from the index rather than a
// live item.
const SourceIndexed = "indexed"

func (s *Service) indexed(name string) (*Artifact, error) {
	row, err := s.db.GetArtifact(name)
	if err != nil {
		return nil, err
	}
	text, err := os.ReadFile(row.MirrorPath)
	if err != nil {
		return nil, &apperr.IOError{Op: "read", Path: row.MirrorPath, Err: err}
	}
	rows, err := s.db.Sections(name)
	if err != nil {
		return nil, err
	}
	infos := make([]SectionInfo, len(rows))
	for i, r := range rows {
		infos[i] = SectionInfo{
			Index:       r.Position,
			MarkerIndex: r.MarkerIndex,
			Marker:      r.Marker,
			Header:      r.Header,
			Offset:      r.Offset,
			Length:      r.Length,
		}
	}
	return &Artifact{
		Name:       row.Name,
		Grammar:    row.Grammar,
		Hash:       row.Hash,
		MirrorPath: row.MirrorPath,
		Source:     SourceIndexed,
		Content:    string(text),
		Sections:   infos,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

func (s *Service) publish(kind, name string) {
	if s.pub != nil {
		s.pub.PublishArtifactEvent(kind, name)
	}
}

func sectionInfo(g parser.Grammar, text []byte, i int, sec parser.Section) SectionInfo {
	return SectionInfo{
		Index:       i,
		MarkerIndex: sec.MarkerIndex,
		Marker:      g.Marker(sec.MarkerIndex),
		Header:      sec.Header(text),
		Offset:      sec.Offset,
		Length:      sec.Length,
	}
}

// cleanName normalizes an artifact name to a relative slash path.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(filepath.ToSlash(name))
	if name == "" {
		return "", fmt.Errorf("workspace: empty artifact name: %w", apperr.ErrInvalidInput)
	}
	cleaned := path.Clean(name)
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == "." {
		return "", fmt.Errorf("workspace: invalid artifact name %q: %w", name, apperr.ErrInvalidInput)
	}
	return cleaned, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
