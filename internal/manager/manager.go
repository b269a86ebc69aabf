// Package manager keeps the open documents of a workspace, one coordinator
// per URI.
package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"simplide/internal/config"
	"simplide/internal/coordinator"
	"simplide/internal/grammar"
	"simplide/internal/journal"
	"simplide/internal/lsp"
	"simplide/internal/metrics"
	"simplide/internal/resolver"
)

var log = commonlog.GetLogger("simplide.manager")

var (
	ErrAlreadyOpen = errors.New("document already open")
	ErrNotOpen     = errors.New("document not open")
	ErrNoJournal   = errors.New("journal not enabled")
)

// DialerFunc picks how to reach the analyzer for a language. A nil Dialer
// leaves the document without one.
type DialerFunc func(g *grammar.Grammar) lsp.Dialer

type Options struct {
	Config config.Config
	// Root is the workspace root relative paths resolve against.
	Root    string
	Journal *journal.Journal
	Metrics *metrics.Metrics
	// Dialer serves the languages Config has no analyzer for.
	Dialer DialerFunc
}

// Manager encapsulates coordinator state for each open URI.
type Manager struct {
	mu       sync.Mutex
	cfg      config.Config
	registry *grammar.Registry
	resolver *resolver.Resolver
	rootURI  string
	journal  *journal.Journal
	metrics  *metrics.Metrics
	dialer   DialerFunc
	docs     map[string]*coordinator.Coordinator
}

// New creates an initialized Manager.
func New(opts Options) (*Manager, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	registry, err := opts.Config.Registry()
	if err != nil {
		return nil, err
	}
	root := opts.Root
	if root == "" {
		root = "."
	}
	res, err := resolver.New(root)
	if err != nil {
		return nil, err
	}
	rootDoc, err := res.Resolve(res.Root())
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:      opts.Config,
		registry: registry,
		resolver: res,
		rootURI:  rootDoc.URI,
		journal:  opts.Journal,
		metrics:  opts.Metrics,
		dialer:   opts.Dialer,
		docs:     make(map[string]*coordinator.Coordinator),
	}, nil
}

func (m *Manager) Registry() *grammar.Registry { return m.registry }

// Open reads a file, given as a path or file URI, and opens it.
func (m *Manager) Open(ctx context.Context, path string) (*coordinator.Coordinator, error) {
	doc, err := m.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(doc.AbsolutePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", doc.RelativePath, err)
	}
	return m.open(ctx, doc, string(data), 0, false)
}

// OpenText opens a document whose text did not come from disk.
func (m *Manager) OpenText(ctx context.Context, path, text string) (*coordinator.Coordinator, error) {
	doc, err := m.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	return m.open(ctx, doc, text, 0, true)
}

// Recover reopens a journaled session with its unsaved edits. The recovered
// document continues in a fresh journal session.
func (m *Manager) Recover(ctx context.Context, id uuid.UUID) (*coordinator.Coordinator, error) {
	if m.journal == nil {
		return nil, ErrNoJournal
	}
	rec, err := m.journal.Recover(id)
	if err != nil {
		return nil, err
	}
	doc, err := m.resolver.Resolve(rec.URI)
	if err != nil {
		return nil, err
	}
	c, err := m.open(ctx, doc, rec.Text, rec.Version, true)
	if err != nil {
		return nil, err
	}
	if err := m.journal.Discard(id); err != nil {
		log.Warningf("discard recovered session %s: %v", id, err)
	}
	log.Infof("recovered %s at version %d (%d edits)", doc.URI, rec.Version, len(rec.Edits))
	return c, nil
}

func (m *Manager) open(ctx context.Context, doc resolver.Document, text string, version uint64, unsaved bool) (*coordinator.Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[doc.URI]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, doc.URI)
	}

	g, ok := m.registry.Detect(doc.AbsolutePath)
	if !ok {
		log.Debugf("no grammar for %s, tracking text only", doc.RelativePath)
	}
	opts := coordinator.Options{
		URI:                doc.URI,
		Text:               text,
		BaseVersion:        version,
		Unsaved:            unsaved,
		Grammar:            g,
		HistoryLimit:       m.cfg.HistoryLimit,
		CoalesceThreshold:  m.cfg.CoalesceThreshold,
		StalenessThreshold: m.cfg.StalenessThreshold,
		ReconnectInterval:  m.cfg.ReconnectInterval.Std(),
		Journal:            m.journal,
		Metrics:            m.metrics,
	}
	if g != nil {
		session, err := m.analyzer(doc.URI, g)
		if err != nil {
			return nil, err
		}
		opts.Analyzer = session
	}

	c, err := coordinator.New(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", doc.URI, err)
	}
	m.docs[doc.URI] = c
	return c, nil
}

func (m *Manager) analyzer(uri string, g *grammar.Grammar) (*lsp.Session, error) {
	var (
		dialer lsp.Dialer
		init   any
	)
	if a, ok := m.cfg.AnalyzerFor(g); ok {
		d, err := lsp.DialerFor(a.Command, a.Address)
		if err != nil {
			return nil, fmt.Errorf("analyzer for %s: %w", g.ID, err)
		}
		dialer = d
		if a.InitOptions != nil {
			init = a.InitOptions
		}
	} else if m.dialer != nil {
		dialer = m.dialer(g)
	}
	if dialer == nil {
		return nil, nil
	}
	return lsp.NewSession(lsp.Options{
		URI:               uri,
		LanguageID:        g.ID,
		RootURI:           m.rootURI,
		Dialer:            dialer,
		InitOptions:       init,
		FlushInterval:     m.cfg.FlushInterval.Std(),
		RequestTimeout:    m.cfg.RequestTimeout.Std(),
		ReconnectInterval: m.cfg.ReconnectInterval.Std(),
		Metrics:           m.metrics,
	}), nil
}

// Get returns the coordinator of an open document, by path or URI.
func (m *Manager) Get(path string) (*coordinator.Coordinator, error) {
	doc, err := m.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.docs[doc.URI]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, doc.URI)
	}
	return c, nil
}

// URIs lists the open documents in order.
func (m *Manager) URIs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.docs))
	for uri := range m.docs {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

// Poll handles the waiting background results of every open document.
func (m *Manager) Poll() int {
	m.mu.Lock()
	docs := make([]*coordinator.Coordinator, 0, len(m.docs))
	for _, c := range m.docs {
		docs = append(docs, c)
	}
	m.mu.Unlock()

	n := 0
	for _, c := range docs {
		n += c.Poll()
	}
	return n
}

// Close closes one document.
func (m *Manager) Close(ctx context.Context, path string) error {
	doc, err := m.resolver.Resolve(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	c, ok := m.docs[doc.URI]
	delete(m.docs, doc.URI)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotOpen, doc.URI)
	}
	return c.Close(ctx)
}

// CloseAll closes every document concurrently. All documents are closed even
// when some fail; the first failure is returned.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	docs := m.docs
	m.docs = make(map[string]*coordinator.Coordinator)
	m.mu.Unlock()

	var g errgroup.Group
	for uri, c := range docs {
		g.Go(func() error {
			if err := c.Close(ctx); err != nil {
				return fmt.Errorf("failed to close %s: %w", uri, err)
			}
			return nil
		})
	}
	return g.Wait()
}
