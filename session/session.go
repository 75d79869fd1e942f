// Package session owns one connection to a server and every piece of
// per-connection state: the negotiated browse capability, the validation
// group, the resolution cache and learned rules, and the cached server
// status.
//
// A Session serializes every operation through one mutex. The browse
// cursor and the resolution cache are shared state, so even read-only
// looking calls take the lock. Run independent sessions for concurrency.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/pithecene-io/opcda/browse"
	"github.com/pithecene-io/opcda/log"
	"github.com/pithecene-io/opcda/metrics"
	"github.com/pithecene-io/opcda/opc"
	"github.com/pithecene-io/opcda/read"
	"github.com/pithecene-io/opcda/resolve"
	"github.com/pithecene-io/opcda/types"
)

// DefaultHost is dialed when a target names no host.
const DefaultHost = "localhost"

var (
	// ErrNotConnected is returned by operations on a disconnected session.
	ErrNotConnected = errors.New("session not connected")
	// ErrNoBrowser is returned when a server offers no browse capability.
	ErrNoBrowser = errors.New("server offers no browse capability")
	// ErrNoTarget is returned when a target has neither ProgID nor CLSID.
	ErrNoTarget = errors.New("target requires a progid or clsid")
)

// BrowseMethod is the browse capability negotiated at connect.
type BrowseMethod int

// Browse methods.
const (
	MethodNone BrowseMethod = iota
	MethodAddressSpace
	MethodItemProperties
)

// String returns the method name.
func (m BrowseMethod) String() string {
	switch m {
	case MethodAddressSpace:
		return "SERVER_ADDRESS_SPACE"
	case MethodItemProperties:
		return "ITEM_PROPERTIES"
	default:
		return "NONE"
	}
}

// Config configures a Session.
type Config struct {
	// Dialer opens server handles. Required.
	Dialer opc.Dialer
	// MaxDepth bounds browse walks. Zero uses browse.DefaultMaxDepth.
	MaxDepth int
	// SessionID labels logs and stored snapshots. Defaults to a UUID.
	SessionID string
	Logger    *log.Logger
	Metrics   *metrics.Collector
}

// Session is one client session. The zero value is not usable; call New.
type Session struct {
	mu sync.Mutex

	id       string
	dialer   opc.Dialer
	logger   *log.Logger
	metrics  *metrics.Collector
	maxDepth int

	target   opc.Target
	srv      opc.Server
	method   BrowseMethod
	space    opc.AddressSpace
	browser  opc.ItemBrowser
	props    opc.ItemProperties
	vgroup   opc.Group
	resolver *resolve.Resolver
	engine   *read.Engine
	status   *types.ServerStatus
}

// New creates a disconnected Session.
func New(cfg Config) (*Session, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("session requires a dialer")
	}
	depth := cfg.MaxDepth
	if depth == 0 {
		depth = browse.DefaultMaxDepth
	}
	if depth < 0 {
		return nil, fmt.Errorf("invalid max depth %d: must be >= 0", depth)
	}
	id := cfg.SessionID
	if id == "" {
		id = uuid.New().String()
	}
	return &Session{
		id:       id,
		dialer:   cfg.Dialer,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		maxDepth: depth,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Meta returns the session identity for logs and storage.
func (s *Session) Meta() types.SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.SessionMeta{SessionID: s.id, Host: s.target.Host, Server: s.target.ServerName()}
}

// Metrics returns the collector given at construction, possibly nil.
func (s *Session) Metrics() *metrics.Collector { return s.metrics }

// MaxDepth returns the browse depth bound.
func (s *Session) MaxDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxDepth
}

// SetMaxDepth changes the browse depth bound. Zero restores
// browse.DefaultMaxDepth, as in Config. Negative depths are rejected.
func (s *Session) SetMaxDepth(depth int) error {
	if depth < 0 {
		return fmt.Errorf("invalid max depth %d: must be >= 0", depth)
	}
	if depth == 0 {
		depth = browse.DefaultMaxDepth
	}
	s.mu.Lock()
	s.maxDepth = depth
	s.mu.Unlock()
	return nil
}

// Connected reports whether a server handle is held.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}

// Method returns the negotiated browse method.
func (s *Session) Method() BrowseMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.method
}

// Connect drops any current connection, then dials target by CLSID and,
// failing that, by ProgID. An empty host means DefaultHost. The session is
// connected only if a browse capability was negotiated and the validation
// group was created.
func (s *Session) Connect(ctx context.Context, target opc.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disconnectLocked(ctx)

	if target.ProgID == "" && target.CLSID == "" {
		return ErrNoTarget
	}
	if target.Host == "" {
		target.Host = DefaultHost
	}

	srv, err := s.dial(ctx, target)
	if err != nil {
		return err
	}
	if err := s.negotiate(ctx, srv); err != nil {
		_ = srv.Close()
		return err
	}

	name := opc.NewGroupName()
	vgroup, err := srv.AddGroup(ctx, opc.GroupSpec{Name: name, Active: false})
	if err != nil {
		_ = srv.Close()
		s.clearLocked()
		return fmt.Errorf("add validation group: %w", err)
	}

	var lookup resolve.Lookup
	if s.space != nil {
		lookup = s.space
	}
	logger := s.logger.With(map[string]any{"host": target.Host, "server": target.ServerName()})
	resolver, err := resolve.New(resolve.Config{Items: vgroup, Lookup: lookup, Logger: logger, Metrics: s.metrics})
	if err != nil {
		_ = srv.Close()
		s.clearLocked()
		return err
	}
	engine, err := read.New(read.Config{Resolver: resolver, Logger: logger, Metrics: s.metrics})
	if err != nil {
		_ = srv.Close()
		s.clearLocked()
		return err
	}

	s.srv, s.target, s.vgroup = srv, target, vgroup
	s.resolver, s.engine = resolver, engine
	s.logger.Info("connected", map[string]any{
		"host":   target.Host,
		"server": target.ServerName(),
		"method": s.method.String(),
		"group":  name,
	})
	return nil
}

func (s *Session) dial(ctx context.Context, target opc.Target) (opc.Server, error) {
	var errs []error
	if target.CLSID != "" {
		srv, err := s.dialer.Dial(ctx, target.Host, "", target.CLSID)
		if err == nil {
			return srv, nil
		}
		s.logger.Debug("connect by clsid failed", map[string]any{"clsid": target.CLSID, "error": err.Error()})
		errs = append(errs, fmt.Errorf("clsid %s: %w", target.CLSID, err))
	}
	if target.ProgID != "" {
		srv, err := s.dialer.Dial(ctx, target.Host, target.ProgID, "")
		if err == nil {
			return srv, nil
		}
		s.logger.Debug("connect by progid failed", map[string]any{"progid": target.ProgID, "error": err.Error()})
		errs = append(errs, fmt.Errorf("progid %s: %w", target.ProgID, err))
	}
	return nil, fmt.Errorf("connect to %s: %w", target.Host, errors.Join(errs...))
}

// negotiate prefers the address space and falls back to the flat browser.
// Item properties are queried independently.
func (s *Session) negotiate(ctx context.Context, srv opc.Server) error {
	if props, err := srv.ItemProperties(ctx); err == nil {
		s.props = props
	}
	space, err := srv.AddressSpace(ctx)
	if err == nil {
		s.space, s.method = space, MethodAddressSpace
		return nil
	}
	s.logger.Debug("address space unavailable", map[string]any{"error": err.Error()})
	if b, err := srv.ItemBrowser(ctx); err == nil {
		s.browser, s.method = b, MethodItemProperties
		return nil
	}
	s.clearLocked()
	return ErrNoBrowser
}

// Disconnect removes the validation group and releases the server. The
// resolution cache and learned rules are dropped. Safe to call when not
// connected.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked(ctx)
}

// Close disconnects with a background context. It implements io.Closer.
func (s *Session) Close() error {
	s.Disconnect(context.Background())
	return nil
}

func (s *Session) disconnectLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	if s.vgroup != nil {
		if err := s.srv.RemoveGroup(ctx, s.vgroup.Handle()); err != nil {
			s.metrics.IncCleanupFailure()
			s.logger.Warn("remove validation group failed", map[string]any{"error": err.Error()})
		}
	}
	if err := s.srv.Close(); err != nil {
		s.logger.Warn("close server failed", map[string]any{"error": err.Error()})
	}
	s.logger.Info("disconnected", map[string]any{"server": s.target.ServerName()})
	s.clearLocked()
}

func (s *Session) clearLocked() {
	if s.resolver != nil {
		s.resolver.Reset()
	}
	s.srv, s.vgroup = nil, nil
	s.space, s.browser, s.props = nil, nil, nil
	s.method = MethodNone
	s.resolver, s.engine = nil, nil
	s.status = nil
	s.target = opc.Target{}
}

func (s *Session) requireLocked() error {
	if s.srv == nil {
		return ErrNotConnected
	}
	return nil
}
