package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pithecene-io/opcda/log"
	"github.com/pithecene-io/opcda/metrics"
	"github.com/pithecene-io/opcda/opc"
)

// ServerConfig configures a bridge Server.
type ServerConfig struct {
	// Dialer opens the server instance a connection asks for.
	Dialer  opc.Dialer
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Server exposes server instances over bridge connections. Each connection
// owns at most one instance, closed when the connection ends.
type Server struct {
	cfg ServerConfig

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer creates a bridge Server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("dialer is required")
	}
	return &Server{cfg: cfg, conns: make(map[net.Conn]struct{})}, nil
}

// Serve accepts connections until ctx is done or the listener fails. It
// returns after every connection has been closed and drained. A shutdown
// through ctx returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	s.cfg.Logger.Info("bridge serving", map[string]any{"address": ln.Addr().String()})

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				acceptErr = fmt.Errorf("accept: %w", err)
			}
			break
		}
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.ServeConn(ctx, conn)
		}()
	}

	s.closeConns()
	s.wg.Wait()
	s.cfg.Logger.Info("bridge stopped", nil)
	return acceptErr
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// ServeConn answers requests on one connection until it ends.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	st := &connState{dialer: s.cfg.Dialer, groups: make(map[uint32]opc.Group)}
	defer st.close()
	defer conn.Close()

	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	logger := s.cfg.Logger.With(map[string]any{"remote": remote})

	dec := NewFrameDecoder(conn)
	for {
		payload, err := dec.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("bridge connection ended", map[string]any{
					"error": err.Error(),
					"fatal": IsFatalFrameError(err),
				})
			}
			return
		}

		var resp *Response
		req, err := DecodeRequest(payload)
		switch {
		case err != nil:
			s.cfg.Metrics.IncBridgeDecodeErrors()
			logger.Warn("bridge request decode failed", map[string]any{"error": err.Error()})
			resp = errorResponse(0, fmt.Errorf("%w: %v", opc.ErrInvalidArg, err))
		case req.Type != RequestType:
			resp = errorResponse(req.ID, fmt.Errorf("%w: unexpected frame type %q", opc.ErrInvalidArg, req.Type))
		case req.Version != ProtocolVersion:
			resp = errorResponse(req.ID, fmt.Errorf("%w: protocol version %q not supported", opc.ErrInvalidArg, req.Version))
		default:
			resp = st.handle(ctx, req)
		}

		if err := WriteFrame(conn, resp); err != nil {
			logger.Debug("bridge write failed", map[string]any{"error": err.Error()})
			return
		}
	}
}

func errorResponse(id uint64, err error) *Response {
	w := toWire(err)
	return &Response{Type: ResponseType, ID: id, Error: &w}
}

// connState is the server instance and handles owned by one connection.
type connState struct {
	dialer opc.Dialer
	srv    opc.Server
	space  opc.AddressSpace
	browse opc.ItemBrowser
	props  opc.ItemProperties
	groups map[uint32]opc.Group
}

var errNotOpen = fmt.Errorf("%w: no server open on this connection", opc.ErrFail)

func (st *connState) close() {
	if st.srv != nil {
		_ = st.srv.Close()
	}
	st.srv = nil
	st.space, st.browse, st.props = nil, nil, nil
	clear(st.groups)
}

func (st *connState) handle(ctx context.Context, req *Request) *Response {
	resp := &Response{Type: ResponseType, ID: req.ID}
	err := st.dispatch(ctx, req, resp)
	if err != nil {
		w := toWire(err)
		resp.Error = &w
		return resp
	}
	resp.OK = true
	return resp
}

func (st *connState) dispatch(ctx context.Context, req *Request, resp *Response) error {
	if req.Op == OpConnect {
		st.close()
		srv, err := st.dialer.Dial(ctx, req.Host, req.ProgID, req.CLSID)
		if err != nil {
			return err
		}
		st.srv = srv
		return nil
	}
	if st.srv == nil {
		return errNotOpen
	}

	switch req.Op {
	case OpAddressSpace:
		_, err := st.addressSpace(ctx)
		return err
	case OpItemBrowser:
		_, err := st.itemBrowser(ctx)
		return err
	case OpItemProperties:
		_, err := st.itemProperties(ctx)
		return err

	case OpChangePosition:
		space, err := st.addressSpace(ctx)
		if err != nil {
			return err
		}
		return space.ChangePosition(ctx, req.Direction, req.Name)
	case OpBrowseNames:
		space, err := st.addressSpace(ctx)
		if err != nil {
			return err
		}
		resp.Names, err = space.BrowseNames(ctx, req.Kind)
		return err
	case OpItemID:
		space, err := st.addressSpace(ctx)
		if err != nil {
			return err
		}
		resp.ItemID, err = space.ItemID(ctx, req.Name)
		return err
	case OpBrowseItem:
		browser, err := st.itemBrowser(ctx)
		if err != nil {
			return err
		}
		resp.Names, err = browser.BrowseItem(ctx, req.ItemID, req.Kind)
		return err
	case OpGetProperties:
		props, err := st.itemProperties(ctx)
		if err != nil {
			return err
		}
		values, errs, err := props.GetProperties(ctx, req.ItemID, req.PropertyIDs)
		if err != nil {
			return err
		}
		resp.Values, resp.ItemErrors = values, toWireAll(errs)
		return nil

	case OpAddGroup:
		if req.GroupSpec == nil {
			return fmt.Errorf("%w: group spec is required", opc.ErrInvalidArg)
		}
		g, err := st.srv.AddGroup(ctx, *req.GroupSpec)
		if err != nil {
			return err
		}
		st.groups[g.Handle()] = g
		resp.Group, resp.GroupName = g.Handle(), g.Name()
		return nil
	case OpRemoveGroup:
		if err := st.srv.RemoveGroup(ctx, req.Group); err != nil {
			return err
		}
		delete(st.groups, req.Group)
		return nil

	case OpValidateItems, OpAddItems:
		g, err := st.group(req.Group)
		if err != nil {
			return err
		}
		fn := g.AddItems
		if req.Op == OpValidateItems {
			fn = g.ValidateItems
		}
		results, errs, err := fn(ctx, req.Items)
		if err != nil {
			return err
		}
		resp.Results, resp.ItemErrors = results, toWireAll(errs)
		return nil
	case OpRemoveItems:
		g, err := st.group(req.Group)
		if err != nil {
			return err
		}
		errs, err := g.RemoveItems(ctx, req.Handles)
		if err != nil {
			return err
		}
		resp.ItemErrors = toWireAll(errs)
		return nil
	case OpRead:
		g, err := st.group(req.Group)
		if err != nil {
			return err
		}
		states, errs, err := g.Read(ctx, req.Source, req.Handles)
		if err != nil {
			return err
		}
		resp.States, resp.ItemErrors = states, toWireAll(errs)
		return nil

	case OpStatus:
		status, err := st.srv.Status(ctx)
		if err != nil {
			return err
		}
		resp.Status = &status
		return nil
	}
	return fmt.Errorf("%w: unknown op %q", opc.ErrNotImpl, req.Op)
}

func (st *connState) group(handle uint32) (opc.Group, error) {
	g, ok := st.groups[handle]
	if !ok {
		return nil, fmt.Errorf("%w: group %d", opc.ErrInvalidHandle, handle)
	}
	return g, nil
}

func (st *connState) addressSpace(ctx context.Context) (opc.AddressSpace, error) {
	if st.space == nil {
		space, err := st.srv.AddressSpace(ctx)
		if err != nil {
			return nil, err
		}
		st.space = space
	}
	return st.space, nil
}

func (st *connState) itemBrowser(ctx context.Context) (opc.ItemBrowser, error) {
	if st.browse == nil {
		browser, err := st.srv.ItemBrowser(ctx)
		if err != nil {
			return nil, err
		}
		st.browse = browser
	}
	return st.browse, nil
}

func (st *connState) itemProperties(ctx context.Context) (opc.ItemProperties, error) {
	if st.props == nil {
		props, err := st.srv.ItemProperties(ctx)
		if err != nil {
			return nil, err
		}
		st.props = props
	}
	return st.props, nil
}
