package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pithecene-io/opcda/log"
	"github.com/pithecene-io/opcda/metrics"
	"github.com/pithecene-io/opcda/opc"
	"github.com/pithecene-io/opcda/types"
)

// ErrClosed is returned by calls on a client whose connection is gone.
var ErrClosed = errors.New("bridge connection closed")

// Client is a connected server handle on the far side of a bridge
// connection. Calls are serialized: one request is in flight at a time.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	dec     *FrameDecoder
	nextID  uint64
	broken  error
	timeout time.Duration
	logger  *log.Logger
	metrics *metrics.Collector
}

var _ opc.Server = (*Client)(nil)

// ClientConfig configures a Client.
type ClientConfig struct {
	// CallTimeout bounds each call when the caller's context has no
	// deadline. Zero means unbounded.
	CallTimeout time.Duration
	Logger      *log.Logger
	Metrics     *metrics.Collector
}

// NewClient wraps an established connection. The caller must send
// Connect before using server operations.
func NewClient(conn net.Conn, cfg ClientConfig) *Client {
	return &Client{
		conn:    conn,
		dec:     NewFrameDecoder(conn),
		timeout: cfg.CallTimeout,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Connect asks the bridge to open a server instance. Exactly one of progID
// or clsid should be set.
func (c *Client) Connect(ctx context.Context, host, progID, clsid string) error {
	_, err := c.call(ctx, &Request{Op: OpConnect, Host: host, ProgID: progID, CLSID: clsid})
	return err
}

// call sends one request and waits for its response. A fatal frame error
// or transport failure breaks the client; later calls fail with ErrClosed.
func (c *Client) call(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		if errors.Is(c.broken, ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%w: %v", ErrClosed, c.broken)
	}

	c.nextID++
	req.Type = RequestType
	req.Version = ProtocolVersion
	req.ID = c.nextID

	deadline, ok := ctx.Deadline()
	if !ok && c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, c.breakLocked(fmt.Errorf("set deadline: %w", err))
	}
	// Cancellation without a deadline unblocks I/O by expiring it.
	expired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(expired)
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer func() {
		if !stop() {
			<-expired
		}
	}()

	if err := WriteFrame(c.conn, req); err != nil {
		return nil, c.failLocked(ctx, req.Op, err)
	}

	for {
		payload, err := c.dec.ReadFrame()
		if err != nil {
			return nil, c.failLocked(ctx, req.Op, err)
		}
		resp, err := DecodeResponse(payload)
		if err != nil {
			c.metrics.IncBridgeDecodeErrors()
			c.logger.Warn("bridge response decode failed", map[string]any{
				"op":    string(req.Op),
				"error": err.Error(),
			})
			return nil, fmt.Errorf("%s: %w", req.Op, err)
		}
		if resp.ID != req.ID && resp.ID != 0 {
			// A response to an earlier call abandoned by its caller.
			continue
		}
		if resp.Error != nil && resp.Error.Code != "" {
			return resp, fromWire(*resp.Error)
		}
		if !resp.OK {
			return resp, &RemoteError{Code: opc.Code(opc.ErrFail), Message: "call failed without error"}
		}
		return resp, nil
	}
}

// failLocked maps a transport error. Errors caused by the caller's context
// are reported as the context error; the connection is broken either way
// because a partial exchange desynchronizes the stream.
func (c *Client) failLocked(ctx context.Context, op Op, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.breakLocked(ctxErr)
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.breakLocked(err)
		return fmt.Errorf("%s: %w", op, context.DeadlineExceeded)
	}
	return fmt.Errorf("%s: %w", op, c.breakLocked(err))
}

func (c *Client) breakLocked(err error) error {
	if c.broken == nil {
		c.broken = err
		_ = c.conn.Close()
		c.logger.Warn("bridge connection broken", map[string]any{
			"error": err.Error(),
			"fatal": IsFatalFrameError(err),
		})
	}
	return err
}

// Close closes the connection. The bridge closes the server instance when
// it sees the connection end.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return nil
	}
	c.broken = ErrClosed
	return c.conn.Close()
}

// capability asks whether the server offers the optional interface behind op.
func (c *Client) capability(ctx context.Context, op Op) error {
	_, err := c.call(ctx, &Request{Op: op})
	return err
}

// AddressSpace implements opc.Server.
func (c *Client) AddressSpace(ctx context.Context) (opc.AddressSpace, error) {
	if err := c.capability(ctx, OpAddressSpace); err != nil {
		return nil, err
	}
	return remoteSpace{c: c}, nil
}

// ItemBrowser implements opc.Server.
func (c *Client) ItemBrowser(ctx context.Context) (opc.ItemBrowser, error) {
	if err := c.capability(ctx, OpItemBrowser); err != nil {
		return nil, err
	}
	return remoteBrowser{c: c}, nil
}

// ItemProperties implements opc.Server.
func (c *Client) ItemProperties(ctx context.Context) (opc.ItemProperties, error) {
	if err := c.capability(ctx, OpItemProperties); err != nil {
		return nil, err
	}
	return remoteProperties{c: c}, nil
}

// AddGroup implements opc.Server.
func (c *Client) AddGroup(ctx context.Context, spec opc.GroupSpec) (opc.Group, error) {
	resp, err := c.call(ctx, &Request{Op: OpAddGroup, GroupSpec: &spec})
	if err != nil {
		return nil, err
	}
	name := resp.GroupName
	if name == "" {
		name = spec.Name
	}
	return &remoteGroup{c: c, handle: resp.Group, name: name}, nil
}

// RemoveGroup implements opc.Server.
func (c *Client) RemoveGroup(ctx context.Context, handle uint32) error {
	_, err := c.call(ctx, &Request{Op: OpRemoveGroup, Group: handle})
	return err
}

// Status implements opc.Server.
func (c *Client) Status(ctx context.Context) (types.ServerStatus, error) {
	resp, err := c.call(ctx, &Request{Op: OpStatus})
	if err != nil {
		return types.ServerStatus{}, err
	}
	if resp.Status == nil {
		return types.ServerStatus{}, &RemoteError{Code: opc.Code(opc.ErrFail), Message: "status missing from response"}
	}
	return *resp.Status, nil
}

type remoteSpace struct{ c *Client }

func (s remoteSpace) ChangePosition(ctx context.Context, dir opc.Direction, name string) error {
	_, err := s.c.call(ctx, &Request{Op: OpChangePosition, Direction: dir, Name: name})
	return err
}

func (s remoteSpace) BrowseNames(ctx context.Context, kind opc.BrowseKind) ([]string, error) {
	resp, err := s.c.call(ctx, &Request{Op: OpBrowseNames, Kind: kind})
	if err != nil {
		return nil, err
	}
	return resp.Names, nil
}

func (s remoteSpace) ItemID(ctx context.Context, path string) (string, error) {
	resp, err := s.c.call(ctx, &Request{Op: OpItemID, Name: path})
	if err != nil {
		return "", err
	}
	return resp.ItemID, nil
}

type remoteBrowser struct{ c *Client }

func (b remoteBrowser) BrowseItem(ctx context.Context, itemID string, kind opc.BrowseKind) ([]string, error) {
	resp, err := b.c.call(ctx, &Request{Op: OpBrowseItem, ItemID: itemID, Kind: kind})
	if err != nil {
		return nil, err
	}
	return resp.Names, nil
}

type remoteProperties struct{ c *Client }

func (p remoteProperties) GetProperties(ctx context.Context, itemID string, ids []uint32) ([]any, []error, error) {
	resp, err := p.c.call(ctx, &Request{Op: OpGetProperties, ItemID: itemID, PropertyIDs: ids})
	if err != nil {
		return nil, nil, err
	}
	values := make([]any, len(ids))
	copy(values, resp.Values)
	return values, fromWireAll(resp.ItemErrors, len(ids)), nil
}

type remoteGroup struct {
	c      *Client
	handle uint32
	name   string
}

func (g *remoteGroup) Handle() uint32 { return g.handle }
func (g *remoteGroup) Name() string   { return g.name }

func (g *remoteGroup) ValidateItems(ctx context.Context, defs []opc.ItemDef) ([]opc.ItemResult, []error, error) {
	return g.items(ctx, OpValidateItems, defs)
}

func (g *remoteGroup) AddItems(ctx context.Context, defs []opc.ItemDef) ([]opc.ItemResult, []error, error) {
	return g.items(ctx, OpAddItems, defs)
}

func (g *remoteGroup) items(ctx context.Context, op Op, defs []opc.ItemDef) ([]opc.ItemResult, []error, error) {
	resp, err := g.c.call(ctx, &Request{Op: op, Group: g.handle, Items: defs})
	if err != nil {
		return nil, nil, err
	}
	results := make([]opc.ItemResult, len(defs))
	copy(results, resp.Results)
	return results, fromWireAll(resp.ItemErrors, len(defs)), nil
}

func (g *remoteGroup) RemoveItems(ctx context.Context, handles []uint32) ([]error, error) {
	resp, err := g.c.call(ctx, &Request{Op: OpRemoveItems, Group: g.handle, Handles: handles})
	if err != nil {
		return nil, err
	}
	return fromWireAll(resp.ItemErrors, len(handles)), nil
}

func (g *remoteGroup) Read(ctx context.Context, source opc.DataSource, handles []uint32) ([]opc.ItemState, []error, error) {
	resp, err := g.c.call(ctx, &Request{Op: OpRead, Group: g.handle, Handles: handles, Source: source})
	if err != nil {
		return nil, nil, err
	}
	states := make([]opc.ItemState, len(handles))
	copy(states, resp.States)
	return states, fromWireAll(resp.ItemErrors, len(handles)), nil
}

// DialConfig configures Dialer.
type DialConfig struct {
	// Address is the bridge's host:port.
	Address string
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration
	// Retries is the number of reconnect attempts after the first.
	Retries     uint64
	CallTimeout time.Duration
	Logger      *log.Logger
	Metrics     *metrics.Collector
}

// Dialer opens one bridge connection per server handle.
type Dialer struct {
	cfg DialConfig
}

var _ opc.Dialer = (*Dialer)(nil)

// NewDialer creates a Dialer.
func NewDialer(cfg DialConfig) (*Dialer, error) {
	if cfg.Address == "" {
		return nil, errors.New("bridge address is required")
	}
	return &Dialer{cfg: cfg}, nil
}

// Dial connects to the bridge with exponential backoff and asks it to open
// the named server. A server-side refusal is not retried.
func (d *Dialer) Dial(ctx context.Context, host, progID, clsid string) (opc.Server, error) {
	conn, err := d.dialConn(ctx)
	if err != nil {
		return nil, err
	}
	client := NewClient(conn, ClientConfig{
		CallTimeout: d.cfg.CallTimeout,
		Logger:      d.cfg.Logger,
		Metrics:     d.cfg.Metrics,
	})
	if err := client.Connect(ctx, host, progID, clsid); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (d *Dialer) dialConn(ctx context.Context) (net.Conn, error) {
	var dialer net.Dialer
	dialer.Timeout = d.cfg.DialTimeout

	attempt := 0
	var conn net.Conn
	operation := func() error {
		attempt++
		c, err := dialer.DialContext(ctx, "tcp", d.cfg.Address)
		if err != nil {
			d.cfg.Logger.Debug("bridge dial failed", map[string]any{
				"address": d.cfg.Address,
				"attempt": attempt,
				"error":   err.Error(),
			})
			return err
		}
		conn = c
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(policy, d.cfg.Retries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, fmt.Errorf("dial bridge %s after %d attempts: %w", d.cfg.Address, attempt, err)
	}
	return conn, nil
}
