package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"slices"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/pithecene-io/opcda/metrics"
	"github.com/pithecene-io/opcda/opc"
	"github.com/pithecene-io/opcda/session"
	"github.com/pithecene-io/opcda/sim"
	"github.com/pithecene-io/opcda/types"
)

const (
	testProgID = "Sim.Plant.1"
	testCLSID  = "{6E6170F0-FF2D-11D2-8087-00105AA8F840}"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startBridge serves the plant namespace on a loopback listener until the
// test ends.
func startBridge(t *testing.T) (string, *sim.Server) {
	t.Helper()
	ns, err := sim.Load("../sim/testdata/plant.yaml")
	if err != nil {
		t.Fatalf("sim.Load() error = %v", err)
	}
	plant := sim.New(ns)

	srv, err := NewServer(ServerConfig{Dialer: sim.Dialer(plant, testProgID, testCLSID)})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	})
	return ln.Addr().String(), plant
}

func dialPlant(t *testing.T, addr string) *Client {
	t.Helper()
	d, err := NewDialer(DialConfig{Address: addr, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewDialer() error = %v", err)
	}
	s, err := d.Dial(t.Context(), "", testProgID, "")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	c := s.(*Client)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBridge_AddressSpace(t *testing.T) {
	addr, _ := startBridge(t)
	c := dialPlant(t, addr)
	ctx := t.Context()

	space, err := c.AddressSpace(ctx)
	if err != nil {
		t.Fatalf("AddressSpace() error = %v", err)
	}
	if err := space.ChangePosition(ctx, opc.BrowseTo, "AREA1"); err != nil {
		t.Fatalf("ChangePosition() error = %v", err)
	}
	leaves, err := space.BrowseNames(ctx, opc.Leaf)
	if err != nil {
		t.Fatalf("BrowseNames() error = %v", err)
	}
	slices.Sort(leaves)
	if !slices.Equal(leaves, []string{"Tag1", "Tag2"}) {
		t.Errorf("leaves = %q", leaves)
	}
	branches, err := space.BrowseNames(ctx, opc.Branch)
	if err != nil {
		t.Fatalf("BrowseNames() error = %v", err)
	}
	if !slices.Equal(branches, []string{"Pumps"}) {
		t.Errorf("branches = %q", branches)
	}

	if _, err := space.ItemID(ctx, "AREA1.Tag1"); !errors.Is(err, opc.ErrNotImpl) {
		t.Errorf("ItemID() error = %v, want ErrNotImpl", err)
	}
}

func TestBridge_ItemBrowserAndProperties(t *testing.T) {
	addr, _ := startBridge(t)
	c := dialPlant(t, addr)
	ctx := t.Context()

	browser, err := c.ItemBrowser(ctx)
	if err != nil {
		t.Fatalf("ItemBrowser() error = %v", err)
	}
	leaves, err := browser.BrowseItem(ctx, "AREA2", opc.Leaf)
	if err != nil {
		t.Fatalf("BrowseItem() error = %v", err)
	}
	if len(leaves) != 2 {
		t.Errorf("BrowseItem() = %q, want 2 leaves", leaves)
	}

	props, err := c.ItemProperties(ctx)
	if err != nil {
		t.Fatalf("ItemProperties() error = %v", err)
	}
	values, errs, err := props.GetProperties(ctx, "Pumps.P101", []uint32{opc.PropDataType, 99, opc.PropAccessRights})
	if err != nil {
		t.Fatalf("GetProperties() error = %v", err)
	}
	if len(values) != 3 || len(errs) != 3 {
		t.Fatalf("GetProperties() = %v, %v", values, errs)
	}
	if errs[0] != nil || !errors.Is(errs[1], opc.ErrInvalidPID) || errs[2] != nil {
		t.Errorf("property errors = %v", errs)
	}
	rw := types.AccessReadable | types.AccessWritable
	if v, ok := values[2].(int64); !ok || v != int64(rw) {
		t.Errorf("rights = %v (%T), want %d", values[2], values[2], rw)
	}
}

func TestBridge_GroupCycle(t *testing.T) {
	addr, plant := startBridge(t)
	c := dialPlant(t, addr)
	ctx := t.Context()

	g, err := c.AddGroup(ctx, opc.GroupSpec{Name: "G1"})
	if err != nil {
		t.Fatalf("AddGroup() error = %v", err)
	}
	if g.Name() != "G1" || g.Handle() == 0 {
		t.Errorf("group = %q/%d", g.Name(), g.Handle())
	}
	if _, err := c.AddGroup(ctx, opc.GroupSpec{Name: "G1"}); !errors.Is(err, opc.ErrDuplicateName) {
		t.Errorf("duplicate AddGroup() error = %v", err)
	}

	defs := []opc.ItemDef{{ItemID: "Tag1", ClientHandle: 1}, {ItemID: "nope", ClientHandle: 2}}
	if _, verrs, err := g.ValidateItems(ctx, defs); err != nil || verrs[0] != nil || !errors.Is(verrs[1], opc.ErrUnknownItemID) {
		t.Errorf("ValidateItems() = %v, %v", verrs, err)
	}
	results, errs, err := g.AddItems(ctx, defs)
	if err != nil {
		t.Fatalf("AddItems() error = %v", err)
	}
	if errs[0] != nil || !errors.Is(errs[1], opc.ErrUnknownItemID) {
		t.Fatalf("AddItems errs = %v", errs)
	}
	if results[0].CanonicalType != types.VTR8 {
		t.Errorf("CanonicalType = %v, want VT_R8", results[0].CanonicalType)
	}

	states, rerrs, err := g.Read(ctx, opc.SourceCache, []uint32{results[0].ServerHandle})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if rerrs[0] != nil || states[0].Value != 1.5 || states[0].Quality != types.QualityGood {
		t.Errorf("Read() = %+v, %v", states[0], rerrs[0])
	}

	if _, err := g.RemoveItems(ctx, []uint32{results[0].ServerHandle}); err != nil {
		t.Fatalf("RemoveItems() error = %v", err)
	}
	if err := c.RemoveGroup(ctx, g.Handle()); err != nil {
		t.Fatalf("RemoveGroup() error = %v", err)
	}
	if plant.Groups() != 0 {
		t.Errorf("Groups() = %d after RemoveGroup", plant.Groups())
	}

	// The removed handle is gone on the bridge side too.
	if _, _, err := g.Read(ctx, opc.SourceCache, []uint32{1}); !errors.Is(err, opc.ErrInvalidHandle) {
		t.Errorf("Read() on removed group error = %v, want ErrInvalidHandle", err)
	}
}

func TestBridge_StatusAndFaults(t *testing.T) {
	addr, plant := startBridge(t)
	c := dialPlant(t, addr)
	ctx := t.Context()

	status, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Vendor != "Simulated Plant" || status.Version() != "2.1.7" {
		t.Errorf("Status() = %+v", status)
	}

	plant.Fail(sim.OpStatus, opc.ErrNoInterface)
	if _, err := c.Status(ctx); !errors.Is(err, opc.ErrNoInterface) {
		t.Errorf("Status() error = %v, want ErrNoInterface", err)
	}
	plant.Fail(sim.OpStatus, nil)

	// A remote error leaves the connection usable.
	if _, err := c.Status(ctx); err != nil {
		t.Errorf("Status() after fault error = %v", err)
	}
}

func TestBridge_DialUnknownServer(t *testing.T) {
	addr, _ := startBridge(t)
	d, err := NewDialer(DialConfig{Address: addr})
	if err != nil {
		t.Fatalf("NewDialer() error = %v", err)
	}
	if _, err := d.Dial(t.Context(), "", "Other.Server", ""); !errors.Is(err, opc.ErrFail) {
		t.Errorf("Dial() error = %v, want ErrFail", err)
	}
	s, err := d.Dial(t.Context(), "", "", testCLSID)
	if err != nil {
		t.Fatalf("Dial() by CLSID error = %v", err)
	}
	_ = s.Close()
}

func TestBridge_SessionEndToEnd(t *testing.T) {
	addr, plant := startBridge(t)
	d, err := NewDialer(DialConfig{Address: addr})
	if err != nil {
		t.Fatalf("NewDialer() error = %v", err)
	}
	m := metrics.NewCollector("", "", "test", "")
	s, err := session.New(session.Config{Dialer: d, SessionID: "test", Metrics: m})
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	ctx := t.Context()
	if err := s.Connect(ctx, opc.Target{ProgID: testProgID}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.Close()

	if s.Method() != session.MethodAddressSpace {
		t.Errorf("Method() = %v", s.Method())
	}
	tags, err := s.BrowseAllTags(ctx, "")
	if err != nil {
		t.Fatalf("BrowseAllTags() error = %v", err)
	}
	if len(tags) != 6 {
		t.Errorf("BrowseAllTags() = %q, want 6 tags", tags)
	}

	res, err := s.ReadTags(ctx, []string{"AREA1.Tag1", "AREA2.Level", "AREA1.Tag2"})
	if err != nil {
		t.Fatalf("ReadTags() error = %v", err)
	}
	if res.Status != types.StatusOK {
		t.Errorf("Status = %v, want ok (%v)", res.Status, res.Errors())
	}
	if res.Items[0].Record.Value != 1.5 || res.Items[1].Record.Value != 73.25 {
		t.Errorf("records = %+v", res.Records())
	}
	if v, ok := res.Items[2].Record.Value.(int64); !ok || v != 42 {
		t.Errorf("Tag2 value = %v (%T), want int64 42", res.Items[2].Record.Value, res.Items[2].Record.Value)
	}
	// Only the validation group survives the batch.
	if plant.Groups() != 1 {
		t.Errorf("Groups() = %d, want 1", plant.Groups())
	}
}

func TestServer_RejectsBadRequests(t *testing.T) {
	addr, _ := startBridge(t)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	dec := NewFrameDecoder(conn)

	roundTrip := func(t *testing.T, v any) *Response {
		t.Helper()
		if err := WriteFrame(conn, v); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
		payload, err := dec.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() error = %v", err)
		}
		resp, err := DecodeResponse(payload)
		if err != nil {
			t.Fatalf("DecodeResponse() error = %v", err)
		}
		return resp
	}

	tests := []struct {
		name string
		req  any
		id   uint64
		code string
	}{
		{"undecodable", map[string]any{"type": RequestType, "id": "x"}, 0, "E_INVALIDARG"},
		{"wrong version", &Request{Type: RequestType, Version: "0", ID: 1, Op: OpStatus}, 1, "E_INVALIDARG"},
		{"not connected", &Request{Type: RequestType, Version: ProtocolVersion, ID: 2, Op: OpStatus}, 2, "E_FAIL"},
		{"connect", &Request{Type: RequestType, Version: ProtocolVersion, ID: 3, Op: OpConnect, ProgID: testProgID}, 3, ""},
		{"unimplemented", &Request{Type: RequestType, Version: ProtocolVersion, ID: 4, Op: "subscribe"}, 4, "E_NOTIMPL"},
		{"missing group", &Request{Type: RequestType, Version: ProtocolVersion, ID: 5, Op: OpAddItems, Group: 9}, 5, "OPC_E_INVALIDHANDLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := roundTrip(t, tt.req)
			if resp.ID != tt.id {
				t.Errorf("ID = %d, want %d", resp.ID, tt.id)
			}
			code := ""
			if resp.Error != nil {
				code = resp.Error.Code
			}
			if code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
			if resp.OK != (tt.code == "") {
				t.Errorf("OK = %v", resp.OK)
			}
		})
	}
}

// pipeClient returns a client on one end of an in-memory pipe and the
// peer's end.
func pipeClient(t *testing.T, m *metrics.Collector) (*Client, net.Conn) {
	t.Helper()
	local, peer := net.Pipe()
	c := NewClient(local, ClientConfig{Metrics: m})
	t.Cleanup(func() {
		_ = c.Close()
		_ = peer.Close()
	})
	return c, peer
}

func TestClient_DeadlineBreaksConnection(t *testing.T) {
	c, peer := pipeClient(t, nil)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		_, _ = io.Copy(io.Discard, peer)
	}()

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Status(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Status() error = %v, want DeadlineExceeded", err)
	}
	if _, err := c.Status(t.Context()); !errors.Is(err, ErrClosed) {
		t.Errorf("Status() after break error = %v, want ErrClosed", err)
	}
	<-drained
}

func TestClient_Cancellation(t *testing.T) {
	c, peer := pipeClient(t, nil)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		_, _ = io.Copy(io.Discard, peer)
	}()

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(20*time.Millisecond, cancel)
	if _, err := c.Status(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Status() error = %v, want Canceled", err)
	}
	<-drained
}

func TestClient_DecodeErrorIsNotFatal(t *testing.T) {
	m := metrics.NewCollector("", "", "test", "")
	c, peer := pipeClient(t, m)

	served := make(chan error, 1)
	go func() {
		dec := NewFrameDecoder(peer)
		if _, err := dec.ReadFrame(); err != nil {
			served <- err
			return
		}
		if _, err := peer.Write(encodeFrame([]byte{0xc1})); err != nil {
			served <- err
			return
		}
		payload, err := dec.ReadFrame()
		if err != nil {
			served <- err
			return
		}
		req, err := DecodeRequest(payload)
		if err != nil {
			served <- err
			return
		}
		status := types.ServerStatus{Vendor: "pipe", State: types.ServerRunning}
		served <- WriteFrame(peer, &Response{Type: ResponseType, ID: req.ID, OK: true, Status: &status})
	}()

	_, err := c.Status(t.Context())
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorDecode {
		t.Fatalf("first Status() error = %v, want decode FrameError", err)
	}
	status, err := c.Status(t.Context())
	if err != nil {
		t.Fatalf("second Status() error = %v", err)
	}
	if status.Vendor != "pipe" {
		t.Errorf("Vendor = %q", status.Vendor)
	}
	if err := <-served; err != nil {
		t.Fatalf("peer error = %v", err)
	}
	if got := m.Snapshot().BridgeDecodeErrors; got != 1 {
		t.Errorf("BridgeDecodeErrors = %d, want 1", got)
	}
}

func TestClient_FatalFrameBreaksConnection(t *testing.T) {
	c, peer := pipeClient(t, nil)
	go func() {
		dec := NewFrameDecoder(peer)
		if _, err := dec.ReadFrame(); err != nil {
			return
		}
		// Length prefix promising more than is sent.
		_, _ = peer.Write([]byte{0, 0, 0, 9, 1})
		_ = peer.Close()
	}()

	_, err := c.Status(t.Context())
	if !IsFatalFrameError(err) {
		t.Fatalf("Status() error = %v, want fatal frame error", err)
	}
	if _, err := c.Status(t.Context()); !errors.Is(err, ErrClosed) {
		t.Errorf("Status() after fatal error = %v, want ErrClosed", err)
	}
}

func TestDialer_RetriesExhausted(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	d, err := NewDialer(DialConfig{Address: addr, DialTimeout: 100 * time.Millisecond, Retries: 2})
	if err != nil {
		t.Fatalf("NewDialer() error = %v", err)
	}
	if _, err := d.Dial(t.Context(), "", testProgID, ""); err == nil {
		t.Fatal("Dial() to closed port should fail")
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := NewDialer(DialConfig{}); err == nil {
		t.Error("NewDialer() without address should fail")
	}
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("NewServer() without dialer should fail")
	}
}
