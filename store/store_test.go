package store

import (
	"errors"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/opcda/metrics"
	"github.com/pithecene-io/opcda/read"
	"github.com/pithecene-io/opcda/resolve"
	"github.com/pithecene-io/opcda/types"
)

func testConfig() Config {
	return Config{
		Dataset:   DefaultDataset,
		Server:    "Sim.Plant.1",
		Day:       "2026-10-14",
		SessionID: "sess-1",
	}
}

func testResult() *read.Result {
	ts := time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC)
	return &read.Result{
		Items: []read.Item{
			{
				Record: types.TagRecord{
					ID:           "AREA1.Tag1",
					ItemID:       "Tag1",
					Value:        1.5,
					Quality:      types.QualityGood,
					Timestamp:    ts,
					DataType:     types.VTR8,
					AccessRights: types.AccessReadable,
				},
			},
			{
				Record: types.BadTagRecord("AREA9.Nope", "AREA9.Nope"),
				Err:    resolve.ErrUnresolved,
			},
		},
		Status: types.StatusPartial,
	}
}

func TestDeriveDay(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	got := DeriveDay(time.Date(2026, 10, 15, 2, 0, 0, 0, loc))
	if got != "2026-10-14" {
		t.Errorf("DeriveDay = %q, want 2026-10-14", got)
	}
}

func TestConfig_ValidateAndPath(t *testing.T) {
	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	want := "datasets/opcda/partitions/server=Sim.Plant.1/day=2026-10-14/session_id=sess-1"
	if got := cfg.Path(); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}

	cfg.SessionID = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject a missing session id")
	}
}

func TestNewTagRecords(t *testing.T) {
	res := testResult()
	recs := NewTagRecords(res, testConfig())
	if len(recs) != 2 {
		t.Fatalf("NewTagRecords returned %d records, want 2", len(recs))
	}

	good := recs[0]
	if good.BrowsePath != "AREA1.Tag1" || good.ItemID != "Tag1" || good.Value != "1.500000" {
		t.Errorf("good record = %+v", good)
	}
	if good.QualityString != "GOOD" || good.VarType != "VT_R8" || good.AccessRights != "R" {
		t.Errorf("good record display fields = %+v", good)
	}
	if good.Timestamp != "2026-10-14T08:30:00Z" || good.TimestampMS != time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("timestamp = %q / %d", good.Timestamp, good.TimestampMS)
	}
	if good.Error != "" {
		t.Errorf("good record error = %q", good.Error)
	}

	bad := recs[1]
	if bad.QualityString != "BAD" || bad.Timestamp != "" || bad.TimestampMS != 0 {
		t.Errorf("bad record = %+v", bad)
	}
	if bad.Error == "" {
		t.Error("bad record should carry its error")
	}
	if want := read.Classify(res.Items[1]); bad.UnifiedCode != want.Code() || bad.FormattedCode != want.FormattedCode() {
		t.Errorf("bad record code = %d/%s, want %d/%s", bad.UnifiedCode, bad.FormattedCode, want.Code(), want.FormattedCode())
	}
	for _, r := range recs {
		if r.RecordKind != RecordKindTag || r.Server != "Sim.Plant.1" || r.SessionID != "sess-1" {
			t.Errorf("partition fields = %+v", r)
		}
	}

	if NewTagRecords(nil, testConfig()) != nil {
		t.Error("NewTagRecords(nil) should be nil")
	}
}

func TestLodeClient_WriteAndQueryLatest(t *testing.T) {
	// Memory factories hand out a fresh store per call, so writers and the
	// reader share a filesystem root instead.
	factory := lode.NewFSFactory(t.TempDir())
	cfg := testConfig()
	client, err := NewLodeClientWithFactory(cfg, factory)
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	ctx := t.Context()

	if err := client.WriteTags(ctx, NewTagRecords(testResult(), cfg)); err != nil {
		t.Fatalf("WriteTags failed: %v", err)
	}

	other := cfg
	other.Server = "Other.Server.1"
	otherClient, err := NewLodeClientWithFactory(other, factory)
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	if err := otherClient.WriteTags(ctx, NewTagRecords(testResult(), other)[:1]); err != nil {
		t.Fatalf("WriteTags failed: %v", err)
	}

	ds, err := NewDataset(cfg.Dataset, factory)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}

	got, err := QueryLatest(ctx, ds, "Sim.Plant.1")
	if err != nil {
		t.Fatalf("QueryLatest failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("QueryLatest returned %d records, want 2", len(got))
	}
	if got[0].BrowsePath != "AREA1.Tag1" || got[0].Quality != types.QualityGood || got[0].Value != "1.500000" {
		t.Errorf("record[0] = %+v", got[0])
	}
	if got[1].Error == "" || got[1].UnifiedCode == 0 {
		t.Errorf("record[1] = %+v", got[1])
	}

	own, err := QueryLatest(ctx, client.Dataset(), "Sim.Plant.1")
	if err != nil || len(own) != 2 {
		t.Errorf("QueryLatest(client.Dataset()) = %d records, %v", len(own), err)
	}

	latest, err := QueryLatest(ctx, ds, "")
	if err != nil {
		t.Fatalf("QueryLatest without filter failed: %v", err)
	}
	if len(latest) != 1 || latest[0].Server != "Other.Server.1" {
		t.Errorf("unfiltered latest = %+v", latest)
	}

	if _, err := QueryLatest(ctx, ds, "Sim.Plant"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("QueryLatest(prefix) error = %v, want ErrNoSnapshot", err)
	}
}

func TestLodeClient_EmptyBatch(t *testing.T) {
	client, err := NewLodeClientWithFactory(testConfig(), lode.NewMemoryFactory())
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory failed: %v", err)
	}
	if err := client.WriteTags(t.Context(), nil); err != nil {
		t.Errorf("WriteTags(nil) error = %v", err)
	}
	if _, err := QueryLatest(t.Context(), client.Dataset(), ""); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("QueryLatest on empty dataset error = %v, want ErrNoSnapshot", err)
	}
}

func TestLodeClient_InvalidConfig(t *testing.T) {
	if _, err := NewLodeClientWithFactory(Config{Dataset: "opcda"}, lode.NewMemoryFactory()); err == nil {
		t.Error("expected error for missing partition keys")
	}
}

func TestInstrumentedClient(t *testing.T) {
	m := metrics.NewCollector("", "Sim.Plant.1", "sess-1", "memory")
	stub := NewStubClient(testConfig())
	client := NewInstrumentedClient(stub, m)
	recs := NewTagRecords(testResult(), testConfig())

	if err := client.WriteTags(t.Context(), recs); err != nil {
		t.Fatalf("WriteTags failed: %v", err)
	}
	stub.Err = errors.New("disk full")
	if err := client.WriteTags(t.Context(), recs); err == nil {
		t.Fatal("expected injected failure")
	}

	snap := m.Snapshot()
	if snap.StoreWriteSuccess != 1 || snap.StoreWriteFailure != 1 {
		t.Errorf("store writes = %d ok / %d failed, want 1/1", snap.StoreWriteSuccess, snap.StoreWriteFailure)
	}
	if len(stub.Batches) != 1 || len(stub.Batches[0]) != 2 {
		t.Errorf("stub batches = %v", stub.Batches)
	}
	if client.Path() != testConfig().Path() {
		t.Errorf("Path() = %q", client.Path())
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !stub.Closed {
		t.Error("Close should reach the inner client")
	}
	stub.Err = nil
	if err := client.WriteTags(t.Context(), recs); !errors.Is(err, ErrStubClosed) {
		t.Errorf("WriteTags after Close error = %v, want ErrStubClosed", err)
	}
}

func TestOptions_Factory(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"fs", Options{Backend: BackendFS, Path: t.TempDir()}, false},
		{"default is fs", Options{Path: t.TempDir()}, false},
		{"fs without path", Options{Backend: BackendFS}, true},
		{"memory", Options{Backend: BackendMemory}, false},
		{"s3 without bucket", Options{Backend: BackendS3}, true},
		{"unknown", Options{Backend: "tape"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.Factory(t.Context())
			if (err != nil) != tt.wantErr {
				t.Errorf("Factory() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenDataset_BadBackend(t *testing.T) {
	_, err := OpenDataset(t.Context(), "opcda", Options{Backend: "tape"})
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "init" {
		t.Errorf("OpenDataset() error = %v, want init StorageError", err)
	}
}

func TestOpen_FS(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig()
	client, err := Open(t.Context(), cfg, Options{Backend: BackendFS, Path: root})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := client.WriteTags(t.Context(), NewTagRecords(testResult(), cfg)); err != nil {
		t.Fatalf("WriteTags failed: %v", err)
	}

	ds, err := OpenDataset(t.Context(), cfg.Dataset, Options{Backend: BackendFS, Path: root})
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}
	got, err := QueryLatest(t.Context(), ds, cfg.Server)
	if err != nil {
		t.Fatalf("QueryLatest failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("QueryLatest returned %d records, want 2", len(got))
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		path, bucket, prefix string
	}{
		{"bucket", "bucket", ""},
		{"bucket/a/b", "bucket", "a/b"},
		{"", "", ""},
	}
	for _, tt := range tests {
		b, p := ParseS3Path(tt.path)
		if b != tt.bucket || p != tt.prefix {
			t.Errorf("ParseS3Path(%q) = %q, %q; want %q, %q", tt.path, b, p, tt.bucket, tt.prefix)
		}
	}
}
