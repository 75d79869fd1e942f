package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/opcda/adapter"
	"github.com/pithecene-io/opcda/store"
)

const (
	plantFile  = "../../sim/testdata/plant.yaml"
	plantID    = "Sim.Plant.1"
	plantCLSID = "{6E6170F0-FF2D-11D2-8087-00105AA8F840}"
)

// runApp runs the CLI with args and returns stdout, stderr and the
// action's error. Exit codes surface as cli.ExitCoder errors.
func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := NewApp("test")
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.RunContext(t.Context(), append([]string{"opcda"}, args...))
	return out.String(), errOut.String(), err
}

// runPlant runs a command against the simulated plant.
func runPlant(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runApp(t, append([]string{"--sim", plantFile, "--progid", plantID}, args...)...)
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	if err != nil {
		return -1
	}
	return exitSuccess
}

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	hasTUI := slices.ContainsFunc(ReadOnlyFlags(), func(f cli.Flag) bool {
		return f.Names()[0] == "tui"
	})
	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestIsStderrTTY(_ *testing.T) {
	// Depends on the runtime environment; only checks the call is safe.
	_ = isStderrTTY()
}

func TestBrowse_JSON(t *testing.T) {
	out, _, err := runPlant(t, "browse", "--format", "json")
	if err != nil {
		t.Fatalf("browse error = %v", err)
	}
	var tags []string
	if err := json.Unmarshal([]byte(out), &tags); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(tags) != 6 {
		t.Errorf("tags = %q, want 6", tags)
	}
	for _, want := range []string{"Heartbeat", "AREA1.Tag1", "AREA1.Pumps.P101", "AREA2.Setpoint"} {
		if !slices.Contains(tags, want) {
			t.Errorf("tags missing %q: %q", want, tags)
		}
	}
}

func TestBrowse_MaxDepth(t *testing.T) {
	out, _, err := runPlant(t, "--max-depth", "1", "browse", "--format", "json")
	if err != nil {
		t.Fatalf("browse error = %v", err)
	}
	var tags []string
	if err := json.Unmarshal([]byte(out), &tags); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if slices.Contains(tags, "AREA1.Pumps.P101") {
		t.Errorf("depth 1 should not expand AREA1.Pumps: %q", tags)
	}
	if !slices.Contains(tags, "AREA1.Tag1") {
		t.Errorf("tags missing AREA1.Tag1: %q", tags)
	}
}

func TestBrowse_RejectsTUI(t *testing.T) {
	_, _, err := runPlant(t, "browse", "--tui")
	if exitCode(err) != exitFailure || !strings.Contains(err.Error(), "--tui is not supported") {
		t.Errorf("err = %v, want --tui rejection", err)
	}
}

func TestReadable_JSON(t *testing.T) {
	out, _, err := runPlant(t, "readable", "--format", "json")
	if err != nil {
		t.Fatalf("readable error = %v", err)
	}
	var resp ReadableResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.Total != 6 || resp.Readable != 6 || len(resp.Tags) != 6 {
		t.Errorf("resp = %+v, want 6 of 6", resp)
	}
	for _, tag := range resp.Tags {
		if tag.BrowsePath == "AREA1.Pumps.P101" && tag.ItemID != "Pumps.P101" {
			t.Errorf("P101 item id = %q, want Pumps.P101", tag.ItemID)
		}
	}
}

func TestRead_PartialBatch(t *testing.T) {
	out, _, err := runPlant(t, "read", "--format", "json", "AREA1.Tag1", "AREA1.Tag2", "AREA1.Nope")
	if code := exitCode(err); code != exitPartial {
		t.Fatalf("exit code = %d (%v), want %d", code, err, exitPartial)
	}
	var records []store.TagRecord
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if records[0].Value != "1.500000" || records[0].QualityString != "GOOD" {
		t.Errorf("Tag1 = %+v", records[0])
	}
	if records[1].Value != "42" || records[1].ItemID != "Tag2" {
		t.Errorf("Tag2 = %+v", records[1])
	}
	if records[2].Error == "" || records[2].QualityString != "BAD" {
		t.Errorf("missing tag = %+v, want BAD with error", records[2])
	}
}

func TestRead_Table(t *testing.T) {
	out, _, err := runPlant(t, "read", "--format", "table", "--no-color", "AREA2.Level")
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("table = %q, want header and one row", out)
	}
	if !strings.HasPrefix(lines[0], "BROWSE_PATH") || !strings.Contains(lines[1], "73.250000") {
		t.Errorf("table = %q", out)
	}
}

func TestRead_RequiresPaths(t *testing.T) {
	_, _, err := runPlant(t, "read")
	if exitCode(err) != exitFailure {
		t.Errorf("err = %v, want exit %d", err, exitFailure)
	}
}

func TestRead_StoreAndPublish(t *testing.T) {
	events := make(chan adapter.ReadCompletedEvent, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev adapter.ReadCompletedEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		events <- ev
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	dir := t.TempDir()
	_, _, err := runPlant(t, "read", "--format", "json",
		"--store", "--storage-backend", "fs", "--storage-path", dir,
		"--adapter", "webhook", "--adapter-url", hook.URL,
		"AREA1.Tag1", "AREA1.Nope")
	if code := exitCode(err); code != exitPartial {
		t.Fatalf("exit code = %d (%v), want %d", code, err, exitPartial)
	}

	ds, err := store.NewDataset(store.DefaultDataset, lode.NewFSFactory(dir))
	if err != nil {
		t.Fatalf("NewDataset() error = %v", err)
	}
	got, err := store.QueryLatest(t.Context(), ds, plantID)
	if err != nil {
		t.Fatalf("QueryLatest() error = %v", err)
	}
	if len(got) != 2 || got[0].BrowsePath != "AREA1.Tag1" || got[0].Server != plantID {
		t.Errorf("stored records = %+v", got)
	}

	select {
	case ev := <-events:
		if ev.EventType != adapter.EventTypeReadCompleted || ev.Status != "partial" {
			t.Errorf("event = %+v", ev)
		}
		if ev.ItemCount != 2 || ev.FailedCount != 1 || ev.Server != plantID {
			t.Errorf("event counts = %+v", ev)
		}
		if !strings.Contains(ev.StoragePath, "server="+plantID) {
			t.Errorf("storage path = %q", ev.StoragePath)
		}
	default:
		t.Fatal("no read_completed event published")
	}
}

func TestLatest_ReadsBackStoredBatch(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := runPlant(t, "read", "--format", "json", "--store", "--storage-path", dir,
		"AREA1.Tag1", "AREA2.Level"); err != nil {
		t.Fatalf("read --store error = %v", err)
	}

	out, _, err := runApp(t, "--progid", plantID, "latest", "--format", "json", "--storage-path", dir)
	if err != nil {
		t.Fatalf("latest error = %v", err)
	}
	var got []store.TagRecord
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(got) != 2 || got[0].BrowsePath != "AREA1.Tag1" || got[1].Value != "73.250000" {
		t.Errorf("latest = %+v", got)
	}

	out, _, err = runApp(t, "latest", "--format", "table", "--no-color", "--storage-path", dir, "--server", "*")
	if err != nil {
		t.Fatalf("latest --server * error = %v", err)
	}
	if !strings.HasPrefix(out, "BROWSE_PATH") || !strings.Contains(out, "AREA2.Level") {
		t.Errorf("table = %q", out)
	}
}

func TestLatest_NoSnapshot(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"empty dataset", []string{"latest", "--storage-path", dir, "--server", "*"}, "no stored batch in dataset opcda"},
		{"other server", []string{"--progid", "Other.Server", "latest", "--storage-path", dir}, "no stored batch for Other.Server"},
		{"no path", []string{"latest"}, "storage path is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runApp(t, tt.args...)
			if exitCode(err) != exitFailure {
				t.Fatalf("err = %v, want exit %d", err, exitFailure)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestRead_PublishFailureIsWarning(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer hook.Close()

	_, stderr, err := runPlant(t, "read", "--format", "json",
		"--store", "--storage-path", t.TempDir(),
		"--adapter", "webhook", "--adapter-url", hook.URL,
		"AREA1.Tag1")
	if err != nil {
		t.Fatalf("read error = %v, want success despite publish failure", err)
	}
	if !strings.Contains(stderr, "publish read_completed failed") {
		t.Errorf("stderr = %q, want publish warning", stderr)
	}
}

func TestResolve_JSON(t *testing.T) {
	out, _, err := runPlant(t, "resolve", "--format", "json", "AREA1.Pumps.P101", "AREA9.Ghost")
	if code := exitCode(err); code != exitPartial {
		t.Fatalf("exit code = %d (%v), want %d", code, err, exitPartial)
	}
	var rows []ResolveRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].ItemID != "Pumps.P101" || rows[0].Match != "fallback" {
		t.Errorf("P101 = %+v", rows[0])
	}
	if rows[1].Match != "failed" || rows[1].ItemID != "AREA9.Ghost" {
		t.Errorf("ghost = %+v", rows[1])
	}
}

func TestClassify(t *testing.T) {
	out, _, err := runApp(t, "classify", "--format", "json", "0xC0", "72", "0")
	if err != nil {
		t.Fatalf("classify error = %v", err)
	}
	var rows []ClassifyRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	want := []string{"GOOD", "UNCERTAIN", "BAD"}
	if len(rows) != len(want) {
		t.Fatalf("rows = %+v", rows)
	}
	for i, w := range want {
		if rows[i].QualityString != w {
			t.Errorf("rows[%d].QualityString = %q, want %q", i, rows[i].QualityString, w)
		}
	}
	if rows[0].Quality != "0x00C0" {
		t.Errorf("rows[0].Quality = %q", rows[0].Quality)
	}
}

func TestClassify_InvalidCode(t *testing.T) {
	for _, arg := range []string{"abc", "70000", "0x10000"} {
		t.Run(arg, func(t *testing.T) {
			_, _, err := runApp(t, "classify", arg)
			if exitCode(err) != exitFailure {
				t.Errorf("classify %q err = %v, want exit %d", arg, err, exitFailure)
			}
		})
	}
}

func TestStatus_JSON(t *testing.T) {
	out, _, err := runPlant(t, "status", "--format", "json")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	var resp StatusResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.Vendor != "Simulated Plant" || resp.Version != "2.1.7" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.State != "OPC_STATUS_RUNNING" || resp.BrowseMethod != "SERVER_ADDRESS_SPACE" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestProperties_JSON(t *testing.T) {
	out, _, err := runPlant(t, "properties", "--format", "json", "Pumps.P101")
	if err != nil {
		t.Fatalf("properties error = %v", err)
	}
	var resp PropertiesResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.AccessRights != "RW" || resp.Status != "ok" || resp.Quality != "BAD" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestProperties_RequiresOneID(t *testing.T) {
	_, _, err := runPlant(t, "properties", "a", "b")
	if exitCode(err) != exitFailure {
		t.Errorf("err = %v, want exit %d", err, exitFailure)
	}
}

func TestConnectionErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no transport", []string{"--progid", plantID, "browse"}, "no transport"},
		{"unknown server", []string{"--sim", plantFile, "--progid", "Other.Server", "browse"}, "connect Other.Server"},
		{"no target", []string{"--sim", plantFile, "browse"}, "connect"},
		{"negative depth", []string{"--sim", plantFile, "--progid", plantID, "--max-depth", "-1", "browse"}, "max-depth"},
		{"bad log mode", []string{"--sim", plantFile, "--progid", plantID, "--log-mode", "loud", "browse"}, "invalid log mode"},
		{"missing config", []string{"--config", "/nonexistent/opcda.yaml", "browse"}, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runApp(t, tt.args...)
			if exitCode(err) != exitFailure {
				t.Fatalf("err = %v, want exit %d", err, exitFailure)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestConfigFile(t *testing.T) {
	ns, err := filepath.Abs(plantFile)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "opcda.yaml")
	yaml := "server:\n  progid: " + plantID + "\nsim:\n  namespace: " + ns + "\nbrowse:\n  max_depth: 1\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runApp(t, "--config", path, "browse", "--format", "json")
	if err != nil {
		t.Fatalf("browse error = %v", err)
	}
	if !strings.Contains(out, "AREA1.Tag1") || strings.Contains(out, "AREA1.Pumps.P101") {
		t.Errorf("out = %q, want the config's max_depth applied", out)
	}

	// A flag overrides the config value.
	_, _, err = runApp(t, "--config", path, "--progid", "Other.Server", "browse")
	if exitCode(err) != exitFailure {
		t.Errorf("err = %v, want connect failure for the overriding progid", err)
	}
}

func TestLogModeBuffer_FlushesToStderr(t *testing.T) {
	_, stderr, err := runPlant(t, "--log-mode", "buffer", "status", "--format", "json")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(stderr, `"message":"connected"`) {
		t.Errorf("stderr = %q, want the buffered connect entry", stderr)
	}
}

func TestVersion(t *testing.T) {
	out, _, err := runApp(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	var resp VersionResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if resp.Commit != "test" || resp.ProtocolVersion != "1" || resp.Version == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSim_AnswersToNamespaceIdentity(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
	}{
		{"progid", []string{"--progid", plantID}, exitSuccess},
		{"clsid", []string{"--clsid", plantCLSID}, exitSuccess},
		{"other progid", []string{"--progid", "Other.Server"}, exitFailure},
		{"other clsid", []string{"--clsid", "{00000000-0000-0000-0000-000000000000}"}, exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--sim", plantFile}, tt.args...)
			_, _, err := runApp(t, append(args, "status", "--format", "json")...)
			if got := exitCode(err); got != tt.wantCode {
				t.Errorf("exit = %d (err %v), want %d", got, err, tt.wantCode)
			}
		})
	}
}
