package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/opcda/store"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{"read_values", true},
		{"browse", false},
		{"readable", false},
		{"status", false},
		{"version", false},
		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			if got := IsTUISupported(tt.viewType); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	if err := Run("status", nil); err == nil {
		t.Error("Expected error for unsupported view type")
	}
}

func TestRunValuesTUI_InvalidData(t *testing.T) {
	if err := RunValuesTUI("not records"); err == nil {
		t.Error("Expected error for invalid data type")
	}
}

func sampleRecords() []store.TagRecord {
	return []store.TagRecord{
		{BrowsePath: "AREA1.Tag1", ItemID: "AREA1.Tag1", Value: "1.500000", QualityString: "GOOD", VarType: "VT_R8"},
		{BrowsePath: "AREA1.Missing", ItemID: "AREA1.Missing", QualityString: "BAD", Error: "unknown item id"},
		{BrowsePath: "AREA1.Tag2", ItemID: "AREA1.Tag2", Value: "42", QualityString: "GOOD", VarType: "VT_I4"},
	}
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestValuesModel_ToggleErrorsOnly(t *testing.T) {
	m := NewValuesModel(sampleRecords())

	sel, ok := m.Selected()
	if !ok || sel.BrowsePath != "AREA1.Tag1" {
		t.Fatalf("initial selection = %+v, %v", sel, ok)
	}

	next, _ := m.Update(keyRune('e'))
	m = next.(ValuesModel)
	sel, ok = m.Selected()
	if !ok || sel.BrowsePath != "AREA1.Missing" {
		t.Fatalf("errors-only selection = %+v, %v", sel, ok)
	}
	if !strings.Contains(m.View(), "[errors only]") {
		t.Error("view should show the errors-only filter")
	}

	next, _ = m.Update(keyRune('e'))
	m = next.(ValuesModel)
	if len(m.visible) != 3 {
		t.Errorf("visible = %d after second toggle, want 3", len(m.visible))
	}
}

func TestValuesModel_Quit(t *testing.T) {
	m := NewValuesModel(sampleRecords())
	next, cmd := m.Update(keyRune('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected tea.QuitMsg, got %T", cmd())
	}
	if v := next.(ValuesModel).View(); v != "" {
		t.Errorf("view after quit = %q, want empty", v)
	}
}

func TestValuesModel_Empty(t *testing.T) {
	m := NewValuesModel(nil)
	if _, ok := m.Selected(); ok {
		t.Error("empty model should have no selection")
	}
	if !strings.Contains(m.View(), "(no tags)") {
		t.Error("empty view should say there are no tags")
	}
}

func TestRenderValuesStatic(t *testing.T) {
	out := RenderValuesStatic(sampleRecords())
	for _, want := range []string{"Read Values (3 tags, 1 failed)", "AREA1.Tag1", "AREA1.Tag2", "q quit"} {
		if !strings.Contains(out, want) {
			t.Errorf("static view missing %q", want)
		}
	}
}
