package render

import (
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// maxInlineItems bounds how many slice elements a table cell spells out.
const maxInlineItems = 4

var headerStyle = lipgloss.NewStyle().Bold(true)

// column is one table column: a struct field index, a map key, or the
// element itself for scalar slices.
type column struct {
	name  string
	field int
	key   reflect.Value
}

func (c column) cell(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Struct:
		return v.Field(c.field)
	case reflect.Map:
		return v.MapIndex(c.key)
	default:
		return v
	}
}

// columnsOf derives columns from the first row. Struct fields are named by
// their json tag; fields tagged "-" and unexported fields are skipped.
func columnsOf(v reflect.Value) []column {
	v = deref(v)
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		cols := make([]column, 0, t.NumField())
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			if name, ok := fieldName(f); ok {
				cols = append(cols, column{name: name, field: i})
			}
		}
		return cols
	case reflect.Map:
		keys := sortedKeys(v)
		cols := make([]column, len(keys))
		for i, k := range keys {
			cols[i] = column{name: fmt.Sprint(k.Interface()), key: k}
		}
		return cols
	default:
		return []column{{name: "value"}}
	}
}

func (r *Renderer) renderTable(data any) error {
	v := reflect.ValueOf(data)
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		r.writeRows(w, v)
	} else {
		r.writeRecord(w, v)
	}
	return w.Flush()
}

func (r *Renderer) writeRows(w io.Writer, rows reflect.Value) {
	if rows.Len() == 0 {
		fmt.Fprintln(w, "(no results)")
		return
	}
	cols := columnsOf(rows.Index(0))
	cells := make([]string, len(cols))
	for i, c := range cols {
		cells[i] = r.header(c.name)
	}
	fmt.Fprintln(w, strings.Join(cells, "\t"))

	for i := range rows.Len() {
		row := deref(rows.Index(i))
		for j, c := range cols {
			cells[j] = formatValue(c.cell(row))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

// writeRecord renders a single struct or map as "name:<tab>value" lines.
func (r *Renderer) writeRecord(w io.Writer, v reflect.Value) {
	v = deref(v)
	if v.Kind() != reflect.Struct && v.Kind() != reflect.Map {
		fmt.Fprintln(w, formatValue(v))
		return
	}
	for _, c := range columnsOf(v) {
		fmt.Fprintf(w, "%s:\t%s\n", c.name, formatValue(c.cell(v)))
	}
}

// header upper-cases a column name. Every header cell gets the same escape
// sequence so tabwriter still aligns the columns.
func (r *Renderer) header(name string) string {
	name = strings.ToUpper(name)
	if r.noColor {
		return name
	}
	return headerStyle.Render(name)
}

func fieldName(f reflect.StructField) (string, bool) {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return "", false
	case "":
		return strings.ToLower(f.Name), true
	default:
		return name, true
	}
}

func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
	})
	return keys
}

func deref(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func formatValue(v reflect.Value) string {
	v = deref(v)
	if !v.IsValid() {
		return ""
	}
	if v.CanInterface() {
		switch x := v.Interface().(type) {
		case time.Time:
			if x.IsZero() {
				return ""
			}
			return x.UTC().Format(time.RFC3339)
		case fmt.Stringer:
			return x.String()
		}
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		n := v.Len()
		if n > maxInlineItems {
			return fmt.Sprintf("[%d items]", n)
		}
		parts := make([]string, n)
		for i := range parts {
			parts[i] = formatValue(v.Index(i))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return "{...}"
	default:
		return fmt.Sprint(v.Interface())
	}
}
