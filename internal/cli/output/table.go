package output

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"
)

// TableFormatter renders a slice of structs, a single struct, or a
// map as an aligned text table. Anything it cannot tabulate falls
// back to JSON.
type TableFormatter struct {
	NoHeaders bool
}

func (f *TableFormatter) Format(w io.Writer, data any) error {
	if data == nil {
		return nil
	}
	headers, rows, err := tabulate(data)
	if err != nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if !f.NoHeaders && len(headers) > 0 {
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func tabulate(data any) ([]string, [][]string, error) {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return nil, nil, nil
		}
		first := reflect.Indirect(v.Index(0))
		if first.Kind() != reflect.Struct {
			return nil, nil, fmt.Errorf("not tabular: slice of %s", first.Kind())
		}
		headers := structHeaders(first.Type())
		rows := make([][]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			rows = append(rows, structRow(reflect.Indirect(v.Index(i))))
		}
		return headers, rows, nil

	case reflect.Struct:
		// One struct renders as a FIELD/VALUE listing.
		headers := []string{"FIELD", "VALUE"}
		var rows [][]string
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			rows = append(rows, []string{headerName(t.Field(i).Name), cell(v.Field(i))})
		}
		return headers, rows, nil

	case reflect.Map:
		headers := []string{"KEY", "VALUE"}
		var rows [][]string
		for _, k := range v.MapKeys() {
			rows = append(rows, []string{fmt.Sprint(k.Interface()), cell(v.MapIndex(k))})
		}
		return headers, rows, nil
	}
	return nil, nil, fmt.Errorf("not tabular: %s", v.Kind())
}

func structHeaders(t reflect.Type) []string {
	var headers []string
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			headers = append(headers, headerName(t.Field(i).Name))
		}
	}
	return headers
}

func structRow(v reflect.Value) []string {
	var row []string
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			row = append(row, cell(v.Field(i)))
		}
	}
	return row
}

// headerName converts a Go field name to UPPER_SNAKE.
func headerName(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := name[i-1]
			if prev >= 'a' && prev <= 'z' {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

func cell(v reflect.Value) string {
	switch val := v.Interface().(type) {
	case time.Time:
		return val.Format(time.RFC3339)
	case time.Duration:
		return val.String()
	case fmt.Stringer:
		return val.String()
	}
	if v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64 {
		return fmt.Sprintf("%.3f", v.Float())
	}
	return fmt.Sprint(v.Interface())
}
