// Package render prints command results as JSON, YAML or a plain table,
// optionally filtered through a jq expression.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/itchyny/gojq"
	"github.com/piotrmarcinkowski/ai-chatbot/internal/config"
	"gopkg.in/yaml.v3"
)

// Write encodes v to w in the given format. When filter is set, v is run
// through it first and every result is written in turn.
func Write(w io.Writer, format, filter string, v any) error {
	value, err := normalize(v)
	if err != nil {
		return err
	}

	results := []any{value}
	if strings.TrimSpace(filter) != "" {
		results, err = runFilter(filter, value)
		if err != nil {
			return err
		}
	}

	for _, r := range results {
		if err := encode(w, format, r); err != nil {
			return err
		}
	}
	return nil
}

// normalize turns structs into the generic maps and slices gojq and the
// table writer understand.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return out, nil
}

func runFilter(filter string, value any) ([]any, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("invalid jq filter: %w", err)
	}
	var results []any
	iter := query.Run(value)
	for {
		next, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := next.(error); isErr {
			return nil, fmt.Errorf("jq filter failed: %w", err)
		}
		results = append(results, next)
	}
	return results, nil
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case config.OutputJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	case config.OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case config.OutputTable:
		return writeTable(w, v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// writeTable prints a list of objects as aligned columns sorted by key.
// Anything else is printed one value per line.
func writeTable(w io.Writer, v any) error {
	rows, ok := v.([]any)
	if !ok {
		rows = []any{v}
	}

	columns := tableColumns(rows)
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	if len(columns) == 0 {
		for _, row := range rows {
			fmt.Fprintln(tw, cell(row))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		_, err := buf.WriteTo(w)
		return err
	}

	upper := make([]string, len(columns))
	for i, c := range columns {
		upper[i] = cellEscaper.Replace(strings.ToUpper(c))
	}
	fmt.Fprintln(tw, strings.Join(upper, "\t"))
	for _, row := range rows {
		obj, _ := row.(map[string]any)
		cells := make([]string, len(columns))
		for i, c := range columns {
			if val, ok := obj[c]; ok {
				cells[i] = cell(val)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	// Colour the header after alignment so escape codes do not count as width.
	headerLine, rest, _ := strings.Cut(buf.String(), "\n")
	header := color.New(color.Bold, color.FgCyan)
	if _, err := fmt.Fprintln(w, header.Sprint(headerLine)); err != nil {
		return err
	}
	_, err := io.WriteString(w, rest)
	return err
}

func tableColumns(rows []any) []string {
	set := map[string]struct{}{}
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			return nil
		}
		for k := range obj {
			set[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(set))
	for k := range set {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}

// cellEscaper keeps tabwriter's cell and line separators out of cell text.
var cellEscaper = strings.NewReplacer("\n", `\n`, "\r", `\r`, "\t", `\t`)

// cell renders a single value on one line; nested values are compact JSON.
func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return cellEscaper.Replace(t)
	case map[string]any, []any:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}
