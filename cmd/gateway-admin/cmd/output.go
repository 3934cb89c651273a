package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: marshal JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

type tableWriter struct {
	w *tabwriter.Writer
}

func newTable(headers ...string) *tableWriter {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	return &tableWriter{w: w}
}

func (t *tableWriter) AddRow(values ...string) {
	fmt.Fprintln(t.w, strings.Join(values, "\t"))
}

func (t *tableWriter) Flush() {
	_ = t.w.Flush()
}
