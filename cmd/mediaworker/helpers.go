package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func passFail(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// emitJSON writes v as two-space indented JSON followed by a newline.
func emitJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
