package remote

import (
	"encoding/json"
	"strings"

	"github.com/lib/pq"

	"storyfeed/internal/model"
)

// normalizeList decodes a list-valued column into a slice. The same column
// can hold a JSON array (sqlite), a postgres array literal, or a plain
// comma-separated string written by older clients.
func normalizeList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	switch {
	case strings.HasPrefix(raw, "["):
		var values []string
		if err := json.Unmarshal([]byte(raw), &values); err == nil {
			return compact(values)
		}
	case strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}"):
		var values pq.StringArray
		if err := values.Scan([]byte(raw)); err == nil {
			return compact(values)
		}
	}

	return compact(strings.Split(raw, ","))
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalizeNorms(raw string) []model.Norm {
	values := normalizeList(raw)
	if len(values) == 0 {
		return nil
	}
	norms := make([]model.Norm, len(values))
	for i, v := range values {
		norms[i] = model.Norm(v)
	}
	return norms
}

func normsToStrings(norms []model.Norm) []string {
	out := make([]string, len(norms))
	for i, n := range norms {
		out[i] = string(n)
	}
	return out
}
