// Package mapper normalizes provider responses: projecting arbitrary
// response trees onto the canonical record shape and picking the record
// whose plate matches the vehicle being verified.
package mapper

import (
	"fmt"
	"strings"
)

// Project reshapes a decoded provider response using the declarative
// response schema. mapping binds canonical keys to the provider's key
// names; a mapping value may be a list of provider keys, which merge
// into one list under the canonical key. The first non-empty list or
// record found in the tree supplies the rows. Returns nil when nothing
// projects.
func Project(input any, mapping map[string]any) []map[string]any {
	rows := findRows(input, mapping)
	if len(rows) == 0 {
		return nil
	}
	var out []map[string]any
	for _, row := range rows {
		item := make(map[string]any, len(mapping))
		hasValue := false
		for newKey, oldKey := range mapping {
			v := lookupMapped(row, oldKey)
			item[newKey] = v
			if v != nil {
				hasValue = true
			}
		}
		if hasValue {
			out = append(out, item)
		}
	}
	return out
}

// findRows locates the first non-empty list of records in the tree. A
// record whose keys intersect the mapped provider keys counts as a
// single-row list.
func findRows(data any, mapping map[string]any) []map[string]any {
	switch v := data.(type) {
	case []any:
		var rows []map[string]any
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, m)
			}
		}
		return rows
	case map[string]any:
		if mentionsMappedKey(v, mapping) {
			return []map[string]any{v}
		}
		for _, val := range v {
			if rows := findRows(val, mapping); len(rows) > 0 {
				return rows
			}
		}
		if len(v) > 0 {
			return []map[string]any{v}
		}
	}
	return nil
}

func mentionsMappedKey(record map[string]any, mapping map[string]any) bool {
	var wanted strings.Builder
	for _, v := range mapping {
		fmt.Fprint(&wanted, v, " ")
	}
	target := wanted.String()
	for k := range record {
		if strings.Contains(target, k) {
			return true
		}
	}
	return false
}

func lookupMapped(row map[string]any, key any) any {
	if keys, ok := key.([]any); ok {
		merged := make([]any, 0, len(keys))
		for _, k := range keys {
			merged = append(merged, findNested(row, fmt.Sprint(k)))
		}
		return merged
	}
	return findNested(row, fmt.Sprint(key))
}

// findNested searches depth-first for the first occurrence of the key,
// descending through nested records and lists.
func findNested(data map[string]any, target string) any {
	for k, v := range data {
		if k == target {
			return v
		}
		switch child := v.(type) {
		case map[string]any:
			if found := findNested(child, target); found != nil {
				return found
			}
		case []any:
			for _, item := range child {
				if m, ok := item.(map[string]any); ok {
					if found := findNested(m, target); found != nil {
						return found
					}
				}
			}
		}
	}
	return nil
}
