package ingest

import (
	"fmt"
	"strconv"
	"strings"
)

// traverseDataPath walks a dotted path (e.g. "data.items") through nested
// JSON objects to locate the record array. Every segment must resolve;
// a missing segment aborts extraction for the whole call.
func traverseDataPath(data interface{}, path string) (interface{}, error) {
	current := data
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("path segment %q: parent is not an object", part)
		}
		value, ok := obj[part]
		if !ok {
			return nil, fmt.Errorf("path segment %q not found", part)
		}
		current = value
	}
	return current, nil
}

// lookupField resolves a field path inside one record item. Paths are
// dotted and support [n] array indexing, matching how the default NVD
// source addresses "cve.descriptions[0].value". A path that does not
// resolve yields "".
func lookupField(item interface{}, path string) string {
	if path == "" {
		return ""
	}

	current := item
	for _, part := range strings.Split(path, ".") {
		key, indexes := splitIndexes(part)

		if key != "" {
			obj, ok := current.(map[string]interface{})
			if !ok {
				return ""
			}
			current, ok = obj[key]
			if !ok {
				return ""
			}
		}

		for _, idx := range indexes {
			arr, ok := current.([]interface{})
			if !ok || idx < 0 || idx >= len(arr) {
				return ""
			}
			current = arr[idx]
		}
	}

	switch v := current.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// splitIndexes separates "descriptions[0][1]" into its key and indexes.
func splitIndexes(part string) (string, []int) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		return part, nil
	}

	key := part[:open]
	var indexes []int
	rest := part[open:]
	for strings.HasPrefix(rest, "[") {
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			return key, indexes
		}
		idx, err := strconv.Atoi(rest[1:close])
		if err != nil {
			return key, indexes
		}
		indexes = append(indexes, idx)
		rest = rest[close+1:]
	}
	return key, indexes
}
