package vision

import "strings"

// resolveSelector maps an opaque field key back to a concrete selector using
// the given extraction snapshot.
//
// Keys that already look like selectors pass through untouched. Otherwise the
// snapshot is searched by id, then name, then case-insensitive label. The
// final fallback treats the key as an id; that can produce a selector for an
// unrelated element that happens to share the id elsewhere in the document.
// A subsequent fill failure is the true signal of an unresolved field.
func resolveSelector(key string, snapshot []FieldDescriptor) string {
	if strings.HasPrefix(key, "#") || strings.HasPrefix(key, ".") || strings.HasPrefix(key, "[") {
		return key
	}

	for _, f := range snapshot {
		if f.ID == key {
			return "#" + key
		}
	}
	for _, f := range snapshot {
		if f.Name == key {
			return `[name="` + key + `"]`
		}
	}
	for _, f := range snapshot {
		if f.Label != "" && strings.EqualFold(f.Label, key) {
			return f.Selector
		}
	}

	return "#" + key
}
