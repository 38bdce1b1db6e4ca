package engine

import "strings"

// PageRequest selects one page of an owner-scoped listing.
type PageRequest struct {
	Limit  int
	Cursor string
}

func (e *Engine) normalizeLimit(limit int) int {
	def, max := e.DefaultLimit, e.MaxLimit
	if def <= 0 {
		def = DefaultPageLimit
	}
	if max <= 0 {
		max = MaxPageLimit
	}
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// parseCursor splits a "<sort key>|<id>" cursor. An empty cursor starts from the beginning.
func parseCursor(cursor string) (string, string, error) {
	if strings.TrimSpace(cursor) == "" {
		return "", "", nil
	}
	key, id, ok := strings.Cut(cursor, "|")
	if !ok || key == "" || id == "" {
		return "", "", ValidationError{}.Add("cursor", "invalid cursor")
	}
	return key, id, nil
}

func composeCursor(key, id string) string {
	return key + "|" + id
}
