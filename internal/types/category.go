package types

import "strings"

// categorySeparator delimits segments in the persisted form.
const categorySeparator = ","

// CategoryPath is an ordered breadcrumb trail, most general segment first.
type CategoryPath []string

// NewCategoryPath trims each segment and drops empty ones. Separators
// inside a segment are replaced with spaces so the persisted form
// round-trips.
func NewCategoryPath(segments ...string) CategoryPath {
	out := make(CategoryPath, 0, len(segments))
	for _, s := range segments {
		s = strings.TrimSpace(strings.ReplaceAll(s, categorySeparator, " "))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseCategoryPath decodes the persisted delimited form.
func ParseCategoryPath(s string) CategoryPath {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return NewCategoryPath(strings.Split(s, categorySeparator)...)
}

// String encodes the path in its persisted delimited form.
func (p CategoryPath) String() string {
	return strings.Join(p, categorySeparator)
}

// Leaf returns the most specific segment, or "" for an empty path.
func (p CategoryPath) Leaf() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}
