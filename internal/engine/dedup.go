package engine

import (
	"net/url"
	"sort"
	"strings"
	"sync"
)

// VisitedSet tracks product URLs already dispatched in the current run so
// a product listed on several category pages is crawled once.
type VisitedSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewVisitedSet creates a VisitedSet with the given estimated capacity.
func NewVisitedSet(estimatedCapacity int) *VisitedSet {
	return &VisitedSet{
		seen: make(map[string]struct{}, estimatedCapacity),
	}
}

// Contains reports whether rawURL (after canonicalization) was added.
func (v *VisitedSet) Contains(rawURL string) bool {
	key := CanonicalizeURL(rawURL)

	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.seen[key]
	return ok
}

// Add marks rawURL as visited and reports whether it was new.
func (v *VisitedSet) Add(rawURL string) bool {
	key := CanonicalizeURL(rawURL)

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	return true
}

// Len returns the number of visited URLs.
func (v *VisitedSet) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.seen)
}

// Export returns the canonical URLs in sorted order, for checkpoints.
func (v *VisitedSet) Export() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.seen))
	for k := range v.seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Import adds URLs restored from a checkpoint.
func (v *VisitedSet) Import(urls []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, u := range urls {
		v.seen[CanonicalizeURL(u)] = struct{}{}
	}
}

// CanonicalizeURL returns the key under which a product URL is tracked.
// Scheme and host are lowercased, default ports and the fragment are
// dropped, query pairs are ordered and a trailing slash is removed.
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	switch {
	case u.Scheme == "https" && u.Port() == "443", u.Scheme == "http" && u.Port() == "80":
		u.Host = u.Hostname()
	}

	if u.RawQuery != "" {
		// Encode sorts by key; values keep their order, so sort them too.
		q := u.Query()
		for _, vals := range q {
			sort.Strings(vals)
		}
		u.RawQuery = q.Encode()
	}

	switch {
	case u.Path == "":
		u.Path = "/"
	case u.Path != "/":
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
	}
	return u.String()
}
