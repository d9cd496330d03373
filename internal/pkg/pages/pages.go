// Package pages classifies page paths into descriptive categories. The
// insight generator branches on these (friction on a checkout page points at
// the payment flow, not the content), and the seeder uses them to label
// generated rows.
package pages

import (
	"strings"
	"sync"

	"go.elara.ws/pcre"
)

// Page categories
const (
	CategoryCheckout = "checkout"
	CategoryProduct  = "product"
	CategoryContent  = "content"
	CategoryAuth     = "auth"
	CategoryLanding  = "landing"
	CategoryGeneral  = "general"
)

// categoryPattern pairs a category with the path pattern that identifies it.
// Order matters: first match wins.
var categoryPatterns = []struct {
	category string
	pattern  string
}{
	{CategoryCheckout, `(?i)/(checkout|cart|payment|billing)(/|$)`},
	{CategoryAuth, `(?i)/(login|signup|register|account)(/|$)`},
	{CategoryProduct, `(?i)/(products?|items?|pricing|plans)(/|$)`},
	{CategoryContent, `(?i)/(blog|docs|articles?|guides?|news|help)(/|$)`},
	{CategoryLanding, `^/$`},
}

// Compiled regex cache; patterns compile lazily and are reused across calls.
type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

var cache = &regexCache{compiled: make(map[string]*pcre.Regexp)}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	// Double-check pattern
	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

// Classify returns the category of a page path, or CategoryGeneral when no
// pattern matches.
func Classify(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return CategoryGeneral
	}

	for _, cp := range categoryPatterns {
		regex, err := cache.get(cp.pattern)
		if err != nil {
			continue
		}
		if regex.MatchString(path) {
			return cp.category
		}
	}
	return CategoryGeneral
}

// IsCheckout reports whether the path belongs to the purchase flow.
func IsCheckout(path string) bool {
	return Classify(path) == CategoryCheckout
}
