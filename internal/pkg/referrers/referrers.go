// Package referrers normalizes raw referrer hostnames into friendly source
// names. The insight generator branches on these names (a surge from
// Instagram reads very differently from a surge from Google).
package referrers

import "strings"

// Common referrer hostnames mapped to friendly display names
var knownReferrers = map[string]string{
	// Search engines
	"google.com":     "Google",
	"google.co.uk":   "Google",
	"google.de":      "Google",
	"google.fr":      "Google",
	"google.es":      "Google",
	"google.ca":      "Google",
	"google.com.au":  "Google",
	"google.co.jp":   "Google",
	"google.com.br":  "Google",
	"bing.com":       "Bing",
	"duckduckgo.com": "DuckDuckGo",
	"yahoo.com":      "Yahoo",
	"ecosia.org":     "Ecosia",

	// Social media
	"x.com":           "X/Twitter",
	"twitter.com":     "X/Twitter",
	"t.co":            "X/Twitter",
	"facebook.com":    "Facebook",
	"fb.com":          "Facebook",
	"l.facebook.com":  "Facebook",
	"instagram.com":   "Instagram",
	"l.instagram.com": "Instagram",
	"linkedin.com":    "LinkedIn",
	"lnkd.in":         "LinkedIn",
	"tiktok.com":      "TikTok",
	"pinterest.com":   "Pinterest",
	"reddit.com":      "Reddit",
	"old.reddit.com":  "Reddit",
	"youtube.com":     "YouTube",
	"youtu.be":        "YouTube",
	"t.me":            "Telegram",

	// Tech communities
	"news.ycombinator.com": "Hacker News",
	"producthunt.com":      "Product Hunt",
	"dev.to":               "DEV Community",
	"medium.com":           "Medium",
	"substack.com":         "Substack",
	"github.com":           "GitHub",
	"stackoverflow.com":    "Stack Overflow",

	// Email providers (for newsletter clicks)
	"mail.google.com":  "Gmail",
	"outlook.live.com": "Outlook",
	"mail.yahoo.com":   "Yahoo Mail",
}

// FriendlyName returns a human-friendly name for a referrer hostname.
// If the hostname is not in the known list, it returns the hostname
// with common prefixes like "www." removed and first letter capitalized.
// An empty hostname means direct traffic.
func FriendlyName(hostname string) string {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return "Direct"
	}

	// Check exact match first
	if name, ok := knownReferrers[hostname]; ok {
		return name
	}

	// Try without www. prefix
	if strings.HasPrefix(hostname, "www.") {
		withoutWWW := hostname[4:]
		if name, ok := knownReferrers[withoutWWW]; ok {
			return name
		}
		hostname = withoutWWW
	}

	// Check if it's a subdomain of a known referrer
	for domain, name := range knownReferrers {
		if strings.HasSuffix(hostname, "."+domain) {
			return name
		}
	}

	// Capitalize first letter for unknown hostnames
	return capitalizeFirst(hostname)
}

// capitalizeFirst capitalizes the first letter of a string
func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
