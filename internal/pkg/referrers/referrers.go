// Package referrers maps raw referrer hostnames to display names used in
// reports. Unknown hostnames pass through with light cleanup so long-tail
// referrers still read reasonably.
package referrers

import "strings"

var searchEngines = map[string]string{
	"google.com":     "Google",
	"google.co.uk":   "Google",
	"google.de":      "Google",
	"google.fr":      "Google",
	"google.es":      "Google",
	"google.it":      "Google",
	"google.ca":      "Google",
	"google.com.au":  "Google",
	"google.co.jp":   "Google",
	"google.com.br":  "Google",
	"bing.com":       "Bing",
	"duckduckgo.com": "DuckDuckGo",
	"yahoo.com":      "Yahoo",
	"baidu.com":      "Baidu",
	"yandex.ru":      "Yandex",
	"yandex.com":     "Yandex",
	"ecosia.org":     "Ecosia",
	"startpage.com":  "Startpage",
	"kagi.com":       "Kagi",
	"brave.com":      "Brave Search",
}

var socialNetworks = map[string]string{
	"x.com":           "X/Twitter",
	"twitter.com":     "X/Twitter",
	"t.co":            "X/Twitter",
	"facebook.com":    "Facebook",
	"fb.com":          "Facebook",
	"l.facebook.com":  "Facebook",
	"lm.facebook.com": "Facebook",
	"instagram.com":   "Instagram",
	"l.instagram.com": "Instagram",
	"linkedin.com":    "LinkedIn",
	"lnkd.in":         "LinkedIn",
	"tiktok.com":      "TikTok",
	"pinterest.com":   "Pinterest",
	"reddit.com":      "Reddit",
	"old.reddit.com":  "Reddit",
	"threads.net":     "Threads",
	"bsky.app":        "Bluesky",
	"mastodon.social": "Mastodon",
	"youtube.com":     "YouTube",
	"youtu.be":        "YouTube",
	"snapchat.com":    "Snapchat",
	"discord.com":     "Discord",
	"discordapp.com":  "Discord",
	"whatsapp.com":    "WhatsApp",
	"telegram.org":    "Telegram",
	"t.me":            "Telegram",
	"slack.com":       "Slack",
}

var techAndNews = map[string]string{
	"news.ycombinator.com": "Hacker News",
	"hn.algolia.com":       "Hacker News",
	"lobste.rs":            "Lobsters",
	"producthunt.com":      "Product Hunt",
	"indiehackers.com":     "Indie Hackers",
	"dev.to":               "DEV Community",
	"hashnode.com":         "Hashnode",
	"medium.com":           "Medium",
	"substack.com":         "Substack",
	"hackernoon.com":       "HackerNoon",
	"slashdot.org":         "Slashdot",
	"techcrunch.com":       "TechCrunch",
	"theverge.com":         "The Verge",
	"arstechnica.com":      "Ars Technica",
	"wired.com":            "Wired",
	"github.com":           "GitHub",
	"gitlab.com":           "GitLab",
	"stackoverflow.com":    "Stack Overflow",
	"quora.com":            "Quora",
	"nytimes.com":          "NY Times",
	"washingtonpost.com":   "Washington Post",
	"theguardian.com":      "The Guardian",
	"bbc.com":              "BBC",
	"bbc.co.uk":            "BBC",
	"cnn.com":              "CNN",
	"reuters.com":          "Reuters",
	"bloomberg.com":        "Bloomberg",
	"forbes.com":           "Forbes",
	"wsj.com":              "WSJ",
	"ft.com":               "Financial Times",
}

var mailAndShorteners = map[string]string{
	"mail.google.com":    "Gmail",
	"outlook.live.com":   "Outlook",
	"outlook.office.com": "Outlook",
	"mail.yahoo.com":     "Yahoo Mail",
	"protonmail.com":     "Proton Mail",
	"mail.proton.me":     "Proton Mail",
	"bit.ly":             "Bitly",
	"tinyurl.com":        "TinyURL",
	"goo.gl":             "Google Links",
	"ow.ly":              "Hootsuite",
}

// byHostname is the merged lookup table, built once at init.
var byHostname = func() map[string]string {
	merged := make(map[string]string, 128)
	for _, group := range []map[string]string{searchEngines, socialNetworks, techAndNews, mailAndShorteners} {
		for hostname, name := range group {
			merged[hostname] = name
		}
	}
	return merged
}()

// FriendlyName returns the display name for a referrer hostname. Subdomains
// resolve to their registered parent (m.facebook.com reads as Facebook).
// Unknown hostnames come back with the www. prefix stripped and the first
// letter capitalized.
func FriendlyName(hostname string) string {
	hostname = strings.TrimSuffix(strings.ToLower(hostname), ".")
	hostname = strings.TrimPrefix(hostname, "www.")

	// Walk the labels from most to least specific so m.facebook.com hits
	// facebook.com without scanning the whole table
	candidate := hostname
	for {
		if name, ok := byHostname[candidate]; ok {
			return name
		}
		idx := strings.Index(candidate, ".")
		if idx < 0 {
			break
		}
		candidate = candidate[idx+1:]
	}

	if hostname == "" {
		return hostname
	}
	return strings.ToUpper(hostname[:1]) + hostname[1:]
}
