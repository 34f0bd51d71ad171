// Package useragent detects browser, operating system and device class from
// raw User-Agent strings using an embedded, device-detector style rule set.
package useragent

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// UserAgent is the structured result of parsing one User-Agent header.
type UserAgent struct {
	Raw            string
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	Mobile         bool
	Tablet         bool
	Desktop        bool
	Bot            bool
	BotName        string
}

//go:embed rules/browsers.yml
//go:embed rules/oss.yml
//go:embed rules/bots.yml
var ruleFiles embed.FS

// browserRule matches a browser family with an optional version capture
type browserRule struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type osRule struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type botRule struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

// regexCache compiles PCRE patterns once and reuses them across requests
type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

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

// Global parser instance
var (
	parser *ruleParser
	once   sync.Once
)

type ruleParser struct {
	browsers []browserRule
	oss      []osRule
	bots     []botRule
	cache    *regexCache
}

func getParser() *ruleParser {
	once.Do(func() {
		parser = &ruleParser{cache: newRegexCache()}

		if data, err := ruleFiles.ReadFile("rules/browsers.yml"); err == nil {
			yaml.Unmarshal(data, &parser.browsers)
		}
		if data, err := ruleFiles.ReadFile("rules/oss.yml"); err == nil {
			yaml.Unmarshal(data, &parser.oss)
		}
		if data, err := ruleFiles.ReadFile("rules/bots.yml"); err == nil {
			yaml.Unmarshal(data, &parser.bots)
		}
	})
	return parser
}

// Parse detects browser, OS, device class and bot status for a raw
// User-Agent string. An empty string yields a zero result with no flags set.
func Parse(rawUA string) UserAgent {
	result := UserAgent{Raw: rawUA}
	if rawUA == "" {
		return result
	}

	p := getParser()

	if name, ok := p.matchBot(rawUA); ok {
		result.Bot = true
		result.BotName = name
		return result
	}

	result.Browser, result.BrowserVersion = p.matchBrowser(rawUA)
	result.OS, result.OSVersion = p.matchOS(rawUA)

	result.Tablet = isTablet(rawUA)
	result.Mobile = !result.Tablet && isMobile(rawUA)
	// Only claim desktop when the UA gave some real signal; otherwise leave
	// the device call to the screen-size fallback.
	result.Desktop = !result.Tablet && !result.Mobile &&
		(result.Browser != "" || result.OS != "")

	return result
}

func (p *ruleParser) matchBot(userAgent string) (string, bool) {
	for _, bot := range p.bots {
		regex, err := p.cache.get(bot.Regex)
		if err != nil {
			continue
		}
		if regex.MatchString(userAgent) {
			return bot.Name, true
		}
	}
	return "", false
}

func (p *ruleParser) matchBrowser(userAgent string) (string, string) {
	for _, entry := range p.browsers {
		regex, err := p.cache.get(entry.Regex)
		if err != nil {
			continue
		}
		if matches := regex.FindStringSubmatch(userAgent); len(matches) > 0 {
			return entry.Name, expandVersion(entry.Version, matches)
		}
	}
	return "", ""
}

func (p *ruleParser) matchOS(userAgent string) (string, string) {
	for _, entry := range p.oss {
		regex, err := p.cache.get(entry.Regex)
		if err != nil {
			continue
		}
		if matches := regex.FindStringSubmatch(userAgent); len(matches) > 0 {
			return entry.Name, expandVersion(entry.Version, matches)
		}
	}
	return "", ""
}

// expandVersion substitutes $1, $2, ... capture placeholders and normalizes
// underscore-separated versions (Apple platforms report 17_4_1).
func expandVersion(template string, matches []string) string {
	if template == "" {
		return ""
	}
	version := template
	for i, match := range matches[1:] {
		placeholder := fmt.Sprintf("$%d", i+1)
		version = strings.ReplaceAll(version, placeholder, match)
	}
	return strings.ReplaceAll(version, "_", ".")
}

func isTablet(userAgent string) bool {
	if strings.Contains(userAgent, "iPad") || strings.Contains(userAgent, "Tablet") {
		return true
	}
	// Android without the Mobile token is a tablet by convention
	return strings.Contains(userAgent, "Android") && !strings.Contains(userAgent, "Mobile")
}

func isMobile(userAgent string) bool {
	return strings.Contains(userAgent, "Mobi") ||
		strings.Contains(userAgent, "iPhone") ||
		strings.Contains(userAgent, "iPod") ||
		strings.Contains(userAgent, "Windows Phone")
}
