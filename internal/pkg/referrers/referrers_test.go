package referrers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pulsetrack/internal/pkg/referrers"
)

func TestFriendlyNameKnownHosts(t *testing.T) {
	assert.Equal(t, "Google", referrers.FriendlyName("google.com"))
	assert.Equal(t, "Hacker News", referrers.FriendlyName("news.ycombinator.com"))
	assert.Equal(t, "X/Twitter", referrers.FriendlyName("t.co"))
	assert.Equal(t, "Reddit", referrers.FriendlyName("old.reddit.com"))
	assert.Equal(t, "Gmail", referrers.FriendlyName("mail.google.com"))
	assert.Equal(t, "Bitly", referrers.FriendlyName("bit.ly"))
}

func TestFriendlyNameSubdomainsResolveToParent(t *testing.T) {
	tests := []struct {
		hostname string
		expected string
	}{
		{"m.facebook.com", "Facebook"},
		{"mobile.twitter.com", "X/Twitter"},
		{"out.reddit.com", "Reddit"},
		{"away.vk.com.google.com", "Google"},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			assert.Equal(t, tt.expected, referrers.FriendlyName(tt.hostname))
		})
	}
}

func TestFriendlyNameNormalizesInput(t *testing.T) {
	assert.Equal(t, "Google", referrers.FriendlyName("GOOGLE.COM"))
	assert.Equal(t, "Hacker News", referrers.FriendlyName("News.Ycombinator.Com"))
	assert.Equal(t, "Google", referrers.FriendlyName("www.google.com"))
	assert.Equal(t, "Google", referrers.FriendlyName("google.com."))
}

func TestFriendlyNameUnknownHostsPassThrough(t *testing.T) {
	assert.Equal(t, "Example.com", referrers.FriendlyName("example.com"))
	assert.Equal(t, "Example.com", referrers.FriendlyName("www.example.com"))
	assert.Equal(t, "Myblog.io", referrers.FriendlyName("myblog.io"))
	assert.Equal(t, "", referrers.FriendlyName(""))
}
