package websites_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"pulsetrack/internal/testsupport"
	"pulsetrack/internal/websites"
)

func TestBaseDomainForHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"example.com", "example.com"},
		{"www.example.com", "example.com"},
		{"a.b.example.com", "example.com"},
		{"Example.COM", "example.com"},
		{"localhost", "localhost"},
		{"app.localhost", "localhost"},
		{"example.co.uk", "example.co.uk"},
		{"www.example.co.uk", "example.co.uk"},
		{"shop.example.com.au", "example.com.au"},
		{"example.org", "example.org"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, websites.BaseDomainForHost(tt.host))
		})
	}
}

func TestResolveWebsiteExactMatch(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	created := testsupport.CreateTestWebsite(db, "example.com")

	website, err := websites.ResolveWebsite(db, "example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, website.ID)
}

func TestResolveWebsiteFallsBackToBaseDomain(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	created := testsupport.CreateTestWebsite(db, "example.com")

	website, err := websites.ResolveWebsite(db, "blog.example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, website.ID)
}

func TestResolveWebsitePrefersExactSubdomainRegistration(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestWebsite(db, "example.com")
	sub := testsupport.CreateTestWebsite(db, "docs.example.com")

	website, err := websites.ResolveWebsite(db, "docs.example.com")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, website.ID)
}

func TestResolveWebsiteNotFoundReportsOriginalHost(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestWebsite(db, "example.com")

	_, err := websites.ResolveWebsite(db, "blog.other.io")
	var notFound *websites.WebsiteNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "blog.other.io", notFound.Domain)
}

func TestGetWebsiteOrNotFound(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	created := testsupport.CreateTestWebsite(db, "example.com")

	id, err := websites.GetWebsiteOrNotFound(db, "example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, id)

	_, err = websites.GetWebsiteOrNotFound(db, "missing.com")
	var notFound *websites.WebsiteNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestCreateAndDeleteWebsite(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	website := websites.Website{Domain: "fresh.example", MonthlyEventLimit: 500}
	require.NoError(t, websites.CreateWebsite(db, &website))
	require.NotZero(t, website.ID)
	assert.False(t, website.CreatedAt.IsZero())

	all, err := websites.GetAllWebsites(db)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(500), all[0].MonthlyEventLimit)

	require.NoError(t, websites.DeleteWebsite(db, website.ID))
	assert.ErrorIs(t, websites.DeleteWebsite(db, website.ID), gorm.ErrRecordNotFound)
}
