package websites

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// WebsiteNotFoundError represents an error when a website is not found
type WebsiteNotFoundError struct {
	Domain string
}

func (e *WebsiteNotFoundError) Error() string {
	return fmt.Sprintf("website not found for domain: %s", e.Domain)
}

// NewWebsiteNotFoundError creates a new WebsiteNotFoundError
func NewWebsiteNotFoundError(domain string) *WebsiteNotFoundError {
	return &WebsiteNotFoundError{Domain: domain}
}

// Website represents a tracked website
type Website struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Domain            string    `gorm:"unique;not null" json:"domain"` // Base domain, e.g., "example.com"
	MonthlyEventLimit int64     `gorm:"not null;default:0" json:"monthly_event_limit"` // 0 = unlimited
	CreatedAt         time.Time `json:"created_at"`
}

// GetWebsiteOrNotFound retrieves a Website entry by exact domain match.
// It accepts a transaction to be used as part of a larger transaction process.
func GetWebsiteOrNotFound(tx *gorm.DB, host string) (uint, error) {
	var website Website
	if err := tx.Where("domain = ?", host).First(&website).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, NewWebsiteNotFoundError(host)
		}
		return 0, fmt.Errorf("unexpected error querying website: %w", err)
	}

	return website.ID, nil
}

// ResolveWebsite finds the website a hostname belongs to, trying the exact
// hostname first and then the base domain (so sub.example.com resolves to a
// registered example.com).
func ResolveWebsite(tx *gorm.DB, host string) (*Website, error) {
	var website Website
	err := tx.Where("domain = ?", host).First(&website).Error
	if err == nil {
		return &website, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("unexpected error querying website: %w", err)
	}

	baseDomain := BaseDomainForHost(host)
	if baseDomain == host {
		return nil, NewWebsiteNotFoundError(host)
	}

	err = tx.Where("domain = ?", baseDomain).First(&website).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// Report the original hostname, not the stripped one
			return nil, NewWebsiteNotFoundError(host)
		}
		return nil, fmt.Errorf("unexpected error querying website: %w", err)
	}
	return &website, nil
}

// BaseDomainForHost returns the canonical base domain for a hostname, preserving localhost
// semantics while collapsing known subdomain patterns (e.g. foo.example.com -> example.com).
func BaseDomainForHost(host string) string {
	return stripSubdomains(host)
}

// stripSubdomains extracts the base domain from a hostname
func stripSubdomains(host string) string {
	// Split the hostname into parts
	parts := strings.Split(strings.ToLower(host), ".")
	if len(parts) < 2 {
		return host // e.g., "localhost" -> "localhost"
	}

	// Special case for localhost subdomains (e.g., "sub.localhost" -> "localhost")
	lastPart := parts[len(parts)-1]
	if lastPart == "localhost" {
		return "localhost"
	}

	// Take the last two parts as a simple heuristic (e.g., "example.com")
	// Adjust for common ccTLDs that need three parts (e.g., "co.uk", "com.au")
	secondLast := parts[len(parts)-2] // Second-level domain

	// Country-specific TLDs that use a two-part structure
	ccTLDPatterns := map[string]bool{
		"co.uk":  true, // United Kingdom
		"co.jp":  true, // Japan
		"co.za":  true, // South Africa
		"co.nz":  true, // New Zealand
		"co.in":  true, // India
		"com.au": true, // Australia
		"com.br": true, // Brazil
		"org.uk": true, // UK organizations
		"gov.uk": true, // UK government
		"edu.au": true, // Australia education
		"ac.uk":  true, // UK academic
		"ne.jp":  true, // Japan network
		"or.jp":  true, // Japan organization
	}

	// Check if the last two parts form a known ccTLD pattern
	if len(parts) > 2 {
		twoPartTLD := fmt.Sprintf("%s.%s", secondLast, lastPart)
		if ccTLDPatterns[twoPartTLD] {
			thirdLast := parts[len(parts)-3]
			return fmt.Sprintf("%s.%s.%s", thirdLast, secondLast, lastPart) // e.g., "example.co.uk"
		}
	}

	return fmt.Sprintf("%s.%s", secondLast, lastPart) // e.g., "example.com"
}

// GetAllWebsites retrieves all websites
func GetAllWebsites(db *gorm.DB) ([]Website, error) {
	var websites []Website
	if err := db.Find(&websites).Error; err != nil {
		return nil, fmt.Errorf("failed to get websites: %w", err)
	}
	return websites, nil
}

// GetWebsiteByID retrieves a website by its ID
func GetWebsiteByID(db *gorm.DB, id uint) (Website, error) {
	var website Website
	if err := db.First(&website, id).Error; err != nil {
		return Website{}, err
	}
	return website, nil
}

// GetWebsiteByDomain retrieves a website by its domain
func GetWebsiteByDomain(db *gorm.DB, domain string) (*Website, error) {
	var website Website
	if err := db.Where("domain = ?", domain).First(&website).Error; err != nil {
		return nil, err
	}
	return &website, nil
}

// CreateWebsite creates a new website
func CreateWebsite(db *gorm.DB, website *Website) error {
	website.CreatedAt = time.Now().UTC()
	return db.Create(website).Error
}

// UpdateWebsite updates an existing website
func UpdateWebsite(db *gorm.DB, website *Website) error {
	return db.Save(website).Error
}

// DeleteWebsite deletes a website by its ID
func DeleteWebsite(db *gorm.DB, id uint) error {
	result := db.Delete(&Website{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
