package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Resolver turns a client IP and raw user agent into a pseudonymous visitor
// identifier for one website. The pipeline treats it as an external
// collaborator so tests can substitute a deterministic implementation.
type Resolver func(website, ipAddress, userAgent string) string

// NewResolver returns the default resolver bound to the configured private key.
func NewResolver(privateKey string) Resolver {
	return func(website, ipAddress, userAgent string) string {
		return BuildVisitorID(website, ipAddress, userAgent, privateKey)
	}
}

// BuildVisitorID creates a privacy-first unique visitor identifier.
// The signature rotates daily at midnight UTC, ensuring visitors cannot be
// tracked across days. IP addresses are never stored - only used in hashing.
func BuildVisitorID(website, ipAddress, userAgent, salt string) string {
	// Daily rotating signature - visitors reset at midnight UTC
	today := time.Now().UTC().Format("2006-01-02")
	dailySalt := fmt.Sprintf("%s-%s", today, salt)
	data := fmt.Sprintf("%s.%s.%s.%s", dailySalt, website, ipAddress, userAgent)

	// Create a SHA-256 hash (IP address is never stored, only hashed)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
