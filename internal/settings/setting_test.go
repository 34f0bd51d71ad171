package settings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsetrack/internal/settings"
	"pulsetrack/internal/testsupport"
)

func TestSetupDefaultSettings(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	require.NoError(t, settings.SetupDefaultSettings(db))

	value, err := settings.GetSetting(db, settings.KeyExcludedIPs)
	require.NoError(t, err)
	assert.Equal(t, "", value)

	// Running again must not clobber existing values
	require.NoError(t, settings.UpdateSetting(db, settings.KeyExcludedIPs, "10.0.0.1"))
	require.NoError(t, settings.SetupDefaultSettings(db))

	value, err = settings.GetSetting(db, settings.KeyExcludedIPs)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", value)
}

func TestExcludedIPs(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	require.NoError(t, settings.SetupDefaultSettings(db))

	excluded, err := settings.IsIPExcluded("203.0.113.5")
	require.NoError(t, err)
	assert.False(t, excluded, "empty list excludes nothing")

	require.NoError(t, settings.SetExcludedIPs(db, []string{"203.0.113.5", " 198.51.100.7 ", ""}))

	excluded, err = settings.IsIPExcluded("203.0.113.5")
	require.NoError(t, err)
	assert.True(t, excluded)

	excluded, err = settings.IsIPExcluded("198.51.100.7")
	require.NoError(t, err)
	assert.True(t, excluded, "entries are trimmed before matching")

	excluded, err = settings.IsIPExcluded("192.0.2.1")
	require.NoError(t, err)
	assert.False(t, excluded)

	// Clearing the list takes effect immediately
	require.NoError(t, settings.SetExcludedIPs(db, nil))
	excluded, err = settings.IsIPExcluded("203.0.113.5")
	require.NoError(t, err)
	assert.False(t, excluded)
}

func TestAdminTokenLifecycle(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	require.NoError(t, settings.SetupDefaultSettings(db))

	err := settings.VerifyAdminToken(db, "anything")
	require.ErrorIs(t, err, settings.ErrNoAdminToken)

	token, err := settings.RotateAdminToken(db)
	require.NoError(t, err)
	require.Len(t, token, 32)

	require.NoError(t, settings.VerifyAdminToken(db, token))
	require.Error(t, settings.VerifyAdminToken(db, "wrong-token"))

	// Only the stored hash survives; the plaintext is never written
	stored, err := settings.GetSetting(db, settings.KeyAdminTokenHash)
	require.NoError(t, err)
	assert.NotEqual(t, token, stored)
	assert.Contains(t, stored, "$2a$", "value must be a bcrypt hash")

	// Rotation invalidates the previous token
	next, err := settings.RotateAdminToken(db)
	require.NoError(t, err)
	assert.NotEqual(t, token, next)
	require.NoError(t, settings.VerifyAdminToken(db, next))
	require.Error(t, settings.VerifyAdminToken(db, token))
}
