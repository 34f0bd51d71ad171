package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/karloscodes/cartridge/cache"

	"pulsetrack/internal"
	"pulsetrack/internal/config"
	"pulsetrack/internal/events"
	pulsehttp "pulsetrack/internal/http"
	"pulsetrack/internal/queue"
	"pulsetrack/internal/quota"
	"pulsetrack/internal/sessions"
	"pulsetrack/internal/settings"
	"pulsetrack/internal/websites"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with pulsetrack's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all pulsetrack models for migration
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&events.Event{},
		&sessions.ActiveSession{},
		&websites.Website{},
		&quota.OverLimitSite{},
		&settings.Setting{},
	}
}

// SetupTestDB creates a test database with all pulsetrack models migrated.
// Uses a named in-memory database with cache=shared to allow multiple
// connections to share the same database within a test. Caches the database
// by test name so multiple calls within the same test return the same one.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	// Create a unique named in-memory database for each test
	// cache=shared allows multiple connections to the same database
	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}

	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set PULSETRACK_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// SetupTestDBManagerWithWebsite creates a test database manager with a test website
func SetupTestDBManagerWithWebsite(t *testing.T, domain string) (*TestDBManager, *slog.Logger, websites.Website) {
	dbManager, logger := SetupTestDBManager(t)
	website := CreateTestWebsite(dbManager.GetConnection(), domain)
	return dbManager, logger, website
}

// CreateTestWebsite creates a test website in the database
func CreateTestWebsite(db *gorm.DB, domain string) websites.Website {
	var website websites.Website
	if db.Where("domain = ?", domain).First(&website).Error != nil {
		website = websites.Website{Domain: domain, CreatedAt: time.Now().UTC()}
		db.Create(&website)
	}
	return website
}

// CreateMinimalTestApp creates a test Fiber app with all routes mounted and a
// fresh ingestion pipeline bound to db. The returned queue is the one the
// event handlers enqueue into, so tests can observe what was accepted.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) (*fiber.App, *queue.Memory) {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	logger := GetLogger()
	gate := quota.NewGate(logger)
	memoryQueue := queue.NewMemory(64, logger)
	pulsehttp.SetIngestionStatus(gate, memoryQueue)

	store := sessions.NewStore(db, logger)
	normalizer := NewTestNormalizer(time.Now().UTC())
	collector := events.NewCollector(dbManager, logger, gate, memoryQueue, normalizer, store, nil)
	events.SetDefaultCollector(collector)

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = logger
	cfg.DBManager = dbManager
	cfg.StaticDirectory = t.TempDir()
	cfg.StaticPrefix = appConfig.PublicAssetsUrlPrefix
	cfg.TemplatesDirectory = cfg.StaticDirectory

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App(), memoryQueue
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// NewTestNormalizer returns a normalizer with deterministic collaborators:
// visitor ids derive from a fixed key, geo lookups are disabled, and time is
// pinned to the given instant.
func NewTestNormalizer(now time.Time) *events.Normalizer {
	n := events.NewNormalizer("test-private-key")
	n.CountryCode = func(string) string { return "" }
	n.Now = func() time.Time { return now }
	return n
}

// CreateTestRawInput builds a valid page view payload for the given site
func CreateTestRawInput(domain, path string) events.RawTrackingInput {
	return events.RawTrackingInput{
		URL:          fmt.Sprintf("https://%s%s", domain, path),
		ScreenWidth:  1920,
		ScreenHeight: 1080,
		Language:     "en-US",
	}
}

// CreateTestCollectInput wraps a raw payload with request metadata
func CreateTestCollectInput(ip, userAgent string, raw events.RawTrackingInput) *events.CollectEventInput {
	return &events.CollectEventInput{
		IPAddress: ip,
		UserAgent: userAgent,
		Raw:       raw,
	}
}
