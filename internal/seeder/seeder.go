// Package seeder generates realistic sample traffic for local development.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"pulsetrack/internal/events"
	"pulsetrack/internal/sessions"
	"pulsetrack/internal/visitors"
	"pulsetrack/internal/websites"
)

const insertBatchSize = 500

var defaultDomains = []string{
	"demo.example.com",
	"shop.example.org",
	"blog.example.net",
}

type Seeder struct {
	dbManager  cartridge.DBManager
	logger     *slog.Logger
	EventCount int
	rng        *rand.Rand
}

func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, eventCount int) *Seeder {
	return &Seeder{
		dbManager:  dbManager,
		logger:     logger,
		EventCount: eventCount,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run seeds the default demo domains, splitting the event budget between them.
func (s *Seeder) Run(ctx context.Context) error {
	perDomain := s.EventCount / len(defaultDomains)
	if perDomain == 0 {
		perDomain = 1
	}

	for _, domain := range defaultDomains {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.seedOne(ctx, domain, perDomain); err != nil {
			return err
		}
	}
	return nil
}

// SeedDomain seeds a single domain with the full event budget.
func (s *Seeder) SeedDomain(ctx context.Context, domain string) error {
	return s.seedOne(ctx, domain, s.EventCount)
}

func (s *Seeder) seedOne(ctx context.Context, domain string, eventTotal int) error {
	db := s.dbManager.GetConnection()

	website, err := s.ensureWebsite(db, domain)
	if err != nil {
		return err
	}

	s.logger.Info("Seeding website",
		slog.String("domain", domain),
		slog.Int("events", eventTotal))

	ipPool := generateIPPool(100)
	agents := userAgentPool()
	resolve := visitors.NewResolver("seed-private-key")

	rows := make([]*events.Event, 0, insertBatchSize)
	liveSessions := make(map[string]*sessions.ActiveSession)
	created := 0

	for created < eventTotal {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		journey := journeyTemplates[s.rng.Intn(len(journeyTemplates))]
		ip := ipPool[s.rng.Intn(len(ipPool))]
		agent := agents[s.rng.Intn(len(agents))]
		visitorID := resolve(domain, ip, agent.raw)
		sessionID := uuid.NewString()
		referrer := referrerPool()[s.rng.Intn(len(referrerPool()))]

		// Spread visits over the past 30 days, recent days weighted heavier
		age := time.Duration(s.rng.Intn(30*24)) * time.Hour / time.Duration(1+s.rng.Intn(3))
		visitStart := time.Now().UTC().Add(-age)

		for step, path := range journey {
			if created >= eventTotal {
				break
			}
			ts := visitStart.Add(time.Duration(step) * time.Duration(20+s.rng.Intn(120)) * time.Second)

			ref := events.DirectOrUnknownReferrer
			if step == 0 && referrer != "" {
				ref = referrer
			}

			row := &events.Event{
				RecordID:         ulid.Make().String(),
				WebsiteID:        website.ID,
				VisitorID:        visitorID,
				SessionID:        sessionID,
				Hostname:         domain,
				Pathname:         path,
				RawURL:           fmt.Sprintf("https://%s%s", domain, path),
				ReferrerHostname: ref,
				EventType:        events.EventTypePageView,
				Browser:          agent.browser,
				BrowserVersion:   agent.browserVersion,
				OperatingSystem:  agent.os,
				OSVersion:        agent.osVersion,
				DeviceType:       agent.device,
				ScreenWidth:      agent.screenWidth,
				ScreenHeight:     agent.screenHeight,
				Language:         "en-us",
				Country:          countryPool[s.rng.Intn(len(countryPool))],
				Timestamp:        ts,
				CreatedAt:        ts,
			}
			rows = append(rows, row)
			created++

			// Occasionally sprinkle a custom event into the visit
			if step > 0 && s.rng.Intn(10) == 0 && created < eventTotal {
				custom := customEventPool[s.rng.Intn(len(customEventPool))]
				meta, _ := json.Marshal(custom.metadata)
				rows = append(rows, &events.Event{
					RecordID:         ulid.Make().String(),
					WebsiteID:        website.ID,
					VisitorID:        visitorID,
					SessionID:        sessionID,
					Hostname:         domain,
					Pathname:         path,
					RawURL:           fmt.Sprintf("https://%s%s", domain, path),
					ReferrerHostname: events.DirectOrUnknownReferrer,
					EventType:        events.EventTypeCustomEvent,
					CustomEventName:  custom.name,
					CustomEventMeta:  string(meta),
					Browser:          agent.browser,
					OperatingSystem:  agent.os,
					DeviceType:       agent.device,
					Language:         "en-us",
					Country:          row.Country,
					Timestamp:        ts.Add(5 * time.Second),
					CreatedAt:        ts,
				})
				created++
			}

			// Visits from the last few minutes should also appear as live sessions
			if time.Since(ts) < 10*time.Minute {
				key := fmt.Sprintf("%d:%s", website.ID, visitorID)
				live, ok := liveSessions[key]
				if !ok {
					live = &sessions.ActiveSession{
						SessionID: sessionID,
						WebsiteID: website.ID,
						VisitorID: visitorID,
						StartedAt: ts,
						EntryPage: path,
						Browser:   agent.browser,
						Referrer:  ref,
					}
					liveSessions[key] = live
				}
				live.LastActivity = ts
				live.ExitPage = path
				live.Pageviews++
			}

			if len(rows) >= insertBatchSize {
				if err := s.insertEvents(db, rows); err != nil {
					return err
				}
				rows = rows[:0]
			}
		}
	}

	if len(rows) > 0 {
		if err := s.insertEvents(db, rows); err != nil {
			return err
		}
	}

	if err := s.insertSessions(db, liveSessions); err != nil {
		return err
	}

	s.logger.Info("Seeded website",
		slog.String("domain", domain),
		slog.Int("events", created),
		slog.Int("live_sessions", len(liveSessions)))
	return nil
}

func (s *Seeder) ensureWebsite(db *gorm.DB, domain string) (*websites.Website, error) {
	if existing, err := websites.GetWebsiteByDomain(db, domain); err == nil {
		return existing, nil
	}

	website := &websites.Website{Domain: domain}
	if err := websites.CreateWebsite(db, website); err != nil {
		return nil, fmt.Errorf("failed to create website %s: %w", domain, err)
	}
	return website, nil
}

func (s *Seeder) insertEvents(db *gorm.DB, rows []*events.Event) error {
	return sqlite.PerformWrite(s.logger, db, func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

func (s *Seeder) insertSessions(db *gorm.DB, liveSessions map[string]*sessions.ActiveSession) error {
	if len(liveSessions) == 0 {
		return nil
	}
	store := sessions.NewStore(db, s.logger)
	for _, session := range liveSessions {
		update := sessions.Update{
			SessionID: session.SessionID,
			WebsiteID: session.WebsiteID,
			VisitorID: session.VisitorID,
			Timestamp: session.LastActivity,
			Pageviews: session.Pageviews,
			Pathname:  session.ExitPage,
			Browser:   session.Browser,
			Referrer:  session.Referrer,
		}
		if err := store.Apply(update); err != nil {
			return err
		}
	}
	return nil
}

// sample data pools

type sampleAgent struct {
	raw            string
	browser        string
	browserVersion string
	os             string
	osVersion      string
	device         string
	screenWidth    int
	screenHeight   int
}

func userAgentPool() []sampleAgent {
	return []sampleAgent{
		{
			raw:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			browser: "Chrome", browserVersion: "126.0.0.0", os: "Windows", osVersion: "10.0",
			device: "desktop", screenWidth: 1920, screenHeight: 1080,
		},
		{
			raw:     "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
			browser: "Safari", browserVersion: "17.5", os: "macOS", osVersion: "14.5",
			device: "desktop", screenWidth: 2560, screenHeight: 1440,
		},
		{
			raw:     "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
			browser: "Safari", browserVersion: "17.5", os: "iOS", osVersion: "17.5",
			device: "mobile", screenWidth: 393, screenHeight: 852,
		},
		{
			raw:     "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
			browser: "Chrome", browserVersion: "126.0.0.0", os: "Android", osVersion: "14",
			device: "mobile", screenWidth: 412, screenHeight: 915,
		},
		{
			raw:     "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
			browser: "Firefox", browserVersion: "127.0", os: "Linux",
			device: "desktop", screenWidth: 1920, screenHeight: 1200,
		},
		{
			raw:     "Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
			browser: "Safari", browserVersion: "17.5", os: "iOS", osVersion: "17.5",
			device: "tablet", screenWidth: 820, screenHeight: 1180,
		},
	}
}

func referrerPool() []string {
	return []string{
		"", "", "", // most traffic is direct
		"www.google.com",
		"duckduckgo.com",
		"news.ycombinator.com",
		"t.co",
		"www.reddit.com",
	}
}

var journeyTemplates = [][]string{
	{"/", "/about", "/contact"},
	{"/", "/features", "/pricing", "/signup"},
	{"/", "/blog", "/blog/article-1", "/signup"},
	{"/pricing", "/features", "/signup"},
	{"/", "/docs", "/docs/getting-started", "/docs/api-reference"},
	{"/", "/blog", "/blog/article-1", "/blog/article-2"},
	{"/", "/signup"},
	{"/login", "/dashboard", "/settings"},
}

var countryPool = []string{"us", "de", "gb", "fr", "es", "nl", "se", "jp", "br", "ca"}

var customEventPool = []struct {
	name     string
	metadata map[string]interface{}
}{
	{name: "newsletter_signup", metadata: map[string]interface{}{"source": "footer"}},
	{name: "demo_requested", metadata: map[string]interface{}{"plan": "enterprise"}},
	{name: "download_started", metadata: map[string]interface{}{"filename": "whitepaper.pdf"}},
	{name: "contact_form_submitted", metadata: map[string]interface{}{"page": "/contact"}},
}

func generateIPPool(count int) []string {
	pool := make([]string, 0, count)
	for i := 0; i < count; i++ {
		pool = append(pool, fmt.Sprintf("93.%d.%d.%d",
			rand.Intn(200)+1, rand.Intn(254)+1, rand.Intn(254)+1))
	}
	return pool
}
