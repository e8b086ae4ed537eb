package quarantine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-file-quarantine/internal/scanner"
	"github.com/Laisky/laisky-file-quarantine/library/objstore"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testClock is a settable clock shared by the manager and the test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scanFunc adapts a function to the Scanner interface.
type scanFunc func(ctx context.Context, content []byte) (scanner.Outcome, error)

func (f scanFunc) Scan(ctx context.Context, content []byte) (scanner.Outcome, error) {
	return f(ctx, content)
}

func cleanScanner(calls *atomic.Int32) Scanner {
	return scanFunc(func(context.Context, []byte) (scanner.Outcome, error) {
		if calls != nil {
			calls.Add(1)
		}
		return scanner.Outcome{Clean: true, ScannerType: scanner.TypeClamAV, ScannedAt: testNow}, nil
	})
}

// recordingAlerter keeps every alert it receives.
type recordingAlerter struct {
	mu     sync.Mutex
	alerts []SecurityAlert
}

func (a *recordingAlerter) Alert(_ context.Context, alert SecurityAlert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
}

func (a *recordingAlerter) All() []SecurityAlert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]SecurityAlert(nil), a.alerts...)
}

// recordingNotifier keeps every notification and optionally fails.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []SecurityAlert
	err     error
}

func (n *recordingNotifier) NotifyInfected(_ context.Context, alert SecurityAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, alert)
	return n.err
}

func (n *recordingNotifier) All() []SecurityAlert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SecurityAlert(nil), n.notices...)
}

// testEnv bundles a manager with its inspectable collaborators.
type testEnv struct {
	m        *Manager
	db       *gorm.DB
	storage  *objstore.Memory
	alerts   *recordingAlerter
	notifier *recordingNotifier
	clock    *testClock
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", name, time.Now().UTC().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func testSettings() Settings {
	return Settings{
		Env:     "test",
		Workers: 1,
		Retry:   RetrySettings{Concurrency: 1},
	}.withDefaults()
}

// newTestManager constructs a manager with deterministic dependencies.
func newTestManager(t *testing.T, settings Settings, scan Scanner) *testEnv {
	t.Helper()
	env := &testEnv{
		db:       newTestDB(t),
		storage:  objstore.NewMemory(),
		alerts:   &recordingAlerter{},
		notifier: &recordingNotifier{},
		clock:    &testClock{now: testNow},
	}

	var seq atomic.Int64
	m, err := NewManager(context.Background(), settings, Dependencies{
		DB:       env.db,
		Storage:  env.storage,
		Scanner:  scan,
		Alerter:  env.alerts,
		Notifier: env.notifier,
		Clock:    env.clock.Now,
		NewID: func() string {
			return fmt.Sprintf("file-%03d", seq.Add(1))
		},
	})
	require.NoError(t, err)
	env.m = m
	return env
}

func (e *testEnv) upload(t *testing.T, orgID, filename, contentType string, content []byte) *UploadResult {
	t.Helper()
	res, err := e.m.UploadWithQuarantine(context.Background(), UploadRequest{
		Content:     content,
		OrgID:       orgID,
		UserID:      "user-1",
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(content)),
	})
	require.NoError(t, err)
	return res
}

// seedRecord inserts a record and its quarantined bytes without scheduling a scan.
func (e *testEnv) seedRecord(t *testing.T, id string, status Status, updatedAt time.Time) *QuarantineRecord {
	t.Helper()
	key := buildQuarantineKey(e.m.settings.QuarantinePrefix, "org-1", updatedAt, id+".txt")
	require.NoError(t, e.m.store.PutQuarantined(context.Background(), key, []byte("seeded "+id), "text/plain", nil))

	rec := &QuarantineRecord{
		ID:            id,
		OrgID:         "org-1",
		UserID:        "user-1",
		Filename:      id + ".txt",
		ContentType:   "text/plain",
		Size:          int64(len("seeded " + id)),
		QuarantineKey: key,
		Status:        status,
		CreatedAt:     updatedAt,
		UpdatedAt:     updatedAt,
	}
	require.NoError(t, e.m.repo.Create(context.Background(), rec))
	return rec
}

func (e *testEnv) status(t *testing.T, id string) *FileStatus {
	t.Helper()
	st, err := e.m.GetQuarantineStatus(context.Background(), id)
	require.NoError(t, err)
	return st
}

func (e *testEnv) record(t *testing.T, id string) *QuarantineRecord {
	t.Helper()
	rec, err := e.m.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return rec
}
