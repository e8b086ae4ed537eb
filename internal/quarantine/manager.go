package quarantine

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	gutils "github.com/Laisky/go-utils/v6"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-file-quarantine/internal/scanner"
	"github.com/Laisky/laisky-file-quarantine/internal/verifier"
	"github.com/Laisky/laisky-file-quarantine/library/log"
	"github.com/Laisky/laisky-file-quarantine/library/objstore"
)

// Scanner produces a verdict for file content.
type Scanner interface {
	Scan(ctx context.Context, content []byte) (scanner.Outcome, error)
}

// Dependencies wires the collaborators of a Manager. Only DB, Storage and
// Scanner are required.
type Dependencies struct {
	DB       *gorm.DB
	Storage  objstore.Storage
	Scanner  Scanner
	Verifier *verifier.Verifier
	Alerter  Alerter
	Notifier Notifier
	Locks    LockProvider
	Logger   logSDK.Logger
	Clock    Clock
	NewID    func() string
}

// Manager owns the quarantine lifecycle of uploaded files.
type Manager struct {
	settings Settings
	repo     *Repository
	store    *Store
	scanner  Scanner
	verifier *verifier.Verifier
	alerter  Alerter
	notifier Notifier
	locks    LockProvider
	pool     *ScanPool
	logger   logSDK.Logger
	clock    Clock
	newID    func() string

	notifyWG sync.WaitGroup
}

// NewManager migrates the metadata schema and constructs a Manager.
func NewManager(ctx context.Context, settings Settings, deps Dependencies) (*Manager, error) {
	if deps.DB == nil {
		return nil, errors.New("db is required")
	}
	if deps.Storage == nil {
		return nil, errors.New("object storage is required")
	}
	if deps.Scanner == nil {
		return nil, errors.New("scanner is required")
	}

	settings = settings.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = log.Logger.Named("quarantine")
	}
	if err := RunMigrations(ctx, deps.DB, logger); err != nil {
		return nil, errors.Wrap(err, "migrate quarantine schema")
	}

	m := &Manager{
		settings: settings,
		repo:     NewRepository(deps.DB),
		store:    NewStore(deps.Storage, settings),
		scanner:  deps.Scanner,
		verifier: deps.Verifier,
		alerter:  deps.Alerter,
		notifier: deps.Notifier,
		locks:    deps.Locks,
		logger:   logger,
		clock:    deps.Clock,
		newID:    deps.NewID,
	}
	if m.verifier == nil {
		m.verifier = verifier.New(settings.Scan.KnownBadHashes...)
	}
	if m.alerter == nil {
		m.alerter = NewWebhookAlerter(settings.Alert, logger.Named("alert"))
	}
	if m.notifier == nil {
		m.notifier = NewWebhookNotifier(settings.Notify, nil, logger.Named("notify"))
	}
	if m.locks == nil {
		m.locks = NewLocalLockProvider()
	}
	if m.clock == nil {
		m.clock = func() time.Time { return time.Now().UTC() }
	}
	if m.newID == nil {
		m.newID = func() string { return gutils.UUID7Bytes().String() }
	}
	if err := m.store.EnsureBucket(ctx); err != nil {
		return nil, errors.Wrap(err, "ensure quarantine bucket")
	}
	m.pool = NewScanPool(settings.Workers, logger.Named("pool"))

	return m, nil
}

// Settings returns the effective settings.
func (m *Manager) Settings() Settings {
	return m.settings
}

// Wait blocks until background scans and notifications have finished.
func (m *Manager) Wait() {
	m.pool.Wait()
	m.notifyWG.Wait()
}

// UploadWithQuarantine stores content in quarantine, records it as SCANNING and
// schedules a background scan. It returns before the scan runs.
func (m *Manager) UploadWithQuarantine(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	logger := m.loggerFrom(ctx)
	if err := m.validateUpload(req); err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	now := m.clock()
	id := m.newID()
	key := buildQuarantineKey(m.settings.QuarantinePrefix, req.OrgID, now, req.Filename)
	contentHash := verifier.SHA256Hex(req.Content)
	logger = logger.With(zap.String("file_id", id), zap.String("org_id", req.OrgID))

	sig := m.verifier.VerifySignature(req.Content, req.ContentType)
	if !sig.Valid {
		logger.Warn("content signature does not match declared type",
			zap.String("claimed_type", sig.ClaimedType),
			zap.String("detected_type", sig.DetectedType),
			zap.String("filename", req.Filename))
	}

	metadata := map[string]string{
		"record-id":    id,
		"org-id":       req.OrgID,
		"content-hash": contentHash,
	}
	if err := m.store.PutQuarantined(ctx, key, req.Content, req.ContentType, metadata); err != nil {
		uploadsTotal.WithLabelValues("storage_failure").Inc()
		logger.Error("store upload in quarantine", zap.Error(err), zap.String("key", key))
		return nil, NewError(ErrCodeStorageFailure, "store upload in quarantine: "+err.Error(), true)
	}

	rec := &QuarantineRecord{
		ID:             id,
		OrgID:          req.OrgID,
		UserID:         req.UserID,
		Filename:       req.Filename,
		ContentType:    req.ContentType,
		Size:           int64(len(req.Content)),
		ContentHash:    contentHash,
		QuarantineKey:  key,
		Status:         StatusScanning,
		SignatureValid: sig.Valid,
		DetectedType:   sig.DetectedType,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.repo.Create(ctx, rec); err != nil {
		uploadsTotal.WithLabelValues("metadata_failure").Inc()
		if delErr := m.store.DeleteIfExists(context.WithoutCancel(ctx), key); delErr != nil {
			logger.Error("remove orphaned quarantine object", zap.Error(delErr), zap.String("key", key))
		}
		return nil, errors.Wrap(err, "record upload")
	}

	m.pool.Submit(ctx, func(ctx context.Context) error {
		return m.processRecord(ctx, id)
	}, func(ctx context.Context, err error) {
		m.failRecord(ctx, id, err)
	})

	uploadsTotal.WithLabelValues("accepted").Inc()
	logger.Info("upload quarantined",
		zap.String("key", key),
		zap.Int64("size", rec.Size),
		zap.String("content_hash", contentHash))

	return &UploadResult{
		ID:                   id,
		Status:               StatusScanning,
		EstimatedTimeSeconds: m.estimateSeconds(rec.Size),
		QuarantineKey:        key,
	}, nil
}

func (m *Manager) validateUpload(req UploadRequest) error {
	switch {
	case len(req.Content) == 0:
		return NewError(ErrCodeInvalidArgument, "file content is empty", false)
	case strings.TrimSpace(req.OrgID) == "":
		return NewError(ErrCodeInvalidArgument, "org id is required", false)
	case strings.TrimSpace(req.UserID) == "":
		return NewError(ErrCodeInvalidArgument, "user id is required", false)
	case strings.TrimSpace(req.Filename) == "":
		return NewError(ErrCodeInvalidArgument, "filename is required", false)
	case req.Size != int64(len(req.Content)):
		return NewError(ErrCodeInvalidArgument, "declared size does not match content length", false)
	case req.Size > m.settings.MaxFileBytes:
		return NewError(ErrCodePayloadTooLarge, "file exceeds the maximum upload size", false)
	}
	return nil
}

// estimateSeconds scales with size and is clamped to the configured bounds.
func (m *Manager) estimateSeconds(size int64) int {
	est := m.settings.Estimate
	seconds := int(math.Ceil(float64(size) / (1 << 20) * est.SecondsPerMB))
	return max(est.MinSeconds, min(seconds, est.MaxSeconds))
}

type loggerCtxKey struct{}

// WithLogger attaches a request-scoped logger used by manager operations.
func WithLogger(ctx context.Context, logger logSDK.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

func (m *Manager) loggerFrom(ctx context.Context) logSDK.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerCtxKey{}).(logSDK.Logger); ok && logger != nil {
			return logger
		}
		if _, ok := gmw.GetGinCtxFromStdCtx(ctx); ok {
			return gmw.GetLogger(ctx).Named("quarantine")
		}
	}
	return m.logger
}
