package quarantine

import (
	"context"
	"strings"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-file-quarantine/library/log"
)

// RunMigrations ensures the quarantine table and its indexes exist.
func RunMigrations(ctx context.Context, db *gorm.DB, logger logSDK.Logger) error {
	if db == nil {
		return errors.New("gorm db is required")
	}
	if logger == nil {
		logger = log.Logger.Named("quarantine_migration")
	}

	if err := db.WithContext(ctx).AutoMigrate(&QuarantineRecord{}); err != nil {
		return errors.Wrap(err, "auto migrate quarantine tables")
	}

	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_quarantine_records_org_status ON quarantine_records (org_id, status, created_at)`,
	}
	if isPostgresDialect(db) {
		statements = append(statements,
			`CREATE INDEX IF NOT EXISTS idx_quarantine_records_retry ON quarantine_records (created_at, id) WHERE status = 'ERROR' AND deleted = FALSE`,
			`CREATE INDEX IF NOT EXISTS idx_quarantine_records_stuck ON quarantine_records (updated_at) WHERE status = 'SCANNING'`,
		)
	}

	for _, stmt := range statements {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return errors.Wrap(err, "create index")
		}
	}

	logger.Debug("quarantine migrations completed")
	return nil
}

// isPostgresDialect reports whether the gorm dialector is Postgres.
func isPostgresDialect(db *gorm.DB) bool {
	if db == nil || db.Dialector == nil {
		return false
	}
	return strings.EqualFold(db.Dialector.Name(), "postgres")
}
