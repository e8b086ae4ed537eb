// Package postgres opens the metadata database.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	errors "github.com/Laisky/errors/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// DB postgres db
type DB struct {
	DB *sql.DB
}

// DialInfo postgres dial info
type DialInfo struct {
	Addr   string
	DBName string
	User   string
	Pwd    string
	Port   int
}

// BuildDSN builds a PostgreSQL DSN.
func BuildDSN(dialInfo DialInfo) string {
	port := dialInfo.Port
	if port <= 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		dialInfo.Addr, dialInfo.User, dialInfo.Pwd, dialInfo.DBName, port)
}

// NewDB create a new postgres db
func NewDB(ctx context.Context, dialInfo DialInfo) (*DB, error) {
	dsn := BuildDSN(dialInfo)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err = db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "ping postgres")
	}

	// config db
	db.SetMaxIdleConns(6)
	db.SetMaxOpenConns(50)
	db.SetConnMaxLifetime(time.Hour)

	return &DB{DB: db}, nil
}

// NewGormDB opens a gorm handle over a pgx connection pool.
func NewGormDB(ctx context.Context, dialInfo DialInfo, debug bool) (*gorm.DB, error) {
	db, err := NewDB(ctx, dialInfo)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return OpenGorm(db.DB, debug)
}

// OpenGorm wraps an existing *sql.DB, logging SQL with oversized parameters truncated.
func OpenGorm(conn *sql.DB, debug bool) (*gorm.DB, error) {
	level := gormLogger.Warn
	if debug {
		level = gormLogger.Info
	}
	gdb, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: conn}), &gorm.Config{
		Logger: newTruncatingParamsLogger(gormLogger.Default.LogMode(level)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open gorm postgres")
	}
	return gdb, nil
}
