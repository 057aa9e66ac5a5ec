package models

import (
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens an SQLite database at dbPath, auto-migrates all models and
// seeds the default routing rules. Pass ":memory:" for an in-memory database
// (useful for testing).
func InitDB(dbPath string) (*gorm.DB, error) {
	memory := dbPath == ":memory:"

	db, err := gorm.Open(sqlite.Open(dsn(dbPath)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(
		&Agent{}, &Message{}, &RoutingRule{}, &TrustConfig{}, &DecisionLog{},
		&KnowledgeEntry{}, &RejectionHistory{}, &PrivateSession{}, &HumanState{},
		&TimingRule{}, &MailboxEntry{}, &AuditEntry{}, &Settings{},
	); err != nil {
		return nil, fmt.Errorf("auto-migrating models: %w", err)
	}

	if err := SeedRoutingRules(db); err != nil {
		return nil, err
	}

	slog.Info("database initialized", "path", dbPath)
	return db, nil
}

// dsn appends connection pragmas. WAL allows readers alongside the single
// writer, and immediate transactions take the write lock at BEGIN so a
// check-then-write sequence cannot interleave with another writer.
func dsn(dbPath string) string {
	params := "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if dbPath != ":memory:" {
		params = "_journal_mode=WAL&" + params
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	if dbPath == ":memory:" {
		return "file::memory:" + sep + params
	}
	return dbPath + sep + params
}
