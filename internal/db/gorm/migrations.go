package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core tables (User, Agency, QueryRecord)
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&User{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&Agency{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&QueryRecord{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("users", "agencies", "query_records")
			},
		},

		// Migration 002: Quota counters
		{
			ID: "002_quota_counters",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&QuotaCounter{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("quota_counters")
			},
		},

		// Migration 003: Protocol chunks
		{
			ID: "003_protocol_chunks",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&ProtocolChunk{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("protocol_chunks")
			},
		},

		// Migration 004: FTS5 virtual table for protocol chunk retrieval
		{
			ID: "004_protocol_chunks_fts",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					`CREATE VIRTUAL TABLE IF NOT EXISTS protocol_chunks_fts USING fts5(
						protocol_number,
						protocol_title,
						section,
						content,
						content='protocol_chunks',
						content_rowid='id'
					)`,
					`CREATE TRIGGER IF NOT EXISTS protocol_chunks_ai AFTER INSERT ON protocol_chunks BEGIN
						INSERT INTO protocol_chunks_fts(rowid, protocol_number, protocol_title, section, content)
						VALUES (new.id, new.protocol_number, new.protocol_title, new.section, new.content);
					END`,
					`CREATE TRIGGER IF NOT EXISTS protocol_chunks_ad AFTER DELETE ON protocol_chunks BEGIN
						INSERT INTO protocol_chunks_fts(protocol_chunks_fts, rowid, protocol_number, protocol_title, section, content)
						VALUES('delete', old.id, old.protocol_number, old.protocol_title, old.section, old.content);
					END`,
					`CREATE TRIGGER IF NOT EXISTS protocol_chunks_au AFTER UPDATE ON protocol_chunks BEGIN
						INSERT INTO protocol_chunks_fts(protocol_chunks_fts, rowid, protocol_number, protocol_title, section, content)
						VALUES('delete', old.id, old.protocol_number, old.protocol_title, old.section, old.content);
						INSERT INTO protocol_chunks_fts(rowid, protocol_number, protocol_title, section, content)
						VALUES (new.id, new.protocol_number, new.protocol_title, new.section, new.content);
					END`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				sqls := []string{
					"DROP TRIGGER IF EXISTS protocol_chunks_au",
					"DROP TRIGGER IF EXISTS protocol_chunks_ad",
					"DROP TRIGGER IF EXISTS protocol_chunks_ai",
					"DROP TABLE IF EXISTS protocol_chunks_fts",
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},
	})

	return m.Migrate()
}
