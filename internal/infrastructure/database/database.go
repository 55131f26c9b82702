package database

import (
	"kbs-backend/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open opens a GORM DB from DSN (Supabase/Postgres pooler URL).
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") behind PgBouncer-style poolers.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
}

// AutoMigrate creates the tables the feed and story tray read. The hosted
// backend owns them in production; this is for local and test databases.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Circle{}, &domain.Listing{}, &domain.Community{}, &domain.Story{})
}
