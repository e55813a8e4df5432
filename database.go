package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB(cfg *Config) error {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	DB = db

	if err := MigrateDB(DB); err != nil {
		return err
	}

	log.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("database connected and migrated")
	return nil
}

// MigrateDB is separate from InitDB so tests can run the same migrations
// against their own database handle.
func MigrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &Event{}, &EventCollaborator{}); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
