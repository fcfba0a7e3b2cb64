package database

import (
	"github.com/PhilHem/gamepanel/backend/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open connects to the SQLite database at path and migrates the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&models.User{}, &models.LogEntry{}); err != nil {
		return nil, err
	}
	return db, nil
}
