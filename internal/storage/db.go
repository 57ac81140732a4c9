package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"viral-clipper/internal/appdirs"
	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

var DB *gorm.DB
var appDirsResolver = appdirs.Resolve

// InitDB opens the database under the cache dir and migrates the schema.
func InitDB() error {
	dbPath, err := resolveDBPath()
	if err != nil {
		return fmt.Errorf("resolve database path: %w", err)
	}

	db, err := OpenDB(dbPath)
	if err != nil {
		return err
	}
	DB = db

	log.GetLogger().Info("Database initialized successfully", zap.String("path", dbPath))
	return nil
}

func OpenDB(dbPath string) (*gorm.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %s: %w", dir, err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err = db.AutoMigrate(&AnalysisJob{}, &AnalysisCache{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func resolveDBPath() (string, error) {
	dirs, err := appDirsResolver()
	if err != nil {
		return "", err
	}
	return appdirs.DBPathFor(dirs), nil
}

func checkDB() error {
	if DB == nil {
		return apperrors.New(apperrors.CodeDBError, "database not initialized")
	}
	return nil
}
