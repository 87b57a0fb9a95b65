package database

import (
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"autotrader/src/model"
)

// MainDB is the process-wide read/write handle. Initialized once by
// InitMainDB before any repository is constructed.
var MainDB *gorm.DB

// InitMainDB opens the configured database and migrates the trading tables.
// A postgres:// URL selects the postgres driver; anything else is treated as
// a sqlite file path.
func InitMainDB() error {
	config := GetConfig()

	dialector := dialectorFor(config.DatabaseURL)

	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt: true,
		Logger:      gormlogger.Default.LogMode(gormlogger.LogLevel(config.GormLogLevel)),
	})
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.WithError(err).Error("Failed to get DB from GORM")
		return err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	if config.AutoMigrate {
		if err := db.AutoMigrate(
			&model.WatchlistItem{},
			&model.Condition{},
			&model.SignalRecord{},
		); err != nil {
			logger.WithError(err).Error("Failed to migrate database")
			return err
		}
	}

	MainDB = db
	logger.Info("main database initialized")
	return nil
}

func dialectorFor(url string) gorm.Dialector {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return postgres.Open(url)
	}
	return sqlite.Open(url)
}
