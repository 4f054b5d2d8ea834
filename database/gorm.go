package database

import (
	"fmt"
	"time"

	"github.com/sahilchouksey/course-marketplace-api/config"
	"github.com/sahilchouksey/course-marketplace-api/model"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GORMStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// StartGORM opens the database selected by cfg.Driver
func StartGORM(cfg *config.Config, log *zap.Logger) (*GORMStore, error) {
	if cfg.Database.Driver == "sqlite" {
		return OpenSQLite(cfg.Database.Name, log)
	}

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.Database.Host,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.Port,
		cfg.Database.SSLMode,
	)

	gormLogger := logger.Default.LogMode(logger.Info)
	if !cfg.IsDevelopment() {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:      gormLogger,
		PrepareStmt: true,
		// Surface unique violations as gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		log.Error("Unable to connect to PostgreSQL with GORM", zap.Error(err))
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("Connected to PostgreSQL with GORM", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.Name))

	return &GORMStore{db: db, log: log}, nil
}

// OpenSQLite opens a SQLite database, used for local runs and tests.
// A name such as "file:x?mode=memory&cache=shared" keeps everything in memory.
func OpenSQLite(name string, log *zap.Logger) (*GORMStore, error) {
	if name == "" {
		name = "file::memory:?cache=shared"
	}

	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer at a time
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}

	return &GORMStore{db: db, log: log}, nil
}

// NewGORMStore wraps an already open connection
func NewGORMStore(db *gorm.DB, log *zap.Logger) *GORMStore {
	return &GORMStore{db: db, log: log}
}

// Init runs the AutoMigrate to create/update tables
func (s *GORMStore) Init() error {
	s.log.Info("Running GORM AutoMigrate")

	err := s.db.AutoMigrate(
		// Catalog
		&model.University{},
		&model.Course{},

		// Users and entitlements
		&model.User{},
		&model.Enrollment{},
		&model.CartItem{},

		// Learner content
		&model.Comment{},
		&model.Note{},

		// Payments
		&model.Payment{},

		// Token blacklist
		&model.JWTTokenBlacklist{},

		// Audit & logging models
		&model.CronJobLog{},
		&model.AdminAuditLog{},
	)
	if err != nil {
		s.log.Error("Error running AutoMigrate", zap.Error(err))
		return err
	}

	s.log.Info("GORM AutoMigrate completed")
	return nil
}

// Close closes the database connection
func (s *GORMStore) Close() error {
	s.log.Info("Closing database connection")
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the GORM handle for services and handlers
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// HealthCheck verifies the database connection is alive
func (s *GORMStore) HealthCheck() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
