package client

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/database/migrations"
	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// Client держит одно соединение с бд в двух обёртках:
// sqlx для выборок и миграций, GORM для записи.
type Client struct {
	DB     *sqlx.DB
	Gorm   *gorm.DB
	logger *slog.Logger
}

// NewClient открывает бд по DATABASE_URL. Префикс sqlite:// включает SQLite для локальной разработки,
// иначе PostgreSQL с применением миграций.
func NewClient(databaseURL string, logger *slog.Logger) (*Client, error) {
	if strings.HasPrefix(databaseURL, sqlitePrefix) {
		return NewSQLiteClient(strings.TrimPrefix(databaseURL, sqlitePrefix), logger)
	}
	return NewPostgresClient(databaseURL, logger)
}

// NewPostgresClient инициализирует подключение к PostgreSQL и применяет миграции
func NewPostgresClient(databaseURL string, logger *slog.Logger) (*Client, error) {
	start := time.Now()

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		logger.Error("failed to open PostgreSQL connection", "error", err)
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err = db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if err := applyMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:         newGormLogger(logger),
		TranslateError: true,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise GORM on PostgreSQL: %w", err)
	}

	logger.Info("PostgreSQL connection established successfully",
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Client{DB: db, Gorm: gdb, logger: logger}, nil
}

// NewSQLiteClient открывает SQLite и создаёт схему через AutoMigrate.
func NewSQLiteClient(dsn string, logger *slog.Logger) (*Client, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         newGormLogger(logger),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}
	// одна запись за раз, иначе SQLite отвечает "database is locked"
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(&domain.Photo{}, &domain.Tag{}, &domain.PhotoTag{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}

	logger.Info("SQLite database initialised", "dsn", dsn)
	return &Client{DB: sqlx.NewDb(sqlDB, "sqlite3"), Gorm: gdb, logger: logger}, nil
}

// applyMigrations применяет все доступные миграции к бд
func applyMigrations(db *sqlx.DB, logger *slog.Logger) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("database schema is up to date")
	} else {
		logger.Info("database migrations applied")
	}
	return nil
}

func newGormLogger(logger *slog.Logger) gormlogger.Interface {
	return gormlogger.New(
		slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

func (c *Client) Close() error {
	start := time.Now()
	err := c.DB.Close()
	if err != nil {
		c.logger.Error("failed to close database connection", "error", err)
		return err
	}
	c.logger.Info("database connection closed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}
