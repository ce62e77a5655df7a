package database

import (
	"fmt"
	"time"

	"goldpay/internal/config"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MySQLDSN builds the go-sql-driver DSN for cfg.
func MySQLDSN(cfg *config.MySQLConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)
}

// PostgresDSN builds the pgx key/value DSN for cfg.
func PostgresDSN(cfg *config.PostgresConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)
}

// InitDB opens the SQL database selected by store.driver.
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	var (
		dialector    gorm.Dialector
		maxOpenConns int
		maxIdleConns int
	)
	switch cfg.Store.Driver {
	case config.StoreMySQL:
		dialector = mysql.Open(MySQLDSN(&cfg.MySQL))
		maxOpenConns, maxIdleConns = cfg.MySQL.MaxOpenConns, cfg.MySQL.MaxIdleConns
	case config.StorePostgres:
		dialector = postgres.Open(PostgresDSN(&cfg.Postgres))
		maxOpenConns, maxIdleConns = cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns
	default:
		return nil, fmt.Errorf("store driver %q is not a SQL database", cfg.Store.Driver)
	}

	return Open(dialector, maxOpenConns, maxIdleConns, gormLogLevel(cfg.Log.Level))
}

// Open connects through dialector and applies the connection pool settings.
func Open(dialector gorm.Dialector, maxOpenConns, maxIdleConns int, level logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying db: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug", "trace":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error", "fatal", "panic":
		return logger.Error
	default:
		return logger.Silent
	}
}
