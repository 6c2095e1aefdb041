package database

import (
	"context"
	"fmt"
	"time"

	"tasksync/configs"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DSN builds the lib/pq connection string for dbName on the configured server.
func DSN(cfg configs.Config, dbName string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, dbName)
}

// ConnectDB opens the pool and pings it once.
func ConnectDB(ctx context.Context, cfg configs.Config) (*sqlx.DB, error) {
	return Open(ctx, DSN(cfg, cfg.DBName))
}

func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
