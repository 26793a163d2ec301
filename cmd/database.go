package cmd

import (
	"context"
	"fmt"
	"time"

	"signup-service/internal/config"
	"signup-service/internal/infrastructure/database"
	"signup-service/internal/infrastructure/queue"

	"gorm.io/gorm"
)

func databaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.Username,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.Name,
		SSLMode:         cfg.Database.SSLMode,
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		LogLevel:        cfg.Database.LogLevel,
	}
}

// openDatabase connects, brings the schema up to date and pings.
func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	dbConfig := databaseConfig(cfg)

	db, err := database.NewConnection(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.Migrate(db, dbConfig, cfg.Database.MigrationsDir, queue.Models()...); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.HealthCheck(ctx, db); err != nil {
		return nil, fmt.Errorf("database health check failed: %w", err)
	}
	return db, nil
}
