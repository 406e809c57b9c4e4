package database

import (
	"fmt"

	"support-chat/config"
	"support-chat/model"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects the configured driver (postgres or sqlite) and migrates it.
func Open() (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch driver := config.String("DB_DRIVER", "postgres"); driver {
	case "postgres":
		db, err = PostgresConnect()
	case "sqlite":
		db, err = SQLiteConnect(config.String("SQLITE_PATH", "support-chat.db"))
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	DB = db
	return db, nil
}

func PostgresConnect() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		config.Config("POSTGRES_HOST"),
		config.Config("POSTGRES_PORT"),
		config.Config("POSTGRES_USER"),
		config.Config("POSTGRES_PASSWORD"),
		config.Config("POSTGRES_DB"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	log.Info().Msg("connection opened to Postgres")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.MessageImage{},
		&model.Message{},
		&model.Reaction{},
		&model.PushSubscription{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("dialect", db.Dialector.Name()).Msg("database migrated")
	return nil
}
