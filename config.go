package main

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config carries everything read from the environment at startup. A `.env`
// file is loaded first when present, so local runs work without exporting
// anything.
type Config struct {
	Port string

	DBHost string
	DBUser string
	DBPass string
	DBName string
	DBPort string

	LogLevel string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, using system environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Port:     v.GetString("PORT"),
		DBHost:   v.GetString("DB_HOST"),
		DBUser:   v.GetString("DB_USER"),
		DBPass:   v.GetString("DB_PASS"),
		DBName:   v.GetString("DB_NAME"),
		DBPort:   v.GetString("DB_PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	var missing []string
	for key, val := range map[string]string{
		"DB_HOST": cfg.DBHost,
		"DB_USER": cfg.DBUser,
		"DB_PASS": cfg.DBPass,
		"DB_NAME": cfg.DBName,
	} {
		if val == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPass, c.DBName, c.DBPort,
	)
}
