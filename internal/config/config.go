package config

import (
	"fmt"
	"os"
)

type Config struct {
	DBSource         string
	Port             string
	Env              string
	JWTSecret        string
	AuthUsername     string
	AuthPasswordHash string
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	passwordHash := os.Getenv("AUTH_PASSWORD_HASH")
	if passwordHash == "" {
		return nil, fmt.Errorf("AUTH_PASSWORD_HASH environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	username := os.Getenv("AUTH_USERNAME")
	if username == "" {
		username = "admin"
	}

	return &Config{
		DBSource:         dbSource,
		Port:             port,
		Env:              env,
		JWTSecret:        jwtSecret,
		AuthUsername:     username,
		AuthPasswordHash: passwordHash,
	}, nil
}
