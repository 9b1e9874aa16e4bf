// Package config loads application configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config is the application's flat configuration.
type Config struct {
	// Server configuration
	ServerAddr  string
	Environment string

	// Document store configuration
	DBPath string
	// AppID namespaces every collection path; opaque to the core.
	AppID string

	// Admin account and session signing
	AdminEmail    string
	AdminPassword string
	JWTSecret     string

	// Image hosting
	UploadsDir string
	PublicURL  string

	// CORS
	FrontendAddress string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() Config {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Warning: error loading .env file: %v", err)
		}
	}

	return Config{
		ServerAddr:      getEnv("SERVER_ADDR", ":8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		DBPath:          getEnv("DB_PATH", "clubsync.db"),
		AppID:           getEnv("APP_ID", "academiafc"),
		AdminEmail:      getEnv("ADMIN_EMAIL", "admin@academiafc.cl"),
		AdminPassword:   getEnv("ADMIN_PASSWORD", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		UploadsDir:      getEnv("UPLOADS_DIR", "uploads"),
		PublicURL:       getEnv("PUBLIC_URL", "http://localhost:8080"),
		FrontendAddress: getEnv("FRONTEND_ADDRESS", "http://localhost:5173"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
