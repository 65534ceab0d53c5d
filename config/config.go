package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers understood by main.
const (
	StoreDriverMongo  = "mongo"
	StoreDriverSQLite = "sqlite"
)

// Config holds everything the server needs at startup.
type Config struct {
	Port        string
	StoreDriver string
	MongoDBURI  string
	DBName      string
	SQLitePath  string

	// RedisAddr enables the author profile cache when non-empty.
	RedisAddr       string
	ProfileCacheTTL time.Duration

	JWTSecret   string
	WSPath      string
	CORSOrigins []string

	OperationTimeout  time.Duration
	MaxMessageLength  int
	MessageRateLimit  int
	MessageRateWindow time.Duration
	HistoryLimit      int
}

// LoadConfig reads .env when present, then the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		StoreDriver:       strings.ToLower(getEnv("STORE_DRIVER", StoreDriverMongo)),
		MongoDBURI:        getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		DBName:            getEnv("DB_NAME", "doc_collab_db"),
		SQLitePath:        getEnv("SQLITE_PATH", "doc-collab.db"),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		ProfileCacheTTL:   getEnvDuration("PROFILE_CACHE_TTL", 5*time.Minute),
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret-change-me"),
		WSPath:            normalizePath(getEnv("WS_PATH", "/socket")),
		CORSOrigins:       getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:3001"}),
		OperationTimeout:  getEnvDuration("OPERATION_TIMEOUT", 10*time.Second),
		MaxMessageLength:  getEnvInt("MAX_MESSAGE_LENGTH", 4000),
		MessageRateLimit:  getEnvInt("MESSAGE_RATE_LIMIT", 10),
		MessageRateWindow: getEnvDuration("MESSAGE_RATE_WINDOW", 5*time.Second),
		HistoryLimit:      getEnvInt("HISTORY_LIMIT", 200),
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using %d", key, raw, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		log.Printf("Invalid duration for %s=%q, using %s", key, raw, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizePath(path string) string {
	if path == "" {
		return "/socket"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
