package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"doc-collab/backend/cache"
	"doc-collab/backend/config"
	"doc-collab/backend/database"
	"doc-collab/backend/handlers"
	"doc-collab/backend/metrics"
	"doc-collab/backend/middleware"
	"doc-collab/backend/websocket"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

// store is what the server needs from either backing database.
type store interface {
	database.MessageStore
	database.UserLookup
	Ping(ctx context.Context) error
}

func main() {
	cfg := config.LoadConfig()

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	db, closeStore, err := openStore(baseCtx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer closeStore()

	stats := metrics.NewMetrics()

	var users database.UserLookup = db
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		profiles := cache.NewProfileCache(rdb, db, "profile:", cfg.ProfileCacheTTL)
		if err := profiles.Ping(baseCtx); err != nil {
			log.Printf("Redis at %s not reachable yet, profile cache will fall through: %v", cfg.RedisAddr, err)
		}
		users = profiles
		stats.CacheStats = profiles.GetStats
		log.Printf("Author profile cache enabled at %s (ttl %s)", cfg.RedisAddr, cfg.ProfileCacheTTL)
	}

	registry := websocket.NewConnectionRegistry()
	rooms := websocket.NewRoomManager(registry)
	relay := websocket.NewRelay(db, users, websocket.RelayConfig{
		MaxLength:    cfg.MaxMessageLength,
		HistoryLimit: cfg.HistoryLimit,
	})
	stats.RoomCount = rooms.RoomCount
	gateway := websocket.NewGateway(registry, rooms, relay, websocket.GatewayConfig{
		OperationTimeout: cfg.OperationTimeout,
		Limiter:          websocket.NewRateLimiter(cfg.MessageRateLimit, cfg.MessageRateWindow),
		Metrics:          stats,
	})
	wsServer := websocket.NewServer(baseCtx, gateway, cfg.JWTSecret, cfg.CORSOrigins)

	router := mux.NewRouter()

	router.HandleFunc("/health", handlers.HealthHandler(db, registry.Count)).Methods("GET")
	router.Handle("/metrics", stats).Methods("GET")
	router.HandleFunc(cfg.WSPath, wsServer.HandleConnections)

	documents := handlers.NewDocumentHandler(relay, rooms)
	docRouter := router.PathPrefix("/documents").Subrouter()
	docRouter.Use(middleware.JWTMiddleware(cfg.JWTSecret))
	docRouter.HandleFunc("/{id}/messages", documents.GetMessages).Methods("GET")
	docRouter.HandleFunc("/{id}/presence", documents.GetPresence).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     c.Handler(router),
		IdleTimeout: 120 * time.Second,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s (websocket path %s)", serverAddr, cfg.WSPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", serverAddr, err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %s, shutting down server...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting first; upgraded connections are hijacked, so Shutdown
	// does not wait for them and CloseAll closes them afterwards.
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	wsServer.Shutdown()
	cancelBase()

	log.Println("Server exited gracefully.")
}

// openStore connects the configured database and returns its release func.
func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		s, err := database.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		log.Printf("Using SQLite store at %s", cfg.SQLitePath)
		return s, func() {
			if err := s.Close(); err != nil {
				log.Printf("Error closing SQLite store: %v", err)
			}
		}, nil
	case config.StoreDriverMongo:
		s, err := database.ConnectMongoDB(ctx, cfg.MongoDBURI, cfg.DBName)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.Disconnect(shutdownCtx); err != nil {
				log.Printf("Error disconnecting from MongoDB: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
