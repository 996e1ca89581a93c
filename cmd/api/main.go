// cmd/api/main.go
// Main entry point for the messaging and presence service
// This file bootstraps all components and starts the server

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

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutorlink/tutorlink-backend/internal/common/database"
	"github.com/tutorlink/tutorlink-backend/internal/common/utils"
	"github.com/tutorlink/tutorlink-backend/internal/config"
	"github.com/tutorlink/tutorlink-backend/internal/messaging"
	"github.com/tutorlink/tutorlink-backend/internal/notification"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	log.Println("========================================")
	log.Println("🚀 Starting TutorLink Messaging Service")
	log.Println("========================================")

	// 1. Load environment variables
	log.Println("📁 Step 1: Loading .env file...")
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  Warning: No .env file found (%v), using environment variables", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// 2. Load configuration
	log.Println("\n📋 Step 2: Loading configuration...")
	cfg := config.Load()
	log.Printf("✅ Configuration loaded (instance: %s)", cfg.InstanceID)

	// 3. Validate configuration
	log.Println("\n✔️  Step 3: Validating configuration...")
	if err := cfg.Validate(); err != nil {
		log.Fatal("❌ Configuration validation failed: ", err)
	}
	log.Println("✅ Configuration is valid")

	// 4. Connect to PostgreSQL
	log.Println("\n🗄️  Step 4: Connecting to PostgreSQL...")
	db, err := database.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("❌ Failed to connect to PostgreSQL: ", err)
	}
	defer db.Close()
	log.Println("✅ Connected to PostgreSQL successfully")

	// 5. Run database migrations
	log.Println("\n🔨 Step 5: Running database migrations...")
	if err := runMigrations(db); err != nil {
		log.Fatal("❌ Failed to run migrations: ", err)
	}
	log.Println("✅ Database migrations completed")

	// 6. Initialize presence
	log.Println("\n📡 Step 6: Initializing presence...")
	var presence messaging.Presence
	if cfg.SharedPresence {
		redisClient, err := database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatal("❌ Failed to connect to Redis: ", err)
		}
		defer redisClient.Close()
		presence = messaging.NewRedisPresence(redisClient, cfg.InstanceID)
		log.Println("   ✅ Using Redis-backed shared presence")
	} else {
		presence = messaging.NewRegistry()
		log.Println("   ✅ Using in-memory presence registry (single instance)")
	}

	hub := messaging.NewHub(presence)
	go hub.Run()
	log.Println("✅ WebSocket hub started")

	// 7. Initialize notification fallback
	log.Println("\n🔔 Step 7: Initializing notification fallback...")

	notifRepo := notification.NewPostgresRepository(db)

	var pushSender notification.PushSender
	var emailSender notification.EmailSender
	var smsSender notification.SMSSender

	if cfg.FallbackProvider == "fcm" {
		pushSender, err = notification.NewFCMPushSender(cfg.FirebaseCredentialsFile, notifRepo)
		if err != nil {
			log.Fatal("❌ Failed to initialize FCM: ", err)
		}
		log.Println("   ✅ FCM push sender initialized")
	}
	if cfg.SendGridAPIKey != "" {
		emailSender = notification.NewSendGridEmailSender(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName)
		log.Println("   ✅ SendGrid email sender initialized")
	}
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		smsSender = notification.NewTwilioSMSSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
		log.Println("   ✅ Twilio SMS sender initialized")
	}

	notifService := notification.NewService(notifRepo, pushSender, emailSender, smsSender)

	var fallback messaging.NotificationFallback
	if cfg.FallbackProvider == "mock" {
		fallback = notification.NewMock()
		log.Println("   ⚠️  Using mock fallback (development mode)")
	} else {
		fallback = notifService
	}
	log.Println("✅ Notification fallback initialized")

	// 8. Initialize Messaging module
	log.Println("\n💬 Step 8: Initializing Messaging module...")

	conversationRepo := messaging.NewPostgresConversationRepository(db)
	messageRepo := messaging.NewPostgresMessageRepository(db)
	directory := messaging.NewPostgresDirectory(db)

	dispatcher := messaging.NewDispatcher(hub, conversationRepo, messageRepo, directory, fallback)
	messagingService := messaging.NewService(conversationRepo, messageRepo, directory, dispatcher)

	awsSession, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWSRegion),
	})
	if err != nil {
		log.Fatal("❌ Failed to create AWS session: ", err)
	}
	storage := messaging.NewS3Storage(awsSession, cfg.S3Bucket, cfg.CDNBaseURL, cfg.MaxAttachmentSize)
	log.Printf("   ✅ Attachment storage ready (bucket: %s)", cfg.S3Bucket)

	messagingHandler := messaging.NewHandler(messagingService, hub, storage)
	log.Println("✅ Messaging module initialized")

	// 9. Setup routes
	log.Println("\n🛣️  Step 9: Setting up routes...")
	router := mux.NewRouter()

	authMiddleware := utils.NewAuthMiddleware(cfg.JWTSecret)

	messaging.RegisterRoutes(router, messagingHandler, messaging.AuthMiddleware(authMiddleware))
	messaging.RegisterHealthCheck(router, messagingHandler)
	log.Println("   ✅ Messaging routes registered")

	notifHandler := notification.NewHandler(notifService)
	notification.RegisterRoutes(router, notifHandler, notification.AuthMiddleware(authMiddleware))
	log.Println("   ✅ Notification routes registered")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	log.Println("   ✅ Metrics endpoint registered")

	router.Use(loggingMiddleware)
	router.Use(corsMiddleware)

	// 10. Create and start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Println("\n========================================")
		log.Printf("🚀 Server starting on http://localhost%s", srv.Addr)
		log.Printf("🌍 Environment: %s", cfg.Environment)
		log.Println("========================================")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("❌ Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n⚠️  Shutdown signal received...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Println("   - Shutting down WebSocket hub...")
	hub.Shutdown(ctx)

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("❌ Server forced to shutdown: ", err)
	}

	log.Println("✅ Server exited gracefully")
}

// Middleware functions

// loggingMiddleware logs all requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		log.Printf("← %s %s [%d] %v", r.Method, r.RequestURI, wrapped.statusCode, time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// runMigrations executes database migrations
func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		// Users table. Accounts are owned by the account service; this schema
		// only needs the columns the messaging tier reads.
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			email VARCHAR(255) UNIQUE,
			username VARCHAR(100) UNIQUE NOT NULL,
			display_name VARCHAR(100) NOT NULL DEFAULT '',
			avatar_url TEXT,
			phone VARCHAR(20),
			role VARCHAR(20) NOT NULL DEFAULT 'student',
			notification_channel VARCHAR(20) NOT NULL DEFAULT 'push',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,

		// Conversations. pair_key is the canonical "min:max" user pair; its
		// unique index makes find-or-create race-safe.
		`CREATE TABLE IF NOT EXISTS conversations (
			id SERIAL PRIMARY KEY,
			pair_key VARCHAR(50) NOT NULL UNIQUE,
			subject VARCHAR(255),
			last_message_id INTEGER,
			last_activity TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			is_archived BOOLEAN DEFAULT FALSE,
			is_pinned BOOLEAN DEFAULT FALSE,
			is_active BOOLEAN DEFAULT TRUE,
			created_by INTEGER REFERENCES users(id),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,

		// Conversation participants
		`CREATE TABLE IF NOT EXISTS conversation_participants (
			id SERIAL PRIMARY KEY,
			conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role VARCHAR(20) NOT NULL DEFAULT 'student',
			joined_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			last_read_at TIMESTAMP WITH TIME ZONE,
			CONSTRAINT unique_conversation_participant UNIQUE(conversation_id, user_id)
		)`,

		// Messages table
		`CREATE TABLE IF NOT EXISTS messages (
			id SERIAL PRIMARY KEY,
			conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			sender_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			content TEXT NOT NULL DEFAULT '',
			kind VARCHAR(20) NOT NULL DEFAULT 'text',
			attachments JSONB DEFAULT '[]',
			payload JSONB,
			reply_to_id INTEGER REFERENCES messages(id),
			status VARCHAR(20) NOT NULL DEFAULT 'sent',
			is_edited BOOLEAN DEFAULT FALSE,
			edited_at TIMESTAMP WITH TIME ZONE,
			original_content TEXT,
			is_deleted BOOLEAN DEFAULT FALSE,
			deleted_at TIMESTAMP WITH TIME ZONE,
			deleted_by INTEGER,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,

		// Per-user read marks. Inserts are idempotent via the primary key.
		`CREATE TABLE IF NOT EXISTS message_reads (
			message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			read_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (message_id, user_id)
		)`,

		// Push tokens
		`CREATE TABLE IF NOT EXISTS push_tokens (
			id SERIAL PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token TEXT NOT NULL UNIQUE,
			platform VARCHAR(20) NOT NULL,
			is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_conversations_last_activity ON conversations(last_activity DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_conversation ON conversation_participants(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_search ON messages USING GIN (to_tsvector('simple', content))`,
		`CREATE INDEX IF NOT EXISTS idx_message_reads_user ON message_reads(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_push_tokens_user ON push_tokens(user_id)`,
	}

	for i, migration := range migrations {
		log.Printf("   - Running migration %d/%d...", i+1, len(migrations))
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
