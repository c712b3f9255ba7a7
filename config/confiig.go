package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"reachly/models"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	RDB       *redis.Client
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// ProviderConfig holds per-provider overrides. Base URLs default to the
// public APIs; tests and staging point them elsewhere.
type ProviderConfig struct {
	SmartleadBaseURL string `json:"smartlead_base_url"`
	NureplyBaseURL   string `json:"nureply_base_url"`
	InstantlyBaseURL string `json:"instantly_base_url"`
	HeyReachBaseURL  string `json:"heyreach_base_url"`
	TimeoutSeconds   int    `json:"timeout_seconds"`
}

type Config struct {
	Environment    string         `json:"environment"`
	EncryptionKey  string         `json:"-"`
	ServerPort     string         `json:"server_port"`
	DBHost         string         `json:"db_host"`
	DBPort         string         `json:"db_port"`
	DBUser         string         `json:"db_user"`
	DBPassword     string         `json:"-"`
	DBName         string         `json:"db_name"`
	DBSSLMode      string         `json:"db_ssl_mode"`
	DBMaxIdleConns int            `json:"db_max_idle_conns"`
	DBMaxOpenConns int            `json:"db_max_open_conns"`
	SentryDSN      string         `json:"-"`
	WebhookToken   string         `json:"-"`
	Redis          RedisConfig    `json:"redis"`
	Providers      ProviderConfig `json:"providers"`

	// Alert mail settings for needs-attention notifications
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"`
	FromEmail    string `json:"from_email"`
	AlertEmail   string `json:"alert_email"`

	// Worker cadence
	TickSweepSpec  string `json:"tick_sweep_spec"`
	DriftCheckSpec string `json:"drift_check_spec"`
	ReplyPollSecs  int    `json:"reply_poll_secs"`
	TickBatchSize  int    `json:"tick_batch_size"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "reachly"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		SentryDSN:      getEnv("SENTRY_DSN", ""),
		WebhookToken:   getEnv("WEBHOOK_TOKEN", ""),
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Providers: ProviderConfig{
			SmartleadBaseURL: getEnv("SMARTLEAD_BASE_URL", ""),
			NureplyBaseURL:   getEnv("NUREPLY_BASE_URL", ""),
			InstantlyBaseURL: getEnv("INSTANTLY_BASE_URL", ""),
			HeyReachBaseURL:  getEnv("HEYREACH_BASE_URL", ""),
			TimeoutSeconds:   getEnvAsInt("PROVIDER_TIMEOUT_SECONDS", 15),
		},
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		FromEmail:    getEnv("FROM_EMAIL", "alerts@reachly.io"),
		AlertEmail:   getEnv("ALERT_EMAIL", ""),

		TickSweepSpec:  getEnv("TICK_SWEEP_SPEC", "@every 5m"),
		DriftCheckSpec: getEnv("DRIFT_CHECK_SPEC", "0 3 * * *"),
		ReplyPollSecs:  getEnvAsInt("REPLY_POLL_SECONDS", 120),
		TickBatchSize:  getEnvAsInt("TICK_BATCH_SIZE", 200),
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if AppConfig.WebhookToken == "" {
		return fmt.Errorf("WEBHOOK_TOKEN is required")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	// TranslateError is required: the event store relies on
	// gorm.ErrDuplicatedKey to drop webhook replays
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

func ConnectRedis() error {
	RDB = redis.NewClient(&redis.Options{
		Addr:     AppConfig.Redis.Address,
		Password: AppConfig.Redis.Password,
		DB:       AppConfig.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	log.Println("✅ Successfully connected to redis")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Redis: %s (db %d)", AppConfig.Redis.Address, AppConfig.Redis.DB)
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Tenant{},
		&models.User{},
		&models.ProviderCredential{},
		&models.Mailbox{},
		&models.Campaign{},
		&models.Lead{},
		&models.Sequence{},
		&models.DeliveryState{},
		&models.ChannelEnrollment{},
		&models.EngagementEvent{},
		&models.LeadMemory{},
	)
}
