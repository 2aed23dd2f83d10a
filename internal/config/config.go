package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Remote storage backends selectable through STORAGE_BACKEND.
const (
	StorageBackendGCS  = "gcs"
	StorageBackendR2   = "r2"
	StorageBackendNone = "none"
)

type Config struct {
	ServerPort string

	LogLevel  string
	LogFormat string

	UploadPath     string
	StorageBackend string

	// Google service account, shared by Cloud Storage and Vertex AI.
	GAPIProjectID    string
	GAPIClientEmail  string
	GAPIPrivateKey   string
	GAPIPrivateKeyID string
	GCSBucketName    string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string

	VertexLocation    string
	VertexModel       string
	VertexEndpoint    string
	SystemInstruction string

	RedisURL        string
	UploadRetention time.Duration
	SweepInterval   time.Duration

	DatabaseURL string

	JWTSecret string

	RateLimitPerMinute int
	RateLimitBurst     int
	// TrustProxyHeaders lets X-Forwarded-For / X-Real-IP replace the peer address.
	// Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	uploadPath := os.Getenv("UPLOAD_PATH")
	if uploadPath == "" {
		uploadPath = "public/uploads"
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("STORAGE_BACKEND")))
	if backend == "" {
		backend = StorageBackendGCS
	}

	bucket := os.Getenv("GCS_BUCKET_NAME")
	if bucket == "" {
		bucket = "sri-travel-attachments"
	}

	vertexLocation := os.Getenv("VERTEX_LOCATION")
	if vertexLocation == "" {
		vertexLocation = "global"
	}
	vertexModel := os.Getenv("VERTEX_MODEL")
	if vertexModel == "" {
		vertexModel = "gemini-2.5-flash-preview-09-2025"
	}
	vertexEndpoint := os.Getenv("VERTEX_ENDPOINT")
	if vertexEndpoint == "" {
		vertexEndpoint = "https://aiplatform.googleapis.com"
	}

	return &Config{
		ServerPort: serverPort,

		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", "text"),

		UploadPath:     uploadPath,
		StorageBackend: backend,

		GAPIProjectID:    os.Getenv("GAPI_PROJECT_ID"),
		GAPIClientEmail:  os.Getenv("GAPI_CLIENT_EMAIL"),
		GAPIPrivateKey:   unescapeNewlines(os.Getenv("GAPI_PRIVATE_KEY")),
		GAPIPrivateKeyID: os.Getenv("PRIVATE_KEY_ID"),
		GCSBucketName:    bucket,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),

		VertexLocation:    vertexLocation,
		VertexModel:       vertexModel,
		VertexEndpoint:    strings.TrimSuffix(vertexEndpoint, "/"),
		SystemInstruction: os.Getenv("SRI_SYSTEM_INSTRUCTION"),

		RedisURL:        os.Getenv("REDIS_URL"),
		UploadRetention: durationOr("UPLOAD_RETENTION", 72*time.Hour),
		SweepInterval:   durationOr("UPLOAD_SWEEP_INTERVAL", 15*time.Minute),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		RateLimitPerMinute: intOr("RATE_LIMIT_PER_MINUTE", 60),
		RateLimitBurst:     intOr("RATE_LIMIT_BURST", 10),
		TrustProxyHeaders:  boolOr("TRUST_PROXY_HEADERS", false),
	}, nil
}

// HasGoogleCredentials reports whether the service account triple is present.
func (c *Config) HasGoogleCredentials() bool {
	return c.GAPIProjectID != "" && c.GAPIClientEmail != "" && c.GAPIPrivateKey != ""
}

// ServiceAccountJSON renders the service account credentials the Google SDKs expect.
func (c *Config) ServiceAccountJSON() []byte {
	creds := map[string]string{
		"type":           "service_account",
		"project_id":     c.GAPIProjectID,
		"private_key_id": c.GAPIPrivateKeyID,
		"private_key":    c.GAPIPrivateKey,
		"client_email":   c.GAPIClientEmail,
		"token_uri":      "https://oauth2.googleapis.com/token",
	}
	data, _ := json.Marshal(creds)
	return data
}

// unescapeNewlines turns literal "\n" sequences from .env files into real newlines,
// which PEM parsing requires.
func unescapeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func boolOr(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func durationOr(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
