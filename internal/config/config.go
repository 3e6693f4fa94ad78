package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string

	// Database là tùy chọn: DB_HOST rỗng thì lịch sử phân tích bị tắt
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string

	AWSRegion string // region cho Rekognition (OCR)

	OllamaBaseURL   string
	OllamaPort      int
	AIModel         string
	AITimeout       time.Duration
	AIMaxInputChars int // trần độ dài input cho explainer; vượt quá là lỗi, không tự cắt

	OCRTimeout time.Duration
	OCRWorkers int // số lệnh OCR chạy đồng thời tối đa

	CacheTTL     time.Duration // tầm vài giây đến vài phút
	CacheMaxSize int

	MaxFrameBytes    int64 // giới hạn đọc trên WebSocket connection
	HistoryRetention time.Duration

	JWTSecret            string
	JWTExpirationHours   time.Duration
	OperatorUsername     string
	OperatorPasswordHash string // bcrypt hash; rỗng thì không đăng nhập được admin
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Printf("Cảnh báo: Không thể tải file .env: %v", err)
	}

	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	ollamaPort, _ := strconv.Atoi(getEnv("OLLAMA_PORT", "11434"))
	jwtExpHours, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	retentionHours, _ := strconv.Atoi(getEnv("HISTORY_RETENTION_HOURS", "72"))

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),

		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "classsight"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "classsight_db"),
		DBSslMode:  getEnv("DB_SSLMODE", "disable"),

		AWSRegion: getEnv("AWS_REGION", "ap-southeast-1"),

		OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost"),
		OllamaPort:      ollamaPort,
		AIModel:         getEnv("AI_MODEL", "llama3.2"),
		AITimeout:       time.Duration(getEnvInt("AI_TIMEOUT_SECONDS", 30)) * time.Second,
		AIMaxInputChars: getEnvInt("AI_MAX_INPUT_CHARS", 50000),

		OCRTimeout: time.Duration(getEnvInt("OCR_TIMEOUT_SECONDS", 15)) * time.Second,
		OCRWorkers: getEnvInt("OCR_WORKERS", 4),

		CacheTTL:     time.Duration(getEnvInt("CACHE_TTL_SECONDS", 300)) * time.Second,
		CacheMaxSize: getEnvInt("CACHE_MAX_SIZE", 100),

		MaxFrameBytes:    int64(getEnvInt("MAX_FRAME_BYTES", 10*1024*1024)), // 10MB
		HistoryRetention: time.Duration(retentionHours) * time.Hour,

		JWTSecret:            getEnv("JWT_SECRET", "your-very-secret-key-for-jwt-!@#$"), // << THAY BẰNG SECRET KEY MẠNH HƠN
		JWTExpirationHours:   time.Duration(jwtExpHours) * time.Hour,
		OperatorUsername:     getEnv("OPERATOR_USERNAME", "operator"),
		OperatorPasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""), // << ĐIỀN BCRYPT HASH CỦA MẬT KHẨU OPERATOR
	}
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Biến môi trường '%s' không được đặt, sử dụng giá trị mặc định: '%s'", key, fallback)
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Biến môi trường '%s' không phải số, sử dụng giá trị mặc định: %d", key, fallback)
	}
	return fallback
}
