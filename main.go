package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsgo_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/lmittmann/tint"

	"github.com/jeswintom22/ClassSight/internal/api"
	"github.com/jeswintom22/ClassSight/internal/api/handler"
	"github.com/jeswintom22/ClassSight/internal/api/middleware"
	"github.com/jeswintom22/ClassSight/internal/config"
	"github.com/jeswintom22/ClassSight/internal/repository"
	"github.com/jeswintom22/ClassSight/internal/repository/postgresql"
	"github.com/jeswintom22/ClassSight/internal/service"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	log.Println("Cấu hình đã được tải.")

	// 2. Setup Database Connection (tùy chọn - không có thì tắt lịch sử)
	var analysisLogRepo repository.AnalysisLogRepository
	if cfg.DBHost == "" {
		log.Println("CẢNH BÁO: DB_HOST chưa được cấu hình. Lịch sử phân tích sẽ không được lưu.")
	} else {
		var db *sql.DB
		db, err := postgresql.NewDB(cfg)
		if err != nil {
			log.Fatalf("Không thể kết nối database: %v", err)
		}
		defer db.Close()
		analysisLogRepo = postgresql.NewPgAnalysisLogRepository(db)
		log.Println("Đã kết nối database thành công!")
	}

	// 3. Khởi tạo AWS SDK Config và Rekognition client (OCR engine)
	awsSDKCfg, err := awsgo_config.LoadDefaultConfig(context.TODO(), awsgo_config.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("Không thể tải AWS SDK config: %v", err)
	}
	rekognitionClient := rekognition.NewFromConfig(awsSDKCfg)
	ocrService := service.NewOCRService(rekognitionClient)
	log.Println("Đã khởi tạo Rekognition client cho OCR, region:", cfg.AWSRegion)

	// 4. Khởi tạo AI explainer (Ollama qua agent-api; provider cần *slog.Logger)
	aiLogger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: "15:04:05",
		}),
	)
	aiService, err := service.NewAIService(context.Background(), cfg, aiLogger)
	if err != nil {
		log.Fatalf("Không thể khởi tạo AI service: %v", err)
	}
	log.Println("Đã khởi tạo AI service với model:", cfg.AIModel)

	// 5. Khởi tạo cache và pipeline (tạo một lần, inject vào mọi nơi cần)
	cacheService := service.NewCacheService(cfg.CacheMaxSize, cfg.CacheTTL)
	pipelineService := service.NewPipelineService(ocrService, aiService, cacheService, analysisLogRepo, cfg)
	log.Printf("Pipeline sẵn sàng (cache: %d entries / TTL %v, OCR workers: %d)",
		cfg.CacheMaxSize, cfg.CacheTTL, cfg.OCRWorkers)

	// init websocket manager
	webSocketManager := handler.NewWebSocketManager()
	go webSocketManager.Start()
	log.Println("WebSocket Manager đã được khởi động.")

	// 6. Auth cho API admin
	authService := service.NewAuthService(cfg)
	authMiddleware := middleware.NewAuthMiddleware(authService)

	// start background job để cleanup lịch sử phân tích cũ
	if analysisLogRepo != nil {
		go startAnalysisLogCleanupJob(analysisLogRepo, cfg.HistoryRetention)
	}

	// 7. Setup HTTP Router
	router := api.SetupRouter(authService, pipelineService, cacheService, analysisLogRepo,
		authMiddleware, webSocketManager, cfg)

	// 8. Start HTTP Server
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server đang chạy trên port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Lỗi ListenAndServe(): %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Đang tắt server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server buộc phải tắt: %v", err)
	}

	log.Println("Server đã tắt.")
}

func startAnalysisLogCleanupJob(analysisLogRepo repository.AnalysisLogRepository, retention time.Duration) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		count, err := analysisLogRepo.DeleteOlderThan(ctx, time.Now().Add(-retention))
		if err != nil {
			log.Printf("Lỗi cleanup lịch sử phân tích: %v", err)
		} else if count > 0 {
			log.Printf("Đã cleanup %d bản ghi phân tích cũ", count)
		}
		cancel()
	}
}
