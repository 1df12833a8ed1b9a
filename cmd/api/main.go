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

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nemonet1337/lotGoFramework/internal/auth"
	"github.com/nemonet1337/lotGoFramework/internal/config"
	"github.com/nemonet1337/lotGoFramework/pkg/batch"
	"github.com/nemonet1337/lotGoFramework/pkg/batch/storage"
)

func main() {
	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("設定読み込みに失敗しました:", err)
	}

	// ログ設定
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("ログ初期化に失敗しました:", err)
	}
	defer logger.Sync()

	// データベース接続
	store, err := storage.NewPostgreSQLStorage(cfg.DSN(), logger)
	if err != nil {
		logger.Fatal("データベース接続に失敗しました", zap.Error(err))
	}
	defer store.Close()

	// バッチマネージャー初期化
	batchConfig := &batch.Config{
		RequirePassedQualityCheck: cfg.Batch.RequirePassedQualityCheck,
		NotesMaxLength:            cfg.Batch.NotesMaxLength,
		DefaultPageSize:           cfg.Batch.DefaultPageSize,
		MaxPageSize:               cfg.Batch.MaxPageSize,
		HistoryLimit:              cfg.Batch.HistoryLimit,
	}

	manager := batch.NewManager(store, nil, logger, batchConfig)

	// HTTPハンドラー設定
	handlers := NewHandlers(manager, manager, logger, cfg.Batch.NotesMaxLength)
	router := setupRouter(handlers, cfg)

	// HTTPサーバー設定
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	// グレースフルシャットダウン設定
	go func() {
		logger.Info("バッチ管理APIサーバーを開始します", zap.Int("port", cfg.API.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー開始に失敗しました", zap.Error(err))
		}
	}()

	// シャットダウンシグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	// グレースフルシャットダウン
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("サーバーシャットダウンに失敗しました", zap.Error(err))
	}

	logger.Info("サーバーが正常に停止しました")
}

// newLogger builds a zap logger from the logging configuration
// ログ設定からzapロガーを構築
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level

	return zapCfg.Build()
}

// setupRouter sets up HTTP routes
// HTTPルートを設定
func setupRouter(handlers *Handlers, cfg *config.Config) http.Handler {
	router := mux.NewRouter()

	// ヘルスチェックとメトリクス
	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	if cfg.API.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	// API v1ルート
	api := router.PathPrefix("/api/v1").Subrouter()

	// バッチライフサイクル
	api.HandleFunc("/batches", handlers.CreateBatch).Methods("POST")
	api.HandleFunc("/batches", handlers.ListBatches).Methods("GET")
	api.HandleFunc("/batches/expiry-summary", handlers.GetExpirySummary).Methods("GET")
	api.HandleFunc("/batches/{batchId}", handlers.GetBatch).Methods("GET")
	api.HandleFunc("/batches/{batchId}", handlers.UpdateBatch).Methods("PUT")
	api.HandleFunc("/batches/{batchId}/approve", handlers.ApproveBatch).Methods("POST")
	api.HandleFunc("/batches/{batchId}/history", handlers.GetBatchHistory).Methods("GET")

	// 参照データ（バッチ作成フォーム用）
	api.HandleFunc("/staff/products", handlers.ListProducts).Methods("GET")
	api.HandleFunc("/suppliers", handlers.ListSuppliers).Methods("GET")

	// 認証（APIルートのみ対象）
	api.Use(auth.Middleware(cfg.Auth.JWTSecret, cfg.Auth.Enabled, handlers.logger, func(w http.ResponseWriter, message string) {
		handlers.sendError(w, http.StatusUnauthorized, message)
	}))

	// ログ機能
	router.Use(loggingMiddleware(handlers.logger))

	// CORS設定（開発用）。mux.Router.Useは一致したルートでしか実行されず
	// OPTIONSプリフライトに届かないため、ルーターの外側で包む。
	if cfg.API.EnableCORS {
		return corsHandler(router)
	}

	return router
}

// corsHandler adds CORS headers to every response including preflights
// プリフライトを含む全レスポンスにCORSヘッダーを付与
func corsHandler(next http.Handler) http.Handler {
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

// loggingMiddleware logs HTTP requests
// HTTPリクエストをログ出力するミドルウェア
func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// リクエスト処理
			next.ServeHTTP(w, r)

			// ログ出力
			logger.Info("HTTPリクエスト",
				zap.String("method", r.Method),
				zap.String("url", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
