package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tilahungoito/healthydoc/internal/api"
	"github.com/tilahungoito/healthydoc/internal/auth"
	"github.com/tilahungoito/healthydoc/internal/config"
	"github.com/tilahungoito/healthydoc/internal/language"
	"github.com/tilahungoito/healthydoc/internal/redis"
	"github.com/tilahungoito/healthydoc/internal/service/ai"
	"github.com/tilahungoito/healthydoc/internal/service/assistant"
	"github.com/tilahungoito/healthydoc/internal/service/doctor"
	"github.com/tilahungoito/healthydoc/internal/service/scan"
	"github.com/tilahungoito/healthydoc/internal/storage"
	"github.com/tilahungoito/healthydoc/internal/translate"
	"github.com/tilahungoito/healthydoc/internal/worker"
)

func main() {
	cfgPath := os.Getenv("HEALTHYDOC_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("HEALTHYDOC_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Redis is an optional accelerator; everything degrades to local state.
	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Printf("redis unavailable, continuing without cache: %v", err)
		rdb = nil
	}
	defer rdb.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	assistantService := assistant.NewService(db)

	var translators []translate.Translator
	i18now := translate.NewI18Now(cfg.Translators.I18Now)
	if i18now != nil {
		translators = append(translators, i18now)
	}
	if g := translate.NewGoogle(cfg.Translators.Google); g != nil {
		translators = append(translators, g)
	}
	if a := translate.NewAzure(cfg.Translators.Azure); a != nil {
		translators = append(translators, a)
	}
	chain := translate.NewChain(translators...)
	var jsonTranslator translate.JSONTranslator
	if i18now != nil {
		jsonTranslator = i18now
	}

	ctx := context.Background()
	aiService, err := ai.NewService(ctx, cfg, chain)
	if err != nil {
		log.Fatalf("init ai service: %v", err)
	}

	doctorOpts := doctor.Options{
		Chain:           chain,
		JSONTranslator:  jsonTranslator,
		EthiopicDefault: language.Language(cfg.BasicConfig.DefaultEthiopicLanguage),
	}
	if rdb != nil {
		doctorOpts.Sessions = doctor.NewRedisSessionStore(rdb)
		doctorOpts.Receipts = doctor.NewRedisReceiptStore(rdb)
	}
	doctorService := doctor.NewService(aiService, doctorOpts)

	workerCfg := worker.DispatcherConfig{
		MinWorkers:        cfg.BasicConfig.MinWorkers,
		MaxWorkers:        cfg.BasicConfig.MaxWorkers,
		QueueSize:         cfg.BasicConfig.QueueSize,
		WorkerIdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	}
	manager := worker.NewManager(doctorService, workerCfg, rdb)

	scanClient := scan.NewClient(cfg.Scanner)

	cleanCtx, cleanCancel := context.WithCancel(context.Background())
	defer cleanCancel()
	cleanInterval := time.Duration(cfg.BasicConfig.TempCleanInterval) * time.Minute
	if cleanInterval <= 0 {
		cleanInterval = assistant.DefaultTempFileCleanupInterval
	}
	assistantService.StartTempFileCleaner(cleanCtx, cleanInterval)

	authService := auth.NewService(db, rdb, 24*time.Hour)
	fileBase := cfg.BasicConfig.FileBaseDir
	if fileBase == "" {
		fileBase = "./data/uploads"
	}
	tempTTL := time.Duration(cfg.BasicConfig.TempFileTTL) * time.Minute
	if tempTTL <= 0 {
		tempTTL = assistant.DefaultTempFileTTL
	}
	handlers := api.NewHandler(assistantService, authService, manager, aiService, scanClient, fileBase, tempTTL)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
