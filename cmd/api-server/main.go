// Package main API Server 入口
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

	"automation-bridge/deployments"
	"automation-bridge/internal/apiserver/activity"
	"automation-bridge/internal/apiserver/appbundle"
	"automation-bridge/internal/apiserver/callback"
	"automation-bridge/internal/apiserver/notify"
	"automation-bridge/internal/apiserver/server"
	"automation-bridge/internal/apiserver/workitem"
	"automation-bridge/internal/config"
	"automation-bridge/internal/shared/credential"
	"automation-bridge/internal/shared/engine"
	"automation-bridge/internal/shared/infra"
	"automation-bridge/internal/shared/objstore"
	"automation-bridge/internal/shared/schema"
	"automation-bridge/pkg/logging"
)

func main() {
	// api-server compose：输出内嵌的本地部署模板
	if len(os.Args) > 1 && os.Args[1] == "compose" {
		fmt.Print(deployments.DockerCompose)
		return
	}

	// 加载配置（自动加载 .env，根据 APP_ENV 切换 YAML）
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	logger := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: "api-server",
	})

	// 初始化基础设施（Redis 可选：回调防重放 + 跨副本通知转发）
	var infrastructure *infra.Infrastructure
	if cfg.Redis.Enabled {
		var err error
		infrastructure, err = infra.NewRedisInfrastructure(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		log.Println("Connected to Redis")
	} else {
		infrastructure = infra.NewLocalInfrastructure()
		log.Println("Redis disabled, using in-process replay guard")
	}
	defer infrastructure.Close()

	metrics := server.NewMetrics("automation")
	httpClient := &http.Client{Timeout: cfg.APS.HTTPTimeout}

	// 凭据缓存：进程内唯一实例，注入执行引擎客户端与制品解析器
	creds := credential.NewCache(&credential.ClientCredentialsFetcher{
		TokenURL:     cfg.APS.AuthURL,
		ClientID:     cfg.APS.ClientID,
		ClientSecret: cfg.APS.ClientSecret,
		Scopes:       cfg.APS.Scopes,
		HTTPClient:   httpClient,
	}, credential.Options{
		Skew:      cfg.APS.TokenSkew,
		OnRefresh: metrics.RecordCredentialRefresh,
	})
	engineClient := engine.NewClient(cfg.APS.EngineURL, creds, httpClient)

	storeClient, err := objstore.NewClient(cfg.ObjectStore)
	if err != nil {
		log.Fatalf("Failed to create object store client: %v", err)
	}
	resolverOpts := objstore.ResolverOptions{
		Bucket:      cfg.ObjectStore.Bucket,
		DownloadTTL: cfg.ObjectStore.DownloadTTL,
		UploadTTL:   cfg.ObjectStore.UploadTTL,
		CDNURL:      cfg.ObjectStore.CDNURL,
	}
	if cfg.ObjectStore.BearerHeaders {
		resolverOpts.Credentials = creds
	}
	resolver, err := objstore.NewResolver(storeClient, resolverOpts)
	if err != nil {
		log.Fatalf("Failed to create artifact resolver: %v", err)
	}

	validator, err := schema.Load()
	if err != nil {
		log.Fatalf("Failed to load OpenAPI document: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 通知连接注册表；多副本时经事件总线转发
	registry := notify.NewRegistry()
	if infrastructure.EventBus != nil {
		registry.AttachBus(infrastructure.EventBus)
		go func() {
			if err := registry.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("Notification relay stopped: %v", err)
			}
		}()
	}
	defer registry.CloseAll()

	signer := callback.NewSigner(cfg.Callback.Secret, cfg.Callback.TokenTTL)
	dispatcher := callback.NewDispatcher(registry, resolver, callback.DispatcherOptions{
		Validator:  validator,
		HTTPClient: httpClient,
		Logger:     logger,
		Observer:   metrics,
	})

	owner := cfg.APS.ClientID
	upload := func(ctx context.Context, params engine.UploadParameters, archivePath string) error {
		return engine.UploadPackage(ctx, httpClient, params, archivePath)
	}

	h := server.NewHandler(server.Deps{
		Provisioner: appbundle.NewProvisioner(engineClient, upload, owner, cfg.APS.Alias, cfg.BundlesDir),
		Builder:     activity.NewBuilder(engineClient, owner, cfg.APS.Alias),
		Jobs: workitem.NewService(
			workitem.NewSubmitter(engineClient),
			resolver,
			callback.NewURLBuilder(cfg.APS.WebhookURL, signer),
			owner,
			cfg.APS.Alias,
			metrics,
		),
		Registry:    registry,
		Signer:      signer,
		Dispatcher:  dispatcher,
		ReplayGuard: infrastructure.Cache,
		Validator:   validator,
		Metrics:     metrics,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      h.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}
