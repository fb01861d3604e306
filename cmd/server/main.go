package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // 确保在精简镜像中也能识别时区

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/user/catadmin/internal/config"
	"github.com/user/catadmin/internal/handler"
	"github.com/user/catadmin/internal/middleware"
	"github.com/user/catadmin/internal/router"
	"github.com/user/catadmin/internal/service"
	"github.com/user/catadmin/internal/utils"
)

func main() {
	// 加载环境变量
	envErr := godotenv.Load()

	// 加载配置
	cfg := config.Load()
	utils.InitLogger(cfg.LogLevel, cfg.IsProduction())
	if envErr != nil {
		log.Info().Msg("未找到 .env 文件，使用系统环境变量")
	}

	// 远程 API 凭证（可选）
	var tokens *service.TokenSource
	if cfg.CategoryAPISecret != "" {
		tokens = service.NewTokenSource(cfg.CategoryAPISecret, "catadmin", cfg.CategoryTokenTTL)
	}

	categories := service.NewCategoryService(service.CategoryServiceOptions{
		BaseURL:  cfg.CategoryAPIURL,
		Timeout:  cfg.CategoryAPITimeout,
		CacheTTL: cfg.CategoryCacheTTL,
		Tokens:   tokens,
	})

	// 初始化 Handler
	h := handler.NewHandler(cfg, categories)

	// 写操作限流，定期清理空闲 IP
	stop := make(chan struct{})
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	limiter.StartCleanup(time.Minute, 10*time.Minute, stop)

	r := router.NewEngine(cfg, h, limiter, "./web")

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   cfg.CategoryAPITimeout + 10*time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// 在 goroutine 中启动服务器，这样我们就可以监听信号
	go func() {
		log.Info().
			Str("addr", "http://localhost:"+cfg.Port).
			Str("categoryAPI", cfg.CategoryAPIURL).
			Msg("服务器启动")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("服务器启动失败")
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("正在关闭服务器...")
	close(stop)

	// 5 秒超时上下文用于关闭过程
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("服务器强制关闭")
	}

	log.Info().Msg("服务器已退出")
}
