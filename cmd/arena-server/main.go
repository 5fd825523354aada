package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/wuqi/xiangqi-arena/internal/config"

	"github.com/wuqi/xiangqi-arena/internal/arena"
	"github.com/wuqi/xiangqi-arena/internal/archive"
	"github.com/wuqi/xiangqi-arena/internal/authsvc"
	"github.com/wuqi/xiangqi-arena/internal/gateway"
	"github.com/wuqi/xiangqi-arena/internal/obslog"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}

	var verifier authsvc.Verifier
	var redisVerifier *authsvc.RedisVerifier
	switch {
	case cfg.AuthBaseURL != "":
		verifier = authsvc.NewHTTPVerifier(cfg.AuthBaseURL)
	default:
		redisVerifier, err = authsvc.NewRedisVerifier(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis verifier init error: %v", err)
		}
		verifier = redisVerifier
	}

	reg := arena.NewRegistry()

	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		reg.AttachSink(repo)
	} else {
		reg.AttachSink(archive.NewMemory())
	}

	gw := gateway.New(reg, verifier, cfg.Limits)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Fatal("server_error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if repo != nil {
		_ = repo.Close()
	}
	if redisVerifier != nil {
		_ = redisVerifier.Close()
	}
	obslog.L().Info("server_stop")
}
