package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"AirQualityDashboard/src/api"
	"AirQualityDashboard/src/config"
	"AirQualityDashboard/src/datasource/file"
	"AirQualityDashboard/src/processor"
	"AirQualityDashboard/src/report"
	"AirQualityDashboard/src/storage"
	"AirQualityDashboard/src/utils"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// 日志轮转检查间隔
const rotateInterval = time.Minute

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	jsonFolder := "./config"
	jsonFile := "config.json"
	cfg, err := config.LoadConfig(jsonFolder, jsonFile)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(storage.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("服务异常退出")
		logger.Close()
		os.Exit(1)
	}
	logger.Info().Msg("服务已停止")
}

func run(ctx context.Context, cfg *config.Config, logger *storage.Logger) error {
	store := &processor.DatasetStore{}
	loader := &datasetLoader{cfg: cfg.Data, store: store, logger: logger.Component("loader")}

	// 首次加载失败时服务照常启动，接口返回503直到重新加载成功
	loader.Reload("startup")

	if cfg.Data.PIDFile != "" {
		if err := utils.WritePIDFile(cfg.Data.PIDFile); err != nil {
			return err
		}
		defer os.Remove(cfg.Data.PIDFile)
	}

	var monitor *file.FileMonitor
	if cfg.Data.Watch {
		var err error
		if monitor, err = file.NewFileMonitor(cfg.Data.Path); err != nil {
			return fmt.Errorf("监控数据文件失败: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	server := api.NewServer(cfg.Server, store, logger, logger.Component("api"))
	g.Go(func() error {
		return server.Run(gctx)
	})

	if monitor != nil {
		monitorLog := logger.Component("monitor")
		monitor.OnError = func(err error) {
			monitorLog.Error().Err(err).Str("path", cfg.Data.Path).Msg("文件监控出错")
		}
		g.Go(func() error {
			return monitor.Watch(func(string) {
				loader.Reload("file changed")
			})
		})
		g.Go(func() error {
			<-gctx.Done()
			return monitor.Close()
		})
	}

	if cfg.Report.Enabled {
		scheduler := report.NewScheduler(cfg.Report, store, logger.Component("report"))
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	}

	g.Go(func() error {
		return handleSignals(gctx, cfg.Log, logger, loader)
	})

	return g.Wait()
}

// handleSignals SIGHUP 重新打开日志并重新加载数据，同时定期检查日志大小
func handleSignals(ctx context.Context, cfg config.LogConfig, logger *storage.Logger, loader *datasetLoader) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	ticker := time.NewTicker(rotateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := logger.Reopen(); err != nil {
				logger.Error().Err(err).Msg("重新打开日志文件失败")
			}
			loader.Reload("SIGHUP")
		case <-ticker.C:
			rotated, err := logger.CheckRotate(cfg.MaxSize)
			if err != nil {
				logger.Error().Err(err).Msg("日志轮转失败")
			} else if rotated {
				logger.Info().Msg("日志文件已轮转")
			}
		}
	}
}
