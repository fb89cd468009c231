package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"AirQualityDashboard/src/config"
	"AirQualityDashboard/src/processor"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

var startTime = time.Now()

// LogSource 实时日志来源，storage.Logger 实现了该接口
type LogSource interface {
	Subscribe() <-chan string
	Unsubscribe(<-chan string)
}

// Server 仪表盘HTTP接口
type Server struct {
	app    *fiber.App
	store  *processor.DatasetStore
	logs   LogSource
	logger zerolog.Logger
	addr   string

	// 关闭时通知 /logs 等长连接退出
	done     chan struct{}
	doneOnce sync.Once
}

// NewServer logs为nil时不注册 /logs
func NewServer(cfg config.ServerConfig, store *processor.DatasetStore, logs LogSource, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Air Quality Dashboard",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(requestLogger(logger))

	s := &Server{
		app:    app,
		store:  store,
		logs:   logs,
		logger: logger,
		addr:   cfg.Addr(),
		done:   make(chan struct{}),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", s.handleHealth)

	v1 := s.app.Group("/api/v1")
	v1.Get("/dataset", s.handleDataset)
	v1.Get("/counties", s.handleCounties)
	v1.Get("/records", s.handleRecords)
	v1.Get("/summary", s.handleSummary)
	v1.Get("/charts/timeseries", s.handleTimeSeries)
	v1.Get("/charts/geo", s.handleGeo)
	v1.Get("/charts/aqi", s.handleAQI)
	v1.Get("/export.csv", s.handleExportCSV)
	v1.Get("/export.xlsx", s.handleExportXLSX)

	if s.logs != nil {
		s.app.Get("/logs", s.handleLogs)
	}
}

// App 返回底层fiber应用，测试中使用 app.Test
func (s *Server) App() *fiber.App {
	return s.app
}

// Run 监听直到ctx结束，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("HTTP服务已启动")
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("正在关闭HTTP服务")
		s.doneOnce.Do(func() { close(s.done) })
		return s.app.ShutdownWithTimeout(shutdownTimeout)
	}
}

// errorHandler 所有错误都以 {"error": ...} 返回，日志由 requestLogger 统一记录
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// requestLogger 成功请求记debug，4xx记warn，5xx记error
func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		event := logger.Debug()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}
		if err != nil && status >= 500 {
			event = event.Err(err)
		}
		event.
			Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
		return nil
	}
}
