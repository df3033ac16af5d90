package middleware

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-docs/types"
	"github.com/saiset-co/sai-docs/utils"
)

type LoggingMiddleware struct {
	config        types.ConfigManager
	logger        types.Logger
	metrics       types.MetricsManager
	loggingConfig *LoggingConfig
	weight        int
}

type LoggingConfig struct {
	LogLevel   string `json:"log_level"`
	LogHeaders bool   `json:"log_headers"`
	SlowMs     int    `json:"slow_ms"`
}

func NewLoggingMiddleware(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) *LoggingMiddleware {
	loggingConfig := &LoggingConfig{
		LogLevel: "info",
		SlowMs:   500,
	}

	item := config.GetConfig().Middlewares.Logging
	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, loggingConfig); err != nil && logger != nil {
			logger.Error("Failed to unmarshal Logging middleware config", zap.Error(err))
		}
	}

	return &LoggingMiddleware{
		config:        config,
		logger:        logger,
		metrics:       metrics,
		loggingConfig: loggingConfig,
		weight:        item.Weight,
	}
}

func (l *LoggingMiddleware) Name() string { return "Logging" }
func (l *LoggingMiddleware) Weight() int  { return l.weight }

func (l *LoggingMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	start := time.Now()

	next(ctx)

	duration := time.Since(start)
	status := ctx.Response.StatusCode()

	if l.metrics != nil {
		labels := map[string]string{
			"method": string(ctx.Method()),
			"status": strconv.Itoa(status),
		}
		l.metrics.Counter("http_requests_total", labels).Inc()
		l.metrics.Histogram("http_request_duration_seconds", nil, labels).ObserveDuration(start)
	}

	if l.logger == nil {
		return
	}

	fields := []zap.Field{
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.Int("status", status),
		zap.Duration("duration", duration),
		zap.String("remote_addr", ctx.RemoteIP().String()),
	}

	if query := ctx.QueryArgs().QueryString(); len(query) > 0 {
		fields = append(fields, zap.ByteString("query", query))
	}

	if requestID := ctx.Response.Header.Peek("X-Request-ID"); len(requestID) > 0 {
		fields = append(fields, zap.ByteString("request_id", requestID))
	}

	switch {
	case status >= fasthttp.StatusInternalServerError:
		l.logger.Error("Request failed", fields...)
	case duration > time.Duration(l.loggingConfig.SlowMs)*time.Millisecond:
		l.logger.Warn("Slow request", fields...)
	case l.loggingConfig.LogLevel == "debug":
		l.logger.Debug("Request completed", fields...)
	default:
		l.logger.Info("Request completed", fields...)
	}
}
