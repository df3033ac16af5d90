package middleware

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-docs/types"
	"github.com/saiset-co/sai-docs/utils"
)

type MetadataMiddleware struct {
	config         types.ConfigManager
	logger         types.Logger
	metadataConfig *MetadataConfig
	weight         int
}

type MetadataConfig struct {
	GenerateRequestID bool `json:"generate_request_id"`
}

func NewMetadataMiddleware(config types.ConfigManager, logger types.Logger) *MetadataMiddleware {
	metadataConfig := &MetadataConfig{
		GenerateRequestID: true,
	}

	item := config.GetConfig().Middlewares.Metadata
	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, metadataConfig); err != nil && logger != nil {
			logger.Error("Failed to unmarshal Metadata middleware config", zap.Error(err))
		}
	}

	return &MetadataMiddleware{
		config:         config,
		logger:         logger,
		metadataConfig: metadataConfig,
		weight:         item.Weight,
	}
}

func (m *MetadataMiddleware) Name() string { return "Metadata" }
func (m *MetadataMiddleware) Weight() int  { return m.weight }

func (m *MetadataMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	requestID := string(ctx.Request.Header.Peek("X-Request-ID"))
	if requestID == "" && m.metadataConfig.GenerateRequestID {
		requestID = uuid.NewString()
		ctx.Request.Header.Set("X-Request-ID", requestID)
	}

	metadata := map[string]string{
		"request_id":  requestID,
		"real_ip":     m.extractRealIP(ctx),
		"received_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	ctx.SetUserValue("metadata", metadata)

	next(ctx)

	if requestID != "" {
		ctx.Response.Header.Set("X-Request-ID", requestID)
	}
}

func (m *MetadataMiddleware) extractRealIP(ctx *fasthttp.RequestCtx) string {
	if realIP := string(ctx.Request.Header.Peek("X-Real-IP")); realIP != "" {
		return realIP
	}

	if forwarded := string(ctx.Request.Header.Peek("X-Forwarded-For")); forwarded != "" {
		if comma := strings.Index(forwarded, ","); comma > 0 {
			return strings.TrimSpace(forwarded[:comma])
		}
		return strings.TrimSpace(forwarded)
	}

	return ctx.RemoteIP().String()
}
