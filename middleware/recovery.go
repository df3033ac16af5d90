package middleware

import (
	"runtime"
	"sync"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-docs/types"
	"github.com/saiset-co/sai-docs/utils"
)

type RecoveryMiddleware struct {
	config         types.ConfigManager
	logger         types.Logger
	metrics        types.MetricsManager
	recoveryConfig *RecoveryConfig
	weight         int
	stackBufPool   sync.Pool
	panicLabels    map[string]string
}

type RecoveryConfig struct {
	StackTrace bool `json:"stack_trace"`
}

func NewRecoveryMiddleware(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) *RecoveryMiddleware {
	recoveryConfig := &RecoveryConfig{
		StackTrace: true,
	}

	item := config.GetConfig().Middlewares.Recovery
	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, recoveryConfig); err != nil && logger != nil {
			logger.Error("Failed to unmarshal Recovery middleware config", zap.Error(err))
		}
	}

	return &RecoveryMiddleware{
		config:         config,
		logger:         logger,
		metrics:        metrics,
		recoveryConfig: recoveryConfig,
		weight:         item.Weight,
		stackBufPool: sync.Pool{
			New: func() interface{} {
				return make([]byte, 4096)
			},
		},
		panicLabels: map[string]string{
			"middleware": "recovery",
		},
	}
}

func (r *RecoveryMiddleware) Name() string { return "Recovery" }
func (r *RecoveryMiddleware) Weight() int  { return r.weight }

func (r *RecoveryMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	defer func() {
		if rec := recover(); rec != nil {
			var stack string
			if r.recoveryConfig.StackTrace {
				stack = r.getStackTrace()
			}

			r.logPanic(rec, stack, ctx)

			if r.metrics != nil {
				r.metrics.Counter("handler_panics_total", r.panicLabels).Inc()
			}

			utils.CreateErrorResponse(ctx)
		}
	}()

	next(ctx)
}

func (r *RecoveryMiddleware) logPanic(rec interface{}, stack string, ctx *fasthttp.RequestCtx) {
	if r.logger == nil {
		return
	}

	fields := []zap.Field{
		zap.Any("panic", rec),
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.String("remote_addr", ctx.RemoteIP().String()),
	}

	if r.recoveryConfig.StackTrace && stack != "" {
		fields = append(fields, zap.String("stack", stack))
	}

	if requestID := ctx.Request.Header.Peek("X-Request-ID"); len(requestID) > 0 {
		fields = append(fields, zap.ByteString("request_id", requestID))
	}

	r.logger.Error("Recovered from panic", fields...)
}

func (r *RecoveryMiddleware) getStackTrace() string {
	buf := r.stackBufPool.Get().([]byte)
	defer r.stackBufPool.Put(buf)

	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
