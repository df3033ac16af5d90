package middleware

import (
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-docs/types"
	"github.com/saiset-co/sai-docs/utils"
)

type CORSMiddleware struct {
	config            types.ConfigManager
	logger            types.Logger
	corsConfig        *CORSConfig
	weight            int
	allowsAll         bool
	allowedOrigins    map[string]struct{}
	allowedMethodsStr string
	allowedHeadersStr string
	maxAgeStr         string
}

type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

func NewCORSMiddleware(config types.ConfigManager, logger types.Logger) *CORSMiddleware {
	corsConfig := &CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	}

	item := config.GetConfig().Middlewares.CORS
	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, corsConfig); err != nil && logger != nil {
			logger.Error("Failed to unmarshal CORS middleware config", zap.Error(err))
		}
	}

	cm := &CORSMiddleware{
		config:            config,
		logger:            logger,
		corsConfig:        corsConfig,
		weight:            item.Weight,
		allowedOrigins:    make(map[string]struct{}, len(corsConfig.AllowedOrigins)),
		allowedMethodsStr: strings.Join(corsConfig.AllowedMethods, ", "),
		allowedHeadersStr: strings.Join(corsConfig.AllowedHeaders, ", "),
		maxAgeStr:         strconv.Itoa(corsConfig.MaxAge),
	}

	for _, origin := range corsConfig.AllowedOrigins {
		if origin == "*" {
			cm.allowsAll = true
			continue
		}
		cm.allowedOrigins[origin] = struct{}{}
	}

	return cm
}

func (c *CORSMiddleware) Name() string { return "CORS" }
func (c *CORSMiddleware) Weight() int  { return c.weight }

func (c *CORSMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	origin := string(ctx.Request.Header.Peek("Origin"))
	if origin == "" {
		next(ctx)
		return
	}

	if !c.originAllowed(origin) {
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"CORS policy violation","message":"Origin not allowed"}`)
		return
	}

	allowOrigin := origin
	if c.allowsAll && !c.corsConfig.AllowCredentials {
		allowOrigin = "*"
	}

	ctx.Response.Header.Set("Access-Control-Allow-Origin", allowOrigin)
	ctx.Response.Header.Add("Vary", "Origin")

	if c.corsConfig.AllowCredentials {
		ctx.Response.Header.Set("Access-Control-Allow-Credentials", "true")
	}

	if string(ctx.Method()) == fasthttp.MethodOptions {
		ctx.Response.Header.Set("Access-Control-Allow-Methods", c.allowedMethodsStr)
		ctx.Response.Header.Set("Access-Control-Allow-Headers", c.allowedHeadersStr)
		ctx.Response.Header.Set("Access-Control-Max-Age", c.maxAgeStr)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	}

	next(ctx)
}

func (c *CORSMiddleware) originAllowed(origin string) bool {
	if c.allowsAll {
		return true
	}
	_, ok := c.allowedOrigins[origin]
	return ok
}
