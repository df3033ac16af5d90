package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-docs/types"
	"github.com/saiset-co/sai-docs/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type FastHTTPServer struct {
	ctx             context.Context
	cancel          context.CancelFunc
	config          types.ConfigManager
	logger          types.Logger
	middlewares     types.MiddlewareManager
	router          *FastHTTPRouter
	server          *fasthttp.Server
	listener        net.Listener
	httpConfig      *types.HTTPConfig
	staticHandler   fasthttp.RequestHandler
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewHTTPServer(
	ctx context.Context,
	config types.ConfigManager,
	logger types.Logger,
	middlewares types.MiddlewareManager,
	router *FastHTTPRouter) (*FastHTTPServer, error) {
	serverCtx, cancel := context.WithCancel(ctx)

	server := &FastHTTPServer{
		ctx:             serverCtx,
		cancel:          cancel,
		config:          config,
		logger:          logger,
		middlewares:     middlewares,
		router:          router,
		httpConfig:      config.GetConfig().Server.HTTP,
		shutdownTimeout: 5 * time.Second,
	}

	if staticDir := config.GetConfig().Docs.StaticDir; staticDir != "" {
		fs := &fasthttp.FS{
			Root:               staticDir,
			IndexNames:         []string{"index.html"},
			GenerateIndexPages: false,
			AcceptByteRange:    true,
		}
		server.staticHandler = fs.NewRequestHandler()
	}

	server.state.Store(StateStopped)

	return server, nil
}

func (h *FastHTTPServer) Start() error {
	if !h.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if h.getState() == StateStarting {
			h.setState(StateRunning)
		}
	}()

	h.server = &fasthttp.Server{
		Handler:                      h.mainHandler(),
		ReadTimeout:                  time.Duration(h.httpConfig.ReadTimeout) * time.Second,
		WriteTimeout:                 time.Duration(h.httpConfig.WriteTimeout) * time.Second,
		IdleTimeout:                  time.Duration(h.httpConfig.IdleTimeout) * time.Second,
		TCPKeepalive:                 true,
		DisablePreParseMultipartForm: true,
		CloseOnShutdown:              true,
	}

	addr := fmt.Sprintf("%s:%d", h.httpConfig.Host, h.httpConfig.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		h.setState(StateStopped)
		return types.WrapError(err, "http listener failed")
	}
	h.listener = listener

	go func() {
		if err := h.server.Serve(h.listener); err != nil {
			if h.logger != nil && h.getState() == StateRunning {
				h.logger.Error("HTTP server failed", zap.Error(err))
			}
			h.setState(StateStopped)
		}
	}()

	if h.logger != nil {
		h.logger.Info("HTTP server started", zap.String("address", addr))
	}

	return nil
}

func (h *FastHTTPServer) Stop() error {
	if !h.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		h.setState(StateStopped)
		h.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if h.server == nil {
			return nil
		}
		return h.server.ShutdownWithContext(ctx)
	})

	if err := g.Wait(); err != nil {
		select {
		case <-gCtx.Done():
			if h.logger != nil {
				h.logger.Warn("Server stop timeout, active connections were dropped")
			}
		default:
			if h.logger != nil {
				h.logger.Error("Error during server shutdown", zap.Error(err))
			}
		}
		return nil
	}

	if h.logger != nil {
		h.logger.Info("HTTP server stopped gracefully")
	}
	return nil
}

func (h *FastHTTPServer) IsRunning() bool {
	return h.getState() == StateRunning
}

func (h *FastHTTPServer) getState() State {
	return h.state.Load().(State)
}

func (h *FastHTTPServer) setState(newState State) bool {
	currentState := h.getState()
	return h.state.CompareAndSwap(currentState, newState)
}

func (h *FastHTTPServer) transitionState(from, to State) bool {
	return h.state.CompareAndSwap(from, to)
}

func (h *FastHTTPServer) mainHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		method := utils.Intern(ctx.Method())
		path := utils.BytesToString(ctx.Path())

		handler, config, params := h.router.Lookup(method, path)
		if handler != nil {
			for name, value := range params {
				ctx.SetUserValue(name, value)
			}
			h.executeHandler(ctx, handler, config)
			return
		}

		if method == fasthttp.MethodOptions {
			h.executeHandler(ctx, func(ctx *fasthttp.RequestCtx) {}, &types.RouteConfig{})
			return
		}

		if h.staticHandler != nil && method == fasthttp.MethodGet && !strings.HasPrefix(path, "/api/") {
			h.staticHandler(ctx)
			return
		}

		utils.CreateNotFoundResponse(ctx)
	}
}

func (h *FastHTTPServer) executeHandler(ctx *fasthttp.RequestCtx, handler types.FastHTTPHandler, config *types.RouteConfig) {
	if handler == nil {
		utils.CreateNotFoundResponse(ctx)
		return
	}

	if h.middlewares != nil {
		h.middlewares.Execute(ctx, func(ctx *fasthttp.RequestCtx) {
			handler(ctx)
		}, config)
		return
	}

	handler(ctx)
}
