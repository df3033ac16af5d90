package service

import (
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-docs/sai"
	"github.com/saiset-co/sai-docs/types"
	"github.com/saiset-co/sai-docs/utils"
)

type documentResponse struct {
	Path        string            `json:"path"`
	HTML        string            `json:"html"`
	Frontmatter types.Frontmatter `json:"frontmatter,omitempty"`
}

type invalidateRequest struct {
	Key   string   `json:"key"`
	Path  string   `json:"path"`
	Paths []string `json:"paths"`
	All   bool     `json:"all"`
}

type invalidateResponse struct {
	Removed int `json:"removed"`
}

type warmupRequest struct {
	Paths   []string          `json:"paths"`
	Options map[string]string `json:"options"`
	Theme   string            `json:"theme"`
}

func (s *Service) registerHandlers() {
	router := sai.Router()

	apiConfig := &types.RouteConfig{}

	router.Add("GET", "/api/document", s.handleDocument, apiConfig)
	router.Add("GET", "/api/documents", s.handleDocumentTree, apiConfig)

	cacheConfig := &types.RouteConfig{DisabledMiddlewares: []string{"Compression"}}

	router.Add("GET", "/api/cache/stats", s.handleCacheStats, cacheConfig)
	router.Add("GET", "/api/cache/health", s.handleCacheHealth, cacheConfig)
	router.Add("GET", "/api/cache/items", s.handleCacheItems, cacheConfig)
	router.Add("POST", "/api/cache/invalidate", s.handleCacheInvalidate, cacheConfig)
	router.Add("POST", "/api/cache/clear", s.handleCacheClear, cacheConfig)
	router.Add("POST", "/api/cache/warmup", s.handleCacheWarmup, cacheConfig)

	if cronPtr := s.container.Cron.Load(); cronPtr != nil {
		router.Add("GET", "/api/cron/jobs", s.handleCronJobs, cacheConfig)
	}

	_config := sai.Config().GetConfig()
	if notifierPtr := s.container.Notifier.Load(); notifierPtr != nil && _config.Notify != nil {
		path := _config.Notify.Path
		if path == "" {
			path = "/ws/reload"
		}
		if provider, ok := (*notifierPtr).(interface {
			Handler() types.FastHTTPHandler
		}); ok {
			router.Add("GET", path, provider.Handler(), &types.RouteConfig{DisabledMiddlewares: []string{"Compression", "Logging"}})
		}
	}
}

func (s *Service) handleDocument(ctx *fasthttp.RequestCtx) {
	requestPath := string(ctx.QueryArgs().Peek("path"))
	if requestPath == "" {
		utils.CreateBadRequestResponse(ctx, "path query parameter is required")
		return
	}

	renderer := sai.Renderer()

	absolutePath, err := renderer.Resolve(requestPath)
	if err != nil {
		s.respondResolveError(ctx, err)
		return
	}

	params := types.CacheKeyParams{
		Source:   requestPath,
		FilePath: absolutePath,
		Theme:    string(ctx.QueryArgs().Peek("theme")),
		Options:  renderOptionsFromQuery(ctx),
	}

	var html string
	if cachePtr := s.container.Cache.Load(); cachePtr != nil {
		html, err = (*cachePtr).GetOrCompute(params, func() (string, time.Time, error) {
			return renderer.Render(params)
		})
	} else {
		html, _, err = renderer.Render(params)
	}

	if err != nil {
		sai.Logger().ErrorWithErrStack("Document render failed", err,
			zap.String("path", requestPath))
		s.respondResolveError(ctx, err)
		return
	}

	frontmatter, _ := renderer.Frontmatter(absolutePath)

	utils.WriteJSON(ctx, fasthttp.StatusOK, documentResponse{
		Path:        requestPath,
		HTML:        html,
		Frontmatter: frontmatter,
	})
}

func renderOptionsFromQuery(ctx *fasthttp.RequestCtx) map[string]interface{} {
	var options map[string]interface{}

	for _, option := range []string{types.OptionTOC, types.OptionHardWraps, types.OptionLineNumbers} {
		value := string(ctx.QueryArgs().Peek(option))
		if value != "true" {
			continue
		}
		if options == nil {
			options = make(map[string]interface{}, 3)
		}
		options[option] = "true"
	}

	return options
}

func (s *Service) respondResolveError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case types.IsError(err, types.ErrDocumentNotFound):
		utils.CreateNotFoundResponse(ctx)
	case types.IsError(err, types.ErrDocumentOutsideRoot):
		utils.CreateBadRequestResponse(ctx, "path escapes the documentation root")
	case types.IsError(err, types.ErrUnsupportedExtension):
		utils.CreateBadRequestResponse(ctx, "unsupported document extension")
	default:
		utils.CreateErrorResponse(ctx)
	}
}

func (s *Service) handleDocumentTree(ctx *fasthttp.RequestCtx) {
	tree, err := sai.Renderer().Tree()
	if err != nil {
		sai.Logger().ErrorWithErrStack("Failed to list documents", err)
		utils.CreateErrorResponse(ctx)
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"documents": tree,
	})
}

func (s *Service) renderCache(ctx *fasthttp.RequestCtx) types.RenderCache {
	cachePtr := s.container.Cache.Load()
	if cachePtr == nil {
		utils.WriteJSON(ctx, fasthttp.StatusServiceUnavailable, map[string]string{
			"error":   "Service Unavailable",
			"message": types.ErrCacheIsDisabled.Error(),
		})
		return nil
	}
	return *cachePtr
}

func (s *Service) handleCacheStats(ctx *fasthttp.RequestCtx) {
	renderCache := s.renderCache(ctx)
	if renderCache == nil {
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, renderCache.Statistics())
}

func (s *Service) handleCacheHealth(ctx *fasthttp.RequestCtx) {
	renderCache := s.renderCache(ctx)
	if renderCache == nil {
		return
	}

	cacheHealth := renderCache.Health()
	status := fasthttp.StatusOK
	if !cacheHealth.Healthy {
		status = fasthttp.StatusServiceUnavailable
	}

	utils.WriteJSON(ctx, status, cacheHealth)
}

func (s *Service) handleCacheItems(ctx *fasthttp.RequestCtx) {
	renderCache := s.renderCache(ctx)
	if renderCache == nil {
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"items":  renderCache.ItemsMetadata(),
		"limits": renderCache.Limits(),
	})
}

func (s *Service) handleCacheInvalidate(ctx *fasthttp.RequestCtx) {
	renderCache := s.renderCache(ctx)
	if renderCache == nil {
		return
	}

	var request invalidateRequest
	if len(ctx.PostBody()) > 0 {
		if err := utils.Unmarshal(ctx.PostBody(), &request); err != nil {
			utils.CreateBadRequestResponse(ctx, "invalid request body")
			return
		}
	}

	var removed int
	switch {
	case request.All:
		paths, err := sai.Renderer().Paths()
		if err != nil {
			sai.Logger().ErrorWithErrStack("Failed to collect document paths", err)
			utils.CreateErrorResponse(ctx)
			return
		}
		removed = renderCache.InvalidateAll(paths)

	case len(request.Paths) > 0:
		absolutePaths := make([]string, 0, len(request.Paths))
		for _, requestPath := range request.Paths {
			absolutePath, err := sai.Renderer().Resolve(requestPath)
			if err != nil {
				s.respondResolveError(ctx, err)
				return
			}
			absolutePaths = append(absolutePaths, absolutePath)
		}
		removed = renderCache.InvalidateAll(absolutePaths)

	case request.Key != "":
		if renderCache.Invalidate(request.Key) {
			removed = 1
		}

	case request.Path != "":
		absolutePath, err := sai.Renderer().Resolve(request.Path)
		if err != nil {
			s.respondResolveError(ctx, err)
			return
		}
		removed = renderCache.InvalidateByFilePath(absolutePath)

	default:
		utils.CreateBadRequestResponse(ctx, "one of key, path, paths or all must be set")
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, invalidateResponse{Removed: removed})
}

func (s *Service) handleCacheClear(ctx *fasthttp.RequestCtx) {
	renderCache := s.renderCache(ctx)
	if renderCache == nil {
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, renderCache.Clear(types.ReasonManual))
}

func (s *Service) handleCacheWarmup(ctx *fasthttp.RequestCtx) {
	renderCache := s.renderCache(ctx)
	if renderCache == nil {
		return
	}

	var request warmupRequest
	if len(ctx.PostBody()) > 0 {
		if err := utils.Unmarshal(ctx.PostBody(), &request); err != nil {
			utils.CreateBadRequestResponse(ctx, "invalid request body")
			return
		}
	}

	renderer := sai.Renderer()

	absolutePaths := make([]string, 0, len(request.Paths))
	if len(request.Paths) == 0 {
		all, err := renderer.Paths()
		if err != nil {
			sai.Logger().ErrorWithErrStack("Failed to collect document paths", err)
			utils.CreateErrorResponse(ctx)
			return
		}
		absolutePaths = all
	} else {
		for _, requestPath := range request.Paths {
			absolutePath, err := renderer.Resolve(requestPath)
			if err != nil {
				s.respondResolveError(ctx, err)
				return
			}
			absolutePaths = append(absolutePaths, absolutePath)
		}
	}

	var options map[string]interface{}
	if len(request.Options) > 0 {
		options = make(map[string]interface{}, len(request.Options))
		for key, value := range request.Options {
			options[key] = value
		}
	}

	tasks := make([]types.WarmupTask, 0, len(absolutePaths))
	for _, absolutePath := range absolutePaths {
		params := types.CacheKeyParams{
			Source:   relativeDocPath(renderer.Root(), absolutePath),
			FilePath: absolutePath,
			Theme:    request.Theme,
			Options:  options,
		}
		tasks = append(tasks, types.WarmupTask{
			Params: params,
			Compute: func() (string, time.Time, error) {
				return renderer.Render(params)
			},
		})
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, renderCache.Warmup(tasks))
}

func relativeDocPath(root, absolutePath string) string {
	relative := strings.TrimPrefix(absolutePath, root)
	if relative == "" {
		return "/"
	}
	return relative
}

func (s *Service) handleCronJobs(ctx *fasthttp.RequestCtx) {
	cronPtr := s.container.Cron.Load()
	if cronPtr == nil {
		utils.CreateNotFoundResponse(ctx)
		return
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"jobs": (*cronPtr).List(),
	})
}
