package server

import (
	"strings"
	"sync"

	"github.com/saiset-co/sai-docs/types"
)

var methodIndex = map[string]uint8{
	"GET":     0,
	"POST":    1,
	"PUT":     2,
	"DELETE":  3,
	"PATCH":   4,
	"HEAD":    5,
	"OPTIONS": 6,
}

type compiledRoute struct {
	methodIdx  uint8
	pattern    string
	segments   []string
	paramNames []string
	handler    types.FastHTTPHandler
	config     *types.RouteConfig
}

// FastHTTPRouter resolves static routes through a map lookup and falls back
// to segment matching for parameterized patterns.
type FastHTTPRouter struct {
	logger        types.Logger
	staticRoutes  map[string]*types.RouteInfo
	dynamicRoutes []*compiledRoute
	mu            sync.RWMutex
}

func NewFastHTTPRouter(logger types.Logger) (*FastHTTPRouter, error) {
	return &FastHTTPRouter{
		logger:       logger,
		staticRoutes: make(map[string]*types.RouteInfo),
	}, nil
}

func (r *FastHTTPRouter) Add(method, path string, handler types.FastHTTPHandler, config *types.RouteConfig) {
	methodIdx, exists := methodIndex[method]
	if !exists {
		return
	}

	if config == nil {
		config = &types.RouteConfig{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !strings.Contains(path, "{") && !strings.Contains(path, ":") {
		r.staticRoutes[method+":"+path] = &types.RouteInfo{
			Handler: handler,
			Config:  config,
		}
		return
	}

	segments := parsePathSegments(path)
	route := &compiledRoute{
		methodIdx: methodIdx,
		pattern:   path,
		segments:  segments,
		handler:   handler,
		config:    config,
	}

	for _, segment := range segments {
		switch {
		case strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}"):
			route.paramNames = append(route.paramNames, segment[1:len(segment)-1])
		case strings.HasPrefix(segment, ":"):
			route.paramNames = append(route.paramNames, segment[1:])
		}
	}

	r.dynamicRoutes = append(r.dynamicRoutes, route)
}

func (r *FastHTTPRouter) Lookup(method, path string) (types.FastHTTPHandler, *types.RouteConfig, map[string]string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if info, exists := r.staticRoutes[method+":"+path]; exists {
		return info.Handler, info.Config, nil
	}

	methodIdx, exists := methodIndex[method]
	if !exists {
		return nil, nil, nil
	}

	pathSegments := parsePathSegments(path)

	for _, route := range r.dynamicRoutes {
		if route.methodIdx != methodIdx {
			continue
		}
		if params, ok := matchSegments(pathSegments, route); ok {
			return route.handler, route.config, params
		}
	}

	return nil, nil, nil
}

func (r *FastHTTPRouter) GetAllRoutes() map[string]*types.RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string]*types.RouteInfo, len(r.staticRoutes)+len(r.dynamicRoutes))
	for key, info := range r.staticRoutes {
		routes[key] = info
	}

	for method, idx := range methodIndex {
		for _, route := range r.dynamicRoutes {
			if route.methodIdx == idx {
				routes[method+":"+route.pattern] = &types.RouteInfo{
					Handler: route.handler,
					Config:  route.config,
				}
			}
		}
	}

	return routes
}

func parsePathSegments(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func matchSegments(pathSegments []string, route *compiledRoute) (map[string]string, bool) {
	if len(pathSegments) != len(route.segments) {
		return nil, false
	}

	var params map[string]string
	paramIdx := 0

	for i, routeSegment := range route.segments {
		if strings.HasPrefix(routeSegment, "{") || strings.HasPrefix(routeSegment, ":") {
			if params == nil {
				params = make(map[string]string, len(route.paramNames))
			}
			if paramIdx < len(route.paramNames) {
				params[route.paramNames[paramIdx]] = pathSegments[i]
				paramIdx++
			}
			continue
		}
		if routeSegment != pathSegments[i] {
			return nil, false
		}
	}

	return params, true
}
