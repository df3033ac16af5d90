package types

import (
	"time"
)

type HTTPServer interface {
	LifecycleManager
}

type HTTPRouter interface {
	Add(method, path string, handler FastHTTPHandler, config *RouteConfig)
	GetAllRoutes() map[string]*RouteInfo
}

type RouteConfig struct {
	Timeout             time.Duration
	DisabledMiddlewares []string
}

type RouteInfo struct {
	Handler FastHTTPHandler
	Config  *RouteConfig
}
