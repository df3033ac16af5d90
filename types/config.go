package types

import (
	"time"
)

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Version     string             `yaml:"version" json:"version" validate:"required"`
	Server      *ServerConfig      `yaml:"server" json:"server"`
	Logger      *LoggerConfig      `yaml:"logger" json:"logger"`
	Docs        *DocsConfig        `yaml:"docs" json:"docs"`
	Cache       *CacheConfig       `yaml:"cache" json:"cache"`
	Watcher     *WatcherConfig     `yaml:"watcher" json:"watcher"`
	Cron        *CronConfig        `yaml:"cron" json:"cron"`
	Middlewares *MiddlewaresConfig `yaml:"middlewares" json:"middlewares"`
	Metrics     *MetricsConfig     `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig      `yaml:"health" json:"health"`
	Notify      *NotifyConfig      `yaml:"notify" json:"notify"`
}

type ServerConfig struct {
	HTTP *HTTPConfig `yaml:"http" json:"http"`
}

type HTTPConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     int    `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

// DocsConfig points the server at the directory being browsed.
type DocsConfig struct {
	Root       string   `yaml:"root" json:"root" validate:"required"`
	StaticDir  string   `yaml:"static_dir" json:"static_dir"`
	Theme      string   `yaml:"theme" json:"theme"`
	IndexFile  string   `yaml:"index_file" json:"index_file"`
	Extensions []string `yaml:"extensions" json:"extensions"`
}

type CacheConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Limits  CacheLimits `yaml:"limits" json:"limits"`
}

type WatcherConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

type CronConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Timezone      string `yaml:"timezone" json:"timezone"`
	SweepSchedule string `yaml:"sweep_schedule" json:"sweep_schedule"`
	StatsSchedule string `yaml:"stats_schedule" json:"stats_schedule"`
}

type MiddlewaresConfig struct {
	Enabled     bool                  `yaml:"enabled" json:"enabled"`
	Metadata    *MiddlewareItemConfig `yaml:"metadata" json:"metadata"`
	Logging     *MiddlewareItemConfig `yaml:"logging" json:"logging"`
	Recovery    *MiddlewareItemConfig `yaml:"recovery" json:"recovery"`
	Compression *MiddlewareItemConfig `yaml:"compression" json:"compression"`
	CORS        *MiddlewareItemConfig `yaml:"cors" json:"cors"`
}

type MiddlewareItemConfig struct {
	Enabled bool                   `yaml:"enabled" json:"enabled"`
	Weight  int                    `yaml:"weight" json:"weight" validate:"min=0"`
	Params  map[string]interface{} `yaml:"params" json:"params"`
}

type MetricsConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Type    string            `yaml:"type" json:"type"`
	Config  interface{}       `yaml:"config" json:"config"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

type NotifyConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

type VersionInfo struct {
	Version   string `json:"version"`
	BuildInfo string `json:"build_info"`
}
