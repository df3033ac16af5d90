package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-docs/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, *map[string]interface{}, error) {
	if configPath == "" {
		return nil, nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil, types.WrapError(err, "file not found: "+configPath)
	}

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, nil, types.Errorf(types.ErrConfigLoadFailed, "failed to read %s: %v", configPath, err)
	}

	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	rawData := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &rawData); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "raw document: %v", err)
	}

	return config, &rawData, nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Server: &types.ServerConfig{
			HTTP: &types.HTTPConfig{
				Host:            "localhost",
				Port:            8080,
				ReadTimeout:     30,
				WriteTimeout:    30,
				IdleTimeout:     120,
				ShutdownTimeout: 10,
			},
		},
		Logger: &types.LoggerConfig{
			Level: "debug",
		},
		Docs: &types.DocsConfig{
			Root:       "./docs",
			Theme:      "default",
			IndexFile:  "README.md",
			Extensions: []string{".md", ".markdown"},
		},
		Cache: &types.CacheConfig{
			Enabled: true,
			Limits: types.CacheLimits{
				MaxEntries:              1024,
				MaxTotalBytes:           64 << 20,
				TTL:                     time.Hour,
				FileInvalidationEnabled: true,
				StatisticsEnabled:       true,
			},
		},
		Watcher: &types.WatcherConfig{
			Enabled:  true,
			Debounce: 200 * time.Millisecond,
		},
		Cron: &types.CronConfig{
			Enabled:       false,
			Timezone:      "UTC",
			SweepSchedule: "*/5 * * * *",
			StatsSchedule: "@hourly",
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "prometheus",
		},
		Health: &types.HealthConfig{
			Enabled: true,
		},
		Notify: &types.NotifyConfig{
			Enabled: false,
			Path:    "/ws/reload",
		},
		Middlewares: &types.MiddlewaresConfig{
			Enabled: true,
			Recovery: &types.MiddlewareItemConfig{
				Enabled: true,
				Params: map[string]interface{}{
					"stack_trace": true,
				},
				Weight: 10,
			},
			Logging: &types.MiddlewareItemConfig{
				Enabled: true,
				Params: map[string]interface{}{
					"log_level":   "info",
					"log_headers": false,
				},
				Weight: 20,
			},
			CORS: &types.MiddlewareItemConfig{
				Enabled: true,
				Params: map[string]interface{}{
					"AllowedOrigins": []string{"*"},
					"AllowedMethods": []string{"GET", "POST", "OPTIONS"},
					"AllowedHeaders": []string{"Content-Type", "X-Request-ID"},
					"MaxAge":         86400,
				},
				Weight: 50,
			},
			Metadata: &types.MiddlewareItemConfig{
				Enabled: true,
				Params: map[string]interface{}{
					"generate_request_id": true,
					"propagated_headers":  []string{"X-Real-IP", "X-Request-ID", "X-Trace-ID"},
				},
				Weight: 60,
			},
			Compression: &types.MiddlewareItemConfig{
				Enabled: false,
				Params: map[string]interface{}{
					"min_length": 1024,
				},
				Weight: 90,
			},
		},
	}
}
