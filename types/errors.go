package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigInvalidPath    = errors.New("config invalid path")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigLoadFailed     = errors.New("config load failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServerStartFailed    = errors.New("server start failed")
	ErrServerStopFailed     = errors.New("server stop failed")
)

var (
	ErrComputeFailed         = errors.New("compute failed")
	ErrInvalidKeyParams      = errors.New("invalid key params")
	ErrCapacityMisconfigured = errors.New("capacity misconfigured")
	ErrCacheIsDisabled       = errors.New("cache is disabled")
)

var (
	ErrRenderFailed         = errors.New("render failed")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrDocumentOutsideRoot  = errors.New("document outside root")
	ErrUnsupportedExtension = errors.New("unsupported extension")
)

var (
	ErrWatcherStartFailed = errors.New("watcher start failed")
	ErrWatcherRootInvalid = errors.New("watcher root invalid")
)

var (
	ErrCronJobNotFound       = errors.New("cron job not found")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
)

var (
	ErrMetricsTypeUnknown   = errors.New("metrics type unknown")
	ErrMetricsConfigInvalid = errors.New("metrics config invalid")
	ErrMetricsIsDisabled    = errors.New("metrics manager is disabled")
)

var (
	ErrHealthCheckFailed  = errors.New("health check failed")
	ErrHealthCheckTimeout = errors.New("health check timeout")
	ErrHealthIsNotRunning = errors.New("health manager is not running")
)

var (
	ErrLogFileIsEmpty      = errors.New("log file is empty")
	ErrLogFileWrongFormat  = errors.New("log file wrong format")
	ErrLoggerTypeUnknown   = errors.New("logger type unknown")
	ErrLoggerConfigInvalid = errors.New("logger config invalid")
)

var (
	ErrServiceIsRunning    = errors.New("service is running")
	ErrServiceIsNotRunning = errors.New("service is not running")
	ErrNotifierClosed      = errors.New("notifier closed")
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidState     = errors.New("invalid state")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
