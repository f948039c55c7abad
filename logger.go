package identity

import (
	"fmt"
	"sync"

	"github.com/goliatone/go-logger/glog"
)

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

var (
	defaultProviderOnce sync.Once
	defaultProvider     LoggerProvider
)

type glogProvider struct {
	base *glog.BaseLogger
}

func (p *glogProvider) GetLogger(name string) Logger {
	return p.base.GetLogger(name)
}

// DefaultLoggerProvider returns the shared glog-backed provider used when a
// host does not inject its own.
func DefaultLoggerProvider() LoggerProvider {
	defaultProviderOnce.Do(func() {
		defaultProvider = &glogProvider{
			base: glog.NewLogger(
				glog.WithName("identity"),
				glog.WithAddSource(false),
			),
		}
	})
	return defaultProvider
}

// ResolveLogger picks the effective provider and logger for a named
// component: an explicit logger wins, then the provider's named logger,
// then the package default.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider == nil {
		provider = DefaultLoggerProvider()
	}

	if logger == nil {
		logger = provider.GetLogger(name)
	}

	if logger == nil {
		logger = defLogger{}
	}

	return provider, logger
}
