// Package gwlog provides the process-wide structured logger.
package gwlog

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bne-group/eportal-gateway/internal/gwenv"
)

type Level = zapcore.Level

const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
)

var (
	instance *zap.SugaredLogger
	once     sync.Once

	level            = LevelInfo
	enableStacktrace = false
)

// SetLevel overrides the default level before first use. No-op after the
// logger has been constructed.
func SetLevel(l Level) { level = l }

// SetStacktrace toggles stacktrace capture on error-and-above entries.
func SetStacktrace(enable bool) { enableStacktrace = enable }

// L returns the process-wide sugared logger, building it on first use.
func L() *zap.SugaredLogger {
	once.Do(func() {
		instance = build()
	})
	return instance
}

func build() *zap.SugaredLogger {
	var conf zap.Config

	env := gwenv.Current()
	if gwenv.ShouldUseStderr() {
		conf = zap.NewDevelopmentConfig()
		conf.OutputPaths = []string{"stderr"}
		conf.ErrorOutputPaths = []string{"stderr"}
	} else {
		conf = zap.NewProductionConfig()
		conf.Encoding = "json"
		conf.OutputPaths = []string{"stdout"}
		conf.ErrorOutputPaths = []string{"stderr"}
	}

	conf.DisableStacktrace = !enableStacktrace
	conf.Level = zap.NewAtomicLevelAt(level)

	logger, err := conf.Build(zap.AddCallerSkip(1))
	if err != nil {
		fmt.Printf("gwlog: failed to build zap logger for env %s: %v\n", env, err)
		logger = zap.NewNop()
	}
	return logger.Sugar()
}
