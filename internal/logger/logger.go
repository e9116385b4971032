// internal/logger/logger.go
//
// Process logging: zap, sugared, over a lumberjack file.
//
// Context
// -------
// Donations, contact submissions, mail failures, and analytics drops all
// land in `<root>/logs/YYYY-MM-DD.log` as JSON, one object per line.  An
// interactive run, or log.console: true, also prints them to stdout in
// zap's console format.  Lumberjack caps the file at 50 MB and prunes old
// ones, so no logrotate entry is needed on the host.
//
// Usage
// -----
//
//	log, err := logger.New(cfg.Paths.Root, runningInTTY(), cfg.Log.Level)
//	log.Infow("listening", "addr", addr)
//
// Handlers use the request-scoped logger AccessLog stores:
//
//	logger.FromContext(r.Context()).Warnw("mail failed", "err", err)
package logger

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the logger and installs it as zap's global.  level is a zap
// level name; blank or unknown means info.
func New(rootDir string, tee bool, level string) (*zap.SugaredLogger, error) {
	dir := filepath.Join(rootDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zapcore.InfoLevel
	}

	file := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(dir, time.Now().Format("2006-01-02")+".log"),
		MaxSize:    50, // MB
		MaxBackups: 7,
		MaxAge:     14, // days
		Compress:   true,
	})

	enc := encoding()
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), file, lvl)
	if tee {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewTee(core,
			zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stdout), lvl))
	}

	l := zap.New(core, zap.AddCaller(), zap.ErrorOutput(file))
	zap.ReplaceGlobals(l)

	s := l.Sugar()
	s.Infow("logger online", "tee", tee, "level", lvl.String())
	return s, nil
}

// encoding is shared by the file and console cores: ISO-8601 time,
// lower-case levels, and short callers.
func encoding() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		MessageKey:   "msg",
		CallerKey:    "caller",
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.LowercaseLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying l.
func WithContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by WithContext, or the global
// sugared logger when none is present.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok && l != nil {
			return l
		}
	}
	return zap.S()
}
