package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger yang dipakai di seluruh aplikasi. Sebelum InitLoggers dipanggil
// semuanya no-op, jadi test dan package lain aman memanggilnya.
var (
	ErrorLogger    = zap.NewNop()
	AuditLogger    = zap.NewNop()
	RequestLogger  = zap.NewNop()
	SecurityLogger = zap.NewNop()
	SystemLogger   = zap.NewNop()
)

const (
	// Stdout sebagai LOG_DIR menulis semua logger ke standard output.
	Stdout = "-"

	maxAge       = 7 * 24 * time.Hour
	rotationTime = 24 * time.Hour
)

func encoder() zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(encoderCfg)
}

func newLogger(dir, name string, level zapcore.Level) (*zap.Logger, error) {
	var ws zapcore.WriteSyncer
	if dir == Stdout {
		ws = zapcore.Lock(os.Stdout)
	} else {
		base := filepath.Join(dir, name)
		rl, err := rotatelogs.New(
			base+".%Y%m%d.log",
			rotatelogs.WithLinkName(base+".log"),
			rotatelogs.WithMaxAge(maxAge),
			rotatelogs.WithRotationTime(rotationTime),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s log: %w", name, err)
		}
		ws = zapcore.AddSync(rl)
	}

	core := zapcore.NewCore(encoder(), ws, level)
	return zap.New(core).Named(name), nil
}

// InitLoggers opens the named loggers under dir, rotated daily.
func InitLoggers(dir string) error {
	if dir == "" {
		dir = "logs"
	}
	if dir != Stdout {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}

	specs := []struct {
		target **zap.Logger
		name   string
		level  zapcore.Level
	}{
		{&ErrorLogger, "errors", zapcore.ErrorLevel},
		{&AuditLogger, "audit", zapcore.InfoLevel},
		{&RequestLogger, "request", zapcore.InfoLevel},
		{&SecurityLogger, "security", zapcore.WarnLevel},
		{&SystemLogger, "system", zapcore.InfoLevel},
	}
	for _, s := range specs {
		l, err := newLogger(dir, s.name, s.level)
		if err != nil {
			return err
		}
		*s.target = l
	}
	return nil
}

func SyncLoggers() {
	_ = ErrorLogger.Sync()
	_ = AuditLogger.Sync()
	_ = RequestLogger.Sync()
	_ = SecurityLogger.Sync()
	_ = SystemLogger.Sync()
}
