package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// Init inicializa el logger global. LOG_LEVEL acepta debug, info, warn o error.
func Init() {
	var err error
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if parsed, perr := zapcore.ParseLevel(lvl); perr == nil {
			cfg.Level = zap.NewAtomicLevelAt(parsed)
		}
	}

	log, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}

// Sugar retorna un logger más “friendly” para usar con printf-like
func Sugar() *zap.SugaredLogger {
	return Logger().Sugar()
}

// Logger retorna el logger estructurado; sin Init devuelve uno que no escribe nada.
func Logger() *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
