package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the daemon's zap configuration: json to stdout and
// the log file, durations rendered human-readable for poll timings.
func newLogger(lFile string, lvl zapcore.Level) zap.Config {
	lcfg := zap.NewProductionConfig()
	lcfg.Encoding = "json"
	lcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	lcfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	lcfg.DisableStacktrace = false
	lcfg.DisableCaller = true
	lcfg.Sampling = nil
	lcfg.InitialFields = map[string]interface{}{
		"service": "fieldbusd",
	}
	lcfg.OutputPaths = []string{
		"stdout",
		lFile,
	}

	lcfg.Level.SetLevel(lvl)

	return lcfg
}
