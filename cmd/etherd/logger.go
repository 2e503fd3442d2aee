package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/datawire/dlib/dlog"
)

func makeBaseLogger(ctx context.Context) context.Context {
	logrusLogger := logrus.New()
	logrusLogger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		FullTimestamp:   true,
	})

	const defaultLevel = logrus.InfoLevel
	level := defaultLevel
	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		parsed, err := logrus.ParseLevel(levelStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "etherd: bad LOG_LEVEL %q, using %s: %v\n", levelStr, defaultLevel, err)
		} else {
			level = parsed
		}
	}
	logrusLogger.SetLevel(level)

	logger := dlog.WrapLogrus(logrusLogger)
	dlog.SetFallbackLogger(logger)
	return dlog.WithLogger(ctx, logger)
}
