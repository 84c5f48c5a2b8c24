// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	_mu     sync.Mutex
	_logger *zap.SugaredLogger
)

// Default returns the package-level logger, initializing it with the default
// configuration on first use.
func Default() *zap.SugaredLogger {
	_mu.Lock()
	defer _mu.Unlock()

	if _logger == nil {
		logger, err := DefaultConfig().Build()
		if err != nil {
			panic(err)
		}
		_logger = logger.Sugar()
	}
	return _logger
}

// DefaultConfig returns the default configuration: human-readable console
// output to stderr.
func DefaultConfig() zap.Config {
	return zap.Config{
		Level:            zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding:         "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			NameKey:        "logger_name",
			LevelKey:       "level",
			TimeKey:        "ts",
			CallerKey:      "caller",
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}
}

// New creates a logger from config with the given initial fields.
func New(config zap.Config, fields map[string]interface{}) (*zap.Logger, error) {
	var options []zap.Option
	if len(fields) > 0 {
		zfields := make([]zapcore.Field, 0, len(fields))
		for k, v := range fields {
			zfields = append(zfields, zap.Any(k, v))
		}
		options = append(options, zap.Fields(zfields...))
	}
	return config.Build(options...)
}

// ConfigureLogger builds the package-level logger from config and replaces
// any existing one. Returns the underlying logger so callers can defer Sync.
func ConfigureLogger(config zap.Config) *zap.Logger {
	logger, err := New(config, nil)
	if err != nil {
		panic(err)
	}

	_mu.Lock()
	_logger = logger.Sugar()
	_mu.Unlock()

	return logger
}

// Debug uses fmt.Sprint to construct and log a message.
func Debug(args ...interface{}) { Default().Debug(args...) }

// Info uses fmt.Sprint to construct and log a message.
func Info(args ...interface{}) { Default().Info(args...) }

// Warn uses fmt.Sprint to construct and log a message.
func Warn(args ...interface{}) { Default().Warn(args...) }

// Error uses fmt.Sprint to construct and log a message.
func Error(args ...interface{}) { Default().Error(args...) }

// Fatal uses fmt.Sprint to construct and log a message, then calls os.Exit.
func Fatal(args ...interface{}) { Default().Fatal(args...) }

// Debugf uses fmt.Sprintf to log a templated message.
func Debugf(template string, args ...interface{}) { Default().Debugf(template, args...) }

// Infof uses fmt.Sprintf to log a templated message.
func Infof(template string, args ...interface{}) { Default().Infof(template, args...) }

// Warnf uses fmt.Sprintf to log a templated message.
func Warnf(template string, args ...interface{}) { Default().Warnf(template, args...) }

// Errorf uses fmt.Sprintf to log a templated message.
func Errorf(template string, args ...interface{}) { Default().Errorf(template, args...) }

// Fatalf uses fmt.Sprintf to log a templated message, then calls os.Exit.
func Fatalf(template string, args ...interface{}) { Default().Fatalf(template, args...) }

// With adds a variadic number of fields to the logging context.
func With(args ...interface{}) *zap.SugaredLogger { return Default().With(args...) }
