// Copyright 2026 Dominik Schlosser
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

package config

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// DefaultLogger creates a new logger with the given app name.
func DefaultLogger(appName string, writer io.Writer) zerolog.Logger {
	logger := zerolog.New(writer).With().Timestamp().Str("app", appName).Logger()
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) == 40 {
				logger = logger.With().Str("commit", s.Value[:7]).Logger()
				break
			}
		}
	}
	return logger
}

// SetLevel applies level to logger if it is not empty.
func SetLevel(logger zerolog.Logger, level string) (zerolog.Logger, error) {
	if level == "" {
		return logger, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return logger, fmt.Errorf("parsing log level: %w", err)
	}
	return logger.Level(lvl), nil
}
