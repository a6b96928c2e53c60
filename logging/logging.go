/***************************************************************
 *
 * Copyright (C) 2025, FileRise Project
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

// Package logging configures the process-wide logger from the Logging.*
// configuration keys.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var logFHandle *os.File

// Setup applies the configured log level and, when location is
// non-empty, redirects all log output to that file.
func Setup(level, location string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "unknown log level %q", level)
	}
	log.SetLevel(lvl)

	if location == "" {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:          true,
			DisableLevelTruncation: true,
		})
		return nil
	}

	if dir := filepath.Dir(location); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return errors.Wrap(err, "failed to create log directory")
		}
	}
	f, err := os.OpenFile(location, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
	if err != nil {
		return errors.Wrap(err, "failed to open log file")
	}
	logFHandle = f
	fmt.Fprintf(os.Stderr, "Logging.LogLocation is set to %s. All logs are redirected to the log file.\n", location)
	log.SetOutput(f)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:          true,
		DisableColors:          true,
		DisableLevelTruncation: true,
	})
	return nil
}

// Close releases the log file handle, if any.
func Close() {
	if logFHandle != nil {
		logFHandle.Close()
		logFHandle = nil
	}
}
