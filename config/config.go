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

// Package config loads the server configuration with viper. Keys may be
// set in a YAML file, or through the environment with the FILERISE_
// prefix (FILERISE_SERVER_PORT, FILERISE_TRANSFER_JOBSROOT, ...).
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type contextKey string

// EgrpKey carries the process-wide errgroup through cobra command
// contexts.
const EgrpKey = contextKey("egrp")

// InitConfig reads the configuration file (if any) and wires up
// environment variable overrides. Called once from the root command.
func InitConfig(cfgFile string) error {
	viper.SetEnvPrefix("filerise")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("filerise")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/filerise")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "filerise"))
		}
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			// Running on defaults and environment alone is supported.
			return nil
		}
		return errors.Wrap(err, "failed to read configuration file")
	}
	log.Debugf("Loaded configuration from %s", viper.ConfigFileUsed())
	return nil
}

func setDefaults() {
	runtimeDir := filepath.Join(os.TempDir(), "filerise")

	viper.SetDefault("Server.Address", "localhost")
	viper.SetDefault("Server.Port", 8080)

	viper.SetDefault("Logging.Level", "info")
	viper.SetDefault("Logging.LogLocation", "")

	viper.SetDefault("Transfer.JobsRoot", filepath.Join(runtimeDir, "transfer_jobs"))
	viper.SetDefault("Transfer.RetentionAge", "48h")
	viper.SetDefault("Transfer.StaleAge", "0s")
	viper.SetDefault("Transfer.SynchronousWorker", false)

	viper.SetDefault("Storage.UploadRoot", filepath.Join(runtimeDir, "uploads"))
	viper.SetDefault("Storage.MetaRoot", filepath.Join(runtimeDir, "metadata"))

	viper.SetDefault("Sources.ConfigPath", "")
	viper.SetDefault("Sources.CacheTTL", "1s")

	viper.SetDefault("Permissions.ConfigPath", filepath.Join(runtimeDir, "permissions.json"))

	viper.SetDefault("Audit.DbLocation", "")
}

func GetString(key string) string { return viper.GetString(key) }
func GetInt(key string) int       { return viper.GetInt(key) }
func GetBool(key string) bool     { return viper.GetBool(key) }

// GetDuration parses a duration-valued key; a malformed value falls back
// to the supplied default with a warning rather than failing startup.
func GetDuration(key string, fallback time.Duration) time.Duration {
	raw := viper.GetString(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warnf("Invalid duration for %s: %q; using %s", key, raw, fallback)
		return fallback
	}
	return d
}
