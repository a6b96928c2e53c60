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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/run"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/filerise/filerise/acl"
	"github.com/filerise/filerise/audit"
	"github.com/filerise/filerise/config"
	"github.com/filerise/filerise/sources"
	"github.com/filerise/filerise/storage"
	"github.com/filerise/filerise/transfer"
	"github.com/filerise/filerise/web_api"
	"github.com/filerise/filerise/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transfer engine server",
	RunE:  serveMain,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// deps bundles the collaborators shared between the server and the
// worker entry point, built once from configuration.
type deps struct {
	store     *transfer.Store
	oracle    acl.Oracle
	registry  sources.Registry
	storage   storage.Adapter
	audit     audit.Sink
	auditDB   *audit.SQLiteSink
	retention time.Duration
	staleAge  time.Duration
}

func buildDeps() (*deps, error) {
	store := transfer.NewStore(config.GetString("Transfer.JobsRoot"))
	if err := store.EnsureDirs(); err != nil {
		return nil, err
	}

	defaultCtx := sources.Context{
		Root:     config.GetString("Storage.UploadRoot"),
		MetaRoot: config.GetString("Storage.MetaRoot"),
	}
	registry := sources.NewFileRegistry(
		config.GetString("Sources.ConfigPath"),
		defaultCtx,
		config.GetDuration("Sources.CacheTTL", time.Second),
	)

	d := &deps{
		store:     store,
		oracle:    acl.NewFileOracle(config.GetString("Permissions.ConfigPath")),
		registry:  registry,
		storage:   storage.NewPosix(),
		audit:     audit.LogSink{},
		retention: config.GetDuration("Transfer.RetentionAge", transfer.DefaultRetention),
		staleAge:  config.GetDuration("Transfer.StaleAge", 0),
	}

	if dbLocation := config.GetString("Audit.DbLocation"); dbLocation != "" {
		sink, err := audit.NewSQLiteSink(dbLocation)
		if err != nil {
			return nil, errors.Wrap(err, "failed to initialize audit sink")
		}
		d.audit = sink
		d.auditDB = sink
	}
	return d, nil
}

func (d *deps) close() {
	if d.auditDB != nil {
		d.auditDB.Close()
	}
}

func (d *deps) newWorker() *worker.Worker {
	return &worker.Worker{
		Store:     d.store,
		Oracle:    d.oracle,
		Registry:  d.registry,
		Storage:   d.storage,
		Audit:     d.audit,
		Retention: d.retention,
		StaleAge:  d.staleAge,
	}
}

func newLauncher(d *deps) (transfer.Launcher, error) {
	if config.GetBool("Transfer.SynchronousWorker") {
		// Degraded mode: the worker runs inside the request-handling
		// process instead of a detached child.
		log.Warn("Transfer.SynchronousWorker is enabled; jobs run in-process")
		return &transfer.ForegroundLauncher{
			Run: func(ctx context.Context, jobID string) error {
				return d.newWorker().Run(ctx, jobID)
			},
		}, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve server executable for worker spawns")
	}
	return &transfer.DetachedLauncher{Exe: exe}, nil
}

func serveMain(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer d.close()

	launcher, err := newLauncher(d)
	if err != nil {
		return err
	}
	manager := transfer.NewManager(d.store, launcher)

	engine := web_api.GetEngine()

	// The engine trusts a fronting proxy to authenticate; it forwards the
	// username in a header.
	engine.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-FileRise-User"); user != "" {
			c.Set(web_api.UserContextKey, user)
		}
	})

	api := &web_api.API{
		Manager:  manager,
		Oracle:   d.oracle,
		Registry: d.registry,
		Storage:  d.storage,
	}
	api.RegisterRoutes(engine)

	addr := fmt.Sprintf("%s:%d", config.GetString("Server.Address"), config.GetInt("Server.Port"))
	server := &http.Server{Addr: addr, Handler: engine}

	var group run.Group
	group.Add(func() error {
		log.Infoln("Starting web engine at address", addr)
		return server.ListenAndServe()
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Web engine shutdown: %v", err)
		}
	})

	// Retention sweeper: expire old job artifacts and reap dead workers
	// on a coarse schedule, independent of worker launches.
	sweepDone := make(chan struct{})
	group.Add(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-sweepDone:
				return nil
			case <-ticker.C:
				if err := d.store.CleanupOld(d.retention); err != nil {
					log.Warnf("Job cleanup failed: %v", err)
				}
				if err := d.store.MarkStale(d.staleAge); err != nil {
					log.Warnf("Stale job sweep failed: %v", err)
				}
			}
		}
	}, func(error) {
		close(sweepDone)
	})

	group.Add(run.SignalHandler(cmd.Context(), os.Interrupt, syscall.SIGTERM))

	err = group.Run()
	if _, isSignal := err.(run.SignalError); isSignal || err == http.ErrServerClosed {
		log.Infoln("Shutting down")
		return nil
	}
	return err
}
