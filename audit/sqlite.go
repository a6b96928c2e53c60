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

package audit

import (
	"database/sql"
	"embed"
	"encoding/json"
	"time"

	_ "github.com/glebarez/sqlite" // SQLite driver
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLiteSink persists audit events to a local SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the audit database and applies
// migrations.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open audit database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping audit database")
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set goose dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply audit migrations")
	}

	log.Infof("Audit database initialized at %s", dbPath)
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Log(event string, details map[string]any) {
	raw, err := json.Marshal(details)
	if err != nil {
		raw = []byte("{}")
	}
	_, err = s.db.Exec(
		`INSERT INTO audit_events (event, details, created_at) VALUES (?, ?, ?)`,
		event, string(raw), time.Now().Unix(),
	)
	if err != nil {
		log.Warnf("Failed to record audit event %s: %v", event, err)
	}
}

// Recent returns the newest events, most recent first.
func (s *SQLiteSink) Recent(limit int) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT event, details, created_at FROM audit_events ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query audit events")
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var details string
		if err := rows.Scan(&ev.Name, &details, &ev.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan audit event")
		}
		if err := json.Unmarshal([]byte(details), &ev.Details); err != nil {
			ev.Details = map[string]any{}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Event is one recorded audit entry.
type Event struct {
	Name      string         `json:"event"`
	Details   map[string]any `json:"details"`
	CreatedAt int64          `json:"createdAt"`
}
