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

// Package audit provides the fire-and-forget event sink the transfer
// engine reports completed operations to.
package audit

import (
	log "github.com/sirupsen/logrus"
)

// Sink receives one event per successfully completed item or job.
// Implementations must never block or fail the transfer: errors are
// logged and dropped.
type Sink interface {
	Log(event string, details map[string]any)
}

// LogSink writes audit events to the process log.
type LogSink struct{}

func (LogSink) Log(event string, details map[string]any) {
	fields := log.Fields{"event": event}
	for k, v := range details {
		fields[k] = v
	}
	log.WithFields(fields).Info("Audit event")
}

// Discard drops all events; useful in tests.
type Discard struct{}

func (Discard) Log(event string, details map[string]any) {}
