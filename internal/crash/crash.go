/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a report file plus an autosave of the
// in-memory workspace, then exits non-zero.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"vidskel/internal/domain"
	applog "vidskel/internal/log"
	"vidskel/internal/storage"
	"vidskel/internal/telemetry"
	"vidskel/internal/version"
)

// exitFn is swapped in tests.
var exitFn = os.Exit

// Source supplies the live workspace state. *store.Store satisfies it.
type Source interface {
	TryExport() (domain.Workspace, bool)
}

// Recover captures a panic, logs it with the stack, writes a report and
// autosaves the workspace. With a nil src the handle's own Workspace is saved.
//
// Usage: defer crash.Recover(wh, st)
func Recover(wh *storage.WorkspaceHandle, src Source) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(wh, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if wh != nil {
		autosave(l, wh, src)
	}

	fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

func autosave(l *slog.Logger, wh *storage.WorkspaceHandle, src Source) {
	snap := *wh
	if src != nil {
		if ws, ok := src.TryExport(); ok {
			snap.Workspace = ws
		} else {
			l.Warn("store busy at crash time, autosaving last loaded workspace")
		}
	}
	path, err := storage.AutosaveCrashSnapshot(&snap)
	if err != nil {
		l.Error("autosave crash snapshot failed", slog.Any("err", err))
		return
	}
	l.Info("autosave crash snapshot written", slog.String("path", path))
}

func writeReport(wh *storage.WorkspaceHandle, panicVal any, stack []byte) (string, error) {
	dir := os.TempDir()
	if wh != nil && wh.Root != "" {
		dir = filepath.Join(wh.Root, storage.BackupsDirName)
		_ = os.MkdirAll(dir, 0o755)
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("20060102-150405")))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "vidskel crash report\n")
	fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&buf, "Version: %s\n", version.String())
	fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if wh != nil {
		fmt.Fprintf(&buf, "Workspace: %s\n", wh.Root)
		fmt.Fprintf(&buf, "Manifest: %s\n", wh.ManifestPath)
	}
	fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	fmt.Fprintf(&buf, "Stack:\n%s\n", stack)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	// opt-in only; a no-op unless VSK_CRASH_UPLOAD_URL is set
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
