/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vidskel/internal/domain"
	"vidskel/internal/store"
)

// AppConfig is the user-editable configuration persisted as YAML in the user scope.
// Environment variables are read-only overrides applied at load time.
// API keys are never part of the file; they live in the OS keyring.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int               `yaml:"config_version"`
	General       GeneralConfig     `yaml:"general"`
	Editor        EditorConfig      `yaml:"editor"`
	Keymap        map[string]string `yaml:"keymap,omitempty"`
	Server        ServerConfig      `yaml:"server"`
	Backend       BackendConfig     `yaml:"backend"`
	AI            AIConfig          `yaml:"ai"`
	Logging       LoggingConfig     `yaml:"logging"`
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
	// Workspace is the default workspace directory for the CLI.
	Workspace     string `yaml:"workspace"`
	BackupsKeep   int    `yaml:"backups_keep"`
	RevisionsKeep int    `yaml:"revisions_keep"`
	// TemplatesFile is an optional YAML catalog merged over the built-in templates.
	TemplatesFile string `yaml:"templates_file,omitempty"`
}

// EditorConfig tunes the planner core.
type EditorConfig struct {
	UnitMatch     string `yaml:"unit_match"`    // exact | fold
	OrphanPolicy  string `yaml:"orphan_policy"` // keep | reassign | drop
	SettleDelayMs int    `yaml:"settle_delay_ms"`
	UndoDepth     int    `yaml:"undo_depth"`
	UndoMergeMs   int    `yaml:"undo_merge_ms"`
}

type ServerConfig struct {
	Addr              string `yaml:"addr"`
	DatabaseURL       string `yaml:"database_url"`
	ShutdownTimeoutMs int    `yaml:"shutdown_timeout_ms"`
}

// BackendConfig is where the CLI finds a running server.
type BackendConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type AIConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{Workspace: ".", BackupsKeep: 20, RevisionsKeep: 50},
		Editor: EditorConfig{
			UnitMatch:     string(domain.UnitMatchExact),
			OrphanPolicy:  string(store.OrphanKeep),
			SettleDelayMs: 50,
			UndoDepth:     100,
			UndoMergeMs:   0,
		},
		Server:  ServerConfig{Addr: ":8080", ShutdownTimeoutMs: 10000},
		Backend: BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000},
		AI:      AIConfig{Provider: "gemini", Model: "gemini-2.5-flash", TimeoutMs: 60000},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath     = "VSK_CONFIG"
	EnvTelemetryOptIn = "VSK_TELEMETRY_OPT_IN"
	EnvWorkspace      = "VSK_WORKSPACE"
	EnvTemplatesFile  = "VSK_TEMPLATES_FILE"
	EnvUnitMatch      = "VSK_UNIT_MATCH"
	EnvOrphanPolicy   = "VSK_ORPHAN_POLICY"
	EnvSettleDelayMs  = "VSK_SETTLE_DELAY_MS"
	EnvServerAddr     = "VSK_SERVER_ADDR"
	EnvDatabaseURL    = "VSK_DATABASE_URL"
	EnvBackendURL     = "VSK_BACKEND_URL"
	EnvBackendTimeout = "VSK_BACKEND_TIMEOUT_MS"
	EnvAIProvider     = "VSK_AI_PROVIDER"
	EnvAIModel        = "VSK_AI_MODEL"
	EnvAITimeoutMs    = "VSK_AI_TIMEOUT_MS"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "VSK_LOG_LEVEL"
	EnvLogFormat = "VSK_LOG_FORMAT"
	EnvLogSource = "VSK_LOG_SOURCE"
	EnvLogFile   = "VSK_LOG_FILE"
)

// envKeys maps dotted config keys to their override variable.
var envKeys = map[string]string{
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"general.workspace":        EnvWorkspace,
	"general.templates_file":   EnvTemplatesFile,
	"editor.unit_match":        EnvUnitMatch,
	"editor.orphan_policy":     EnvOrphanPolicy,
	"editor.settle_delay_ms":   EnvSettleDelayMs,
	"server.addr":              EnvServerAddr,
	"server.database_url":      EnvDatabaseURL,
	"backend.base_url":         EnvBackendURL,
	"backend.timeout_ms":       EnvBackendTimeout,
	"ai.provider":              EnvAIProvider,
	"ai.model":                 EnvAIModel,
	"ai.timeout_ms":            EnvAITimeoutMs,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// ConfigPath returns the per-user config file path. VSK_CONFIG wins when set.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "vidskel")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "vidskel")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "vidskel")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "vidskel")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults and merges
// environment overrides.
func Load() (AppConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file path. A missing file is not an error;
// a malformed one is.
func LoadFrom(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg, data)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyEnvOverrides(&cfg)
	return cfg, cfg.Validate()
}

// Save writes the user config YAML to ConfigPath.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

// SaveTo writes cfg to path with user-only permissions.
func SaveTo(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks the enumerated editor settings.
func (c AppConfig) Validate() error {
	if _, err := c.Editor.Match(); err != nil {
		return fmt.Errorf("editor.unit_match: %w", err)
	}
	if _, err := c.Editor.Orphans(); err != nil {
		return fmt.Errorf("editor.orphan_policy: %w", err)
	}
	return nil
}

// Match returns the configured unit comparison policy.
func (e EditorConfig) Match() (domain.UnitMatch, error) { return domain.ParseUnitMatch(e.UnitMatch) }

// Orphans returns the configured orphan policy.
func (e EditorConfig) Orphans() (store.OrphanPolicy, error) {
	return store.ParseOrphanPolicy(e.OrphanPolicy)
}

func (e EditorConfig) SettleDelay() time.Duration {
	return millis(e.SettleDelayMs, Defaults().Editor.SettleDelayMs)
}

func (e EditorConfig) UndoMerge() time.Duration {
	if e.UndoMergeMs <= 0 {
		return 0
	}
	return time.Duration(e.UndoMergeMs) * time.Millisecond
}

func (s ServerConfig) ShutdownTimeout() time.Duration {
	return millis(s.ShutdownTimeoutMs, Defaults().Server.ShutdownTimeoutMs)
}

// EffectiveTimeout returns the client timeout, falling back to the default.
func (b BackendConfig) EffectiveTimeout() time.Duration {
	return millis(b.TimeoutMs, Defaults().Backend.TimeoutMs)
}

func (a AIConfig) Timeout() time.Duration {
	return millis(a.TimeoutMs, Defaults().AI.TimeoutMs)
}

func millis(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}

// mergeInto copies set values of src over dst. raw is the file content; it
// tells explicitly-false booleans apart from absent ones.
func mergeInto(dst *AppConfig, src *AppConfig, raw []byte) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	var present struct {
		General map[string]any `yaml:"general"`
		Logging map[string]any `yaml:"logging"`
	}
	_ = yaml.Unmarshal(raw, &present)
	if _, ok := present.General["telemetry_opt_in"]; ok {
		dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	}
	setStr(&dst.General.Workspace, src.General.Workspace)
	setInt(&dst.General.BackupsKeep, src.General.BackupsKeep)
	setInt(&dst.General.RevisionsKeep, src.General.RevisionsKeep)
	setStr(&dst.General.TemplatesFile, src.General.TemplatesFile)

	setLower(&dst.Editor.UnitMatch, src.Editor.UnitMatch)
	setLower(&dst.Editor.OrphanPolicy, src.Editor.OrphanPolicy)
	setInt(&dst.Editor.SettleDelayMs, src.Editor.SettleDelayMs)
	setInt(&dst.Editor.UndoDepth, src.Editor.UndoDepth)
	setInt(&dst.Editor.UndoMergeMs, src.Editor.UndoMergeMs)

	if len(src.Keymap) > 0 {
		if dst.Keymap == nil {
			dst.Keymap = make(map[string]string, len(src.Keymap))
		}
		for k, v := range src.Keymap {
			dst.Keymap[k] = v
		}
	}

	setStr(&dst.Server.Addr, src.Server.Addr)
	setStr(&dst.Server.DatabaseURL, src.Server.DatabaseURL)
	setInt(&dst.Server.ShutdownTimeoutMs, src.Server.ShutdownTimeoutMs)
	setStr(&dst.Backend.BaseURL, src.Backend.BaseURL)
	setInt(&dst.Backend.TimeoutMs, src.Backend.TimeoutMs)

	setLower(&dst.AI.Provider, src.AI.Provider)
	setStr(&dst.AI.Model, src.AI.Model)
	setInt(&dst.AI.TimeoutMs, src.AI.TimeoutMs)

	setLower(&dst.Logging.Level, src.Logging.Level)
	setLower(&dst.Logging.Format, src.Logging.Format)
	if _, ok := present.Logging["source"]; ok {
		dst.Logging.Source = src.Logging.Source
	}
	setStr(&dst.Logging.File, src.Logging.File)
}

func applyEnvOverrides(cfg *AppConfig) {
	if v, ok := lookup(EnvTelemetryOptIn); ok {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	if v, ok := lookup(EnvWorkspace); ok {
		cfg.General.Workspace = v
	}
	if v, ok := lookup(EnvTemplatesFile); ok {
		cfg.General.TemplatesFile = v
	}
	if v, ok := lookup(EnvUnitMatch); ok {
		cfg.Editor.UnitMatch = strings.ToLower(v)
	}
	if v, ok := lookup(EnvOrphanPolicy); ok {
		cfg.Editor.OrphanPolicy = strings.ToLower(v)
	}
	if v, ok := lookup(EnvSettleDelayMs); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Editor.SettleDelayMs = n
		}
	}
	if v, ok := lookup(EnvServerAddr); ok {
		cfg.Server.Addr = v
	}
	if v, ok := lookup(EnvDatabaseURL); ok {
		cfg.Server.DatabaseURL = v
	}
	if v, ok := lookup(EnvBackendURL); ok {
		cfg.Backend.BaseURL = v
	}
	if v, ok := lookup(EnvBackendTimeout); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutMs = n
		}
	}
	if v, ok := lookup(EnvAIProvider); ok {
		cfg.AI.Provider = strings.ToLower(v)
	}
	if v, ok := lookup(EnvAIModel); ok {
		cfg.AI.Model = v
	}
	if v, ok := lookup(EnvAITimeoutMs); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AI.TimeoutMs = n
		}
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := lookup(EnvLogFormat); ok {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v, ok := lookup(EnvLogSource); ok {
		cfg.Logging.Source = parseBool(v)
	}
	if v, ok := lookup(EnvLogFile); ok {
		cfg.Logging.File = v
	}
}

// OverridableKeys lists the dotted config keys that have an env override, sorted.
func OverridableKeys() []string {
	keys := make([]string, 0, len(envKeys))
	for k := range envKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnvOverrideFor returns the env var name if the dotted key is currently
// overridden by the environment.
func EnvOverrideFor(key string) (string, bool) {
	name, known := envKeys[key]
	if !known {
		return "", false
	}
	if _, ok := lookup(name); ok {
		return name, true
	}
	return "", false
}

func lookup(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setLower(dst *string, v string) {
	if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
