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
	"strings"

	"github.com/zalando/go-keyring"
)

// ErrNoAPIKey is returned when neither the environment nor the keyring holds a key.
var ErrNoAPIKey = errors.New("no API key configured")

const keyringService = "vidskel"

// EnvAPIKeyPrefix plus the upper-cased provider name overrides the keyring,
// e.g. VSK_API_KEY_GEMINI.
const EnvAPIKeyPrefix = "VSK_API_KEY_"

// KeyStore abstracts the OS keyring so tests can swap it.
type KeyStore interface {
	Get(service, user string) (string, error)
	Set(service, user, secret string) error
	Delete(service, user string) error
}

type osKeyring struct{}

func (osKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (osKeyring) Set(service, user, secret string) error   { return keyring.Set(service, user, secret) }
func (osKeyring) Delete(service, user string) error        { return keyring.Delete(service, user) }

var keyStore KeyStore = osKeyring{}

// UseKeyStore replaces the key store and returns a func restoring the previous one.
func UseKeyStore(ks KeyStore) (restore func()) {
	prev := keyStore
	keyStore = ks
	return func() { keyStore = prev }
}

// APIKeyEnv returns the override variable for provider.
func APIKeyEnv(provider string) string {
	return EnvAPIKeyPrefix + strings.ToUpper(strings.ReplaceAll(normProvider(provider), "-", "_"))
}

// APIKey resolves the key for provider: environment first, then keyring.
func APIKey(provider string) (string, error) {
	p := normProvider(provider)
	if p == "" {
		return "", errors.New("provider is required")
	}
	if v := strings.TrimSpace(os.Getenv(APIKeyEnv(p))); v != "" {
		return v, nil
	}
	v, err := keyStore.Get(keyringService, keyUser(p))
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", fmt.Errorf("%w for %s", ErrNoAPIKey, p)
	case err != nil:
		return "", fmt.Errorf("read keyring: %w", err)
	case strings.TrimSpace(v) == "":
		return "", fmt.Errorf("%w for %s", ErrNoAPIKey, p)
	}
	return v, nil
}

// SetAPIKey stores key for provider in the keyring.
func SetAPIKey(provider, key string) error {
	p := normProvider(provider)
	if p == "" {
		return errors.New("provider is required")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("key is empty")
	}
	if err := keyStore.Set(keyringService, keyUser(p), strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the stored key. Deleting a missing key is not an error.
func DeleteAPIKey(provider string) error {
	p := normProvider(provider)
	if p == "" {
		return errors.New("provider is required")
	}
	if err := keyStore.Delete(keyringService, keyUser(p)); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete keyring: %w", err)
	}
	return nil
}

// MaskKey shows only the last four characters of a key.
func MaskKey(k string) string {
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return strings.Repeat("*", len(k)-4) + k[len(k)-4:]
}

func normProvider(p string) string { return strings.ToLower(strings.TrimSpace(p)) }

func keyUser(p string) string { return "api_key:" + p }
