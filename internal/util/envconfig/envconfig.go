// Copyright 2024 Alexandre Mahdhaoui
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

// Package envconfig overlays environment variables onto configuration values.
//
// Secrets are never given defaults: they are read from NAME, or from the file named by NAME_FILE.
package envconfig

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrMissingSecret = errors.New("secret is not set")
	ErrReadSecret    = errors.New("reading secret file")
	ErrParse         = errors.New("parsing environment variable")
)

const fileSuffix = "_FILE"

// Env reads environment variables.
type Env struct {
	v *viper.Viper
}

// New returns an Env reading the process environment.
func New() *Env {
	return &Env{v: viper.New()}
}

func (e *Env) lookup(key string) bool {
	_ = e.v.BindEnv(key)
	return e.v.IsSet(key)
}

// String sets dst to the value of key, if set.
func (e *Env) String(key string, dst *string) {
	if e.lookup(key) {
		*dst = e.v.GetString(key)
	}
}

// Int sets dst to the value of key, if set.
func (e *Env) Int(key string, dst *int) error {
	if !e.lookup(key) {
		return nil
	}

	i, err := parse(key, e.v.GetString(key), strconv.Atoi)
	if err != nil {
		return err
	}

	*dst = i

	return nil
}

// Bool sets dst to the value of key, if set.
func (e *Env) Bool(key string, dst *bool) {
	if e.lookup(key) {
		*dst = e.v.GetBool(key)
	}
}

// Duration sets dst to the value of key, if set. Values use time.ParseDuration syntax.
func (e *Env) Duration(key string, dst *time.Duration) error {
	if !e.lookup(key) {
		return nil
	}

	d, err := parse(key, e.v.GetString(key), time.ParseDuration)
	if err != nil {
		return err
	}

	*dst = d

	return nil
}

// Secret sets dst to the value of key, or to the content of the file named by key_FILE.
// It leaves dst untouched when neither is set.
func (e *Env) Secret(key string, dst *string) error {
	if e.lookup(key) {
		*dst = e.v.GetString(key)
		return nil
	}

	fileKey := key + fileSuffix
	if !e.lookup(fileKey) {
		return nil
	}

	b, err := os.ReadFile(e.v.GetString(fileKey))
	if err != nil {
		return errors.Join(fmt.Errorf("%s", fileKey), err, ErrReadSecret)
	}

	*dst = strings.TrimRight(string(b), "\r\n")

	return nil
}

// RequireSecrets returns ErrMissingSecret naming every empty secret.
func RequireSecrets(secrets map[string]string) error {
	var missing []string

	for name, value := range secrets {
		if value == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	sort.Strings(missing)

	return errors.Join(fmt.Errorf("%s (or the %s variant)", strings.Join(missing, ", "), fileSuffix), ErrMissingSecret)
}

func parse[T any](key, value string, fn func(string) (T, error)) (T, error) {
	out, err := fn(value)
	if err != nil {
		var zero T
		return zero, errors.Join(fmt.Errorf("%s=%q", key, value), err, ErrParse)
	}

	return out, nil
}
