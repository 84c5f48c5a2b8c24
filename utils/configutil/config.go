// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package configutil provides an interface for loading and validating
// configuration data from YAML files.
//
// Other YAML files could be included via the following directive:
//
//	production.yaml:
//	extends: base.yaml
//
// There is no multiple inheritance supported. Dependency tree supposed to
// form a linked list.
package configutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v2"
)

// ErrCycleRef is returned when there are circular dependencies detected in
// configuration files extending each other.
var ErrCycleRef = errors.New("cyclic reference in configuration extends detected")

// Extends defines a keyword in config for extending a base configuration file.
type Extends struct {
	Extends string `yaml:"extends"`
}

// ValidationError is returned when config validation fails.
type ValidationError struct {
	errorMap validator.ErrorMap
}

// ErrForField returns the validation error for the given field.
func (e ValidationError) ErrForField(name string) error {
	return e.errorMap[name]
}

func (e ValidationError) Error() string {
	var b strings.Builder
	for f, err := range e.errorMap {
		fmt.Fprintf(&b, "%s: %s\n", f, err)
	}
	return b.String()
}

// Load reads and validates the configuration at filename, resolving any
// extends chain base-first so that later files override earlier ones.
// Validation runs once, over the merged result.
func Load(filename string, config interface{}) error {
	filenames, err := resolveExtends(filename, readExtendsFromFile)
	if err != nil {
		return err
	}
	return loadFiles(config, filenames)
}

// readExtendsFromFile returns the extends target declared in filename, empty
// if none.
func readExtendsFromFile(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("read config: %s", err)
	}
	var e Extends
	if err := yaml.Unmarshal(data, &e); err != nil {
		return "", fmt.Errorf("unmarshal %s: %s", filename, err)
	}
	return e.Extends, nil
}

// resolveExtends returns the chain of configuration files rooted at filename,
// ordered base-first. Relative extends targets resolve against the extending
// file's directory.
func resolveExtends(
	filename string, readExtends func(filename string) (string, error)) ([]string, error) {

	filenames := []string{filename}
	seen := map[string]struct{}{filename: {}}
	for {
		next, err := readExtends(filename)
		if err != nil {
			return nil, err
		}
		if next == "" {
			break
		}
		if !filepath.IsAbs(next) {
			next = filepath.Join(filepath.Dir(filename), next)
		}
		if _, ok := seen[next]; ok {
			return nil, ErrCycleRef
		}
		seen[next] = struct{}{}
		filenames = append([]string{next}, filenames...)
		filename = next
	}
	return filenames, nil
}

// loadFiles unmarshals filenames into config in order, then validates the
// merged result.
func loadFiles(config interface{}, filenames []string) error {
	for _, f := range filenames {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read config: %s", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("unmarshal %s: %s", f, err)
		}
	}
	if err := validator.Validate(config); err != nil {
		if errs, ok := err.(validator.ErrorMap); ok {
			return ValidationError{errs}
		}
		return err
	}
	return nil
}
