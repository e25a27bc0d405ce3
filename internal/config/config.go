// Package config loads and validates the YAML configuration, with include
// merging and key-aware defaulting.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path, merges any include: chain depth-first so
// the including file always overrides its includes, applies defaults for keys
// the files left unset and validates the result.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	ld := newLoader()
	if err := ld.loadFile(abs); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range ld.ordered {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("merging config file failed (%s): %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}

	set := make(keySet)
	markKeys("", v.AllSettings(), set)
	cfg.applyDefaults(set)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loader walks include chains and produces the merge order, includes before
// their including file.
type loader struct {
	ordered []string
	visited map[string]bool
	active  map[string]bool
}

func newLoader() *loader {
	return &loader{
		visited: make(map[string]bool),
		active:  make(map[string]bool),
	}
}

func (l *loader) loadFile(path string) error {
	path = filepath.Clean(path)
	if l.active[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if l.visited[path] {
		return nil
	}
	l.active[path] = true
	defer delete(l.active, path)

	includes, err := readIncludes(path)
	if err != nil {
		return err
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := l.loadFile(inc); err != nil {
			return err
		}
	}
	l.visited[path] = true
	l.ordered = append(l.ordered, path)
	return nil
}

// readIncludes extracts the include: list from a file without interpreting
// the rest of the document.
func readIncludes(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var head struct {
		Include []string `yaml:"include"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	out := make([]string, 0, len(head.Include))
	for _, inc := range head.Include {
		if inc = strings.TrimSpace(inc); inc != "" {
			out = append(out, inc)
		}
	}
	return out, nil
}

// markKeys records every leaf path present in the merged settings so defaults
// never clobber an explicitly configured zero value.
func markKeys(prefix string, node any, set keySet) {
	m, ok := node.(map[string]any)
	if !ok {
		set.mark(prefix)
		return
	}
	for k, child := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		markKeys(key, child, set)
	}
}
