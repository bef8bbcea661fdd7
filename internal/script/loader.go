package script

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed templates.schema.json
var templateSchemaJSON []byte

const templateSchemaURL = "https://reflecthealth.local/callsim/templates.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func templateSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(templateSchemaURL, bytes.NewReader(templateSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(templateSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

type templateFile struct {
	Templates []Blueprint `yaml:"templates"`
}

// ParseTemplates decodes a YAML template file. The document is checked
// against the embedded JSON schema before it is decoded into blueprints.
func ParseTemplates(raw []byte) ([]Blueprint, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	// Round-trip through JSON so the validator sees plain JSON values.
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize templates: %w", err)
	}
	var payload any
	if err := json.Unmarshal(asJSON, &payload); err != nil {
		return nil, fmt.Errorf("normalize templates: %w", err)
	}
	s, err := templateSchema()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(payload); err != nil {
		return nil, fmt.Errorf("templates do not match schema: %w", err)
	}

	var file templateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	return file.Templates, nil
}

// LoadFile reads and parses a template file.
func LoadFile(path string) ([]Blueprint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates %s: %w", path, err)
	}
	return ParseTemplates(raw)
}

// LoadFile replaces the library extras with the contents of path.
func (l *Library) LoadFile(path string) error {
	extras, err := LoadFile(path)
	if err != nil {
		return err
	}
	return l.SetExtras(extras)
}

// Watch reloads path whenever it changes until ctx is done. Reload failures
// are logged and leave the previous templates active. The parent directory
// is watched so editors that replace the file atomically are handled.
func (l *Library) Watch(ctx context.Context, path string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve templates path: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer fsw.Close()
		var (
			timer   *time.Timer
			trigger = make(chan struct{}, 1)
		)
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					select {
					case trigger <- struct{}{}:
					default:
					}
				})
			case <-trigger:
				if err := l.LoadFile(abs); err != nil {
					l.logger.Warn("template reload failed", "path", abs, "error", err)
					continue
				}
				l.logger.Info("templates reloaded", "path", abs)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				l.logger.Error("template watcher error", "error", err)
			}
		}
	}()

	l.logger.Info("template watcher started", "path", abs, "debounce", debounce)
	return nil
}
