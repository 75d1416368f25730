// internal/notification/template/loader.go
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"booking-notifications/internal/common/errors"
	"booking-notifications/internal/common/logger"
)

// manifestSchema validates template manifest files before decoding. Schema
// rejection is reported as TEMPLATE_INVALID with the offending file name so a
// bad manifest never reaches the registry half-parsed.
const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "event_type", "channel", "body"],
  "additionalProperties": false,
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "event_type": {"type": "string", "minLength": 1},
    "channel": {"type": "string", "enum": ["email-html", "email-text", "sms"]},
    "subject": {"type": "string"},
    "body": {"type": "string", "minLength": 1}
  }
}`

type manifest struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Channel   string `json:"channel"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Loader reads template manifests from a directory. Reload builds the full
// set and swaps it into the store only when every manifest is valid.
type Loader struct {
	dir    string
	store  *Store
	schema *gojsonschema.Schema
	log    logger.Logger
}

func NewLoader(dir string, store *Store, log logger.Logger) (*Loader, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(manifestSchema))
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return &Loader{dir: dir, store: store, schema: schema, log: log}, nil
}

// Reload parses every *.json manifest under the loader's directory and
// atomically replaces the store's template set. On any error the store keeps
// serving the previous set.
func (l *Loader) Reload() error {
	templates, err := l.LoadAll()
	if err != nil {
		return err
	}
	if err := l.store.ReplaceAll(templates); err != nil {
		return err
	}
	l.log.Info("Template registry reloaded", map[string]interface{}{
		"dir":   l.dir,
		"count": len(templates),
	})
	return nil
}

// LoadAll parses every manifest without touching the store. The lint tool
// uses this to validate a template directory offline.
func (l *Loader) LoadAll() ([]*Template, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read template dir %s: %w", l.dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var templates []*Template
	for _, name := range files {
		t, err := l.loadFile(filepath.Join(l.dir, name))
		if err != nil {
			return nil, fmt.Errorf("template manifest %s: %w", name, err)
		}
		templates = append(templates, t)
	}
	return templates, nil
}

func (l *Loader) loadFile(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	result, err := l.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, errors.NewTemplateInvalidError(path, fmt.Sprintf("not valid JSON: %s", err))
	}
	if !result.Valid() {
		details := ""
		for _, desc := range result.Errors() {
			if details != "" {
				details += "; "
			}
			details += desc.String()
		}
		return nil, errors.NewTemplateInvalidError(path, details)
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.NewTemplateInvalidError(path, err.Error())
	}
	return New(m.ID, m.EventType, m.Channel, m.Subject, m.Body)
}
