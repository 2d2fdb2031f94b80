// Package dataset loads entity and opportunity records from JSON or YAML
// files, validating them against an embedded JSON Schema first.
package dataset

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/okian/crmscore/internal/domain/model"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON) //nolint:gochecknoglobals // immutable

// Format is a dataset encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Dataset is the content of a dataset file.
type Dataset struct {
	Entities      []model.Entity      `json:"entities" yaml:"entities"`
	Opportunities []model.Opportunity `json:"opportunities" yaml:"opportunities"`
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// LoadFile reads and validates a dataset file.
func LoadFile(path string) (Dataset, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Dataset{}, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return Dataset{}, fmt.Errorf("read dataset: %w", err)
	}
	return Parse(data, format)
}

// Parse validates raw bytes against the schema and decodes them. Records
// without an id get a generated one. Scores in the input are ignored by
// consumers, which always recompute them.
func Parse(data []byte, format Format) (Dataset, error) {
	var doc any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return Dataset{}, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Dataset{}, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
		}
	default:
		return Dataset{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if doc == nil {
		return Dataset{}, nil
	}

	if err := validate(doc); err != nil {
		return Dataset{}, err
	}

	var ds Dataset
	var err error
	if format == FormatJSON {
		err = json.Unmarshal(data, &ds)
	} else {
		err = yaml.Unmarshal(data, &ds)
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}

	for i := range ds.Entities {
		if ds.Entities[i].ID == "" {
			ds.Entities[i].ID = uuid.NewString()
		}
	}
	for i := range ds.Opportunities {
		if ds.Opportunities[i].ID == "" {
			ds.Opportunities[i].ID = uuid.NewString()
		}
	}
	return ds, nil
}

func validate(doc any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		errs[i] = desc.String()
	}
	return fmt.Errorf("%w: %s", ErrInvalidDataset, strings.Join(errs, "; "))
}
