package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dukex/conductor/pkg/models"
	"gopkg.in/yaml.v3"
)

// Format is an export/import encoding for workflow definitions.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml and yml; empty means json.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", NewValidationError("ParseFormat", "UNSUPPORTED_FORMAT",
			fmt.Sprintf("unsupported format '%s', allowed: json, yaml", raw), ErrUnsupportedFormat)
	}
}

// Encode renders workflow in format. YAML documents use the same field names
// as JSON.
func Encode(workflow *models.Workflow, format Format) ([]byte, error) {
	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow: %w", err)
	}

	if format != FormatYAML {
		return data, nil
	}

	var document map[string]any
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to convert workflow: %w", err)
	}

	out, err := yaml.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow as yaml: %w", err)
	}

	return out, nil
}

// Decode parses a workflow document in format.
func Decode(data []byte, format Format) (*models.Workflow, error) {
	if format == FormatYAML {
		var document map[string]any
		if err := yaml.Unmarshal(data, &document); err != nil {
			return nil, NewValidationError("Decode", "INVALID_DOCUMENT", err.Error(), ErrInvalidRequest)
		}

		converted, err := json.Marshal(document)
		if err != nil {
			return nil, NewValidationError("Decode", "INVALID_DOCUMENT", err.Error(), ErrInvalidRequest)
		}

		data = converted
	}

	var workflow models.Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, NewValidationError("Decode", "INVALID_DOCUMENT", err.Error(), ErrInvalidRequest)
	}

	return &workflow, nil
}
