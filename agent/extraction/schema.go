package extraction

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
)

//go:embed schemas.yaml
var schemasRaw []byte

const (
	SchemaLeadQualification = "lead_qualification"
	SchemaCustomerIntent    = "customer_intent"

	// FieldIntent carries the caller's conversational intent. ExitIntent is
	// the reserved value meaning the caller wants to stop.
	FieldIntent = "intent"
	ExitIntent  = "end"
)

type schemaFile struct {
	Schemas []contractx.ExtractionSchema `yaml:"schemas"`
}

// LoadSchemas parses the embedded schema definitions.
func LoadSchemas() (map[string]contractx.ExtractionSchema, error) {
	return ParseSchemas(schemasRaw)
}

func MustLoadSchemas() map[string]contractx.ExtractionSchema {
	s, err := LoadSchemas()
	if err != nil {
		panic(err)
	}
	return s
}

func ParseSchemas(raw []byte) (map[string]contractx.ExtractionSchema, error) {
	var f schemaFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: decode schemas: %v", contractx.ErrValidation, err)
	}

	out := make(map[string]contractx.ExtractionSchema, len(f.Schemas))
	for _, s := range f.Schemas {
		if err := validateSchema(s); err != nil {
			return nil, err
		}
		if _, dup := out[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate schema %q", contractx.ErrValidation, s.Name)
		}
		out[s.Name] = s
	}
	return out, nil
}

func validateSchema(s contractx.ExtractionSchema) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: schema name is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(s.Prompt) == "" {
		return fmt.Errorf("%w: schema %s: prompt is required", contractx.ErrValidation, s.Name)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: schema %s: field name is required", contractx.ErrValidation, s.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: schema %s: duplicate field %q", contractx.ErrValidation, s.Name, f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case contractx.FieldString, contractx.FieldBoolean:
		case contractx.FieldEnum:
			if len(f.Values) == 0 {
				return fmt.Errorf("%w: schema %s: enum field %q has no values", contractx.ErrValidation, s.Name, f.Name)
			}
		default:
			return fmt.Errorf("%w: schema %s: field %q has unknown type %q", contractx.ErrValidation, s.Name, f.Name, f.Type)
		}
	}
	return nil
}

// describeFields renders the field listing shown to the model.
func describeFields(s contractx.ExtractionSchema) string {
	var b strings.Builder
	for _, f := range s.Fields {
		b.WriteString("- ")
		b.WriteString(f.Name)
		b.WriteString(" (")
		b.WriteString(string(f.Type))
		if f.Type == contractx.FieldEnum {
			b.WriteString(": ")
			b.WriteString(strings.Join(f.Values, "|"))
		}
		if f.Required {
			b.WriteString(", required")
		}
		b.WriteString(")")
		if f.Description != "" {
			b.WriteString(": ")
			b.WriteString(f.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
