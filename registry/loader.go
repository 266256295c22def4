package registry

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML registry document and builds an Index from it.
func LoadFile(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Parse(data)
}

// Parse builds an Index from raw YAML registry bytes.
func Parse(data []byte) (*Index, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	v := validator.New()
	if err := v.Struct(doc); err != nil {
		return nil, fmt.Errorf("validate registry: %w", err)
	}
	return NewIndex(&doc)
}
