package core

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LayoutFile is the YAML document operators use to add layouts and rules
// without a rebuild:
//
//	layouts:
//	  - id: pedidos
//	    pattern: 'pedidos_.*\.txt'
//	    delimiter: "|"
//	    fields: [pedido, fecha, total]
//	conversions:
//	  total: {type: float, transform: currency}
type LayoutFile struct {
	Layouts     []Layout        `yaml:"layouts"`
	Conversions map[string]Rule `yaml:"conversions"`
}

// LoadLayoutFile reads and parses path. Unknown keys are rejected so typos
// do not silently turn into defaults.
func LoadLayoutFile(path string) (*LayoutFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layouts file: %w", err)
	}
	return ParseLayoutFile(data)
}

// ParseLayoutFile parses a layouts document.
func ParseLayoutFile(data []byte) (*LayoutFile, error) {
	var lf LayoutFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&lf); err != nil {
		return nil, fmt.Errorf("parse layouts file: %w", err)
	}
	return &lf, nil
}

// Apply registers the file's layouts and rules, reporting every failure.
func (lf *LayoutFile) Apply(layouts *LayoutRegistry, conversions *ConversionRegistry) error {
	var errs []error
	if err := layouts.RegisterAll(lf.Layouts); err != nil {
		errs = append(errs, err)
	}
	for field, rule := range lf.Conversions {
		if err := conversions.Register(field, rule); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
