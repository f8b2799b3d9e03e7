// Package layouts holds the layouts and conversion rules of the file
// families delivered today. Call Register once at startup; a layouts file
// can add more on top.
package layouts

import (
	"errors"

	"github.com/JonMunkholm/txtingest/internal/core"
)

// Sales is the pipe-delimited daily sales export. Its first line is a header.
var Sales = core.Layout{
	ID:         "ventas",
	Pattern:    `ventas_.*\.txt`,
	Delimiter:  "|",
	Encoding:   "utf-8",
	SkipLines:  1,
	DateFormat: "%Y-%m-%d",
	Fields:     []string{"id", "nombre", "fecha", "monto"},
}

// Inventory comes from a legacy system: latin-1, comma decimals, no header.
var Inventory = core.Layout{
	ID:               "inventario",
	Pattern:          `inventario_.*\.txt`,
	Delimiter:        ";",
	Encoding:         "latin-1",
	DecimalSeparator: ",",
	Fields:           []string{"codigo", "descripcion", "cantidad"},
}

// Clients is fixed width.
var Clients = core.Layout{
	ID:      "clientes",
	Pattern: `clientes_.*\.txt`,
	Columns: []core.Span{
		{Start: 0, End: 10},
		{Start: 10, End: 30},
		{Start: 30, End: 45},
	},
	Fields: []string{"referencia", "cliente", "ubicacion"},
}

// All lists the built-in layouts in classification order.
func All() []core.Layout {
	return []core.Layout{Sales, Inventory, Clients}
}

// Rules are the field conversions shared by the built-in layouts.
func Rules() map[string]core.Rule {
	return map[string]core.Rule{
		"id":       {Type: core.FieldInteger},
		"cantidad": {Type: core.FieldInteger},
		"monto":    {Type: core.FieldFloat, Transform: core.TransformCurrency},
		"fecha":    {Type: core.FieldTimestamp, Transform: core.TransformDayMonthYear},
	}
}

// Register adds the built-in layouts and rules.
func Register(reg *core.LayoutRegistry, conv *core.ConversionRegistry) error {
	var errs []error
	if err := reg.RegisterAll(All()); err != nil {
		errs = append(errs, err)
	}
	for field, rule := range Rules() {
		if err := conv.Register(field, rule); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
