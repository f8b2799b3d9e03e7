// Package core holds the ingestion logic that does not depend on where files
// come from or where records go.
//
// # Layouts
//
// A [Layout] says how the lines of one file family split into fields: by a
// single delimiter character or by fixed-width rune spans, never both. The
// [LayoutRegistry] keeps layouts in registration order and picks one for a
// file name with [LayoutRegistry.Classify]. Patterns are anchored and match
// the base name only; the first match wins.
//
//	reg := core.NewLayoutRegistry()
//	reg.Register(core.Layout{
//	    ID:        "ventas",
//	    Pattern:   `ventas_.*\.txt`,
//	    Delimiter: "|",
//	    SkipLines: 1,
//	    Fields:    []string{"id", "nombre", "fecha", "monto"},
//	})
//
// # Conversions
//
// Field values are converted by name through the [ConversionRegistry]. A
// [Rule] names a primitive [FieldType] and optionally one of the built-in
// transforms (currency amounts, day/month/year dates). Fields without a rule
// stay text.
//
// # Decoding
//
// [Decoder.Decode] turns a file into [Record] values:
//
//  1. Text is read in the layout encoding; a UTF-8 BOM is dropped
//  2. SkipLines leading lines are discarded, blank lines ignored
//  3. Each line is split and must yield exactly one value per field
//  4. Values are converted; the first failure rejects the whole file
//
// # Error Handling
//
// Every failure is an [*Error] with an [ErrorKind]. Connection and
// persistence kinds abort a run; the rest concern a single file. [MapError]
// turns errors into operator messages with support codes:
//
//   - CON001: Remote store unreachable
//   - XFR001-XFR002: Transfer failures and timeouts
//   - EXT001: Archive extraction
//   - DEC001-DEC005: Classification and decoding
//   - PST001: Persistence
package core
