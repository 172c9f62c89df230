// Package errors provides structured, coded errors for the cellkit CLI.
//
// Scenario files and configuration problems are reported with a code, a
// short message, an optional source location with surrounding lines, and a
// hint on how to fix the input.
//
// # Error Categories
//
//   - config: configuration file loading and validation
//   - scenario: scenario file parsing and graph construction
//   - expect: failed scenario expectations
//   - storage: snapshot load/save failures
//   - cli: command line usage errors
//
// # Error Codes
//
// Each code (e.g. "C111") maps to a registered template holding the
// category, message and a longer explanation.
//
// # Usage
//
//	err := errors.New("C112").
//	    WithDetail(`cell "total" is referenced but never declared`).
//	    WithLocation("counter.yaml", 14, 9).
//	    WithSuggestion("Declare the cell under cells: or derived:")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR C112: Unknown cell
//	//
//	//   counter.yaml:14:9
//	//
//	//       12 │ steps:
//	//       13 │   - set: count
//	//   →   14 │     cell: total
//	//          │         ^
//	//       15 │     value: 3
//	//
//	//   cell "total" is referenced but never declared
//	//
//	//   Hint: Declare the cell under cells: or derived:
package errors
