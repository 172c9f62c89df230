// Package scenario runs declarative cell graphs described in YAML.
//
// A scenario file declares cells, derived cells, hosts and watches, then a
// list of steps that mutate the graph and check its state:
//
//	name: totals
//	cells:
//	  - name: price
//	    value: 5
//	  - name: qty
//	    value: 2
//	derived:
//	  - name: total
//	    op: product
//	    of: [price, qty]
//	watch:
//	  - id: t
//	    cell: total
//	steps:
//	  - set: qty
//	    value: 3
//	  - expect: total
//	    value: 15
//	  - log: ["t 15"]
//
// Every watch appends an entry to the notification log when it fires:
// "<id> <value>" on the changed channel and "<id> <prev> -> <value>" on the
// activated channel. A log step checks the entries recorded since the
// previous log step.
//
// Problems are reported as coded errors carrying the file and line of the
// offending declaration or step.
package scenario
