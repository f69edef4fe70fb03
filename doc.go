// Package gosmo is a small prototype-based scripting language implemented as
// a single-pass compiler and a stack-based bytecode interpreter. It is built
// to be embedded: a State is a self-contained interpreter with its own heap,
// globals, and collector, and any number of them can run side by side.
//
// The quickest way in is the convenience layer:
//
//	results, err := gosmo.DoString("demo", `return 1 + 2`)
//
// Finer control lives in the runtime package, where values are pushed and
// called through a stack API, go functions can be registered as builtins, and
// prototypes for the base kinds can be swapped out.
package gosmo
