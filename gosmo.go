package gosmo

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/gosmo-lang/gosmo/src/parse"
	"github.com/gosmo-lang/gosmo/src/runtime"
)

// DoString compiles and runs source held in memory on a fresh state with the
// standard library loaded, returning whatever the chunk returned.
func DoString(module, src string) ([]runtime.Value, error) {
	fn, err := parse.ParseString(module, src)
	if err != nil {
		return nil, err
	}
	state := runtime.NewState()
	defer state.Close()
	runtime.StandardLib(state)
	return state.Eval(fn)
}

// DoFile compiles and runs a source file the same way DoString runs a string.
func DoFile(path string) ([]runtime.Value, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %v", path)
	}
	module := filepath.Base(path)
	fn, err := parse.ParseString(module, string(src))
	if err != nil {
		return nil, err
	}
	state := runtime.NewState()
	defer state.Close()
	runtime.StandardLib(state)
	return state.Eval(fn)
}
