package runtime

import (
	"errors"
	"fmt"

	"github.com/gosmo-lang/gosmo/src/lerrors"
	"github.com/gosmo-lang/gosmo/src/parse"
)

// runtimeErr builds a runtime error anchored to a source position. Errors
// raised inside nested calls are already wrapped, so they pass through and
// keep the line of the instruction that really failed.
func (s *State) runtimeErr(linfo parse.LineInfo, format string, data ...any) error {
	return s.wrapErr(linfo, fmt.Errorf(format, data...))
}

func (s *State) wrapErr(linfo parse.LineInfo, err error) error {
	var lerr *lerrors.Error
	if errors.As(err, &lerr) {
		return lerr
	}
	return &lerrors.Error{
		Kind:      lerrors.RuntimeErr,
		Filename:  s.currentModule(),
		Line:      linfo.Line,
		Column:    linfo.Column,
		Err:       err,
		Traceback: s.formatCallstack(),
	}
}

// newUserErr wraps a value raised by error() so that pcall can hand the value
// back unchanged.
func (s *State) newUserErr(val Value) error {
	var err error
	if val.isString() {
		err = errors.New(val.Str())
	} else {
		err = fmt.Errorf("(error object is a %v value)", TypeName(val))
	}
	return &lerrors.Error{
		Kind:      lerrors.UserErr,
		Filename:  s.currentModule(),
		Line:      s.currentLine(),
		Err:       err,
		Traceback: s.formatCallstack(),
		Value:     val,
	}
}

// errValue recovers the value to push at a pcall boundary: the raised value
// for user errors, otherwise the formatted message.
func (s *State) errValue(err error) Value {
	var lerr *lerrors.Error
	if errors.As(err, &lerr) {
		if val, ok := lerr.Value.(Value); ok {
			return val
		}
	}
	return s.str(err.Error())
}

func (s *State) currentModule() string {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if fn := s.frames[i].fn; fn != nil {
			return fn.Module
		}
	}
	return "<gosmo>"
}

func (s *State) currentLine() int64 {
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		if f.fn != nil && f.pc < len(f.fn.LineTrace) {
			return f.fn.LineTrace[f.pc].Line
		}
	}
	return 0
}

func (s *State) formatCallstack() []string {
	parts := []string{}
	for _, f := range s.frames {
		if f.fn == nil {
			parts = append(parts, fmt.Sprintf("\t<builtin> %v", f.closure.name))
			continue
		}
		name := f.fn.Name
		if name == "" {
			name = "<anonymous>"
		}
		line := f.fn.Line
		if f.pc < len(f.fn.LineTrace) {
			line = f.fn.LineTrace[f.pc].Line
		}
		parts = append(parts, fmt.Sprintf("\t%v:%v: in %v", f.fn.Module, line, name))
	}
	return parts
}
