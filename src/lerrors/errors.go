// Package lerrors is a unified errors package for gosmo parsing and runtime so
// that errors can be formatted in a unified way and handled in a unified way.
package lerrors

import (
	"fmt"
	"strings"
)

type (
	// ErrorKind is an enum to describe where the error originates from.
	ErrorKind int
	// Error captures all errors in the gosmo runtime. It distinguishes between
	// lexer, parser, runtime, and user errors and will format them accordingly.
	// This is so that errors can be handled in a uniform way in the runtime.
	Error struct {
		Line      int64
		Column    int64
		Kind      ErrorKind
		Err       error
		Filename  string
		Traceback []string
		// Value carries the raised value for user errors so that pcall can
		// hand it back unchanged.
		Value any
	}
)

const (
	// RuntimeErr is an error that originates from the runtime.
	RuntimeErr ErrorKind = iota
	// ParserErr is an error that originates from the parser.
	ParserErr
	// LexerErr is an error that originates from the lexer.
	LexerErr
	// UserErr is an error raised from user code by the user.
	UserErr
)

func (err *Error) Error() string {
	switch err.Kind {
	case RuntimeErr:
		if len(err.Traceback) == 0 {
			return fmt.Sprintf("gosmo:%v:%v: %v", err.Filename, err.Line, err.Err)
		}
		return fmt.Sprintf(
			"gosmo:%v:%v: %v\nstack traceback:\n%v",
			err.Filename,
			err.Line,
			err.Err,
			strings.Join(err.Traceback, "\n"),
		)
	case ParserErr:
		return fmt.Sprintf("Parse Error: %s:%v:%v %v", err.Filename, err.Line, err.Column, err.Err)
	case LexerErr:
		return fmt.Sprintf("Lex Error: %s:%v:%v %v", err.Filename, err.Line, err.Column, err.Err)
	default:
		return err.Err.Error()
	}
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (err *Error) Unwrap() error { return err.Err }
