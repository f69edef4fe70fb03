package runtime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/gosmo-lang/gosmo/src/parse"
)

// REPL runs an interactive session on the state. Input buffers across lines
// until it parses as a complete chunk, so constructs can span multiple lines.
// Globals persist between entries since every chunk runs on the same state.
func (s *State) REPL() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "> ",
		HistoryFile: filepath.Join(os.TempDir(), ".gosmo_history"),
	})
	if err != nil {
		return err
	}
	defer func() { _ = rl.Close() }()

	buf := bytes.NewBuffer(nil)
	for {
		src, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if buf.Len() > 0 {
					rl.SetPrompt("> ")
					buf.Reset()
					fmt.Fprintln(os.Stderr, "Press ctrl-c again to quit.")
					continue
				}
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			fmt.Fprintln(os.Stderr, err)
			continue
		}

		buf.WriteString(src + "\n")
		fn, err := parse.ParseString("<repl>", buf.String())
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				rl.SetPrompt("...> ")
				continue
			}
			rl.SetPrompt("> ")
			buf.Reset()
			fmt.Fprintln(os.Stderr, err)
			continue
		}

		rl.SetPrompt("> ")
		buf.Reset()
		results, err := s.Eval(fn)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		parts := []string{}
		for _, res := range results {
			if !res.IsNil() {
				parts = append(parts, describe(res))
			}
		}
		if len(parts) > 0 {
			fmt.Fprintln(s.stdout, strings.Join(parts, "\t"))
		}
	}
}
