package runtime

import (
	"fmt"
	"os"
	"time"

	"github.com/lestrrat-go/strftime"
)

var startTime = time.Now()

func registerOSLib(s *State) {
	fns := map[string]GoFn{
		"time":   stdOSTime,
		"clock":  stdOSClock,
		"date":   stdOSDate,
		"getenv": stdOSGetenv,
	}
	lib := s.newTable(len(fns))
	for name, fn := range fns {
		fn := fn
		// os.f(...) is an INVOKE on the table, which passes the table first;
		// the functions take only their own arguments.
		libFn := func(s *State, args []Value) ([]Value, error) {
			if len(args) > 0 && args[0].Object() == lib {
				args = args[1:]
			}
			return fn(s, args)
		}
		lib.fields.set(s.str(name), objValue(s.newGoFunc("os."+name, libFn)))
	}
	s.globals.fields.set(s.str("os"), objValue(lib))
}

func stdOSTime(_ *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "os.time"); err != nil {
		return nil, err
	}
	return []Value{Number(float64(time.Now().Unix()))}, nil
}

// stdOSClock reports seconds of wall time since the process started, which is
// what scripts use for coarse benchmarking.
func stdOSClock(_ *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "os.clock"); err != nil {
		return nil, err
	}
	return []Value{Number(time.Since(startTime).Seconds())}, nil
}

func stdOSDate(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "os.date", "string", "~number"); err != nil {
		return nil, err
	}
	fmtTime := time.Now()
	if len(args) > 1 {
		fmtTime = time.Unix(int64(args[1].Num()), 0)
	}
	strf, err := strftime.New(args[0].Str())
	if err != nil {
		return nil, fmt.Errorf("invalid time format %q", args[0].Str())
	}
	return []Value{s.str(strf.FormatString(fmtTime))}, nil
}

func stdOSGetenv(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "os.getenv", "string"); err != nil {
		return nil, err
	}
	if val, ok := os.LookupEnv(args[0].Str()); ok {
		return []Value{s.str(val)}, nil
	}
	return []Value{{}}, nil
}
