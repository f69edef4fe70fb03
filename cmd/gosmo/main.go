// Package main is the entrypoint to the gosmo interpreter.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/gosmo-lang/gosmo/src/conf"
	"github.com/gosmo-lang/gosmo/src/parse"
	"github.com/gosmo-lang/gosmo/src/runtime"
)

var (
	state       *runtime.State
	log         zerolog.Logger
	listOpcodes bool
	parseOnly   bool
	showVersion bool
	executeStat string
	interactive bool
	debugOn     bool
)

func init() {
	flag.BoolVar(&listOpcodes, "l", false, "list opcodes")
	flag.BoolVar(&parseOnly, "p", false, "parse only")
	flag.BoolVar(&showVersion, "v", false, "show version information")
	flag.StringVar(&executeStat, "e", "", "execute string 'stat'")
	flag.BoolVar(&interactive, "i", false, "enter interactive mode after executing a script")
	flag.BoolVar(&debugOn, "debug", false, "log compile and eval timings")
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	level := zerolog.Disabled
	if debugOn {
		level = zerolog.DebugLevel
	}
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	state = runtime.NewState()
	defer state.Close()
	runtime.StandardLib(state)

	args := flag.Args()
	if showVersion {
		printVersion()
	}
	if stat, _ := os.Stdin.Stat(); (stat.Mode() & os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(os.Stdin)
		checkErr(err)
		runSrc("<stdin>", string(data))
	} else if executeStat != "" {
		runSrc("<string>", executeStat)
	} else if len(args) > 0 {
		src, err := os.ReadFile(args[0])
		checkErr(err)
		runSrc(args[0], string(src))
	} else if !showVersion {
		runREPL()
	}
}

func printVersion() {
	fmt.Fprintf(os.Stderr, "%v\n", conf.FullVersion())
}

func printUsage() {
	printVersion()
	fmt.Fprint(os.Stderr, "\nUsage: gosmo [options] [script [args]]\n")
	flag.PrintDefaults()
}

func checkErr(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("%v", err))
		os.Exit(1)
	}
}

func runSrc(module, src string) {
	start := time.Now()
	fn, err := parse.ParseString(module, src)
	checkErr(err)
	log.Debug().Dur("took", time.Since(start)).Str("module", module).Msg("compiled")
	if listOpcodes {
		fmt.Fprintln(os.Stderr, fn.String())
	}
	if !parseOnly {
		start = time.Now()
		_, err := state.Eval(fn)
		checkErr(err)
		log.Debug().Dur("took", time.Since(start)).Str("module", module).Msg("evaluated")
	}
	if interactive {
		runREPL()
	}
}

func runREPL() {
	printVersion()
	fmt.Fprint(os.Stderr, "Press ctrl-c to quit or clear current buffer.\n")
	checkErr(state.REPL())
}
