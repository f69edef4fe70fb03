package runtime

import (
	"fmt"
	"strings"

	"github.com/gosmo-lang/gosmo/src/parse"
)

// StandardLib registers the base functions and the string, os, and vm
// libraries into the state's globals. Prototype registration happens here
// too, so it should run before any user objects are created.
func StandardLib(s *State) {
	s.FreezeGC()
	defer s.UnfreezeGC()
	registerObjectProto(s)
	base := map[string]GoFn{
		"print":      stdPrint,
		"type":       stdType,
		"tostring":   stdToString,
		"tonumber":   stdToNumber,
		"assert":     stdAssert,
		"error":      stdError,
		"pcall":      stdPCall,
		"loadstring": stdLoadString,
	}
	for name, fn := range base {
		_ = s.PushString(name)
		_ = s.PushGoFunc(name, fn)
	}
	s.Register(len(base))
	registerStringLib(s)
	registerOSLib(s)
	registerVMLib(s)
}

func stdPrint(s *State, args []Value) ([]Value, error) {
	var sb strings.Builder
	for _, arg := range args {
		str, err := s.displayString(arg)
		if err != nil {
			return nil, err
		}
		sb.WriteString(str)
	}
	sb.WriteByte('\n')
	_, err := fmt.Fprint(s.stdout, sb.String())
	return nil, err
}

func stdType(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "type", "value"); err != nil {
		return nil, err
	}
	return []Value{s.str(TypeName(args[0]))}, nil
}

func stdToString(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "tostring", "value"); err != nil {
		return nil, err
	}
	str, err := s.displayString(args[0])
	if err != nil {
		return nil, err
	}
	return []Value{s.str(str)}, nil
}

func stdToNumber(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "tonumber", "value"); err != nil {
		return nil, err
	}
	if num, ok := ToNumber(args[0]); ok {
		return []Value{Number(num)}, nil
	}
	return []Value{{}}, nil
}

func stdAssert(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "assert", "boolean", "~string"); err != nil {
		return nil, err
	}
	if args[0].Bool() {
		return args[:1], nil
	}
	if len(args) > 1 {
		return nil, s.newUserErr(args[1])
	}
	return nil, s.newUserErr(s.str("assertion failed!"))
}

func stdError(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "error", "value"); err != nil {
		return nil, err
	}
	return nil, s.newUserErr(args[0])
}

// stdPCall traps any error raised below it and reports it as a value,
// prefixing the callee's results with an ok boolean.
func stdPCall(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "pcall", "function|object"); err != nil {
		return nil, err
	}
	results, err := s.callValue(args[0], args[1:], -1)
	if err != nil {
		return []Value{Bool(false), s.errValue(err)}, nil
	}
	return append([]Value{Bool(true)}, results...), nil
}

// stdLoadString compiles source into a closure without running it. A compile
// failure comes back as nil plus the diagnostic rather than an error.
func stdLoadString(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "loadstring", "string", "~string"); err != nil {
		return nil, err
	}
	module := "loadstring"
	if len(args) > 1 {
		module = args[1].Str()
	}
	fn, err := parse.ParseString(module, args[0].Str())
	if err != nil {
		return []Value{{}, s.str(err.Error())}, nil
	}
	return []Value{objValue(s.newClosure(fn))}, nil
}

// registerObjectProto installs the default prototype every plain object
// chains to. It exposes __proto as a virtual field so scripts can read and
// retarget an object's prototype.
func registerObjectProto(s *State) {
	proto := s.alloc(ObjObject)
	proto.fields = newFieldmap(2)
	getters := s.newTable(1)
	getters.fields.set(s.str("__proto"), objValue(s.newGoFunc("__proto", func(s *State, args []Value) ([]Value, error) {
		self := args[0].Object()
		if self == nil || self.proto == nil {
			return []Value{{}}, nil
		}
		return []Value{objValue(self.proto)}, nil
	})))
	setters := s.newTable(1)
	setters.fields.set(s.str("__proto"), objValue(s.newGoFunc("__proto", func(s *State, args []Value) ([]Value, error) {
		if err := assertArguments(args, "__proto", "object", "object"); err != nil {
			return nil, err
		}
		return nil, args[0].Object().setProto(args[1].Object())
	})))
	proto.fields.set(s.str(metaGetter), objValue(getters))
	proto.fields.set(s.str(metaSetter), objValue(setters))
	s.protos[ObjObject] = proto
}

// assertArguments validates builtin arguments against type patterns: a plain
// name requires that type, `a|b` accepts either, a `~` prefix makes the
// argument optional, and `value` accepts anything including nil.
func assertArguments(args []Value, methodName string, assertions ...string) error {
	for i, assertion := range assertions {
		optional := strings.HasPrefix(assertion, "~")
		expected := strings.Split(strings.TrimPrefix(assertion, "~"), "|")
		if i >= len(args) {
			if optional {
				return nil
			}
			return argumentErr(i+1, methodName, fmt.Errorf("%v expected", assertion))
		}
		if strings.TrimPrefix(assertion, "~") == "value" {
			continue
		}
		valType := TypeName(args[i])
		found := false
		for _, want := range expected {
			if want == valType {
				found = true
				break
			}
		}
		if !found {
			return argumentErr(i+1, methodName, fmt.Errorf(
				"%v expected but received %v",
				strings.Join(expected, ", "),
				valType,
			))
		}
	}
	return nil
}

func argumentErr(nArg int, methodName string, err error) error {
	return fmt.Errorf("bad argument #%v to '%v' (%w)", nArg, methodName, err)
}
