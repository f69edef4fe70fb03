package runtime

import (
	"fmt"
	"strings"
)

// The string library registers twice: once as the `string` global table and
// once as the String prototype, so both string.sub(str, 0) and str:sub(0)
// run the same functions with the same arguments. Indexes count from zero and out of range
// positions are errors rather than clamps.
func registerStringLib(s *State) {
	fns := map[string]GoFn{
		"sub":    stdStringSub,
		"find":   stdStringFind,
		"split":  stdStringSplit,
		"charAt": stdStringCharAt,
		"len":    stdStringLen,
		"rep":    stdStringRep,
		"byte":   stdStringByte,
	}
	lib := s.newTable(len(fns))
	proto := s.newObject(len(fns))
	for name, fn := range fns {
		fn := fn
		// string.f(...) is an INVOKE on the table, which passes the table
		// first; drop it so both call forms see the same arguments.
		libFn := func(s *State, args []Value) ([]Value, error) {
			if len(args) > 0 && args[0].Object() == lib {
				args = args[1:]
			}
			return fn(s, args)
		}
		lib.fields.set(s.str(name), objValue(s.newGoFunc("string."+name, libFn)))
		proto.fields.set(s.str(name), objValue(s.newGoFunc("string."+name, fn)))
	}
	s.globals.fields.set(s.str("string"), objValue(lib))
	s.protos[ObjString] = proto
}

func stringRange(name, str string, at int) error {
	if at < 0 || at >= len(str) {
		return fmt.Errorf("index %v out of range in '%v' on string of length %v", at, name, len(str))
	}
	return nil
}

// stdStringSub takes a start index and an optional byte length, defaulting to
// the rest of the string.
func stdStringSub(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "string.sub", "string", "number", "~number"); err != nil {
		return nil, err
	}
	str := args[0].Str()
	start := int(args[1].Num())
	length := len(str) - start
	if len(args) > 2 {
		length = int(args[2].Num())
	}
	if start < 0 || length < 0 || start+length > len(str) {
		return nil, fmt.Errorf("substring at %v of length %v out of bounds in 'string.sub' on string of length %v", start, length, len(str))
	}
	return []Value{s.str(str[start : start+length])}, nil
}

func stdStringFind(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "string.find", "string", "string"); err != nil {
		return nil, err
	}
	if at := strings.Index(args[0].Str(), args[1].Str()); at >= 0 {
		return []Value{Number(float64(at))}, nil
	}
	return []Value{{}}, nil
}

func stdStringSplit(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "string.split", "string", "string"); err != nil {
		return nil, err
	}
	parts := strings.Split(args[0].Str(), args[1].Str())
	tbl := s.newTable(len(parts))
	for _, part := range parts {
		tbl.fields.append(s.str(part))
	}
	return []Value{objValue(tbl)}, nil
}

func stdStringCharAt(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "string.charAt", "string", "number"); err != nil {
		return nil, err
	}
	str, at := args[0].Str(), int(args[1].Num())
	if err := stringRange("string.charAt", str, at); err != nil {
		return nil, err
	}
	return []Value{s.str(str[at : at+1])}, nil
}

func stdStringLen(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "string.len", "string"); err != nil {
		return nil, err
	}
	return []Value{Number(float64(len(args[0].Str())))}, nil
}

func stdStringRep(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "string.rep", "string", "number"); err != nil {
		return nil, err
	}
	count := int(args[1].Num())
	if count < 0 {
		return nil, fmt.Errorf("negative repeat count in 'string.rep'")
	}
	return []Value{s.str(strings.Repeat(args[0].Str(), count))}, nil
}

func stdStringByte(s *State, args []Value) ([]Value, error) {
	if err := assertArguments(args, "string.byte", "string", "number"); err != nil {
		return nil, err
	}
	str, at := args[0].Str(), int(args[1].Num())
	if err := stringRange("string.byte", str, at); err != nil {
		return nil, err
	}
	return []Value{Number(float64(str[at]))}, nil
}
