package runtime

import "fmt"

// registerVMLib installs the `vm` debug object: reflective access to the
// globals table and to the per-kind prototype registry.
func registerVMLib(s *State) {
	vm := s.newObject(4)

	getters := s.newTable(1)
	getters.fields.set(s.str("globals"), objValue(s.newGoFunc("vm.globals", func(s *State, _ []Value) ([]Value, error) {
		return []Value{objValue(s.globals)}, nil
	})))
	setters := s.newTable(1)
	setters.fields.set(s.str("globals"), objValue(s.newGoFunc("vm.globals", func(s *State, args []Value) ([]Value, error) {
		if err := assertArguments(args, "vm.globals", "value", "table"); err != nil {
			return nil, err
		}
		s.setGlobals(args[1].Object())
		return nil, nil
	})))
	vm.fields.set(s.str(metaGetter), objValue(getters))
	vm.fields.set(s.str(metaSetter), objValue(setters))

	baseProtos := s.newObject(2)
	baseProtos.fields.set(s.str(metaIndex), objValue(s.newGoFunc("vm.baseProtos.__index", func(s *State, args []Value) ([]Value, error) {
		if err := assertArguments(args, "vm.baseProtos.__index", "value", "string"); err != nil {
			return nil, err
		}
		kind, err := kindFromName(args[1].Str())
		if err != nil {
			return nil, err
		}
		if proto := s.protos[kind]; proto != nil {
			return []Value{objValue(proto)}, nil
		}
		return []Value{{}}, nil
	})))
	baseProtos.fields.set(s.str(metaNewindex), objValue(s.newGoFunc("vm.baseProtos.__newindex", func(s *State, args []Value) ([]Value, error) {
		if err := assertArguments(args, "vm.baseProtos.__newindex", "value", "string", "object"); err != nil {
			return nil, err
		}
		kind, err := kindFromName(args[1].Str())
		if err != nil {
			return nil, err
		}
		s.protos[kind] = args[2].Object()
		return nil, nil
	})))
	vm.fields.set(s.str("baseProtos"), objValue(baseProtos))

	s.globals.fields.set(s.str("vm"), objValue(vm))
}

func kindFromName(name string) (ObjKind, error) {
	switch name {
	case "string":
		return ObjString, nil
	case "table":
		return ObjTable, nil
	case "object":
		return ObjObject, nil
	case "function":
		return ObjClosure, nil
	default:
		return 0, fmt.Errorf("unknown base prototype '%v'", name)
	}
}
