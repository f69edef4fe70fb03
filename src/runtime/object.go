package runtime

import (
	"fmt"

	"github.com/gosmo-lang/gosmo/src/conf"
	"github.com/gosmo-lang/gosmo/src/parse"
)

type (
	// ObjKind tags a heap object with what payload it carries.
	ObjKind uint8
	// GoFn is a go function callable by the vm. Results are adjusted to the
	// caller's expectation, so returning a short slice is fine.
	GoFn func(s *State, args []Value) ([]Value, error)
	// Object is the single heap object representation. Every object carries
	// the gc header (mark bit and next-in-heap link) and an optional
	// prototype; the remaining fields are payload selected by kind.
	Object struct {
		kind   ObjKind
		marked bool
		next   *Object
		proto  *Object

		// ObjString
		str string

		// ObjClosure
		fnproto *parse.FnProto
		upvals  []*Object

		// ObjUpvalue: open points at a live stack slot, closed owns val.
		open bool
		slot int
		val  Value

		// ObjTable and ObjObject share the ordered field storage.
		fields *fieldmap

		// ObjGoFunc
		gofn GoFn
		name string
	}
)

const (
	// ObjString is an interned immutable string.
	ObjString ObjKind = iota
	// ObjFunction is a compiled function prototype.
	ObjFunction
	// ObjClosure is a function bound to its captured upvalues.
	ObjClosure
	// ObjUpvalue is a captured variable, open or closed.
	ObjUpvalue
	// ObjTable is a plain ordered mapping without metamethod dispatch.
	ObjTable
	// ObjObject is a user record with a prototype chain.
	ObjObject
	// ObjGoFunc is a callable implemented by the embedder.
	ObjGoFunc

	objKindCount = int(ObjGoFunc) + 1
)

func (kind ObjKind) typeName() string {
	switch kind {
	case ObjString:
		return "string"
	case ObjFunction, ObjClosure, ObjGoFunc:
		return "function"
	case ObjUpvalue:
		return "upvalue"
	case ObjTable:
		return "table"
	case ObjObject:
		return "object"
	default:
		return "unknown"
	}
}

// Kind reports what payload the object carries.
func (obj *Object) Kind() ObjKind { return obj.kind }

// Proto returns the object's prototype, nil when unset.
func (obj *Object) Proto() *Object { return obj.proto }

func (obj *Object) display() string {
	switch obj.kind {
	case ObjString:
		return obj.str
	case ObjClosure:
		if obj.fnproto.Name != "" {
			return fmt.Sprintf("function:[%s()]", obj.fnproto.Name)
		}
		return fmt.Sprintf("function:[%p]", obj)
	case ObjGoFunc:
		return fmt.Sprintf("function:[%s()]", obj.name)
	case ObjTable:
		return fmt.Sprintf("table: %p", obj)
	default:
		return fmt.Sprintf("<%s: %p>", obj.kind.typeName(), obj)
	}
}

func (obj *Object) String() string { return obj.display() }

// setProto reassigns an object's prototype, refusing chains that would loop
// back through the object itself.
func (obj *Object) setProto(proto *Object) error {
	for walk, depth := proto, 0; walk != nil; walk, depth = walk.proto, depth+1 {
		if walk == obj {
			return fmt.Errorf("prototype assignment would create a cycle")
		}
		if depth > conf.MAXPROTODEPTH {
			return fmt.Errorf("prototype chain too long")
		}
	}
	obj.proto = proto
	return nil
}
