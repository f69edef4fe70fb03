package runtime

import (
	"github.com/gosmo-lang/gosmo/src/conf"
	"github.com/gosmo-lang/gosmo/src/parse"
)

// The heap is a singly linked list of every object the state has allocated,
// threaded through Object.next. Collection is plain mark and sweep: mark
// everything reachable from the roots, then unlink whatever stayed unmarked.
// Collections only run between instructions and between embedding API calls,
// never in the middle of one, so a value held in a Go variable is always also
// reachable from a root when the collector looks.

// alloc links a fresh object of the given kind into the heap.
func (s *State) alloc(kind ObjKind) *Object {
	obj := &Object{kind: kind, next: s.heap}
	s.heap = obj
	s.allocCount++
	return obj
}

// intern returns the canonical object for a string, allocating it on first
// use. Every equal string shares one object, which is what makes string
// equality pointer identity.
func (s *State) intern(str string) *Object {
	if obj, ok := s.interned[str]; ok {
		return obj
	}
	obj := s.alloc(ObjString)
	obj.str = str
	s.interned[str] = obj
	return obj
}

func (s *State) str(str string) Value { return objValue(s.intern(str)) }

func (s *State) newTable(capacity int) *Object {
	obj := s.alloc(ObjTable)
	obj.fields = newFieldmap(capacity)
	return obj
}

func (s *State) newObject(capacity int) *Object {
	obj := s.alloc(ObjObject)
	obj.fields = newFieldmap(capacity)
	obj.proto = s.protos[ObjObject]
	return obj
}

func (s *State) newClosure(fn *parse.FnProto) *Object {
	obj := s.alloc(ObjClosure)
	obj.fnproto = fn
	obj.upvals = make([]*Object, 0, len(fn.UpIndexes))
	return obj
}

func (s *State) newGoFunc(name string, fn GoFn) *Object {
	obj := s.alloc(ObjGoFunc)
	obj.name = name
	obj.gofn = fn
	return obj
}

// FreezeGC postpones collection until a matching UnfreezeGC. Freezes nest, so
// multi-step builds like pushing the pieces of a prototype object can wrap
// the whole sequence.
func (s *State) FreezeGC() { s.frozen++ }

// UnfreezeGC undoes one FreezeGC.
func (s *State) UnfreezeGC() {
	if s.frozen > 0 {
		s.frozen--
	}
}

func (s *State) maybeCollect() {
	if s.frozen == 0 && s.allocCount >= s.gcThreshold {
		s.Collect()
	}
}

// Collect runs a full mark and sweep pass regardless of thresholds, unless
// the state is frozen.
func (s *State) Collect() {
	if s.frozen > 0 {
		return
	}
	s.markRoots()
	s.sweep()
	s.gcThreshold = max(conf.GCPAUSE, s.allocCount*2)
}

func (s *State) markRoots() {
	for _, val := range s.stack[:s.top] {
		s.markValue(val)
	}
	for _, f := range s.frames {
		s.markObject(f.closure)
	}
	for _, upval := range s.openUpvals {
		s.markObject(upval)
	}
	s.markObject(s.globals)
	for _, proto := range s.protos {
		s.markObject(proto)
	}
	for _, val := range s.anchors {
		s.markValue(val)
	}
	// the intern table is deliberately not a root: a string reachable only
	// through it is garbage and gets evicted during the sweep.
}

func (s *State) markValue(val Value) {
	if val.kind == KindObject {
		s.markObject(val.obj)
	}
}

// markObject traces an object and everything it can reach. The worklist makes
// prototype cycles and deep chains safe to trace.
func (s *State) markObject(obj *Object) {
	gray := []*Object{obj}
	for len(gray) > 0 {
		obj = gray[len(gray)-1]
		gray = gray[:len(gray)-1]
		if obj == nil || obj.marked {
			continue
		}
		obj.marked = true
		gray = append(gray, obj.proto)
		switch obj.kind {
		case ObjClosure:
			gray = append(gray, obj.upvals...)
		case ObjUpvalue:
			if !obj.open {
				if obj.val.kind == KindObject {
					gray = append(gray, obj.val.obj)
				}
			}
		case ObjTable, ObjObject:
			for _, key := range obj.fields.keys {
				if key.kind == KindObject {
					gray = append(gray, key.obj)
				}
				if val := obj.fields.get(key); val.kind == KindObject {
					gray = append(gray, val.obj)
				}
			}
		}
	}
}

func (s *State) sweep() {
	live := 0
	link := &s.heap
	for *link != nil {
		obj := *link
		if obj.marked {
			obj.marked = false
			link = &obj.next
			live++
			continue
		}
		if obj.kind == ObjString && s.interned[obj.str] == obj {
			delete(s.interned, obj.str)
		}
		*link = obj.next
		obj.next = nil
	}
	s.allocCount = live
}

// ObjectCount reports how many objects are currently on the heap.
func (s *State) ObjectCount() int { return s.allocCount }
