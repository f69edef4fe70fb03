package runtime

import "sort"

// Upvalues are heap objects so that closures can share them and the collector
// can trace them. While open they alias a live stack slot; closing copies the
// slot's value into the upvalue, after which the stack slot is free to die.
//
// The state keeps its open upvalues sorted by slot. At most one open upvalue
// exists per slot, so closures capturing the same variable observe each
// other's writes.

// captureUpvalue returns the open upvalue for a stack slot, creating it when
// no closure has captured that slot yet.
func (s *State) captureUpvalue(slot int) *Object {
	at := sort.Search(len(s.openUpvals), func(i int) bool {
		return s.openUpvals[i].slot >= slot
	})
	if at < len(s.openUpvals) && s.openUpvals[at].slot == slot {
		return s.openUpvals[at]
	}
	upval := s.alloc(ObjUpvalue)
	upval.open = true
	upval.slot = slot
	s.openUpvals = append(s.openUpvals, nil)
	copy(s.openUpvals[at+1:], s.openUpvals[at:])
	s.openUpvals[at] = upval
	return upval
}

// closeUpvalues closes every open upvalue at or above the given slot. Called
// when a frame returns and when the compiler emits CLOSE for a captured local
// leaving scope.
func (s *State) closeUpvalues(from int) {
	at := sort.Search(len(s.openUpvals), func(i int) bool {
		return s.openUpvals[i].slot >= from
	})
	for _, upval := range s.openUpvals[at:] {
		upval.val = s.stack[upval.slot]
		upval.open = false
		upval.slot = 0
	}
	s.openUpvals = s.openUpvals[:at]
}

func (s *State) upvalGet(upval *Object) Value {
	if upval.open {
		return s.stack[upval.slot]
	}
	return upval.val
}

func (s *State) upvalSet(upval *Object, val Value) {
	if upval.open {
		s.stack[upval.slot] = val
		return
	}
	upval.val = val
}
