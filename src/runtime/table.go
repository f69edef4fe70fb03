package runtime

// fieldmap is the ordered storage behind tables and object field maps. Keys
// iterate in insertion order; consecutive number keys counting up from 0 form
// the array part that # reports.
type fieldmap struct {
	keys []Value
	vals map[Value]Value
}

func newFieldmap(capacity int) *fieldmap {
	return &fieldmap{
		keys: make([]Value, 0, capacity),
		vals: make(map[Value]Value, capacity),
	}
}

func (fm *fieldmap) get(key Value) Value {
	return fm.vals[key]
}

func (fm *fieldmap) has(key Value) bool {
	_, ok := fm.vals[key]
	return ok
}

// set assigns key to val. Assigning nil deletes the key entirely so that
// iteration does not surface tombstones.
func (fm *fieldmap) set(key, val Value) {
	if val.IsNil() {
		fm.delete(key)
		return
	}
	if _, exists := fm.vals[key]; !exists {
		fm.keys = append(fm.keys, key)
	}
	fm.vals[key] = val
}

func (fm *fieldmap) delete(key Value) {
	if _, exists := fm.vals[key]; !exists {
		return
	}
	delete(fm.vals, key)
	for i, k := range fm.keys {
		if equal(k, key) {
			fm.keys = append(fm.keys[:i], fm.keys[i+1:]...)
			break
		}
	}
}

func (fm *fieldmap) size() int { return len(fm.vals) }

// arrayLen counts the consecutive integer keys from 0, which is what the
// count operator reports for a table used as an array.
func (fm *fieldmap) arrayLen() int {
	n := 0
	for fm.has(Number(float64(n))) {
		n++
	}
	return n
}

// append adds val at the next array index.
func (fm *fieldmap) append(val Value) {
	fm.set(Number(float64(fm.arrayLen())), val)
}
