// Package bytecode defines the instruction set that the compiler emits and the
// vm executes, along with helpers for encoding and formatting instructions.
// Every instruction is a single opcode byte followed by 0 to 3 operand bytes.
// u16 operands are little-endian.
package bytecode

import (
	"encoding/binary"
	"fmt"
)

type (
	// Op is the descriptor of which kind of instruction each bytecode is.
	Op uint8
	// Shape is a descriptor of what operand format an instruction has.
	Shape int
)

const (
	// ShapeNone is an instruction with no operands.
	ShapeNone Shape = iota
	// ShapeU8 is an instruction with a single uint8 operand.
	ShapeU8
	// ShapeU8U8 is an instruction with two uint8 operands.
	ShapeU8U8
	// ShapeU16 is an instruction with a single uint16 operand.
	ShapeU16
	// ShapeU8U16 is an instruction with a uint8 then a uint16 operand.
	ShapeU8U16
)

const (
	// LOADCONST pushes constant at u16 index.
	LOADCONST Op = iota
	// NIL pushes nil.
	NIL
	// TRUE pushes true.
	TRUE
	// FALSE pushes false.
	FALSE
	// POP pops u8 values.
	POP
	// NEGATE arithmetically negates the top value.
	NEGATE
	// NOT logically negates the top value.
	NOT
	// COUNT replaces the top value with its length.
	COUNT
	// ADD adds the top two values.
	ADD
	// SUB subtracts the top value from the one below it.
	SUB
	// MULT multiplies the top two values.
	MULT
	// DIV divides the value below the top by the top.
	DIV
	// MOD takes the remainder of the value below the top by the top.
	MOD
	// EQUAL pops two values and pushes their equality.
	EQUAL
	// GREATER pops two values and pushes b > a.
	GREATER
	// LESS pops two values and pushes b < a.
	LESS
	// GREATEREQUAL pops two values and pushes b >= a.
	GREATEREQUAL
	// LESSEQUAL pops two values and pushes b <= a.
	LESSEQUAL
	// CONCAT pops u8 values and pushes their string concatenation.
	CONCAT
	// GETLOCAL pushes the local at slot u8. Also reused as the inline
	// closure directive marking an upvalue captured from a local slot.
	GETLOCAL
	// SETLOCAL pops the top value into slot u8.
	SETLOCAL
	// INCLOCAL adjusts slot u8 by the biased delta operand and pushes the
	// previous value.
	INCLOCAL
	// GETUPVAL pushes upvalue u8. Also reused as the inline closure
	// directive marking an upvalue chained from the enclosing function.
	GETUPVAL
	// SETUPVAL pops the top value into upvalue u8.
	SETUPVAL
	// INCUPVAL adjusts upvalue u8 by the biased delta operand and pushes
	// the previous value.
	INCUPVAL
	// GETGLOBAL pushes the global named by constant u16.
	GETGLOBAL
	// SETGLOBAL pops the top value into the global named by constant u16.
	SETGLOBAL
	// INCGLOBAL adjusts the global named by constant u16 by the biased
	// delta and pushes the previous value.
	INCGLOBAL
	// GETOBJECT pops an object and pushes its field named by constant u16.
	GETOBJECT
	// SETOBJECT pops a value, a field-name key, and an object, then
	// assigns the field.
	SETOBJECT
	// INCOBJECT pops an object, adjusts the field named by constant u16 by
	// the biased delta, and pushes the previous value.
	INCOBJECT
	// INDEX pops a key and a container and pushes container[key].
	INDEX
	// NEWINDEX pops a value, key, and container and assigns container[key].
	NEWINDEX
	// INCINDEX pops a key and container, adjusts container[key] by the
	// biased delta, and pushes the previous value.
	INCINDEX
	// NEWDICT builds a table from u16 interleaved key/value pairs.
	NEWDICT
	// NEWOBJECT builds an object from u16 interleaved key/value pairs.
	NEWOBJECT
	// CLOSURE wraps function constant u16 into a closure. Immediately
	// following are one (GETLOCAL u8 | GETUPVAL u8) directive pair per
	// upvalue, consumed inline.
	CLOSURE
	// CLOSE converts the open upvalue for the top stack slot to closed and
	// pops the slot.
	CLOSE
	// CALL calls the callable under the u8 args, expecting u8 returns.
	CALL
	// INVOKE pops the method name above self and its u8 args, looks the
	// name up on self, then calls with self prepended expecting u8 returns.
	INVOKE
	// RETURN returns the top u8 values and pops the frame.
	RETURN
	// JMP jumps forward by u16.
	JMP
	// JMPBACK jumps backward by u16.
	JMPBACK
	// PEJMP pops the top value and jumps forward by u16 if it was falsy.
	PEJMP
	// EJMP peeks at the top value and jumps forward by u16 if it is falsy.
	EJMP
	// ITER replaces the iterable on top with its iterator object.
	ITER
	// NEXT steps the iterator expecting u8 values, jumping forward by u16
	// when exhausted.
	NEXT
)

// IncBias is added to the signed delta of the INC* instruction family so the
// delta travels as a single unsigned byte.
const IncBias = 128

var opcodeToString = map[Op]string{
	LOADCONST:    "LOADCONST",
	NIL:          "NIL",
	TRUE:         "TRUE",
	FALSE:        "FALSE",
	POP:          "POP",
	NEGATE:       "NEGATE",
	NOT:          "NOT",
	COUNT:        "COUNT",
	ADD:          "ADD",
	SUB:          "SUB",
	MULT:         "MULT",
	DIV:          "DIV",
	MOD:          "MOD",
	EQUAL:        "EQUAL",
	GREATER:      "GREATER",
	LESS:         "LESS",
	GREATEREQUAL: "GREATEREQUAL",
	LESSEQUAL:    "LESSEQUAL",
	CONCAT:       "CONCAT",
	GETLOCAL:     "GETLOCAL",
	SETLOCAL:     "SETLOCAL",
	INCLOCAL:     "INCLOCAL",
	GETUPVAL:     "GETUPVAL",
	SETUPVAL:     "SETUPVAL",
	INCUPVAL:     "INCUPVAL",
	GETGLOBAL:    "GETGLOBAL",
	SETGLOBAL:    "SETGLOBAL",
	INCGLOBAL:    "INCGLOBAL",
	GETOBJECT:    "GETOBJECT",
	SETOBJECT:    "SETOBJECT",
	INCOBJECT:    "INCOBJECT",
	INDEX:        "INDEX",
	NEWINDEX:     "NEWINDEX",
	INCINDEX:     "INCINDEX",
	NEWDICT:      "NEWDICT",
	NEWOBJECT:    "NEWOBJECT",
	CLOSURE:      "CLOSURE",
	CLOSE:        "CLOSE",
	CALL:         "CALL",
	INVOKE:       "INVOKE",
	RETURN:       "RETURN",
	JMP:          "JMP",
	JMPBACK:      "JMPBACK",
	PEJMP:        "PEJMP",
	EJMP:         "EJMP",
	ITER:         "ITER",
	NEXT:         "NEXT",
}

var opcodeShapes = map[Op]Shape{
	LOADCONST:    ShapeU16,
	NIL:          ShapeNone,
	TRUE:         ShapeNone,
	FALSE:        ShapeNone,
	POP:          ShapeU8,
	NEGATE:       ShapeNone,
	NOT:          ShapeNone,
	COUNT:        ShapeNone,
	ADD:          ShapeNone,
	SUB:          ShapeNone,
	MULT:         ShapeNone,
	DIV:          ShapeNone,
	MOD:          ShapeNone,
	EQUAL:        ShapeNone,
	GREATER:      ShapeNone,
	LESS:         ShapeNone,
	GREATEREQUAL: ShapeNone,
	LESSEQUAL:    ShapeNone,
	CONCAT:       ShapeU8,
	GETLOCAL:     ShapeU8,
	SETLOCAL:     ShapeU8,
	INCLOCAL:     ShapeU8U8,
	GETUPVAL:     ShapeU8,
	SETUPVAL:     ShapeU8,
	INCUPVAL:     ShapeU8U8,
	GETGLOBAL:    ShapeU16,
	SETGLOBAL:    ShapeU16,
	INCGLOBAL:    ShapeU8U16,
	GETOBJECT:    ShapeU16,
	SETOBJECT:    ShapeNone,
	INCOBJECT:    ShapeU8U16,
	INDEX:        ShapeNone,
	NEWINDEX:     ShapeNone,
	INCINDEX:     ShapeU8,
	NEWDICT:      ShapeU16,
	NEWOBJECT:    ShapeU16,
	CLOSURE:      ShapeU16,
	CLOSE:        ShapeNone,
	CALL:         ShapeU8U8,
	INVOKE:       ShapeU8U8,
	RETURN:       ShapeU8,
	JMP:          ShapeU16,
	JMPBACK:      ShapeU16,
	PEJMP:        ShapeU16,
	EJMP:         ShapeU16,
	ITER:         ShapeNone,
	NEXT:         ShapeU8U16,
}

func (op Op) String() string {
	if str, ok := opcodeToString[op]; ok {
		return str
	}
	return "UNDEFINED"
}

// OperandShape reports the operand format of an instruction.
func (op Op) OperandShape() Shape { return opcodeShapes[op] }

// Size returns the full size of the instruction in bytes, opcode included.
func (op Op) Size() int {
	switch opcodeShapes[op] {
	case ShapeU8:
		return 2
	case ShapeU8U8, ShapeU16:
		return 3
	case ShapeU8U16:
		return 4
	default:
		return 1
	}
}

// PutU16 writes a little-endian uint16 into buf at off.
func PutU16(buf []byte, off int, val uint16) {
	binary.LittleEndian.PutUint16(buf[off:], val)
}

// U16 reads the little-endian uint16 at off.
func U16(buf []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(buf[off:])
}

// Bias encodes a signed increment delta as an unsigned operand byte.
func Bias(delta int) uint8 { return uint8(delta + IncBias) }

// Delta decodes a biased increment operand back into a signed delta.
func Delta(operand uint8) int { return int(operand) - IncBias }

// ToString formats the instruction at pc and returns it along with the offset
// of the next instruction. Inline closure directives are not decoded here
// since their count depends on the function constant.
func ToString(code []byte, pc int) (string, int) {
	op := Op(code[pc])
	switch op.OperandShape() {
	case ShapeU8:
		return fmt.Sprintf("%-13v %-5v", op, code[pc+1]), pc + 2
	case ShapeU8U8:
		return fmt.Sprintf("%-13v %-5v %-5v", op, code[pc+1], code[pc+2]), pc + 3
	case ShapeU16:
		return fmt.Sprintf("%-13v %-5v", op, U16(code, pc+1)), pc + 3
	case ShapeU8U16:
		return fmt.Sprintf("%-13v %-5v %-5v", op, code[pc+1], U16(code, pc+2)), pc + 4
	default:
		return fmt.Sprintf("%-13v", op), pc + 1
	}
}
