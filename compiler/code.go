package compiler

import (
	"encoding/binary"
	"fmt"
)

// Opcode is a single byte tag identifying a VM instruction.
type Opcode byte

// Instructions is a flat byte buffer: a sequence of opcode bytes each
// followed by its little-endian operand bytes.
type Instructions []byte

const (
	Exit Opcode = iota
	Call
	Return
	Recur
	Jump
	JumpIfFalse
	Load
	Load0
	Load1
	Load2
	Load0Fast
	Load1Fast
	Store
	Rebind
	PushI
	PushNull
	PushTrue
	PushFalse
	PushLambda
	PushDocumentedLambda
	PushVariadicLambda
	Discard
	EnterLet
	ExitLet
	Cons
	Car
	Cdr
	IsNull
)

// Pop is the same instruction as Discard under a second name: both
// drop the operand stack's top value. The builder only ever emits
// Discard; Pop exists so Go code can use whichever name reads better
// at a call site without the VM needing a second case. Disassembly
// always prints Discard.
const Pop = Discard

// OpCodeDefinition names an opcode and the byte width of each of its
// operands, in order.
type OpCodeDefinition struct {
	Name          string
	OperandWidths []int
}

var definitions = map[Opcode]*OpCodeDefinition{
	Exit:                 {"Exit", nil},
	Call:                 {"Call", []int{1}},
	Return:               {"Return", nil},
	Recur:                {"Recur", nil},
	Jump:                 {"Jump", []int{2}},
	JumpIfFalse:          {"JumpIfFalse", []int{2}},
	Load:                 {"Load", []int{2, 2}},
	Load0:                {"Load0", []int{2}},
	Load1:                {"Load1", []int{2}},
	Load2:                {"Load2", []int{2}},
	Load0Fast:            {"Load0Fast", []int{1}},
	Load1Fast:            {"Load1Fast", []int{1}},
	Store:                {"Store", nil},
	Rebind:               {"Rebind", []int{2, 2}},
	PushI:                {"PushI", []int{2}},
	PushNull:             {"PushNull", nil},
	PushTrue:             {"PushTrue", nil},
	PushFalse:            {"PushFalse", nil},
	PushLambda:           {"PushLambda", []int{1}},
	PushDocumentedLambda: {"PushDocumentedLambda", []int{1, 2}},
	PushVariadicLambda:   {"PushVariadicLambda", []int{1}},
	Discard:              {"Discard", nil},
	EnterLet:             {"EnterLet", nil},
	ExitLet:              {"ExitLet", nil},
	Cons:                 {"Cons", nil},
	Car:                  {"Car", nil},
	Cdr:                  {"Cdr", nil},
	IsNull:               {"IsNull", nil},
}

func Get(op Opcode) (*OpCodeDefinition, error) {
	def, ok := definitions[op]
	if !ok {
		return nil, fmt.Errorf("🤖 DeveloperError: opcode %d undefined", op)
	}
	return def, nil
}

// AssembleInstruction encodes op and its operands into their on-disk
// form: the opcode byte followed by each operand packed into the
// width its definition declares, little-endian.
func AssembleInstruction(op Opcode, operands ...int) ([]byte, error) {
	def, err := Get(op)
	if err != nil {
		return nil, err
	}
	if len(operands) != len(def.OperandWidths) {
		return nil, fmt.Errorf("🤖 DeveloperError: %s expects %d operand(s), got %d", def.Name, len(def.OperandWidths), len(operands))
	}

	length := 1
	for _, w := range def.OperandWidths {
		length += w
	}
	instruction := make([]byte, length)
	instruction[0] = byte(op)

	offset := 1
	for i, operand := range operands {
		width := def.OperandWidths[i]
		switch width {
		case 1:
			instruction[offset] = byte(operand)
		case 2:
			binary.LittleEndian.PutUint16(instruction[offset:], uint16(operand))
		}
		offset += width
	}
	return instruction, nil
}

// instructionWidth returns the total encoded byte length of op's
// instruction, opcode byte included.
func instructionWidth(op Opcode) (int, error) {
	def, err := Get(op)
	if err != nil {
		return 0, err
	}
	width := 1
	for _, w := range def.OperandWidths {
		width += w
	}
	return width, nil
}

// readOperands decodes the operand values for instr (opcode byte
// included) according to def.
func readOperands(def *OpCodeDefinition, instr []byte) []int {
	operands := make([]int, len(def.OperandWidths))
	offset := 1
	for i, width := range def.OperandWidths {
		switch width {
		case 1:
			operands[i] = int(instr[offset])
		case 2:
			operands[i] = int(binary.LittleEndian.Uint16(instr[offset:]))
		}
		offset += width
	}
	return operands
}

// DisassembleInstruction renders the single instruction beginning at
// ins[0] as human readable text, e.g. "Load0Fast 3".
func DisassembleInstruction(ins []byte) (string, error) {
	op := Opcode(ins[0])
	def, err := Get(op)
	if err != nil {
		return "", err
	}
	if len(def.OperandWidths) == 0 {
		return def.Name, nil
	}
	operands := readOperands(def, ins)
	out := def.Name
	for _, o := range operands {
		out += fmt.Sprintf(" %d", o)
	}
	return out, nil
}
