package bytecode

import (
	"fmt"
	"strings"

	"github.com/ternarybob/canter/pkg/lexer"
)

// Opcode selects the instruction kind.
type Opcode uint8

const (
	OpNop Opcode = iota
	// OpSetConst loads Constants[ID] into Slot.
	OpSetConst
	// OpMove copies SlotB into Slot.
	OpMove
	// OpGetGlobal loads global ID into Slot.
	OpGetGlobal
	// OpSetGlobal stores SlotB into global ID.
	OpSetGlobal
	// OpBinOp applies MathOp to SlotB and SlotC, into Slot.
	OpBinOp
	// OpUnOp applies MathOp to SlotB, into Slot.
	OpUnOp
	// OpCall calls the function referenced by SlotB. Arguments occupy
	// SlotC onward: ID positional values followed by the keyword values
	// named by KwNameIDs. The result lands in Slot.
	OpCall
	// OpNewInstance instantiates class ID into Slot.
	OpNewInstance
	// OpGetAttr loads attribute ID of SlotB into Slot.
	OpGetAttr
	// OpSetAttr stores SlotC into attribute ID of SlotB.
	OpSetAttr
	// OpGetFunc loads a funcref to function ID into Slot.
	OpGetFunc
	// OpGetClass loads a classref to class ID into Slot.
	OpGetClass
	// OpJump continues at instruction ID.
	OpJump
	// OpCondJump continues at instruction ID when SlotB is falsy.
	OpCondJump
	// OpReturnValue returns SlotB to the caller.
	OpReturnValue
	// OpRaise raises the error instance in SlotB.
	OpRaise
	// OpPushRescueFrame opens an exception frame: catch at ID (-1 for
	// none), finally at ID2 (-1 for none), exception stored into Slot,
	// matching the classes in CaughtTypes.
	OpPushRescueFrame
	// OpPopRescueFrame closes the innermost exception frame after its
	// protected block completed without raising.
	OpPopRescueFrame
	// OpFinallyDone ends a finally block, resuming any delayed unwind.
	OpFinallyDone
	// OpNewContainer builds a container of kind ID (0 list, 1 set,
	// 2 map, 3 vector) from ID2 consecutive slots starting at SlotB
	// (maps interleave key, value), into Slot.
	OpNewContainer
	// OpContainerLen stores the element count of SlotB into Slot.
	OpContainerLen
	// OpSetIndex stores Slot into SlotB at index SlotC.
	OpSetIndex
)

// Container kinds for OpNewContainer.
const (
	ContainerList int64 = iota
	ContainerSet
	ContainerMap
	ContainerVector
)

func (o Opcode) String() string {
	names := [...]string{
		OpNop:             "nop",
		OpSetConst:        "setconst",
		OpMove:            "move",
		OpGetGlobal:       "getglobal",
		OpSetGlobal:       "setglobal",
		OpBinOp:           "binop",
		OpUnOp:            "unop",
		OpCall:            "call",
		OpNewInstance:     "newinstance",
		OpGetAttr:         "getattr",
		OpSetAttr:         "setattr",
		OpGetFunc:         "getfunc",
		OpGetClass:        "getclass",
		OpJump:            "jump",
		OpCondJump:        "condjump",
		OpReturnValue:     "returnvalue",
		OpRaise:           "raise",
		OpPushRescueFrame: "pushrescueframe",
		OpPopRescueFrame:  "poprescueframe",
		OpFinallyDone:     "finallydone",
		OpNewContainer:    "newcontainer",
		OpContainerLen:    "containerlen",
		OpSetIndex:        "setindex",
	}
	if int(o) < len(names) {
		return names[o]
	}
	return "unknown"
}

// Instruction is one VM instruction. Slot fields are stack indices
// relative to the current function floor; ID/ID2 reference program tables
// or jump targets depending on the opcode.
type Instruction struct {
	Op     Opcode
	Slot   int
	SlotB  int
	SlotC  int
	ID     int64
	ID2    int64
	MathOp lexer.Op

	KwNameIDs   []int64
	CaughtTypes []int64
}

// Disassemble renders a function body as text for the get_asm command.
func Disassemble(p *Program, f *Function) string {
	var b strings.Builder
	fmt.Fprintf(&b, "func %s (id %d, args %d, inner %d):\n",
		f.Name, f.ID, f.InputStackSize, f.InnerStackSize)
	if f.CFunc != nil {
		b.WriteString("    <built-in>\n")
		return b.String()
	}
	for i, inst := range f.Instructions {
		fmt.Fprintf(&b, "  %4d  %-16s", i, inst.Op.String())
		switch inst.Op {
		case OpSetConst:
			fmt.Fprintf(&b, "r%d <- const[%d]", inst.Slot, inst.ID)
		case OpMove:
			fmt.Fprintf(&b, "r%d <- r%d", inst.Slot, inst.SlotB)
		case OpGetGlobal:
			fmt.Fprintf(&b, "r%d <- g%d (%s)", inst.Slot, inst.ID,
				p.Globals[inst.ID].Name)
		case OpSetGlobal:
			fmt.Fprintf(&b, "g%d <- r%d", inst.ID, inst.SlotB)
		case OpBinOp:
			fmt.Fprintf(&b, "r%d <- r%d %s r%d", inst.Slot, inst.SlotB,
				inst.MathOp.PrintedAs(), inst.SlotC)
		case OpUnOp:
			fmt.Fprintf(&b, "r%d <- %s r%d", inst.Slot,
				inst.MathOp.PrintedAs(), inst.SlotB)
		case OpCall:
			fmt.Fprintf(&b, "r%d <- r%d(args r%d+%d)", inst.Slot,
				inst.SlotB, inst.SlotC, inst.ID)
		case OpNewInstance:
			fmt.Fprintf(&b, "r%d <- new class[%d]", inst.Slot, inst.ID)
		case OpGetAttr:
			fmt.Fprintf(&b, "r%d <- r%d.%s", inst.Slot, inst.SlotB,
				p.AttrNames[inst.ID])
		case OpSetAttr:
			fmt.Fprintf(&b, "r%d.%s <- r%d", inst.SlotB,
				p.AttrNames[inst.ID], inst.SlotC)
		case OpGetFunc:
			fmt.Fprintf(&b, "r%d <- func[%d]", inst.Slot, inst.ID)
		case OpGetClass:
			fmt.Fprintf(&b, "r%d <- class[%d]", inst.Slot, inst.ID)
		case OpJump:
			fmt.Fprintf(&b, "-> %d", inst.ID)
		case OpCondJump:
			fmt.Fprintf(&b, "r%d false -> %d", inst.SlotB, inst.ID)
		case OpReturnValue:
			fmt.Fprintf(&b, "return r%d", inst.SlotB)
		case OpRaise:
			fmt.Fprintf(&b, "raise r%d", inst.SlotB)
		case OpPushRescueFrame:
			fmt.Fprintf(&b, "catch %d finally %d -> r%d",
				inst.ID, inst.ID2, inst.Slot)
		}
		b.WriteString("\n")
	}
	return b.String()
}
