// Package bytecode holds the compiled program model: the flat catalogues
// of functions, classes and globals, the interned attribute name table,
// and the instruction set the VM dispatches.
//
// The program is built during compilation and treated as immutable once
// execution starts; the VM only ever reads it.
package bytecode

import "fmt"

// Function is one compiled function, either bytecode or a registered
// built-in. IDs index Program.Functions.
type Function struct {
	ID             int64
	Name           string
	ModulePath     string
	LibraryName    string
	InputStackSize int // parameter slots, filled by the caller
	InnerStackSize int // additional local slots
	ArgNames       []string
	// AsyncProgressSize reserves per-call scratch for built-ins that
	// suspend; zero for plain functions.
	AsyncProgressSize int
	OwnerClassID      int64 // -1 when not a method
	IsThreadable      bool
	IsGetter          bool
	IsSetter          bool

	// Exactly one of these describes the body. CFunc is asserted by the
	// VM to its built-in signature; keeping the field loosely typed here
	// avoids a dependency from the program model onto the VM.
	Instructions []Instruction
	CFunc        interface{}
}

// Class is one compiled class. IsError marks membership in the
// raise/rescue taxonomy.
type Class struct {
	ID                int64
	Name              string
	BaseClassGlobalID int64 // -1 for no base
	VarAttrNameIDs    []int64
	// VarInitConsts holds the constant-table index initializing each
	// member variable, -1 for members that start as none.
	VarInitConsts     []int64
	MethodAttrNameIDs []int64
	MethodFuncIDs     []int64
	IsError           bool
}

// Global is one program global with its initial constant value.
type Global struct {
	ID           int64
	Name         string
	InitialConst int64 // index into Program.Constants, -1 for none
	IsConst      bool
}

// ConstantKind tags Constant.
type ConstantKind int

const (
	ConstNone ConstantKind = iota
	ConstInt
	ConstFloat
	ConstBool
	ConstString
	ConstBytes
)

// Constant is one literal from the constant table.
type Constant struct {
	Kind  ConstantKind
	Int   int64
	Float float64
	Str   string
	Bytes []byte
}

// Program is the process-wide program definition table.
type Program struct {
	Functions []*Function
	Classes   []*Class
	Globals   []*Global
	Constants []Constant

	MainFuncID int64
	// GlobalsInitFuncID runs before main to evaluate non-constant
	// global initializers; -1 when no such function was needed.
	GlobalsInitFuncID int64

	attrNameIDs map[string]int64
	AttrNames   []string
}

// New returns an empty program with main unset.
func New() *Program {
	return &Program{
		MainFuncID:        -1,
		GlobalsInitFuncID: -1,
		attrNameIDs:       map[string]int64{},
	}
}

// InternAttributeName maps an attribute name to its small integer id,
// creating the entry on first use. Ids are dense and stable.
func (p *Program) InternAttributeName(name string) int64 {
	if id, ok := p.attrNameIDs[name]; ok {
		return id
	}
	id := int64(len(p.AttrNames))
	p.attrNameIDs[name] = id
	p.AttrNames = append(p.AttrNames, name)
	return id
}

// AttributeNameID returns the interned id, or -1 if the name was never
// interned.
func (p *Program) AttributeNameID(name string) int64 {
	if id, ok := p.attrNameIDs[name]; ok {
		return id
	}
	return -1
}

// RegisterFunction adds a bytecode function and returns its id.
func (p *Program) RegisterFunction(f *Function) int64 {
	f.ID = int64(len(p.Functions))
	if f.OwnerClassID == 0 {
		f.OwnerClassID = -1
	}
	p.Functions = append(p.Functions, f)
	return f.ID
}

// RegisterCFunction adds a built-in function implemented by the host and
// returns its id. argNames gives the keyword argument order the VM
// reorders calls into.
func (p *Program) RegisterCFunction(
	name string, cfunc interface{}, argNames []string,
) int64 {
	f := &Function{
		Name:           name,
		InputStackSize: len(argNames),
		ArgNames:       argNames,
		OwnerClassID:   -1,
		IsThreadable:   true,
		CFunc:          cfunc,
	}
	return p.RegisterFunction(f)
}

// AddClass registers a class and returns its id.
func (p *Program) AddClass(name string, baseClassGlobalID int64, isError bool) int64 {
	cls := &Class{
		ID:                int64(len(p.Classes)),
		Name:              name,
		BaseClassGlobalID: baseClassGlobalID,
		IsError:           isError,
	}
	p.Classes = append(p.Classes, cls)
	return cls.ID
}

// AddGlobal registers a global and returns its id.
func (p *Program) AddGlobal(name string, isConst bool, initialConst int64) int64 {
	g := &Global{
		ID:           int64(len(p.Globals)),
		Name:         name,
		IsConst:      isConst,
		InitialConst: initialConst,
	}
	p.Globals = append(p.Globals, g)
	return g.ID
}

// AddConstant appends to the constant table and returns the index.
func (p *Program) AddConstant(c Constant) int64 {
	p.Constants = append(p.Constants, c)
	return int64(len(p.Constants) - 1)
}

// FuncByName finds a function id by name, -1 when absent.
func (p *Program) FuncByName(name string) int64 {
	for _, f := range p.Functions {
		if f.Name == name {
			return f.ID
		}
	}
	return -1
}

// ClassByName finds a class id by name, -1 when absent.
func (p *Program) ClassByName(name string) int64 {
	for _, cls := range p.Classes {
		if cls.Name == name {
			return cls.ID
		}
	}
	return -1
}

// ClassIsSubclassOf walks the base chain to test raise/rescue ancestry.
func (p *Program) ClassIsSubclassOf(classID, ancestorID int64) bool {
	for classID >= 0 && classID < int64(len(p.Classes)) {
		if classID == ancestorID {
			return true
		}
		classID = p.Classes[classID].BaseClassGlobalID
	}
	return false
}

// Validate checks the internal references of a finished program.
func (p *Program) Validate() error {
	for _, f := range p.Functions {
		if f.CFunc == nil && f.Instructions == nil {
			return fmt.Errorf("function %q (id %d) has no body", f.Name, f.ID)
		}
		if f.OwnerClassID >= int64(len(p.Classes)) {
			return fmt.Errorf("function %q owner class %d out of range",
				f.Name, f.OwnerClassID)
		}
	}
	for _, cls := range p.Classes {
		if cls.BaseClassGlobalID >= int64(len(p.Classes)) {
			return fmt.Errorf("class %q base %d out of range",
				cls.Name, cls.BaseClassGlobalID)
		}
	}
	if p.MainFuncID >= int64(len(p.Functions)) {
		return fmt.Errorf("main function id %d out of range", p.MainFuncID)
	}
	return nil
}
