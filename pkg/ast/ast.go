// Package ast defines the expression tree built by the parser, the scope
// tables attached to it, and the per-AST node pool that owns every node.
package ast

import (
	"github.com/ternarybob/canter/pkg/lexer"
	"github.com/ternarybob/canter/pkg/message"
)

// ExpressionType tags which variant of Expression is populated.
type ExpressionType int

const (
	ExprInvalid ExpressionType = iota
	ExprLiteral
	ExprIdentifierRef
	ExprBinaryOp
	ExprUnaryOp
	ExprCall
	ExprList
	ExprSet
	ExprMap
	ExprVector
	ExprInlineFuncDef
	ExprVarDefStmt
	ExprFuncDefStmt
	ExprClassDefStmt
	ExprAssignStmt
	ExprCallStmt
	ExprIfStmt
	ExprWhileStmt
	ExprForStmt
	ExprDoStmt
	ExprWithStmt
	ExprImportStmt
	ExprReturnStmt
	ExprBreakStmt
	ExprContinueStmt
)

// String returns the stable type name used in AST JSON dumps.
func (t ExpressionType) String() string {
	names := [...]string{
		ExprInvalid:       "invalid",
		ExprLiteral:       "literal",
		ExprIdentifierRef: "identifierref",
		ExprBinaryOp:      "binaryop",
		ExprUnaryOp:       "unaryop",
		ExprCall:          "call",
		ExprList:          "list",
		ExprSet:           "set",
		ExprMap:           "map",
		ExprVector:        "vector",
		ExprInlineFuncDef: "inlinefuncdef",
		ExprVarDefStmt:    "vardef",
		ExprFuncDefStmt:   "funcdef",
		ExprClassDefStmt:  "classdef",
		ExprAssignStmt:    "assign",
		ExprCallStmt:      "callstmt",
		ExprIfStmt:        "if",
		ExprWhileStmt:     "while",
		ExprForStmt:       "for",
		ExprDoStmt:        "do",
		ExprWithStmt:      "with",
		ExprImportStmt:    "import",
		ExprReturnStmt:    "return",
		ExprBreakStmt:     "break",
		ExprContinueStmt:  "continue",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "invalid"
}

// Storage is the per-node slot later stages use for temporary register
// assignment during bytecode emission.
type Storage struct {
	EvalTempID int
}

// Expression is one AST node. Type selects which payload pointer is set.
// Parent links are filled after the whole tree is built; nodes belong to
// their AST's pool and are never freed individually, only marked destroyed
// when a partially built subtree is dropped on a parse failure.
type Expression struct {
	Type       ExpressionType
	Line       int64
	Column     int64
	TokenIndex int
	Parent     *Expression
	Destroyed  bool
	Storage    Storage

	Literal       *LiteralInfo
	IdentifierRef *IdentifierRefInfo
	Op            *OpInfo
	Call          *CallInfo
	Container     *ContainerInfo
	VarDef        *VarDefInfo
	FuncDef       *FuncDefInfo
	ClassDef      *ClassDefInfo
	Assign        *AssignInfo
	CallStmt      *CallStmtInfo
	IfStmt        *IfStmtInfo
	WhileStmt     *WhileStmtInfo
	ForStmt       *ForStmtInfo
	DoStmt        *DoStmtInfo
	WithStmt      *WithStmtInfo
	ImportStmt    *ImportStmtInfo
	ReturnStmt    *ReturnStmtInfo
}

// LiteralInfo carries a constant's token type and value.
type LiteralInfo struct {
	TokenType lexer.TokenType
	Int       int64
	Float     float64
	Str       string
	Bytes     []byte
}

// ResolveKind says what an identifier reference resolved to.
type ResolveKind int

const (
	ResolveNone ResolveKind = iota
	ResolveLocalDef
	ResolveGlobal
	ResolveImportModule
)

// ResolveInfo is the resolver's verdict for one identifier reference.
type ResolveInfo struct {
	Kind     ResolveKind
	Def      *ScopeDef
	GlobalID int64
	Module   string
}

// IdentifierRefInfo is a reference to a name; Resolved is filled by the
// scope resolver.
type IdentifierRefInfo struct {
	Value    string
	Resolved *ResolveInfo
}

// OpInfo is a unary or binary operator application. Unary operators only
// set Value1.
type OpInfo struct {
	Op             lexer.Op
	Value1, Value2 *Expression
	OpTokenOffset  int
	TotalTokenLen  int
}

// FuncArg is one call argument or one declared parameter. For calls an
// empty Name means positional; for definitions Value is the default.
type FuncArg struct {
	Name  string
	Value *Expression
}

// CallInfo is a call expression: the callee plus its argument list.
type CallInfo struct {
	Value *Expression
	Args  []FuncArg
}

// ContainerInfo backs list, set, map and vector constructors. Maps use
// Keys/Values pairwise; the others use Entries. Vectors additionally track
// whether their indices were written as letters (x, y, z, w).
type ContainerInfo struct {
	Entries     []*Expression
	Keys        []*Expression
	Values      []*Expression
	UsesLetters bool
}

// VarDefInfo is a var/const statement.
type VarDefInfo struct {
	Identifier   string
	Value        *Expression
	IsConst      bool
	IsDeprecated bool
}

// FuncDefInfo backs func statements and inline function expressions.
// Inline functions have no name and a single implicit return statement.
type FuncDefInfo struct {
	Name         string
	Args         []FuncArg
	Stmts        []*Expression
	Scope        *Scope
	IsThreadable bool
	IsDeprecated bool
	IsGetter     bool
	IsSetter     bool
}

// ClassDefInfo is a class statement. VarDefs and FuncDefs are split out of
// the parsed body during finalization.
type ClassDefInfo struct {
	Name         string
	BaseClassRef *Expression
	VarDefs      []*Expression
	FuncDefs     []*Expression
	Scope        *Scope
	IsDeprecated bool
	IsError      bool
}

// AssignInfo is an assignment statement. AssignOp keeps the compound
// operator (e.g. +=) when one was used.
type AssignInfo struct {
	LValue   *Expression
	RValue   *Expression
	AssignOp lexer.Op
}

// CallStmtInfo wraps a call expression used as a statement.
type CallStmtInfo struct {
	Call *Expression
}

// IfClause is one if/elseif/else arm; the else arm has a nil condition.
type IfClause struct {
	Condition *Expression
	Stmts     []*Expression
	Scope     *Scope
}

// IfStmtInfo is the clause chain of an if statement.
type IfStmtInfo struct {
	Clauses []*IfClause
}

// WhileStmtInfo is a while loop.
type WhileStmtInfo struct {
	Condition *Expression
	Stmts     []*Expression
	Scope     *Scope
}

// ForStmtInfo is a for-in loop; the iterator name is declared in the loop
// scope.
type ForStmtInfo struct {
	IteratorIdentifier string
	IteratedExpr       *Expression
	Stmts              []*Expression
	Scope              *Scope
}

// DoStmtInfo is a do/rescue/finally statement. At least one of HasRescue
// and HasFinally is set; the three blocks own distinct scopes.
type DoStmtInfo struct {
	Stmts []*Expression
	Scope *Scope

	HasRescue   bool
	RescueTypes []*Expression
	ErrorName   string
	RescueStmts []*Expression
	RescueScope *Scope

	HasFinally   bool
	FinallyStmts []*Expression
	FinallyScope *Scope
}

// WithItem binds one acquired value for the duration of a with block.
type WithItem struct {
	Expr *Expression
	Name string
}

// WithStmtInfo is a with statement; every item releases on all exit paths.
type WithStmtInfo struct {
	Items []WithItem
	Stmts []*Expression
	Scope *Scope
}

// ImportStmtInfo is an import statement. The bound name is ImportAs when
// present, otherwise Elements[0].
type ImportStmtInfo struct {
	Elements    []string
	LibraryName string
	ImportAs    string
}

// Path returns the dotted module path.
func (im *ImportStmtInfo) Path() string {
	p := ""
	for i, e := range im.Elements {
		if i > 0 {
			p += "."
		}
		p += e
	}
	return p
}

// BoundName returns the name the import introduces into scope.
func (im *ImportStmtInfo) BoundName() string {
	if im.ImportAs != "" {
		return im.ImportAs
	}
	if len(im.Elements) > 0 {
		return im.Elements[0]
	}
	return ""
}

// ReturnStmtInfo is a return statement; Value may be nil.
type ReturnStmtInfo struct {
	Value *Expression
}

// AST is the parse product for one source file: the top-level statements,
// the global scope, the diagnostics, and the pool owning every node.
type AST struct {
	FileURI     string
	ModulePath  string
	LibraryName string
	Stmts       []*Expression
	Scope       *Scope
	Result      *message.Result
	Pool        *Pool
}

// MarkDestroyed tags a node (and transitively its children, through the
// visitor) as dead so later stages skip it. Nothing is freed here;
// the pool drops everything at once when the AST goes away.
func MarkDestroyed(expr *Expression) {
	if expr == nil || expr.Destroyed {
		return
	}
	VisitExpression(expr, nil, func(e, parent *Expression) bool {
		e.Destroyed = true
		return true
	}, nil)
}

// FillParents populates the Parent back-pointers over a complete tree.
func FillParents(root *Expression) {
	VisitExpression(root, nil, func(e, parent *Expression) bool {
		e.Parent = parent
		return true
	}, nil)
}

// CanBeLValue reports whether e may appear left of an assignment operator:
// an identifier, or a chain of attribute/index/call operators over another
// lvalue.
func CanBeLValue(e *Expression) bool {
	switch e.Type {
	case ExprIdentifierRef:
		return true
	case ExprBinaryOp:
		if e.Op.Op != lexer.OpAttributeByIdentifier &&
			e.Op.Op != lexer.OpCall &&
			e.Op.Op != lexer.OpIndexByExpr {
			return false
		}
		return CanBeLValue(e.Op.Value1)
	case ExprCall:
		return CanBeLValue(e.Call.Value)
	}
	return false
}

// CanBeClassRef reports whether e is a valid class reference: an
// identifier or a dotted chain of identifiers.
func CanBeClassRef(e *Expression) bool {
	switch e.Type {
	case ExprIdentifierRef:
		return true
	case ExprBinaryOp:
		if e.Op.Op != lexer.OpAttributeByIdentifier {
			return false
		}
		if !CanBeClassRef(e.Op.Value1) {
			return false
		}
		return e.Op.Value2 != nil && e.Op.Value2.Type == ExprIdentifierRef
	}
	return false
}
