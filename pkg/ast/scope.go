package ast

// Scope is one scope table. Scopes form a tree through Parent; the global
// scope of a file is flagged. ClassAndFuncNestingLevel only increments on
// class and function boundaries so block scopes inside the same function
// compare equal for shadowing diagnostics.
type Scope struct {
	Parent                   *Scope
	IsGlobal                 bool
	ClassAndFuncNestingLevel int

	defs  map[string]*ScopeDef
	order []string
}

// ScopeDef records how one name was introduced into a scope. Stacked
// imports append their extra declarations to AdditionalDecl instead of
// creating a second entry.
type ScopeDef struct {
	Identifier      string
	DeclarationExpr *Expression
	AdditionalDecl  []*Expression
	Scope           *Scope
	EverUsed        bool
}

// NewScope returns a child scope of parent. A nil parent creates a root.
func NewScope(parent *Scope) *Scope {
	sc := &Scope{Parent: parent, defs: map[string]*ScopeDef{}}
	if parent != nil {
		sc.ClassAndFuncNestingLevel = parent.ClassAndFuncNestingLevel
	}
	return sc
}

// AddItem introduces a new name. It returns the created definition, or nil
// when the name already exists in this scope.
func (sc *Scope) AddItem(identifier string, declExpr *Expression) *ScopeDef {
	if sc.defs == nil {
		sc.defs = map[string]*ScopeDef{}
	}
	if _, exists := sc.defs[identifier]; exists {
		return nil
	}
	def := &ScopeDef{
		Identifier:      identifier,
		DeclarationExpr: declExpr,
		Scope:           sc,
	}
	sc.defs[identifier] = def
	sc.order = append(sc.order, identifier)
	return def
}

// QueryItem looks a name up in this scope, optionally walking outward
// through the parents.
func (sc *Scope) QueryItem(identifier string, searchParents bool) *ScopeDef {
	s := sc
	for s != nil {
		if def, ok := s.defs[identifier]; ok {
			return def
		}
		if !searchParents {
			return nil
		}
		s = s.Parent
	}
	return nil
}

// Names returns the declared names in declaration order.
func (sc *Scope) Names() []string {
	out := make([]string, len(sc.order))
	copy(out, sc.order)
	return out
}

// IdentifierIsReserved reports whether the name may never be declared.
func IdentifierIsReserved(identifier string) bool {
	return identifier == "self" || identifier == "base"
}
