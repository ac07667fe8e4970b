package ast

import "fmt"

// NodeKind differentiates the nodes of the typed syntax tree the core is
// entered with. Lexing, parsing and tree construction are the surface
// detail named out of scope by spec §1 — by the time the core sees a
// Node, it already carries its syntactic shape; NodeKind exists so the
// collector, validator and codegen passes can switch on it.
type NodeKind int

const (
	NInvalid NodeKind = iota
	NProgram
	NUnit
	NUseStatement
	NFunction
	NParameterList
	NTypedParameter
	NGenericParamList
	NGenericParam
	NStructDecl
	NFieldDecl
	NEnumDecl
	NEnumVariantDecl
	NPerkDecl
	NPerkMethodSig
	NPerkImpl
	NExtensionDecl
	NConstantDecl
	NBlock
	NLetStatement
	NAssignStatement
	NIfStatement
	NWhileStatement
	NForeachStatement
	NMatchStatement
	NMatchArm
	NPattern
	NReturnStatement
	NBreakStatement
	NContinueStatement
	NExprStatement
	NDestroyStatement
	NBinaryExpr
	NUnaryExpr
	NCallExpr
	NMethodCallExpr
	NFieldAccessExpr
	NIndexExpr
	NIdentifierExpr
	NIntegerLit
	NFloatLit
	NStringLit
	NBoolLit
	NArrayLit
	NStructLit
	NStructLitField
	NEnumConstructExpr
	NInterpolatedString
	NBorrowExpr
	NTryPropagateExpr
	NCastExpr
	NTypeRefExpr
	NArgumentList
)

var nodeKindNames = [...]string{
	"Invalid", "Program", "Unit", "UseStatement", "Function", "ParameterList",
	"TypedParameter", "GenericParamList", "GenericParam", "StructDecl",
	"FieldDecl", "EnumDecl", "EnumVariantDecl", "PerkDecl", "PerkMethodSig",
	"PerkImpl", "ExtensionDecl", "ConstantDecl", "Block", "LetStatement",
	"AssignStatement", "IfStatement", "WhileStatement", "ForeachStatement",
	"MatchStatement", "MatchArm", "Pattern", "ReturnStatement",
	"BreakStatement", "ContinueStatement", "ExprStatement", "DestroyStatement",
	"BinaryExpr", "UnaryExpr", "CallExpr", "MethodCallExpr", "FieldAccessExpr",
	"IndexExpr", "IdentifierExpr", "IntegerLit", "FloatLit", "StringLit",
	"BoolLit", "ArrayLit", "StructLit", "StructLitField", "EnumConstructExpr",
	"InterpolatedString", "BorrowExpr", "TryPropagateExpr", "CastExpr",
	"TypeRefExpr", "ArgumentList",
}

func (k NodeKind) String() string {
	if int(k) < 0 || int(k) >= len(nodeKindNames) {
		return fmt.Sprintf("NodeKind(%d)", k)
	}
	return nodeKindNames[k]
}

// ValueClass records whether an expression node, after pass C, denotes a
// location that can be assigned to (lvalue) or a transient value (rvalue).
// Spec §3 invariants require this classification on every expression.
type ValueClass int

const (
	ClassUnclassified ValueClass = iota
	ClassRValue
	ClassLValue
)

// Node is one node of the typed syntax tree. Operator/identifier/literal
// payloads live in Data; structural children live in Children. Pass C
// annotates ResolvedType and Class directly on the node so that later
// passes never need to re-derive a type from a rendered name (the
// anti-pattern spec §9 calls out against string-based type
// reconstruction).
type Node struct {
	Kind     NodeKind
	Line     int
	Col      int
	Data     interface{} // operator string, identifier name, literal value, etc.
	Children []*Node

	ResolvedType TypeRef
	Class        ValueClass

	// GenericArgs carries semantic type arguments discovered by the
	// validator directly from e.g. `List<Point>.new()` call sites, so
	// the monomorphization engine and codegen never parse a mangled
	// display name back into types.
	GenericArgs []TypeRef
}

// String renders a single-line debug form of n, ignoring children.
func (n *Node) String() string {
	if n == nil {
		return "<nil Node>"
	}
	if n.Data != nil {
		return fmt.Sprintf("%s(%v)", n.Kind, n.Data)
	}
	return n.Kind.String()
}

// Walk calls visit on n and recursively on every descendant, pre-order.
func (n *Node) Walk(visit func(*Node)) {
	if n == nil {
		return
	}
	visit(n)
	for _, c := range n.Children {
		c.Walk(visit)
	}
}

// Ident returns n.Data as a string, panicking if n does not carry
// identifier-shaped data. Used at the many call sites that already know
// (by NodeKind) that the data must be a name.
func (n *Node) Ident() string {
	s, ok := n.Data.(string)
	if !ok {
		panic(fmt.Sprintf("ast: node %s does not carry identifier data", n.Kind))
	}
	return s
}
