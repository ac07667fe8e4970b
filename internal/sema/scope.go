package sema

import "github.com/sushi-lang/sushic/internal/ast"

// OwnState is the borrow/ownership state of one binding, per spec §4.3.4's
// state machine: owned -> {borrowed-shared, borrowed-exclusive} ->
// {moved, destroyed}.
type OwnState int

const (
	StateOwned OwnState = iota
	StateBorrowedShared
	StateBorrowedExclusive
	StateMoved
	StateDestroyed
)

// Binding is one local variable or parameter tracked through a function
// body: its resolved type plus its current ownership state and the number
// of outstanding shared borrows (an exclusive borrow only ever has one).
type Binding struct {
	Name     string
	Type     ast.TypeRef
	Mutable  bool
	State    OwnState
	Shared   int // outstanding &peek borrows.
	IsParam  bool
	ParamRef ast.BorrowMode
}

// Scope is a stack of lexical blocks, mirroring the teacher's util.Stack
// identifier-lookup pattern generalized to a slice since sema runs
// single-threaded per function (monomorphization serializes instantiation
// order across the whole program, spec §4.3.2).
type Scope struct {
	frames []map[string]*Binding
}

// NewScope returns a Scope with one open frame.
func NewScope() *Scope {
	return &Scope{frames: []map[string]*Binding{{}}}
}

// Push opens a new nested block frame.
func (s *Scope) Push() {
	s.frames = append(s.frames, map[string]*Binding{})
}

// Pop closes the innermost frame, returning the bindings it held (in
// undefined order) so the caller can schedule RAII destruction for them.
func (s *Scope) Pop() []*Binding {
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	out := make([]*Binding, 0, len(top))
	for _, b := range top {
		out = append(out, b)
	}
	return out
}

// Declare adds a new binding to the innermost frame. The caller is
// responsible for rejecting redeclaration (CE1007) before calling this.
func (s *Scope) Declare(b *Binding) {
	s.frames[len(s.frames)-1][b.Name] = b
}

// Lookup searches frames innermost-first.
func (s *Scope) Lookup(name string) (*Binding, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if b, ok := s.frames[i][name]; ok {
			return b, true
		}
	}
	return nil, false
}

// DeclaredInCurrent reports whether name is already bound in the innermost
// frame (same-scope redeclaration, CE1007 -- shadowing an outer frame is
// legal and only warned about via CW2202).
func (s *Scope) DeclaredInCurrent(name string) bool {
	_, ok := s.frames[len(s.frames)-1][name]
	return ok
}
