package diag

import "fmt"

// Span locates a diagnostic in source text. Rendering a source snippet
// from a Span is the diagnostic printer's job (out of scope, spec §1);
// the Reporter only carries the coordinates.
type Span struct {
	Unit string
	Line int
	Col  int
}

// Diagnostic is one accumulated error or warning.
type Diagnostic struct {
	Code     string
	Severity Severity
	Category Category
	Text     string
	Span     *Span
}

// Error implements the error interface so a Diagnostic can flow through
// ordinary Go error-handling paths (e.g. wrapped by a stage's returned
// error) in addition to being accumulated by a Reporter.
func (d *Diagnostic) Error() string {
	if d.Span != nil {
		return fmt.Sprintf("%s: %s:%d:%d: %s", d.Code, d.Span.Unit, d.Span.Line, d.Span.Col, d.Text)
	}
	return fmt.Sprintf("%s: %s", d.Code, d.Text)
}

// Reporter accumulates diagnostics for the duration of one compilation.
// It is owned by the pipeline driver and passed by reference into
// whichever pass is currently running (spec §5, "Shared resources").
type Reporter struct {
	reg   *Registry
	diags []*Diagnostic
}

// NewReporter returns a Reporter bound to reg.
func NewReporter(reg *Registry) *Reporter {
	return &Reporter{reg: reg}
}

// Emit records a diagnostic for code, formatting its template against
// fields and attaching span (nil if none). Emit panics if code is not a
// registered diagnostic -- that itself would be a CE0xxx-class bug in the
// caller, not a user-facing condition.
func (r *Reporter) Emit(code string, span *Span, fields map[string]any) {
	m := r.reg.MustLookup(code)
	r.diags = append(r.diags, &Diagnostic{
		Code:     m.Code,
		Severity: m.Severity,
		Category: m.Category,
		Text:     m.Format(fields),
		Span:     span,
	})
}

// Diagnostics returns every diagnostic accumulated so far, in emission
// order.
func (r *Reporter) Diagnostics() []*Diagnostic {
	return r.diags
}

// HasErrors reports whether any accumulated diagnostic is an error
// (as opposed to a warning).
func (r *Reporter) HasErrors() bool {
	for _, d := range r.diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// WarningCount returns the number of accumulated warnings, used by the
// driver to compute the exit-code-1 ("success with warnings") contract
// of spec §6/§8.
func (r *Reporter) WarningCount() int {
	n := 0
	for _, d := range r.diags {
		if d.Severity == SeverityWarning {
			n++
		}
	}
	return n
}

// ExitCode implements spec §6's exit-code contract: 0 clean success, 1
// success with warnings only, 2 failure.
func (r *Reporter) ExitCode() int {
	if r.HasErrors() {
		return 2
	}
	if r.WarningCount() > 0 {
		return 1
	}
	return 0
}

// InternalError is panicked for CE0xxx-class bugs (spec §7: "Internal-error
// codes are raised as exceptions that bubble up to the driver"). The
// pipeline driver recovers it at the stage boundary and converts it into a
// failed-compilation result plus one final diagnostic.
type InternalError struct {
	Code   string
	Fields map[string]any
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Fields)
}

// Panic raises an InternalError for code/fields. Callers use this instead
// of a bare panic so the recover site at the driver can distinguish a
// compiler bug from an unrelated Go runtime panic.
func Panic(code string, fields map[string]any) {
	panic(&InternalError{Code: code, Fields: fields})
}
