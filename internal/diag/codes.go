package diag

// catalog is the frozen set of every diagnostic code this compiler can
// emit. Codes are never renumbered once released; new diagnostics take
// the next free number in their family. Families follow spec §7:
//
//	CE0xxx  internal compiler errors (bugs)
//	CE1xxx  scope/name errors
//	CE2xxx  type errors (CE24xx borrow sub-family, CE25xx result-type sub-family)
//	CE3xxx  unit/linking/library errors
//	CE4xxx  perk errors
//	CWxxxx  warnings
//	RExxxx  runtime errors (emitted by generated code)
var catalog = []Message{
	// --- CE0xxx: internal compiler errors ---
	{Code: "CE0001", Severity: SeverityError, Category: CategoryInternal,
		Template: "internal compiler error: {detail}"},
	{Code: "CE0002", Severity: SeverityError, Category: CategoryInternal,
		Template: "codegen reached an unexhausted match on {node}; exhaustiveness should have been rejected in validation"},
	{Code: "CE0003", Severity: SeverityError, Category: CategoryInternal,
		Template: "unreachable AST node kind {kind} reached {pass}"},

	// --- CE1xxx: scope/name errors ---
	{Code: "CE1001", Severity: SeverityError, Category: CategoryScope,
		Template: "name unknown: {name}"},
	{Code: "CE1002", Severity: SeverityError, Category: CategoryScope,
		Template: "duplicate declaration of struct {name} in unit {unit}"},
	{Code: "CE1003", Severity: SeverityError, Category: CategoryScope,
		Template: "duplicate declaration of enum {name} in unit {unit}"},
	{Code: "CE1004", Severity: SeverityError, Category: CategoryScope,
		Template: "duplicate declaration of perk {name} in unit {unit}"},
	{Code: "CE1005", Severity: SeverityError, Category: CategoryScope,
		Template: "duplicate function name {name}"},
	{Code: "CE1006", Severity: SeverityError, Category: CategoryScope,
		Template: "duplicate perk implementation of {perk} for {target}"},
	{Code: "CE1007", Severity: SeverityError, Category: CategoryScope,
		Template: "duplicate variable declaration {name} in the same scope"},
	{Code: "CE1008", Severity: SeverityError, Category: CategoryScope,
		Template: "undeclared variable {name}"},
	{Code: "CE1009", Severity: SeverityError, Category: CategoryScope,
		Template: "named argument {name} unknown on constructor for {target}"},
	{Code: "CE1010", Severity: SeverityError, Category: CategoryScope,
		Template: "named argument {name} supplied more than once"},
	{Code: "CE1011", Severity: SeverityError, Category: CategoryScope,
		Template: "named struct constructor for {target} missing required field {field}"},

	// --- CE2xxx: type errors ---
	{Code: "CE2001", Severity: SeverityError, Category: CategoryType,
		Template: "mixed numeric operand types {lhs} and {rhs} without an explicit cast"},
	{Code: "CE2002", Severity: SeverityError, Category: CategoryType,
		Template: "strings do not support '+' concatenation; use string interpolation instead"},
	{Code: "CE2003", Severity: SeverityError, Category: CategoryType,
		Template: "condition must be boolean, got {got}"},
	{Code: "CE2004", Severity: SeverityError, Category: CategoryType,
		Template: "foreach requires an iterator value, got {got}"},
	{Code: "CE2005", Severity: SeverityError, Category: CategoryType,
		Template: "function {name} expects {expected} arguments, got {got}"},
	{Code: "CE2006", Severity: SeverityError, Category: CategoryType,
		Template: "argument {index} to {name} has type {got}, expected {expected}"},
	{Code: "CE2007", Severity: SeverityError, Category: CategoryType,
		Template: "cannot infer type of {name} without an initializer or annotation"},
	{Code: "CE2008", Severity: SeverityError, Category: CategoryType,
		Template: "declared type {declared} incompatible with initializer type {got}"},
	{Code: "CE2009", Severity: SeverityError, Category: CategoryType,
		Template: "operator {op} not defined for operand type {got}"},
	{Code: "CE2010", Severity: SeverityError, Category: CategoryType,
		Template: "duplicate match arm for variant {variant}"},
	{Code: "CE2011", Severity: SeverityError, Category: CategoryType,
		Template: "unreachable match arm for variant {variant}"},
	{Code: "CE2012", Severity: SeverityError, Category: CategoryType,
		Template: "return type mismatch: function returns {expected}, got {got}"},
	{Code: "CE2013", Severity: SeverityError, Category: CategoryType,
		Template: "division by zero in constant expression {name}"},
	{Code: "CE2014", Severity: SeverityError, Category: CategoryType,
		Template: "constant {name} depends on itself: {cycle}"},
	{Code: "CE2015", Severity: SeverityError, Category: CategoryType,
		Template: "not a constant expression"},

	// --- CE24xx: borrow-check sub-family ---
	{Code: "CE2401", Severity: SeverityError, Category: CategoryBorrow,
		Template: "cannot {action} {name} while it has an outstanding borrow"},
	{Code: "CE2402", Severity: SeverityError, Category: CategoryBorrow,
		Template: "cannot borrow {name} exclusively while a shared borrow is outstanding"},
	{Code: "CE2403", Severity: SeverityError, Category: CategoryBorrow,
		Template: "cannot borrow {name} exclusively while an exclusive borrow is outstanding"},
	{Code: "CE2404", Severity: SeverityError, Category: CategoryBorrow,
		Template: "use of moved value {name}"},
	{Code: "CE2405", Severity: SeverityError, Category: CategoryBorrow,
		Template: "use of destroyed value {name}"},
	{Code: "CE2406", Severity: SeverityError, Category: CategoryBorrow,
		Template: "cannot borrow a temporary expression; borrows require a stable address"},
	{Code: "CE2407", Severity: SeverityError, Category: CategoryBorrow,
		Template: "nested &poke re-borrow of {name} is only legal against a &poke parameter"},

	// --- CE25xx: result-type sub-family ---
	{Code: "CE2501", Severity: SeverityError, Category: CategoryResult,
		Template: "return value must be wrapped in Ok(...) because {func} returns a result type"},
	{Code: "CE2502", Severity: SeverityError, Category: CategoryResult,
		Template: "return value must be wrapped in Some(...)/None() because {func} returns an optional type"},
	{Code: "CE2503", Severity: SeverityError, Category: CategoryResult,
		Template: "'??' receiver must be a result-like or optional enum, got {got}"},
	{Code: "CE2504", Severity: SeverityError, Category: CategoryResult,
		Template: "'??' requires the enclosing function to return a compatible result-like enum, got {got}"},

	// --- CE3xxx: unit/linking/library errors ---
	{Code: "CE3001", Severity: SeverityError, Category: CategoryUnit,
		Template: "could not read source unit {path}: {reason}"},
	{Code: "CE3002", Severity: SeverityError, Category: CategoryUnit,
		Template: "import cycle detected: {cycle}"},
	{Code: "CE3003", Severity: SeverityError, Category: CategoryUnit,
		Template: "duplicate public symbol {name} exported by both {unitA} and {unitB}"},
	{Code: "CE3004", Severity: SeverityError, Category: CategoryUnit,
		Template: "unknown stdlib module {name}"},
	{Code: "CE3502", Severity: SeverityError, Category: CategoryUnit,
		Template: "library {lib} not found in search paths: {paths}"},
	{Code: "CE3503", Severity: SeverityError, Category: CategoryUnit,
		Template: "malformed library manifest {path}: {reason}"},
	{Code: "CE3508", Severity: SeverityError, Category: CategoryUnit,
		Template: "bad magic bytes in library artifact {path}"},
	{Code: "CE3509", Severity: SeverityError, Category: CategoryUnit,
		Template: "unsupported library artifact version {version} in {path} (supported: {supported})"},
	{Code: "CE3510", Severity: SeverityError, Category: CategoryUnit,
		Template: "truncated library artifact {path}: expected {expected} bytes, got {actual}"},
	{Code: "CE3511", Severity: SeverityError, Category: CategoryUnit,
		Template: "truncated bitcode section in library artifact {path}: expected {expected} bytes, got {actual}"},
	{Code: "CE3512", Severity: SeverityError, Category: CategoryUnit,
		Template: "malformed MessagePack metadata in {path}: {reason}"},
	{Code: "CE3513", Severity: SeverityError, Category: CategoryUnit,
		Template: "library artifact {path} exceeds maximum size: {size} > {max_size}"},
	{Code: "CE3520", Severity: SeverityError, Category: CategoryUnit,
		Template: "link error: {reason}"},

	// --- CE4xxx: perk errors ---
	{Code: "CE4001", Severity: SeverityError, Category: CategoryPerk,
		Template: "type {typ} does not satisfy perk {perk}: missing method {method}"},
	{Code: "CE4002", Severity: SeverityError, Category: CategoryPerk,
		Template: "perk implementation for {typ} is missing required method {method} of perk {perk}"},

	// --- CWxxxx: warnings ---
	{Code: "CW1001", Severity: SeverityWarning, Category: CategoryScope,
		Template: "duplicate import of {path} in unit {unit}"},
	{Code: "CW2201", Severity: SeverityWarning, Category: CategoryScope,
		Template: "unused variable {name}"},
	{Code: "CW2202", Severity: SeverityWarning, Category: CategoryScope,
		Template: "variable {name} shadows an outer declaration"},
	{Code: "CW2203", Severity: SeverityWarning, Category: CategoryScope,
		Template: "variable {name} is only ever borrowed, never used by value"},
	{Code: "CW2407", Severity: SeverityWarning, Category: CategoryBorrow,
		Template: "re-borrowing &poke parameter {name} as a nested &poke"},
	{Code: "CW2511", Severity: SeverityWarning, Category: CategoryResult,
		Template: "'??' used inside a function that does not return a result-like type; this will be rejected"},
	{Code: "CW3505", Severity: SeverityWarning, Category: CategoryUnit,
		Template: "library {lib} was built for platform {lib_platform}, running on {current_platform}"},

	// --- RExxxx: runtime errors (emitted by generated code) ---
	{Code: "RE2010", Severity: SeverityError, Category: CategoryRuntime,
		Template: "division by zero"},
	{Code: "RE2020", Severity: SeverityError, Category: CategoryRuntime,
		Template: "array index out of bounds"},
	{Code: "RE2030", Severity: SeverityError, Category: CategoryRuntime,
		Template: "allocation failure"},
}
