package expressions

import "sync"

// Program is a compiled expression. It is immutable and safe for concurrent use.
type Program struct {
	source string
	root   node
}

// Source returns the expression text the program was compiled from.
func (p *Program) Source() string { return p.source }

// Eval runs the program against a scope.
func (p *Program) Eval(scope *Scope) (Value, error) {
	return p.root.eval(p.source, scope)
}

// Compile parses an expression into a Program without caching it.
func Compile(expression string) (*Program, error) {
	root, err := parse(expression)
	if err != nil {
		return nil, err
	}
	return &Program{source: expression, root: root}, nil
}

// Evaluator evaluates template expressions.
// Thread-safe: compiled programs are cached by source text and reused across goroutines.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*Program
	limit int
}

// DefaultProgramLimit bounds the number of programs an Evaluator keeps.
const DefaultProgramLimit = 4096

// NewEvaluator creates an Evaluator that caches up to limit compiled programs.
// A limit <= 0 uses DefaultProgramLimit.
func NewEvaluator(limit int) *Evaluator {
	if limit <= 0 {
		limit = DefaultProgramLimit
	}
	return &Evaluator{
		cache: make(map[string]*Program),
		limit: limit,
	}
}

// Evaluate compiles (or retrieves from cache) an expression and evaluates it
// against the scope. Failures are returned as *ExpressionError.
func (e *Evaluator) Evaluate(expression string, scope *Scope) (Value, error) {
	prg, err := e.getOrCompile(expression)
	if err != nil {
		return Null(), err
	}
	return prg.Eval(scope)
}

// Truthy evaluates an expression and reports its truthiness.
func (e *Evaluator) Truthy(expression string, scope *Scope) (bool, error) {
	v, err := e.Evaluate(expression, scope)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

// Len returns the number of cached programs.
func (e *Evaluator) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// Clear drops every cached program.
func (e *Evaluator) Clear() {
	e.mu.Lock()
	e.cache = make(map[string]*Program)
	e.mu.Unlock()
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
// Compile errors are not cached.
func (e *Evaluator) getOrCompile(expression string) (*Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	prg, err := Compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if existing, ok := e.cache[expression]; ok {
		return existing, nil
	}
	if len(e.cache) >= e.limit {
		e.cache = make(map[string]*Program)
	}
	e.cache[expression] = prg
	return prg, nil
}

var defaultEvaluator = NewEvaluator(DefaultProgramLimit)

// Evaluate evaluates an expression with the package-level evaluator.
func Evaluate(expression string, scope *Scope) (Value, error) {
	return defaultEvaluator.Evaluate(expression, scope)
}

// Truthy evaluates an expression with the package-level evaluator and reports its truthiness.
func Truthy(expression string, scope *Scope) (bool, error) {
	return defaultEvaluator.Truthy(expression, scope)
}
