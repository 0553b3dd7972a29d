package blade

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/rendis/breeze/internal/expressions"
	"github.com/rendis/breeze/internal/logging"
	"github.com/rendis/breeze/pkg/schema"
)

// NativeExecutor runs @native blocks. It is only consulted when installed
// on the Renderer.
type NativeExecutor interface {
	Execute(ctx context.Context, dialect, body string, data map[string]any) (string, error)
}

// Renderer walks syntax trees and produces output text.
// Thread-safe: a Renderer holds no per-render state.
type Renderer struct {
	eval    *expressions.Evaluator
	filters *Filters
	native  NativeExecutor
	logger  *slog.Logger
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithEvaluator sets the expression evaluator (and its program cache).
func WithEvaluator(e *expressions.Evaluator) RendererOption {
	return func(r *Renderer) { r.eval = e }
}

// WithFilters sets the filter registry.
func WithFilters(f *Filters) RendererOption {
	return func(r *Renderer) { r.filters = f }
}

// WithNative installs the executor for @native blocks. Without one, native
// blocks render a "disabled" diagnostic.
func WithNative(n NativeExecutor) RendererOption {
	return func(r *Renderer) { r.native = n }
}

// WithLogger sets the logger used for evaluation failures.
func WithLogger(l *slog.Logger) RendererOption {
	return func(r *Renderer) { r.logger = l }
}

// NewRenderer creates a Renderer.
func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{}
	for _, opt := range opts {
		opt(r)
	}
	if r.eval == nil {
		r.eval = expressions.NewEvaluator(0)
	}
	if r.filters == nil {
		r.filters = NewFilters()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Evaluator returns the renderer's expression evaluator.
func (r *Renderer) Evaluator() *expressions.Evaluator { return r.eval }

// Filters returns the renderer's filter registry.
func (r *Renderer) Filters() *Filters { return r.filters }

// Render evaluates the tree against scope. It never fails: an evaluation
// error replaces only the failing node with an inline diagnostic.
func (r *Renderer) Render(ctx context.Context, root Node, scope *expressions.Scope) string {
	if scope == nil {
		scope = expressions.NewScope(expressions.Null())
	}
	var sb strings.Builder
	r.renderNode(ctx, &sb, root, scope)
	return sb.String()
}

// RenderMap is Render with a root context built from decoded JSON-like data.
func (r *Renderer) RenderMap(ctx context.Context, root Node, data map[string]any) string {
	return r.Render(ctx, root, expressions.NewScopeFromMap(data))
}

func (r *Renderer) renderNodes(ctx context.Context, sb *strings.Builder, nodes []Node, scope *expressions.Scope) {
	for _, n := range nodes {
		r.renderNode(ctx, sb, n, scope)
	}
}

func (r *Renderer) renderNode(ctx context.Context, sb *strings.Builder, n Node, scope *expressions.Scope) {
	switch node := n.(type) {
	case *Block:
		r.renderNodes(ctx, sb, node.Children, scope)

	case *Text:
		sb.WriteString(node.Literal)

	case *Interpolation:
		v, err := r.eval.Evaluate(node.Expr, scope)
		if err != nil {
			sb.WriteString(r.diagnose(ctx, node.Expr, err))
			return
		}
		sb.WriteString(r.filters.Apply(v.String(), node.Filters, scope, r.eval))

	case *Conditional:
		ok, err := r.eval.Truthy(node.Expr, scope)
		if err != nil {
			sb.WriteString(r.diagnose(ctx, node.Expr, err))
			return
		}
		if ok != node.Negate {
			r.renderNodes(ctx, sb, node.Children, scope)
		}

	case *Loop:
		v, err := r.eval.Evaluate(node.Collection, scope)
		if err != nil {
			sb.WriteString(r.diagnose(ctx, node.Collection, err))
			return
		}
		for _, item := range v.Items() {
			r.renderNodes(ctx, sb, node.Children, scope.With(node.Item, item))
		}

	case *Native:
		sb.WriteString(r.renderNative(ctx, node, scope))
	}
}

func (r *Renderer) renderNative(ctx context.Context, node *Native, scope *expressions.Scope) string {
	if r.native == nil {
		return Diagnostic("native execution disabled")
	}
	out, err := r.native.Execute(ctx, node.Dialect, node.Body, scope.Data())
	if err != nil {
		r.logger.WarnContext(ctx, "native block failed",
			slog.String("dialect", node.Dialect),
			slog.String("error", err.Error()),
		)
		return Diagnostic(nativeMessage(err))
	}
	return out
}

// diagnose logs an evaluation failure and returns its inline diagnostic.
func (r *Renderer) diagnose(ctx context.Context, expr string, err error) string {
	wrapped := schema.NewErrorf(schema.ErrCodeEvaluation, "evaluate %q: %s", expr, err.Error()).
		WithTemplate(logging.Template(ctx)).
		WithCause(err)

	var exprErr *expressions.ExpressionError
	if errors.As(err, &exprErr) {
		wrapped = wrapped.WithDetails(map[string]any{
			"kind":      string(exprErr.Kind),
			"offset":    exprErr.Offset,
			"substring": exprErr.Substring,
		})
	}
	r.logger.DebugContext(ctx, "expression evaluation failed", slog.String("error", wrapped.Error()))
	return Diagnostic(err.Error())
}

// Diagnostic formats the inline, visibly delimited error text that replaces
// a failing node in the output.
func Diagnostic(message string) string {
	return "[breeze error: " + message + "]"
}

func nativeMessage(err error) string {
	var be *schema.BreezeError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
