// Package filter turns AIP-160 chat history filters into SQLite WHERE
// fragments over the messages table.
package filter

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// field is one filterable message attribute. Columns share the field's name.
type field struct {
	name string
	typ  *expr.Type
}

// Bool fields are stored as 0/1 and sent_at as unix milliseconds.
var fields = []field{
	{"kind", filtering.TypeString},
	{"user_id", filtering.TypeString},
	{"flavor", filtering.TypeString},
	{"whisper", filtering.TypeBool},
	{"die_result", filtering.TypeInt},
	{"roll_total", filtering.TypeInt},
	{"sent_at", filtering.TypeTimestamp},
}

func lookupField(name string) (field, bool) {
	i := slices.IndexFunc(fields, func(f field) bool { return f.name == name })
	if i < 0 {
		return field{}, false
	}
	return fields[i], true
}

func isBool(f field) bool { return f.typ == filtering.TypeBool }

// MessageDeclarations declares every filterable field plus the standard
// AIP-160 functions.
func MessageDeclarations() (*filtering.Declarations, error) {
	opts := []filtering.DeclarationOption{filtering.DeclareStandardFunctions()}
	for _, f := range fields {
		opts = append(opts, filtering.DeclareIdent(f.name, f.typ))
	}
	return filtering.NewDeclarations(opts...)
}

// SQLCondition is a WHERE fragment with positional parameters.
type SQLCondition struct {
	Clause string
	Params []any
}

// IsEmpty reports whether the condition selects everything.
func (c SQLCondition) IsEmpty() bool {
	return strings.TrimSpace(c.Clause) == ""
}

var comparisons = []string{
	filtering.FunctionEquals,
	filtering.FunctionNotEquals,
	filtering.FunctionLessThan,
	filtering.FunctionLessEquals,
	filtering.FunctionGreaterThan,
	filtering.FunctionGreaterEquals,
}

// ParseMessageFilter type-checks filter and translates it. A blank filter
// yields an empty condition.
func ParseMessageFilter(filter string) (SQLCondition, error) {
	if strings.TrimSpace(filter) == "" {
		return SQLCondition{}, nil
	}
	decls, err := MessageDeclarations()
	if err != nil {
		return SQLCondition{}, fmt.Errorf("declare message fields: %w", err)
	}
	parsed, err := filtering.ParseFilterString(filter, decls)
	if err != nil {
		return SQLCondition{}, fmt.Errorf("parse filter: %w", err)
	}
	return translate(parsed.CheckedExpr.GetExpr())
}

func translate(e *expr.Expr) (SQLCondition, error) {
	if e == nil {
		return SQLCondition{}, nil
	}
	if ident := e.GetIdentExpr(); ident != nil {
		// Bare bool fields: "whisper" or "NOT whisper".
		f, ok := lookupField(ident.GetName())
		if !ok || !isBool(f) {
			return SQLCondition{}, fmt.Errorf("field %s is not boolean", ident.GetName())
		}
		return SQLCondition{Clause: f.name + " = ?", Params: []any{1}}, nil
	}
	call := e.GetCallExpr()
	if call == nil {
		return SQLCondition{}, fmt.Errorf("unsupported expression %T", e.GetExprKind())
	}

	switch fn := call.GetFunction(); {
	case fn == filtering.FunctionAnd:
		return join(call.GetArgs(), "AND")
	case fn == filtering.FunctionOr:
		return join(call.GetArgs(), "OR")
	case fn == filtering.FunctionNot:
		if len(call.GetArgs()) != 1 {
			return SQLCondition{}, errors.New("NOT takes one argument")
		}
		inner, err := translate(call.GetArgs()[0])
		if err != nil {
			return SQLCondition{}, err
		}
		return SQLCondition{Clause: "(NOT " + inner.Clause + ")", Params: inner.Params}, nil
	case slices.Contains(comparisons, fn):
		return compare(call.GetArgs(), fn)
	default:
		return SQLCondition{}, fmt.Errorf("unsupported function %s", fn)
	}
}

func join(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) < 2 {
		return SQLCondition{}, fmt.Errorf("%s needs two or more arguments", op)
	}
	var out SQLCondition
	clauses := make([]string, 0, len(args))
	for _, arg := range args {
		cond, err := translate(arg)
		if err != nil {
			return SQLCondition{}, err
		}
		clauses = append(clauses, cond.Clause)
		out.Params = append(out.Params, cond.Params...)
	}
	out.Clause = "(" + strings.Join(clauses, " "+op+" ") + ")"
	return out, nil
}

func compare(args []*expr.Expr, op string) (SQLCondition, error) {
	if len(args) != 2 {
		return SQLCondition{}, fmt.Errorf("%s takes two arguments", op)
	}
	ident := args[0].GetIdentExpr()
	if ident == nil {
		return SQLCondition{}, errors.New("left side of a comparison must be a field")
	}
	f, ok := lookupField(ident.GetName())
	if !ok {
		return SQLCondition{}, fmt.Errorf("unknown field %s", ident.GetName())
	}
	value, err := operand(args[1], f)
	if err != nil {
		return SQLCondition{}, err
	}
	return SQLCondition{Clause: fmt.Sprintf("%s %s ?", f.name, op), Params: []any{value}}, nil
}

// operand converts the right side of a comparison against f to the value
// stored in f's column.
func operand(e *expr.Expr, f field) (any, error) {
	if call := e.GetCallExpr(); call != nil {
		if call.GetFunction() != filtering.FunctionTimestamp || len(call.GetArgs()) != 1 {
			return nil, fmt.Errorf("unsupported function %s in value position", call.GetFunction())
		}
		raw := call.GetArgs()[0].GetConstExpr()
		if raw == nil {
			return nil, errors.New("timestamp argument must be a constant string")
		}
		return unixMillis(raw.GetStringValue())
	}

	c := e.GetConstExpr()
	if c == nil {
		return nil, fmt.Errorf("expected a constant, got %T", e.GetExprKind())
	}
	switch v := c.GetConstantKind().(type) {
	case *expr.Constant_StringValue:
		// sent_at > "2026-01-02T15:04:05Z" without the timestamp() wrapper.
		if f.typ == filtering.TypeTimestamp {
			return unixMillis(v.StringValue)
		}
		return v.StringValue, nil
	case *expr.Constant_Int64Value:
		return v.Int64Value, nil
	case *expr.Constant_Uint64Value:
		return v.Uint64Value, nil
	case *expr.Constant_DoubleValue:
		return v.DoubleValue, nil
	case *expr.Constant_BoolValue:
		if v.BoolValue {
			return 1, nil
		}
		return 0, nil
	default:
		return nil, fmt.Errorf("unsupported constant %T", v)
	}
}

func unixMillis(value string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return t.UTC().UnixMilli(), nil
}
