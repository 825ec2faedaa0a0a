package tools

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"

	"github.com/boat-builder/agentruntime"
)

type CalculatorArgs struct {
	Expression string `json:"expression" jsonschema:"description=Arithmetic expression such as 2 + 3 * 4"`
}

// Calculator evaluates arithmetic expressions. Evaluation errors are reported to the model as
// regular output so it can correct the expression.
type Calculator struct {
	toolName    string
	description string
}

func NewCalculator() *Calculator {
	return &Calculator{
		toolName:    "calculate",
		description: "Calculate a mathematical expression. Supports + - * / % ** parentheses and sqrt abs pow floor ceil round",
	}
}

func (c *Calculator) Name() string {
	return c.toolName
}

func (c *Calculator) Description() string {
	return c.description
}

func (c *Calculator) Parameters() map[string]any {
	return agentruntime.GenerateSchema[CalculatorArgs]()
}

func (c *Calculator) Execute(ctx context.Context, args map[string]any) (string, error) {
	in, err := agentruntime.DecodeArgs[CalculatorArgs](args)
	if err != nil {
		return "", agentruntime.NewRetryableError(err)
	}
	v, err := Evaluate(in.Expression)
	if err != nil {
		return fmt.Sprintf("Calculation error: %s", err), nil
	}
	return fmt.Sprintf("Calculation result: %s = %s", in.Expression, formatNumber(v)), nil
}

// Evaluate computes an arithmetic expression. The expression is parsed with the Go expression
// grammar; x ** y arrives as x * (*y) and is rebuilt as a right-associative power that binds
// tighter than the multiplicative operators.
func Evaluate(expr string) (float64, error) {
	if strings.TrimSpace(expr) == "" {
		return 0, errors.New("empty expression")
	}
	// the Go scanner would read the rest of the line as a comment
	if strings.Contains(expr, "//") || strings.Contains(expr, "/*") {
		return 0, errors.New("floor division is not supported, use floor(a / b)")
	}
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, fmt.Errorf("invalid syntax: %v", err)
	}
	v, err := eval(node)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, errors.New("result is not a finite number")
	}
	return v, nil
}

func isPow(n ast.Expr) (*ast.BinaryExpr, *ast.StarExpr, bool) {
	bin, ok := n.(*ast.BinaryExpr)
	if !ok || bin.Op != token.MUL {
		return nil, nil, false
	}
	star, ok := bin.Y.(*ast.StarExpr)
	return bin, star, ok
}

func eval(n ast.Expr) (float64, error) {
	switch n := n.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return 0, fmt.Errorf("unsupported literal %s", n.Value)
		}
		return parseLiteral(n)
	case *ast.ParenExpr:
		return eval(n.X)
	case *ast.Ident:
		switch n.Name {
		case "pi":
			return math.Pi, nil
		case "e":
			return math.E, nil
		}
		return 0, fmt.Errorf("name '%s' is not defined", n.Name)
	case *ast.UnaryExpr:
		v, err := eval(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.SUB:
			return -v, nil
		case token.ADD:
			return v, nil
		}
		return 0, fmt.Errorf("unsupported operator %s", n.Op)
	case *ast.StarExpr:
		return 0, errors.New("invalid syntax: dangling *")
	case *ast.CallExpr:
		return evalCall(n)
	case *ast.BinaryExpr:
		if _, star, ok := isPow(n); ok {
			exp, err := eval(star.X)
			if err != nil {
				return 0, err
			}
			return raise(n.X, exp)
		}
		x, err := eval(n.X)
		if err != nil {
			return 0, err
		}
		y, err := eval(n.Y)
		if err != nil {
			return 0, err
		}
		return arith(n.Op, x, y)
	}
	return 0, fmt.Errorf("unsupported expression %T", n)
}

// raise applies ** with exponent exp to the operand immediately left of the operator, which the Go
// grammar may have folded into a larger multiplicative or unary expression.
func raise(left ast.Expr, exp float64) (float64, error) {
	if bin, star, ok := isPow(left); ok {
		inner, err := eval(star.X)
		if err != nil {
			return 0, err
		}
		return raise(bin.X, math.Pow(inner, exp))
	}
	switch n := left.(type) {
	case *ast.BinaryExpr:
		if n.Op == token.MUL || n.Op == token.QUO || n.Op == token.REM {
			x, err := eval(n.X)
			if err != nil {
				return 0, err
			}
			y, err := raise(n.Y, exp)
			if err != nil {
				return 0, err
			}
			return arith(n.Op, x, y)
		}
	case *ast.UnaryExpr:
		if n.Op == token.SUB || n.Op == token.ADD {
			v, err := raise(n.X, exp)
			if err != nil {
				return 0, err
			}
			if n.Op == token.SUB {
				v = -v
			}
			return v, nil
		}
	}
	base, err := eval(left)
	if err != nil {
		return 0, err
	}
	return math.Pow(base, exp), nil
}

func arith(op token.Token, x, y float64) (float64, error) {
	switch op {
	case token.ADD:
		return x + y, nil
	case token.SUB:
		return x - y, nil
	case token.MUL:
		return x * y, nil
	case token.QUO:
		if y == 0 {
			return 0, errors.New("division by zero")
		}
		return x / y, nil
	case token.REM:
		if y == 0 {
			return 0, errors.New("modulo by zero")
		}
		// floored, so the result takes the sign of the divisor
		r := math.Mod(x, y)
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		return r, nil
	}
	return 0, fmt.Errorf("unsupported operator %s", op)
}

// parseLiteral accepts every numeric literal go/parser does, including 0x, 0o and 0b integers.
func parseLiteral(lit *ast.BasicLit) (float64, error) {
	if lit.Kind == token.INT {
		n, err := strconv.ParseInt(lit.Value, 0, 64)
		if err == nil {
			return float64(n), nil
		}
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) || numErr.Err != strconv.ErrRange {
			return 0, err
		}
	}
	return strconv.ParseFloat(strings.ReplaceAll(lit.Value, "_", ""), 64)
}

func evalCall(call *ast.CallExpr) (float64, error) {
	fn, ok := call.Fun.(*ast.Ident)
	if !ok {
		return 0, errors.New("unsupported function call")
	}
	args := make([]float64, 0, len(call.Args))
	for _, a := range call.Args {
		v, err := eval(a)
		if err != nil {
			return 0, err
		}
		args = append(args, v)
	}
	want := 1
	if fn.Name == "pow" {
		want = 2
	}
	switch fn.Name {
	case "sqrt", "abs", "floor", "ceil", "round", "pow":
		if len(args) != want {
			return 0, fmt.Errorf("%s() takes %d argument(s), got %d", fn.Name, want, len(args))
		}
	default:
		return 0, fmt.Errorf("name '%s' is not defined", fn.Name)
	}
	switch fn.Name {
	case "sqrt":
		if args[0] < 0 {
			return 0, errors.New("math domain error")
		}
		return math.Sqrt(args[0]), nil
	case "abs":
		return math.Abs(args[0]), nil
	case "floor":
		return math.Floor(args[0]), nil
	case "ceil":
		return math.Ceil(args[0]), nil
	case "round":
		return math.RoundToEven(args[0]), nil
	default:
		return math.Pow(args[0], args[1]), nil
	}
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
