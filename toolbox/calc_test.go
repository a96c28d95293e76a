package toolbox

import (
	"math"
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want float64
	}{
		{name: "addition", expr: "2+2", want: 4},
		{name: "precedence", expr: "2 + 3 * 4", want: 14},
		{name: "parentheses", expr: "(2 + 3) * 4", want: 20},
		{name: "division", expr: "10/4", want: 2.5},
		{name: "modulo", expr: "7 % 4", want: 3},
		{name: "power", expr: "2 ** 10", want: 1024},
		{name: "power right associative", expr: "2 ** 3 ** 2", want: 512},
		{name: "unary minus", expr: "-3 + 5", want: 2},
		{name: "double unary minus", expr: "--3", want: 3},
		{name: "sqrt", expr: "sqrt(16)", want: 4},
		{name: "nested expression in call", expr: "sqrt(9 + 7)", want: 4},
		{name: "abs", expr: "abs(-2.5)", want: 2.5},
		{name: "pi constant", expr: "2 * pi", want: 2 * math.Pi},
		{name: "leading spaces", expr: "   1 + 1", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluate(tt.expr)
			if err != nil {
				t.Fatalf("evaluate(%q) returned error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{name: "dangling operator", expr: "2+"},
		{name: "empty expression", expr: ""},
		{name: "unbalanced parenthesis", expr: "(2 + 3"},
		{name: "double dot number", expr: "1.2.3"},
		{name: "division by zero", expr: "1 / 0"},
		{name: "modulo by zero", expr: "1 % 0"},
		{name: "unknown identifier", expr: "foo(2)"},
		{name: "missing call parenthesis", expr: "sqrt 2"},
		{name: "trailing garbage", expr: "2 + 2 = 4"},
		{name: "prose", expr: "two plus two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := evaluate(tt.expr); err == nil {
				t.Errorf("evaluate(%q) expected error, got none", tt.expr)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		want string
	}{
		{name: "integer", v: 4, want: "4"},
		{name: "fraction", v: 2.5, want: "2.5"},
		{name: "negative fraction", v: -0.5, want: "-0.5"},
		{name: "large integer", v: 1e6, want: "1000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatNumber(tt.v); got != tt.want {
				t.Errorf("formatNumber(%v) = %q, want %q", tt.v, got, tt.want)
			}
		})
	}
}
