// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package idl

import (
	"fmt"
	"strconv"
	"strings"

	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/kvtxn/kvtxn/expr"
	"github.com/kvtxn/kvtxn/value"
)

// ErrParse is spec.md §7's ParseError kind: malformed IDL text or an
// unknown discriminant.
var ErrParse = errors.NewKind("parse error: %s")

// opBuilders maps every operator name to a function applying the matching
// smart constructor (expr.New<Op>), so parsing always produces a
// simplified tree (spec.md §4.6: "parses into the in-memory tree by a
// total recursive descent using the smart constructors").
var opBuilders = map[string]func(args []expr.Transaction) (expr.Transaction, error){
	"read":     unary(expr.NewRead),
	"write":    binary(expr.NewWrite),
	"load":     unary(expr.NewLoad),
	"store":    binary(expr.NewStore),
	"prefetch": unary(expr.NewPrefetch),
	"rollback": unary(expr.NewRollback),

	"cons":   binary(expr.NewCons),
	"branch": ternary(expr.NewBranch),
	"repeat": binary(expr.NewRepeat),

	"add": binary(expr.NewAdd),
	"sub": binary(expr.NewSub),
	"mul": binary(expr.NewMul),
	"div": binary(expr.NewDiv),
	"mod": binary(expr.NewMod),
	"pow": binary(expr.NewPow),

	"log":   unary(expr.NewLog),
	"sin":   unary(expr.NewSin),
	"cos":   unary(expr.NewCos),
	"floor": unary(expr.NewFloor),

	"length":   unary(expr.NewLength),
	"slice":    ternary(expr.NewSlice),
	"matches":  binary(expr.NewMatches),
	"contains": binary(expr.NewContains),
	"indexOf":  binary(expr.NewIndexOf),

	"both":   binary(expr.NewBoth),
	"either": binary(expr.NewEither),
	"negate": unary(expr.NewNegate),
	"equal":  binary(expr.NewEqual),
	"less":   binary(expr.NewLess),
}

func unary(f func(a expr.Transaction) expr.Transaction) func([]expr.Transaction) (expr.Transaction, error) {
	return func(args []expr.Transaction) (expr.Transaction, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		return f(args[0]), nil
	}
}

func binary(f func(a, b expr.Transaction) expr.Transaction) func([]expr.Transaction) (expr.Transaction, error) {
	return func(args []expr.Transaction) (expr.Transaction, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
		}
		return f(args[0], args[1]), nil
	}
}

func ternary(f func(a, b, c expr.Transaction) expr.Transaction) func([]expr.Transaction) (expr.Transaction, error) {
	return func(args []expr.Transaction) (expr.Transaction, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("expected 3 arguments, got %d", len(args))
		}
		return f(args[0], args[1], args[2]), nil
	}
}

// Parser recursively descends the token stream into an expr.Transaction.
type Parser struct {
	lex *Lexer
	cur Token
}

// NewParser returns a Parser over src.
func NewParser(src string) *Parser {
	p := &Parser{lex: NewLexer(src)}
	p.advance()
	return p
}

func (p *Parser) advance() { p.cur = p.lex.Next() }

// Parse parses src as a single Transaction. Unknown discriminants and
// malformed syntax both fail with ErrParse (spec.md §4.6's totality
// requirement).
func Parse(src string) (expr.Transaction, error) {
	p := NewParser(src)
	t, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur.Kind != TokEOF {
		return nil, ErrParse.New(fmt.Sprintf("unexpected trailing input at byte %d", p.cur.Pos))
	}
	return t, nil
}

func (p *Parser) parseExpr() (expr.Transaction, error) {
	if p.cur.Kind != TokIdent {
		return nil, ErrParse.New(fmt.Sprintf("expected identifier at byte %d, got %v", p.cur.Pos, p.cur.Kind))
	}
	name := p.cur.Text

	switch name {
	case "none":
		p.advance()
		return expr.NewLiteral(value.None()), nil
	case "flag":
		return p.parseLiteralCall(name, func(arg Token) (*value.Literal, error) {
			switch arg.Text {
			case "true":
				return value.Flag(true), nil
			case "false":
				return value.Flag(false), nil
			default:
				return nil, fmt.Errorf("flag() argument must be true or false, got %q", arg.Text)
			}
		})
	case "real":
		return p.parseLiteralCall(name, func(arg Token) (*value.Literal, error) {
			f, err := strconv.ParseFloat(arg.Text, 64)
			if err != nil {
				return nil, fmt.Errorf("real() argument %q is not a number", arg.Text)
			}
			return value.Real(f), nil
		})
	case "text":
		return p.parseLiteralCall(name, func(arg Token) (*value.Literal, error) {
			if arg.Kind != TokString {
				return nil, fmt.Errorf("text() argument must be a quoted string, got %v", arg.Kind)
			}
			return value.Text(arg.Text), nil
		})
	}

	build, ok := opBuilders[name]
	if !ok {
		return nil, ErrParse.New(fmt.Sprintf("unknown discriminant %q at byte %d", name, p.cur.Pos))
	}
	p.advance()

	args, err := p.parseArgList()
	if err != nil {
		return nil, err
	}
	t, err := build(args)
	if err != nil {
		return nil, ErrParse.New(fmt.Sprintf("%s(...): %s", name, err.Error()))
	}
	return t, nil
}

// parseLiteralCall parses name "(" <single-token-arg> ")" for the four
// literal kinds, whose argument is a bare token rather than a nested expr.
func (p *Parser) parseLiteralCall(name string, decode func(Token) (*value.Literal, error)) (expr.Transaction, error) {
	p.advance() // consume the kind name
	if p.cur.Kind != TokLParen {
		return nil, ErrParse.New(fmt.Sprintf("expected '(' after %s at byte %d", name, p.cur.Pos))
	}
	p.advance()
	arg := p.cur
	v, err := decode(arg)
	if err != nil {
		return nil, ErrParse.New(err.Error())
	}
	p.advance()
	if p.cur.Kind != TokRParen {
		return nil, ErrParse.New(fmt.Sprintf("expected ')' closing %s(...) at byte %d", name, p.cur.Pos))
	}
	p.advance()
	return expr.NewLiteral(v), nil
}

func (p *Parser) parseArgList() ([]expr.Transaction, error) {
	if p.cur.Kind != TokLParen {
		return nil, ErrParse.New(fmt.Sprintf("expected '(' at byte %d", p.cur.Pos))
	}
	p.advance()

	var args []expr.Transaction
	for p.cur.Kind != TokRParen {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.cur.Kind == TokComma {
			p.advance()
			continue
		}
		break
	}
	if p.cur.Kind != TokRParen {
		return nil, ErrParse.New(fmt.Sprintf("expected ')' at byte %d", p.cur.Pos))
	}
	p.advance()
	return args, nil
}

// opNames maps every expr.Op back to its IDL discriminant name, the
// inverse of opBuilders, for Serialize.
var opNames = map[expr.Op]string{
	expr.OpRead: "read", expr.OpWrite: "write", expr.OpLoad: "load", expr.OpStore: "store",
	expr.OpPrefetch: "prefetch", expr.OpRollback: "rollback",
	expr.OpCons: "cons", expr.OpBranch: "branch", expr.OpRepeat: "repeat",
	expr.OpAdd: "add", expr.OpSub: "sub", expr.OpMul: "mul", expr.OpDiv: "div", expr.OpMod: "mod", expr.OpPow: "pow",
	expr.OpLog: "log", expr.OpSin: "sin", expr.OpCos: "cos", expr.OpFloor: "floor",
	expr.OpLength: "length", expr.OpSlice: "slice", expr.OpMatches: "matches", expr.OpContains: "contains", expr.OpIndexOf: "indexOf",
	expr.OpBoth: "both", expr.OpEither: "either", expr.OpNegate: "negate", expr.OpEqual: "equal", expr.OpLess: "less",
}

// Serialize renders t back to IDL text such that Parse(Serialize(t))
// reproduces an equivalent (already-simplified) tree (spec.md §8's
// round-trip property).
func Serialize(t expr.Transaction) string {
	var sb strings.Builder
	writeTransaction(&sb, t)
	return sb.String()
}

func writeTransaction(sb *strings.Builder, t expr.Transaction) {
	if lit, ok := expr.AsLiteral(t); ok {
		writeLiteral(sb, lit.Value)
		return
	}
	node := t.(*expr.Node)
	name, ok := opNames[node.Op]
	if !ok {
		panic(fmt.Sprintf("idl: no discriminant name registered for op %v", node.Op))
	}
	sb.WriteString(name)
	sb.WriteByte('(')
	for i := 0; i < node.NumOperands(); i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeTransaction(sb, node.Operand(i))
	}
	sb.WriteByte(')')
}

func writeLiteral(sb *strings.Builder, v *value.Literal) {
	switch v.Kind() {
	case value.KindNone:
		sb.WriteString("none")
	case value.KindFlag:
		if v.RawFlag() {
			sb.WriteString("flag(true)")
		} else {
			sb.WriteString("flag(false)")
		}
	case value.KindReal:
		sb.WriteString("real(")
		sb.WriteString(strconv.FormatFloat(v.RawReal(), 'g', -1, 64))
		sb.WriteByte(')')
	case value.KindText:
		sb.WriteString("text(")
		sb.WriteString(strconv.Quote(v.RawText()))
		sb.WriteByte(')')
	}
}
