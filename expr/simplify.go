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

package expr

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/kvtxn/kvtxn/value"
)

// ErrInvariantViolation is the §7 InvariantViolation error kind: a reserved
// delimiter appearing in a user-supplied key.
var ErrInvariantViolation = errors.NewKind("invariant violation: %s")

// FieldDelim and ArrayDelim are the two characters reserved by the key
// alphabet (spec.md §3).
const (
	FieldDelim = '/'
	ArrayDelim = ','
)

// ValidateKey enforces spec.md §3: keys are non-empty text not containing
// the reserved delimiters. The dsl layer calls it on every user-supplied
// literal key; the smart constructors below do not call it.
func ValidateKey(k string) error {
	if k == "" {
		return ErrInvariantViolation.New("key must not be empty")
	}
	if strings.ContainsRune(k, FieldDelim) || strings.ContainsRune(k, ArrayDelim) {
		return ErrInvariantViolation.New("key " + k + " contains a reserved delimiter")
	}
	return nil
}

// --- I/O operators: always effectful, never folded. Key validity
// (spec.md §3, §6: no reserved delimiters) is enforced on user keys by the
// DSL layer at build time; at evaluation time the interpreter rejects only
// empty keys and keys containing ArrayDelim, since derived object keys
// contain FieldDelim. These constructors accept any Transaction.

func NewRead(key Transaction) Transaction {
	return newNode(OpRead, key)
}

func NewWrite(key, val Transaction) Transaction {
	return newNode(OpWrite, key, val)
}

func NewLoad(name Transaction) Transaction { return newNode(OpLoad, name) }

func NewStore(name, val Transaction) Transaction { return newNode(OpStore, name, val) }

func NewPrefetch(keys Transaction) Transaction { return newNode(OpPrefetch, keys) }

func NewRollback(val Transaction) Transaction { return newNode(OpRollback, val) }

// --- Control operators: lazy, fold only on a literal condition. ---

// NewCons simplifies away the 'a' operand when it is a pure literal (it has
// no observable effect to preserve), per spec.md §4.2.
func NewCons(a, b Transaction) Transaction {
	if _, ok := AsLiteral(a); ok {
		return b
	}
	return newNode(OpCons, a, b)
}

// NewBranch collapses to t or f when c is a literal, per spec.md §4.2.
func NewBranch(c, t, f Transaction) Transaction {
	if cl, ok := AsLiteral(c); ok {
		if cl.Value.ToFlag() {
			return t
		}
		return f
	}
	return newNode(OpBranch, c, t, f)
}

// NewRepeat collapses repeat(false, _) to none. repeat(true, _) is
// divergent and is never unrolled, per spec.md §4.2.
func NewRepeat(c, body Transaction) Transaction {
	if cl, ok := AsLiteral(c); ok && !cl.Value.ToFlag() {
		return NewLiteral(value.None())
	}
	return newNode(OpRepeat, c, body)
}

// --- Arithmetic: fold whenever every operand is a literal. ---

func NewAdd(a, b Transaction) Transaction { return foldBinary(OpAdd, a, b) }
func NewSub(a, b Transaction) Transaction { return foldBinary(OpSub, a, b) }
func NewMul(a, b Transaction) Transaction { return foldBinary(OpMul, a, b) }
func NewDiv(a, b Transaction) Transaction { return foldBinary(OpDiv, a, b) }
func NewMod(a, b Transaction) Transaction { return foldBinary(OpMod, a, b) }
func NewPow(a, b Transaction) Transaction { return foldBinary(OpPow, a, b) }
func NewLog(a Transaction) Transaction    { return foldUnary(OpLog, a) }
func NewSin(a Transaction) Transaction    { return foldUnary(OpSin, a) }
func NewCos(a Transaction) Transaction    { return foldUnary(OpCos, a) }
func NewFloor(a Transaction) Transaction  { return foldUnary(OpFloor, a) }

// --- String ---

func NewLength(a Transaction) Transaction { return foldUnary(OpLength, a) }

func NewSlice(s, lo, hi Transaction) Transaction {
	if sl, ok1 := AsLiteral(s); ok1 {
		if ll, ok2 := AsLiteral(lo); ok2 {
			if hl, ok3 := AsLiteral(hi); ok3 {
				return NewLiteral(evalTernary(OpSlice, sl.Value, ll.Value, hl.Value))
			}
		}
	}
	return newNode(OpSlice, s, lo, hi)
}

func NewMatches(s, re Transaction) Transaction  { return foldBinary(OpMatches, s, re) }
func NewContains(s, sub Transaction) Transaction { return foldBinary(OpContains, s, sub) }
func NewIndexOf(s, sub Transaction) Transaction  { return foldBinary(OpIndexOf, s, sub) }

// --- Logical: both/either short-circuit on a literal first operand. ---

func NewBoth(a, b Transaction) Transaction {
	if al, ok := AsLiteral(a); ok {
		if !al.Value.ToFlag() {
			return NewLiteral(value.Flag(false))
		}
		if bl, ok := AsLiteral(b); ok {
			return NewLiteral(value.Flag(bl.Value.ToFlag()))
		}
	}
	return newNode(OpBoth, a, b)
}

func NewEither(a, b Transaction) Transaction {
	if al, ok := AsLiteral(a); ok {
		if al.Value.ToFlag() {
			return NewLiteral(value.Flag(true))
		}
		if bl, ok := AsLiteral(b); ok {
			return NewLiteral(value.Flag(bl.Value.ToFlag()))
		}
	}
	return newNode(OpEither, a, b)
}

// NewNegate folds a literal operand. The spec.md §4.2
// "negate(negate(x)) -> x" rewrite is deliberately NOT implemented: it only
// preserves semantics when x already evaluates to a flag, which cannot be
// known statically for a non-literal x, and the spec itself marks the rule
// optional precisely because it can change total semantics. See DESIGN.md.
func NewNegate(a Transaction) Transaction { return foldUnary(OpNegate, a) }

func NewEqual(a, b Transaction) Transaction { return foldBinary(OpEqual, a, b) }
func NewLess(a, b Transaction) Transaction  { return foldBinary(OpLess, a, b) }

// foldUnary and foldBinary are the generic smart-constructor machinery: if
// every operand is already a Literal, evaluate eagerly and cache the
// result (the canonical constants naturally stay interned because
// value.Real/value.Flag/value.Text already intern them); otherwise build a
// plain Node for the interpreter to evaluate later.
func foldUnary(op Op, a Transaction) Transaction {
	if al, ok := AsLiteral(a); ok {
		return NewLiteral(EvalPure(op, al.Value))
	}
	return newNode(op, a)
}

func foldBinary(op Op, a, b Transaction) Transaction {
	al, aok := AsLiteral(a)
	bl, bok := AsLiteral(b)
	if aok && bok {
		return NewLiteral(EvalPure(op, al.Value, bl.Value))
	}
	return newNode(op, a, b)
}

func evalTernary(op Op, a, b, c *value.Literal) *value.Literal {
	switch op {
	case OpSlice:
		return sliceString(a, b, c)
	default:
		panic("expr: unknown ternary op")
	}
}

// EvalPure evaluates a pure operator given fully-literal operands. Used by
// the smart constructors above at construction time and by the interpreter
// at evaluation time for nodes whose operands only become literal at
// runtime (e.g. a load(name) that resolves to a literal). Every branch is
// total: division by zero, NaN propagation and regex failures produce a
// sentinel literal rather than an error, per spec.md §7.
func EvalPure(op Op, operands ...*value.Literal) *value.Literal {
	switch op {
	case OpAdd:
		return value.Add(operands[0], operands[1])
	case OpSub:
		return value.Real(operands[0].ToReal() - operands[1].ToReal())
	case OpMul:
		return value.Real(operands[0].ToReal() * operands[1].ToReal())
	case OpDiv:
		return value.Real(operands[0].ToReal() / operands[1].ToReal())
	case OpMod:
		return value.Real(math.Mod(operands[0].ToReal(), operands[1].ToReal()))
	case OpPow:
		return value.Real(math.Pow(operands[0].ToReal(), operands[1].ToReal()))
	case OpLog:
		return value.Real(math.Log(operands[0].ToReal()))
	case OpSin:
		return value.Real(math.Sin(operands[0].ToReal()))
	case OpCos:
		return value.Real(math.Cos(operands[0].ToReal()))
	case OpFloor:
		return value.Real(math.Floor(operands[0].ToReal()))
	case OpLength:
		return value.Real(float64(utf8.RuneCountInString(operands[0].ToText())))
	case OpMatches:
		re, err := regexp.Compile(operands[1].ToText())
		if err != nil {
			return value.Flag(false)
		}
		return value.Flag(re.MatchString(operands[0].ToText()))
	case OpContains:
		return value.Flag(strings.Contains(operands[0].ToText(), operands[1].ToText()))
	case OpIndexOf:
		runes := []rune(operands[0].ToText())
		sub := operands[1].ToText()
		idx := strings.Index(operands[0].ToText(), sub)
		if idx < 0 {
			return value.Real(-1)
		}
		// translate byte index to rune index, consistent with Length.
		return value.Real(float64(utf8.RuneCountInString(string(runes)[:idx])))
	case OpBoth:
		return value.Flag(operands[0].ToFlag() && operands[1].ToFlag())
	case OpEither:
		return value.Flag(operands[0].ToFlag() || operands[1].ToFlag())
	case OpNegate:
		return value.Flag(!operands[0].ToFlag())
	case OpEqual:
		return value.Flag(value.Equal(operands[0], operands[1]))
	case OpLess:
		return value.Flag(value.Less(operands[0], operands[1]))
	default:
		panic("expr: EvalPure called on non-pure or unknown op")
	}
}

func sliceString(s, lo, hi *value.Literal) *value.Literal {
	runes := []rune(s.ToText())
	n := len(runes)
	loI := clampIndex(lo.ToReal(), n)
	hiI := clampIndex(hi.ToReal(), n)
	if loI > hiI {
		return value.Text("")
	}
	return value.Text(string(runes[loI:hiI]))
}

func clampIndex(f float64, n int) int {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	i := int(f)
	if i > n {
		return n
	}
	return i
}
