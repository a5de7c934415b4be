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

// Package dsl implements the host-side combinators of spec.md §4.5: an
// explicit builder (spec.md §9 "Coroutine-style DSL" redesign note) that
// lets callers write If/Else/While/For/Foreach/Select/Delete/Stitch in a
// structured, imperative-looking style that desugars into pure expr.Transaction
// trees. Unlike the source this system re-architects, the Context here is
// always an explicit parameter, never ambient/thread-local state (spec.md
// §9 "Implicit context").
package dsl

import (
	"fmt"

	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/kvtxn/kvtxn/expr"
	"github.com/kvtxn/kvtxn/value"
)

// ErrReservedKey is raised when a user-supplied key or field name contains
// one of the two reserved delimiters (spec.md §6: "Keys containing these
// are rejected at DSL time").
var ErrReservedKey = errors.NewKind("reserved character in key: %s")

// loopVarNames are the numbered internal locals used positionally by
// nesting depth for For/Foreach loop variables (spec.md §4.5: "$i, $j, $k,
// $l"), cycling if nesting runs deeper than four.
var loopVarNames = []string{"$i", "$j", "$k", "$l"}

// Context is the per-program builder: it carries the "current transaction"
// being accumulated and a loop-nesting depth used to allocate loop
// variable names. push/capture/begin_scope/end_scope (spec.md §9) are
// modeled here as emit/capture/beginScope/endScope.
type Context struct {
	txn   expr.Transaction
	depth int
	seq   *int
}

// New returns an empty Context whose accumulated transaction is the
// no-effect literal none.
func New() *Context {
	return &Context{txn: expr.NewLiteral(value.None()), seq: new(int)}
}

// freshSlot returns a unique local-variable name prefix on every call,
// shared across capture() boundaries so nested builder helpers (e.g.
// forEachCSV inside Delete/Stitch) never collide over scratch locals.
func (c *Context) freshSlot(prefix string) string {
	if c.seq == nil {
		c.seq = new(int)
	}
	*c.seq++
	return fmt.Sprintf("$%s%d", prefix, *c.seq)
}

// Transaction returns the fully built transaction tree.
func (c *Context) Transaction() expr.Transaction { return c.txn }

// emit sequences next after whatever has been built so far, using cons —
// "(a,b) yields b" (spec.md §3) so the accumulated transaction's value is
// always whatever was emitted most recently.
func (c *Context) emit(next expr.Transaction) expr.Transaction {
	c.txn = expr.NewCons(c.txn, next)
	return next
}

// capture runs fn against a fresh scratch Context sharing this Context's
// nesting depth, returning the subtree fn built without disturbing this
// Context's own accumulated transaction — the building block behind
// If/While/For/Foreach bodies (spec.md §9 "capture(block) -> subtree").
func (c *Context) capture(fn func(*Context)) expr.Transaction {
	scratch := &Context{txn: expr.NewLiteral(value.None()), depth: c.depth, seq: c.seq}
	fn(scratch)
	return scratch.txn
}

// beginScope/endScope bump and restore the loop-nesting depth around a
// nested loop body, so an inner For/Foreach gets the next numbered local.
func (c *Context) beginScope() { c.depth++ }
func (c *Context) endScope()   { c.depth-- }

func (c *Context) loopVar() string {
	return loopVarNames[c.depth%len(loopVarNames)]
}

// Lit lifts a value.Literal into the expression tree.
func Lit(v *value.Literal) expr.Transaction { return expr.NewLiteral(v) }

// Key validates and lifts a literal key string (spec.md §6).
func Key(k string) (expr.Transaction, error) {
	if err := expr.ValidateKey(k); err != nil {
		return nil, ErrReservedKey.Wrap(err, k)
	}
	return expr.NewLiteral(value.Text(k)), nil
}

// MustKey is Key, panicking on an invalid literal key — for call sites
// building keys from compile-time constants, mirroring the teacher's
// MustCreate* constructors in sql/types (e.g. types.MustCreateDecimalType).
func MustKey(k string) expr.Transaction {
	t, err := Key(k)
	if err != nil {
		panic(err)
	}
	return t
}

// Var returns a key Transaction whose value is read from a local variable
// (spec.md §4.5 "Select(var)") rather than a literal key.
func Var(name string) expr.Transaction {
	return expr.NewLoad(expr.NewLiteral(value.Text(name)))
}

// --- If / Else ---

// IfBuilder accumulates the branches of an If before Else/EndIf commits
// the branch() node.
type IfBuilder struct {
	c    *Context
	cond expr.Transaction
	then expr.Transaction
}

// If captures then's effects under cond and returns a builder awaiting an
// optional Else. Calling EndIf (or letting Else default the false branch
// to none) commits branch(cond, then, els) to the Context.
func (c *Context) If(cond expr.Transaction, then func(*Context)) *IfBuilder {
	return &IfBuilder{c: c, cond: cond, then: c.capture(then)}
}

// Else captures the false branch and emits the branch() node.
func (b *IfBuilder) Else(els func(*Context)) expr.Transaction {
	elseBranch := b.c.capture(els)
	return b.c.emit(expr.NewBranch(b.cond, b.then, elseBranch))
}

// EndIf commits the branch() node with an empty false branch, for an If
// with no Else.
func (b *IfBuilder) EndIf() expr.Transaction {
	return b.c.emit(expr.NewBranch(b.cond, b.then, expr.NewLiteral(value.None())))
}

// --- While ---

// While captures body under a fresh nesting scope and emits repeat(cond, body).
func (c *Context) While(cond func(*Context) expr.Transaction, body func(*Context)) expr.Transaction {
	c.beginScope()
	defer c.endScope()
	condTx := c.capture(func(scratch *Context) { scratch.emit(cond(scratch)) })
	bodyTx := c.capture(body)
	return c.emit(expr.NewRepeat(condTx, bodyTx))
}

// --- For ---

// Interval is a numeric range for For; Inclusive selects <= vs < as the
// loop condition (spec.md §4.5).
type Interval struct {
	From, To  expr.Transaction
	Inclusive bool
}

// For assigns lo to a fresh loop variable, loops while var <= hi (or <
// hi, per Interval.Inclusive), running body once per iteration with the
// loop variable incremented by 1 after each pass.
func (c *Context) For(iv Interval, body func(ctx *Context, i expr.Transaction)) expr.Transaction {
	c.beginScope()
	varName := c.loopVar()
	defer c.endScope()

	varKey := expr.NewLiteral(value.Text(varName))
	c.emit(expr.NewStore(varKey, iv.From))

	cmp := expr.NewLess
	if iv.Inclusive {
		cmp = func(a, b expr.Transaction) expr.Transaction {
			return expr.NewEither(expr.NewLess(a, b), expr.NewEqual(a, b))
		}
	}
	condTx := c.capture(func(scratch *Context) {
		scratch.emit(cmp(expr.NewLoad(varKey), iv.To))
	})

	bodyTx := c.capture(func(scratch *Context) {
		body(scratch, expr.NewLoad(varKey))
		scratch.emit(expr.NewStore(varKey, expr.NewAdd(expr.NewLoad(varKey), expr.NewLiteral(value.Real(1)))))
	})

	return c.emit(expr.NewRepeat(condTx, bodyTx))
}

// --- Foreach ---

// Foreach iterates the $addresses list of an index, pre-prefetching each
// address's indexed value before the body runs each iteration (spec.md
// §4.5). The address list is a comma-delimited string (spec.md §6), so
// this walks it with the same manual split loop forEachCSV uses, fetching
// idx.entryKey(address) for each element.
func (c *Context) Foreach(idx *Index, body func(ctx *Context, address, val expr.Transaction)) expr.Transaction {
	return forEachCSV(c, expr.NewRead(idx.addressesKey()), func(scratch *Context, address expr.Transaction) {
		scratch.emit(expr.NewPrefetch(idx.entryKey(address)))
		val := expr.NewRead(idx.entryKey(address))
		body(scratch, address, val)
	})
}

// Return sets the Context's tail to the single result, or concatenates
// multiple results into a JSON array literal-concatenation expression
// (spec.md §4.5).
func (c *Context) Return(first expr.Transaction, rest ...expr.Transaction) expr.Transaction {
	if len(rest) == 0 {
		return c.emit(first)
	}
	parts := make([]expr.Transaction, 0, len(rest)+3)
	parts = append(parts, expr.NewLiteral(value.Text("[")))
	parts = append(parts, toJSONValue(first))
	for _, r := range rest {
		parts = append(parts, expr.NewLiteral(value.Text(",")))
		parts = append(parts, toJSONValue(r))
	}
	parts = append(parts, expr.NewLiteral(value.Text("]")))
	return c.emit(concatAll(parts))
}

// Rollback emits a rollback node (spec.md §4.5).
func (c *Context) Rollback(val expr.Transaction) expr.Transaction {
	return c.emit(expr.NewRollback(val))
}

func concatAll(parts []expr.Transaction) expr.Transaction {
	acc := parts[0]
	for _, p := range parts[1:] {
		acc = expr.NewAdd(acc, p)
	}
	return acc
}

// toJSONValue renders a scalar Transaction as a JSON scalar: literal text
// operands get quoted; every other operand, including a non-literal one
// that evaluates to text, is emitted via its ToText() rendering — a
// minimal encoder, not a general JSON library, matching Stitch's own
// "does not read eagerly on the host" contract.
func toJSONValue(t expr.Transaction) expr.Transaction {
	if lit, ok := expr.AsLiteral(t); ok && lit.Value.Kind() == value.KindText {
		return expr.NewLiteral(value.Text(fmt.Sprintf("%q", lit.Value.RawText())))
	}
	return t
}
