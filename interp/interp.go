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

package interp

import (
	"context"
	"strings"

	"github.com/kvtxn/kvtxn/expr"
	"github.com/kvtxn/kvtxn/value"
)

// Run evaluates tx against fetcher with a fresh Context, returning the
// result literal and the Context carrying the observed read/write sets
// (spec.md §4.3, §4.4 step 2).
func Run(ctx context.Context, tx expr.Transaction, fetcher Fetcher) (*value.Literal, *Context, error) {
	c := NewContext(fetcher)
	result, err := c.Eval(ctx, tx)
	if err != nil {
		return nil, c, err
	}
	return result, c, nil
}

// Eval walks tx post-order, with branch/repeat evaluated lazily as
// described in spec.md §4.3.
func (c *Context) Eval(ctx context.Context, tx expr.Transaction) (*value.Literal, error) {
	if lit, ok := expr.AsLiteral(tx); ok {
		return lit.Value, nil
	}
	n, ok := tx.(*expr.Node)
	if !ok {
		return nil, errUnknownTransaction
	}

	switch n.Op {
	case expr.OpRead:
		return c.evalRead(ctx, n.Operand(0))
	case expr.OpWrite:
		return c.evalWrite(ctx, n.Operand(0), n.Operand(1))
	case expr.OpLoad:
		return c.evalLoad(ctx, n.Operand(0))
	case expr.OpStore:
		return c.evalStore(ctx, n.Operand(0), n.Operand(1))
	case expr.OpPrefetch:
		return c.evalPrefetch(ctx, n.Operand(0))
	case expr.OpRollback:
		return c.evalRollback(ctx, n.Operand(0))
	case expr.OpCons:
		if _, err := c.Eval(ctx, n.Operand(0)); err != nil {
			return nil, err
		}
		return c.Eval(ctx, n.Operand(1))
	case expr.OpBranch:
		cond, err := c.Eval(ctx, n.Operand(0))
		if err != nil {
			return nil, err
		}
		if cond.ToFlag() {
			return c.Eval(ctx, n.Operand(1))
		}
		return c.Eval(ctx, n.Operand(2))
	case expr.OpRepeat:
		return c.evalRepeat(ctx, n.Operand(0), n.Operand(1))
	default:
		return c.evalPure(ctx, n)
	}
}

// evalPure evaluates every operand and applies expr.EvalPure — shared with
// the simplifier's constant-folding path, so an arithmetic node whose
// operands only became literal at run time (e.g. via load()) evaluates
// identically to one the simplifier folded at construction time.
func (c *Context) evalPure(ctx context.Context, n *expr.Node) (*value.Literal, error) {
	vals := make([]*value.Literal, n.NumOperands())
	for i := 0; i < n.NumOperands(); i++ {
		v, err := c.Eval(ctx, n.Operand(i))
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return expr.EvalPure(n.Op, vals...), nil
}

func (c *Context) evalRead(ctx context.Context, keyTx expr.Transaction) (*value.Literal, error) {
	key, err := c.evalKey(ctx, keyTx)
	if err != nil {
		return nil, err
	}
	if v, ok := c.Writes[key]; ok {
		return v, nil
	}
	if rev, ok := c.Reads[key]; ok {
		return rev.Value, nil
	}
	c.frontier[key] = struct{}{}
	if err := c.flush(ctx); err != nil {
		return nil, err
	}
	return c.Reads[key].Value, nil
}

func (c *Context) evalWrite(ctx context.Context, keyTx, valTx expr.Transaction) (*value.Literal, error) {
	key, err := c.evalKey(ctx, keyTx)
	if err != nil {
		return nil, err
	}
	val, err := c.Eval(ctx, valTx)
	if err != nil {
		return nil, err
	}
	// spec.md §3 invariant (i): every key in writes also appears in reads.
	if _, ok := c.Reads[key]; !ok {
		if _, ok := c.Writes[key]; !ok {
			c.frontier[key] = struct{}{}
			if err := c.flush(ctx); err != nil {
				return nil, err
			}
		}
	}
	if c.readOnly {
		// rollback() marks the transaction read-only; further writes are
		// silently dropped, matching the "all writes discarded" contract
		// of spec.md §4.3 point 8.
		return val, nil
	}
	c.Writes[key] = val
	return val, nil
}

func (c *Context) evalLoad(ctx context.Context, nameTx expr.Transaction) (*value.Literal, error) {
	name, err := c.Eval(ctx, nameTx)
	if err != nil {
		return nil, err
	}
	if v, ok := c.Locals[name.ToText()]; ok {
		return v, nil
	}
	return value.None(), nil
}

func (c *Context) evalStore(ctx context.Context, nameTx, valTx expr.Transaction) (*value.Literal, error) {
	name, err := c.Eval(ctx, nameTx)
	if err != nil {
		return nil, err
	}
	val, err := c.Eval(ctx, valTx)
	if err != nil {
		return nil, err
	}
	c.Locals[name.ToText()] = val
	return val, nil
}

func (c *Context) evalPrefetch(ctx context.Context, keysTx expr.Transaction) (*value.Literal, error) {
	keysLit, err := c.Eval(ctx, keysTx)
	if err != nil {
		return nil, err
	}
	for _, k := range splitKeys(keysLit.ToText()) {
		if k == "" {
			continue
		}
		if _, ok := c.Reads[k]; ok {
			continue
		}
		if _, ok := c.Writes[k]; ok {
			continue
		}
		c.frontier[k] = struct{}{}
	}
	if err := c.flush(ctx); err != nil {
		return nil, err
	}
	return value.None(), nil
}

func (c *Context) evalRollback(ctx context.Context, valTx expr.Transaction) (*value.Literal, error) {
	val, err := c.Eval(ctx, valTx)
	if err != nil {
		return nil, err
	}
	c.Writes = make(map[string]*value.Literal)
	c.readOnly = true
	return val, nil
}

// evalRepeat implements spec.md §4.3 point 2: evaluate c; while true,
// evaluate b; terminate when c is false. The frontier is flushed at the
// start of each iteration's body (spec.md §4.3 "Fetch batching"), so a
// prefetch placed before the loop amortizes its flush across iterations.
func (c *Context) evalRepeat(ctx context.Context, condTx, bodyTx expr.Transaction) (*value.Literal, error) {
	for {
		cond, err := c.Eval(ctx, condTx)
		if err != nil {
			return nil, err
		}
		if !cond.ToFlag() {
			return value.None(), nil
		}
		if err := c.flush(ctx); err != nil {
			return nil, err
		}
		if _, err := c.Eval(ctx, bodyTx); err != nil {
			return nil, err
		}
	}
}

func (c *Context) evalKey(ctx context.Context, keyTx expr.Transaction) (string, error) {
	keyLit, err := c.Eval(ctx, keyTx)
	if err != nil {
		return "", err
	}
	key := keyLit.ToText()
	// Derived object keys (K/<field>) legitimately contain FieldDelim, so
	// only an empty key or one containing ArrayDelim (which prefetch splits
	// on) is rejected here.
	if key == "" || strings.ContainsRune(key, expr.ArrayDelim) {
		return "", expr.ErrInvariantViolation.New("invalid key " + key)
	}
	return key, nil
}

func splitKeys(s string) []string {
	return strings.Split(s, string(expr.ArrayDelim))
}

var errUnknownTransaction = expr.ErrInvariantViolation.New("not a valid Transaction node")
