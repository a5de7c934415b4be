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

package dsl

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/kvtxn/kvtxn/expr"
	"github.com/kvtxn/kvtxn/interp"
	"github.com/kvtxn/kvtxn/value"
)

// memFetcher is a trivial in-memory interp.Fetcher for exercising built
// DSL transactions end to end, without pulling in the txdb commit loop.
type memFetcher struct {
	data map[string]value.Revision
}

func newMemFetcher() *memFetcher { return &memFetcher{data: map[string]value.Revision{}} }

func (f *memFetcher) Get(_ context.Context, keys []string) (map[string]value.Revision, error) {
	out := make(map[string]value.Revision, len(keys))
	for _, k := range keys {
		if rev, ok := f.data[k]; ok {
			out[k] = rev
		} else {
			out[k] = value.ZeroRevision()
		}
	}
	return out, nil
}

// commit folds a Context's write set back into the fetcher's store,
// bumping each written key's version by one — a minimal stand-in for
// txdb.Executor's CAS commit, sufficient for these builder-level tests.
func (f *memFetcher) commit(c *interp.Context) {
	for k, v := range c.Writes {
		rev := f.data[k]
		f.data[k] = value.Revision{Version: rev.Version + 1, Value: v}
	}
}

func run(t *testing.T, f *memFetcher, tx expr.Transaction) (*value.Literal, *interp.Context) {
	t.Helper()
	result, ictx, err := interp.Run(context.Background(), tx, f)
	require.NoError(t, err)
	return result, ictx
}

func TestIfElse(t *testing.T) {
	f := newMemFetcher()
	c := New()
	c.If(expr.NewLiteral(value.Flag(true)), func(c2 *Context) {
		c2.emit(expr.NewStore(expr.NewLiteral(value.Text("$out")), expr.NewLiteral(value.Real(1))))
	}).Else(func(c2 *Context) {
		c2.emit(expr.NewStore(expr.NewLiteral(value.Text("$out")), expr.NewLiteral(value.Real(2))))
	})
	c.emit(expr.NewLoad(expr.NewLiteral(value.Text("$out"))))

	result, _ := run(t, f, c.Transaction())
	require.Equal(t, 1.0, result.ToReal())
}

func TestWhileCountsUp(t *testing.T) {
	f := newMemFetcher()
	c := New()
	iKey := expr.NewLiteral(value.Text("$n"))
	c.emit(expr.NewStore(iKey, expr.NewLiteral(value.Real(0))))
	c.While(
		func(scratch *Context) expr.Transaction {
			return expr.NewLess(expr.NewLoad(iKey), expr.NewLiteral(value.Real(5)))
		},
		func(scratch *Context) {
			scratch.emit(expr.NewStore(iKey, expr.NewAdd(expr.NewLoad(iKey), expr.NewLiteral(value.Real(1)))))
		},
	)
	c.emit(expr.NewLoad(iKey))

	result, _ := run(t, f, c.Transaction())
	require.Equal(t, 5.0, result.ToReal())
}

func TestForInclusiveRange(t *testing.T) {
	f := newMemFetcher()
	c := New()
	sumKey := expr.NewLiteral(value.Text("$sum"))
	c.emit(expr.NewStore(sumKey, expr.NewLiteral(value.Real(0))))
	c.For(Interval{From: expr.NewLiteral(value.Real(1)), To: expr.NewLiteral(value.Real(3)), Inclusive: true}, func(c2 *Context, i expr.Transaction) {
		c2.emit(expr.NewStore(sumKey, expr.NewAdd(expr.NewLoad(sumKey), i)))
	})
	c.emit(expr.NewLoad(sumKey))

	result, _ := run(t, f, c.Transaction())
	require.Equal(t, 6.0, result.ToReal()) // 1+2+3
}

func TestCounterScenario(t *testing.T) {
	// Mirrors spec.md §8's Counter: Select("x").value += 1, run 100 times
	// sequentially, leaving x/value == 100.
	f := newMemFetcher()
	for i := 0; i < 100; i++ {
		c := New()
		obj, err := c.Select("x")
		require.NoError(t, err)
		obj.Field("value").Inc(expr.NewLiteral(value.Real(1)))
		c.Return(obj.Field("value").Get())

		result, ictx := run(t, f, c.Transaction())
		f.commit(ictx)
		require.Equal(t, float64(i+1), result.ToReal())
	}

	rev := f.data["x/value"]
	require.Equal(t, 100.0, rev.Value.ToReal())
}

func TestIfElseWriteSetMatchesExpectedShape(t *testing.T) {
	// Diffed with go-cmp rather than field-by-field require.Equal calls,
	// since the write set is a map[string]*value.Literal and *Literal
	// carries unexported fields (go-cmp uses *Literal.Equal to compare).
	f := newMemFetcher()
	c := New()
	obj, err := c.Select("x")
	require.NoError(t, err)
	c.If(expr.NewNegate(obj.Exists()), func(c2 *Context) {
		obj.In(c2).Field("value").Set(expr.NewLiteral(value.Real(1)))
	}).Else(func(c2 *Context) {
		obj.In(c2).Field("value").Inc(expr.NewLiteral(value.Real(1)))
	})
	c.Return(obj.Field("value").Get())

	_, ictx := run(t, f, c.Transaction())

	// x does not exist yet, so only the then-branch (value = 1) runs; the
	// else-branch's writes must not appear.
	want := map[string]*value.Literal{
		"x":         value.Flag(true),
		"x/$fields": value.Text("value"),
		"x/value":   value.Real(1),
	}
	if diff := cmp.Diff(want, ictx.Writes); diff != "" {
		t.Fatalf("write set mismatch (-want +got):\n%s", diff)
	}
}

func TestIfElseObjectMutationIsBranchConditional(t *testing.T) {
	// Regression test for the bug where Object/FieldRef/Index mutators
	// ignored the scratch Context an If/Else body actually builds against:
	// without obj.In(c2), both arms' writes leaked into the unconditional
	// enclosing scope and every run committed the else-branch's value.
	f := newMemFetcher()
	c := New()
	obj, err := c.Select("x")
	require.NoError(t, err)
	c.If(expr.NewNegate(obj.Exists()), func(c2 *Context) {
		obj.In(c2).Field("value").Set(expr.NewLiteral(value.Real(1)))
	}).Else(func(c2 *Context) {
		obj.In(c2).Field("value").Inc(expr.NewLiteral(value.Real(1)))
	})
	c.Return(obj.Field("value").Get())

	tx := c.Transaction()

	result, ictx := run(t, f, tx)
	f.commit(ictx)
	require.Equal(t, 1.0, result.ToReal(), "first run: x did not exist, only the then-branch should fire")

	result, ictx = run(t, f, tx)
	f.commit(ictx)
	require.Equal(t, 2.0, result.ToReal(), "second run: x exists, only the else-branch should fire")
}

func TestObjectExistsAndDelete(t *testing.T) {
	f := newMemFetcher()

	c := New()
	obj, err := c.Select("widget")
	require.NoError(t, err)
	obj.Field("color").Set(expr.NewLiteral(value.Text("red")))
	c.emit(obj.Exists())
	_, ictx := run(t, f, c.Transaction())
	f.commit(ictx)
	require.Equal(t, true, f.data["widget"].Value.RawFlag())
	require.Equal(t, "red", f.data["widget/color"].Value.RawText())

	c2 := New()
	obj2, err := c2.Select("widget")
	require.NoError(t, err)
	obj2.Delete()
	_, ictx2 := run(t, f, c2.Transaction())
	f.commit(ictx2)
	require.True(t, f.data["widget"].Value.IsNone())
	require.True(t, f.data["widget/color"].Value.IsNone())
	require.Equal(t, "", f.data["widget/$fields"].Value.RawText())
}

func TestIndexAddAndForeach(t *testing.T) {
	f := newMemFetcher()

	c := New()
	obj, err := c.Select("bucket")
	require.NoError(t, err)
	ix := obj.Index("members")
	ix.Add(expr.NewLiteral(value.Text("a")), expr.NewLiteral(value.Real(1)))
	ix.Add(expr.NewLiteral(value.Text("b")), expr.NewLiteral(value.Real(2)))
	_, ictx := run(t, f, c.Transaction())
	f.commit(ictx)

	c2 := New()
	obj2, err := c2.Select("bucket")
	require.NoError(t, err)
	ix2 := obj2.Index("members")
	sumKey := expr.NewLiteral(value.Text("$total"))
	c2.emit(expr.NewStore(sumKey, expr.NewLiteral(value.Real(0))))
	c2.Foreach(ix2, func(c3 *Context, address, val expr.Transaction) {
		c3.emit(expr.NewStore(sumKey, expr.NewAdd(expr.NewLoad(sumKey), val)))
	})
	c2.emit(expr.NewLoad(sumKey))

	result, _ := run(t, f, c2.Transaction())
	require.Equal(t, 3.0, result.ToReal())
}

func TestStitchProducesFieldsAsJSON(t *testing.T) {
	f := newMemFetcher()

	c := New()
	obj, err := c.Select("profile")
	require.NoError(t, err)
	obj.Field("name").Set(expr.NewLiteral(value.Text("ada")))
	c.Return(obj.Stitch())

	result, _ := run(t, f, c.Transaction())
	require.Contains(t, result.ToText(), `"key":"profile"`)
	require.Contains(t, result.ToText(), `"name":"ada"`)
}

func TestReturnMultipleBuildsArray(t *testing.T) {
	f := newMemFetcher()
	c := New()
	c.Return(expr.NewLiteral(value.Real(1)), expr.NewLiteral(value.Text("two")))

	result, _ := run(t, f, c.Transaction())
	require.Equal(t, `[1.0,"two"]`, result.ToText())
}

func TestRollbackInDSL(t *testing.T) {
	f := newMemFetcher()
	c := New()
	obj, err := c.Select("x")
	require.NoError(t, err)
	obj.Field("value").Set(expr.NewLiteral(value.Real(1)))
	c.Rollback(expr.NewLiteral(value.Text("aborted")))

	result, ictx := run(t, f, c.Transaction())
	require.Equal(t, "aborted", result.ToText())
	require.Empty(t, ictx.Writes)
	require.True(t, ictx.ReadOnly())
}

func TestReservedKeyRejected(t *testing.T) {
	c := New()
	_, err := c.Select("bad/key")
	require.Error(t, err)
	require.True(t, ErrReservedKey.Is(err))
}
