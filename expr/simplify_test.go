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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvtxn/kvtxn/value"
)

func TestConstantFold(t *testing.T) {
	got := NewAdd(NewLiteral(value.Real(6)), NewLiteral(value.Real(9)))
	lit, ok := AsLiteral(got)
	require.True(t, ok)
	require.Same(t, value.Real(15), lit.Value)
}

func TestStringAdd(t *testing.T) {
	got := NewAdd(NewLiteral(value.Text("a")), NewLiteral(value.Real(0)))
	lit, ok := AsLiteral(got)
	require.True(t, ok)
	require.Equal(t, "a0.0", lit.Value.ToText())
}

func TestBranchFold(t *testing.T) {
	got := NewBranch(NewLiteral(value.Flag(true)), NewLiteral(value.Text("y")), NewLiteral(value.Text("n")))
	lit, ok := AsLiteral(got)
	require.True(t, ok)
	require.Equal(t, "y", lit.Value.ToText())
}

func TestRepeatFalseCollapsesToNone(t *testing.T) {
	got := NewRepeat(NewLiteral(value.Flag(false)), NewLiteral(value.Real(1)))
	lit, ok := AsLiteral(got)
	require.True(t, ok)
	require.True(t, lit.Value.IsNone())
}

func TestRepeatTrueDoesNotUnroll(t *testing.T) {
	got := NewRepeat(NewLiteral(value.Flag(true)), NewLiteral(value.Real(1)))
	_, ok := AsLiteral(got)
	require.False(t, ok, "repeat(true, body) must remain a node, never unrolled")
}

func TestConsDropsPureLiteralHead(t *testing.T) {
	tail := NewLiteral(value.Real(2))
	got := NewCons(NewLiteral(value.Real(1)), tail)
	require.Equal(t, tail, got)
}

func TestConsRetainsEffectfulHead(t *testing.T) {
	effect := NewRead(NewLiteral(value.Text("k")))
	tail := NewLiteral(value.Real(2))
	got := NewCons(effect, tail)
	node, ok := got.(*Node)
	require.True(t, ok)
	require.Equal(t, OpCons, node.Op)
}

func TestBothShortCircuitsOnFalse(t *testing.T) {
	effect := NewRead(NewLiteral(value.Text("k"))) // would panic EvalPure if evaluated
	got := NewBoth(NewLiteral(value.Flag(false)), effect)
	lit, ok := AsLiteral(got)
	require.True(t, ok)
	require.False(t, lit.Value.ToFlag())
}

func TestEitherShortCircuitsOnTrue(t *testing.T) {
	effect := NewRead(NewLiteral(value.Text("k")))
	got := NewEither(NewLiteral(value.Flag(true)), effect)
	lit, ok := AsLiteral(got)
	require.True(t, ok)
	require.True(t, lit.Value.ToFlag())
}

func TestSliceFold(t *testing.T) {
	got := NewSlice(NewLiteral(value.Text("hello")), NewLiteral(value.Real(1)), NewLiteral(value.Real(3)))
	lit, ok := AsLiteral(got)
	require.True(t, ok)
	require.Equal(t, "el", lit.Value.ToText())
}

func TestMatchesBadRegexIsFalseNotError(t *testing.T) {
	got := NewMatches(NewLiteral(value.Text("abc")), NewLiteral(value.Text("(")))
	lit, ok := AsLiteral(got)
	require.True(t, ok)
	require.False(t, lit.Value.ToFlag())
}

func TestIdempotence(t *testing.T) {
	// simplify(simplify(t)) == simplify(t): since the smart constructors
	// simplify at construction time, re-wrapping an already-simplified
	// literal in the same constructor is a no-op.
	once := NewAdd(NewLiteral(value.Real(2)), NewLiteral(value.Real(3)))
	twice := NewAdd(once, NewLiteral(value.Real(0)))
	l1, _ := AsLiteral(once)
	l2, _ := AsLiteral(twice)
	require.Equal(t, l1.Value.ToReal(), l2.Value.ToReal()-0)
}

func TestValidateKey(t *testing.T) {
	require.NoError(t, ValidateKey("users"))
	require.Error(t, ValidateKey(""))
	require.Error(t, ValidateKey("a/b"))
	require.Error(t, ValidateKey("a,b"))
}
