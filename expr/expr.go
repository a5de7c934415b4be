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

// Package expr implements the transaction expression tree: a closed
// algebraic sum of operators over transactions (spec.md §3), together with
// the smart constructors that simplify eagerly at construction time
// (spec.md §4.2).
package expr

import (
	"github.com/mitchellh/hashstructure"

	"github.com/kvtxn/kvtxn/value"
)

// Op tags an Expression node. The set is closed; there is no open class
// hierarchy to extend (spec.md §9 "Dynamic dispatch over operators").
type Op uint8

const (
	// I/O
	OpRead Op = iota
	OpWrite
	OpLoad
	OpStore
	OpPrefetch
	OpRollback
	// Control
	OpCons
	OpBranch
	OpRepeat
	// Arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpLog
	OpSin
	OpCos
	OpFloor
	// String
	OpLength
	OpSlice
	OpMatches
	OpContains
	OpIndexOf
	// Logical
	OpBoth
	OpEither
	OpNegate
	OpEqual
	OpLess
)

// arity reports how many operands each Op takes, exposed through Arity.
// The idl parser checks argument counts through its own wrappers and does
// not consult this table.
var arity = map[Op]int{
	OpRead: 1, OpWrite: 2, OpLoad: 1, OpStore: 2, OpPrefetch: 1, OpRollback: 1,
	OpCons: 2, OpBranch: 3, OpRepeat: 2,
	OpAdd: 2, OpSub: 2, OpMul: 2, OpDiv: 2, OpMod: 2, OpPow: 2,
	OpLog: 1, OpSin: 1, OpCos: 1, OpFloor: 1,
	OpLength: 1, OpSlice: 3, OpMatches: 2, OpContains: 2, OpIndexOf: 2,
	OpBoth: 2, OpEither: 2, OpNegate: 1, OpEqual: 2, OpLess: 2,
}

// Arity returns the number of operands op takes (1-3, per spec.md §3).
func Arity(op Op) int { return arity[op] }

// Transaction is either a Literal or an Expression (spec.md §3). Both
// implement this marker interface so the interpreter and the smart
// constructors can hold either uniformly.
type Transaction interface {
	isTransaction()
	// Hash returns a structural hash, used by the idl parse and round-trip
	// tests to compare trees.
	Hash() uint64
}

// Literal wraps a value.Literal so it satisfies Transaction.
type Literal struct {
	Value *value.Literal
}

func (Literal) isTransaction() {}

// Hash structurally hashes the wrapped value, via mitchellh/hashstructure —
// the same library the teacher uses for row/tree hashing (sql/cache_test.go
// BenchmarkHashOf), here grounding the "structural equality" requirement of
// spec.md §2's Expression Tree row.
func (l Literal) Hash() uint64 {
	h, err := hashstructure.Hash(struct {
		Kind string
		Text string
	}{l.Value.Kind().String(), l.Value.ToText()}, nil)
	if err != nil {
		// hashstructure only errors on unsupported types; our hash key is a
		// plain struct of strings, so this is unreachable in practice.
		return 0
	}
	return h
}

// NewLiteral wraps v as a Transaction.
func NewLiteral(v *value.Literal) Literal { return Literal{Value: v} }

// AsLiteral reports whether t is a Literal, for constant-folding checks.
func AsLiteral(t Transaction) (Literal, bool) {
	l, ok := t.(Literal)
	return l, ok
}

// Node is a non-literal Expression: an operator over 1-3 operands.
type Node struct {
	Op       Op
	Operands [3]Transaction
	n        int // number of populated operands
}

func (*Node) isTransaction() {}

// Hash structurally hashes the node's operator and operand hashes.
func (n *Node) Hash() uint64 {
	hs := make([]uint64, n.n+1)
	hs[0] = uint64(n.Op)
	for i := 0; i < n.n; i++ {
		hs[i+1] = n.Operands[i].Hash()
	}
	h, err := hashstructure.Hash(hs, nil)
	if err != nil {
		return 0
	}
	return h
}

// Operand returns the i'th operand (0-indexed); panics if i is out of
// range for this node's operator.
func (n *Node) Operand(i int) Transaction { return n.Operands[i] }

// NumOperands returns how many operands this node actually carries.
func (n *Node) NumOperands() int { return n.n }

func newNode(op Op, operands ...Transaction) *Node {
	n := &Node{Op: op, n: len(operands)}
	copy(n.Operands[:], operands)
	return n
}
