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
	"github.com/kvtxn/kvtxn/expr"
	"github.com/kvtxn/kvtxn/value"
)

// Object is a handle bound to a literal or variable key, laid out on the
// store per spec.md §4.5/§6: K is an existence marker, K/$fields and
// K/$indices are comma-delimited name lists, K/<field> holds a field
// value, and K/<index>/$addresses is a comma-delimited address list.
type Object struct {
	c       *Context
	keyExpr expr.Transaction
}

// Select binds an Object to a literal key.
func (c *Context) Select(key string) (*Object, error) {
	k, err := Key(key)
	if err != nil {
		return nil, err
	}
	return &Object{c: c, keyExpr: k}, nil
}

// SelectVar binds an Object to a key held in a local variable (spec.md
// §4.5 "Select(var)").
func (c *Context) SelectVar(varName string) *Object {
	return &Object{c: c, keyExpr: Var(varName)}
}

// Key returns the underlying key Transaction.
func (o *Object) Key() expr.Transaction { return o.keyExpr }

// In rebinds o to a different build Context, keeping the same key
// expression. If/Else/While/For/Foreach bodies run against a separate
// scratch Context (spec.md §9's capture()), not the Context an Object was
// originally Select-ed against; mutating a field/index through o's
// original Context from inside such a body would emit into the enclosing
// unconditional scope instead of the captured branch/loop subtree. Callers
// that mutate an Object inside a captured body must rebind it first:
// obj.In(scratch).Field("x").Set(...).
func (o *Object) In(ctx *Context) *Object {
	return &Object{c: ctx, keyExpr: o.keyExpr}
}

func fieldDelim() expr.Transaction { return expr.NewLiteral(value.Text(string(expr.FieldDelim))) }
func arrayDelim() expr.Transaction { return expr.NewLiteral(value.Text(string(expr.ArrayDelim))) }

// derivedKey builds K/suffix by concatenation (spec.md §4.5: "Object.key
// ++ '/' ++ fieldName is the canonical layout"), so it works whether the
// base key is a static literal or a dynamic Select(var) key.
func (o *Object) derivedKey(suffix expr.Transaction) expr.Transaction {
	return expr.NewAdd(expr.NewAdd(o.keyExpr, fieldDelim()), suffix)
}

func (o *Object) metaKey(name string) expr.Transaction {
	return o.derivedKey(expr.NewLiteral(value.Text(name)))
}

// Exists reports whether the object's existence marker is set.
func (o *Object) Exists() expr.Transaction {
	return expr.NewEqual(expr.NewRead(o.keyExpr), expr.NewLiteral(value.Flag(true)))
}

// ensureExists writes the existence marker; idempotent.
func (o *Object) ensureExists() {
	o.c.emit(expr.NewWrite(o.keyExpr, expr.NewLiteral(value.Flag(true))))
}

// ensureCSVContains appends item to the comma-delimited list at listKey if
// it is not already present, the generalized form of the $fields/$indices/
// $addresses bookkeeping spec.md §4.5 describes.
func ensureCSVContains(c *Context, listKey, itemExpr expr.Transaction) {
	// A never-written list key reads back as none, not "" — coerce via the
	// Add text overload before treating it as a CSV string.
	cur := expr.NewAdd(expr.NewLiteral(value.Text("")), expr.NewRead(listKey))
	padded := expr.NewAdd(arrayDelim(), expr.NewAdd(cur, arrayDelim()))
	needle := expr.NewAdd(arrayDelim(), expr.NewAdd(itemExpr, arrayDelim()))
	alreadyThere := expr.NewContains(padded, needle)
	appended := expr.NewBranch(
		expr.NewEqual(cur, expr.NewLiteral(value.Text(""))),
		itemExpr,
		expr.NewAdd(expr.NewAdd(cur, arrayDelim()), itemExpr),
	)
	c.emit(expr.NewBranch(alreadyThere, expr.NewLiteral(value.None()), expr.NewWrite(listKey, appended)))
}

// FieldRef is a handle to one field of an Object.
type FieldRef struct {
	obj  *Object
	name string
}

// Field returns a handle to the named field.
func (o *Object) Field(name string) FieldRef { return FieldRef{obj: o, name: name} }

// Get reads the field's current value (none if never written).
func (f FieldRef) Get() expr.Transaction {
	return expr.NewRead(f.obj.metaKey(f.name))
}

// Set writes val to the field, registering it in $fields and the object's
// existence marker if this is the first write.
func (f FieldRef) Set(val expr.Transaction) {
	f.obj.ensureExists()
	ensureCSVContains(f.obj.c, f.obj.metaKey("$fields"), expr.NewLiteral(value.Text(f.name)))
	f.obj.c.emit(expr.NewWrite(f.obj.metaKey(f.name), val))
}

// Inc is the "+=" sugar used in the Counter scenario (spec.md §8): Select("x").value += 1.
func (f FieldRef) Inc(delta expr.Transaction) {
	f.Set(expr.NewAdd(f.Get(), delta))
}

// Index is a handle to one named index of an Object.
type Index struct {
	obj  *Object
	name string
}

// Index returns a handle to the named index, registering it in $indices.
func (o *Object) Index(name string) *Index {
	ensureCSVContains(o.c, o.metaKey("$indices"), expr.NewLiteral(value.Text(name)))
	return &Index{obj: o, name: name}
}

// In rebinds ix to a different build Context, the same way Object.In does;
// needed when adding to an index inside an If/Else/While/For/Foreach body.
func (ix *Index) In(ctx *Context) *Index {
	return &Index{obj: ix.obj.In(ctx), name: ix.name}
}

func (ix *Index) addressesKey() expr.Transaction {
	return ix.obj.derivedKey(expr.NewLiteral(value.Text(ix.name + "/$addresses")))
}

func (ix *Index) entryKey(address expr.Transaction) expr.Transaction {
	return expr.NewAdd(ix.obj.derivedKey(expr.NewLiteral(value.Text(ix.name+"/"))), address)
}

// Add inserts address into the index's address list and stores val at the
// corresponding entry key.
func (ix *Index) Add(address, val expr.Transaction) {
	ensureCSVContains(ix.obj.c, ix.addressesKey(), address)
	ix.obj.c.emit(expr.NewWrite(ix.entryKey(address), val))
}

// Delete walks $fields and every index's $addresses, writing none
// everywhere, then clears the $fields/$indices markers and the existence
// key (spec.md §4.5).
func (o *Object) Delete() {
	c := o.c
	forEachCSV(c, expr.NewRead(o.metaKey("$fields")), func(scratch *Context, field expr.Transaction) {
		scratch.emit(expr.NewWrite(o.derivedKey(field), expr.NewLiteral(value.None())))
	})
	forEachCSV(c, expr.NewRead(o.metaKey("$indices")), func(scratch *Context, idxName expr.Transaction) {
		addrListKey := o.derivedKey(expr.NewAdd(idxName, expr.NewLiteral(value.Text("/$addresses"))))
		forEachCSV(scratch, expr.NewRead(addrListKey), func(inner *Context, address expr.Transaction) {
			entryKey := expr.NewAdd(o.derivedKey(expr.NewAdd(idxName, expr.NewLiteral(value.Text("/")))), address)
			inner.emit(expr.NewWrite(entryKey, expr.NewLiteral(value.None())))
		})
		scratch.emit(expr.NewWrite(addrListKey, expr.NewLiteral(value.Text(""))))
	})
	c.emit(expr.NewWrite(o.metaKey("$fields"), expr.NewLiteral(value.Text(""))))
	c.emit(expr.NewWrite(o.metaKey("$indices"), expr.NewLiteral(value.Text(""))))
	c.emit(expr.NewWrite(o.keyExpr, expr.NewLiteral(value.None())))
}

// Stitch builds a JSON string expression for the object: {"key":"...",
// field:"val", index:"addr1,addr2"}. It does not read anything eagerly on
// the host — every field/index name is resolved by walking $fields/
// $indices inside the built expression itself (spec.md §4.5).
func (o *Object) Stitch() expr.Transaction {
	c := o.c
	jsonKey := expr.NewLiteral(value.Text("$json"))
	c.emit(expr.NewStore(jsonKey, expr.NewAdd(
		expr.NewLiteral(value.Text(`{"key":`)),
		expr.NewAdd(quoteJSON(o.keyExpr), expr.NewLiteral(value.Text(""))),
	)))

	forEachCSV(c, expr.NewRead(o.metaKey("$fields")), func(scratch *Context, field expr.Transaction) {
		entry := expr.NewAdd(
			expr.NewAdd(quoteJSON(field), expr.NewLiteral(value.Text(":"))),
			quoteJSON(expr.NewRead(o.derivedKey(field))),
		)
		scratch.emit(expr.NewStore(jsonKey, expr.NewAdd(
			expr.NewAdd(expr.NewLoad(jsonKey), expr.NewLiteral(value.Text(","))),
			entry,
		)))
	})

	forEachCSV(c, expr.NewRead(o.metaKey("$indices")), func(scratch *Context, idxName expr.Transaction) {
		addrListKey := o.derivedKey(expr.NewAdd(idxName, expr.NewLiteral(value.Text("/$addresses"))))
		entry := expr.NewAdd(
			expr.NewAdd(quoteJSON(idxName), expr.NewLiteral(value.Text(":"))),
			quoteJSON(expr.NewRead(addrListKey)),
		)
		scratch.emit(expr.NewStore(jsonKey, expr.NewAdd(
			expr.NewAdd(expr.NewLoad(jsonKey), expr.NewLiteral(value.Text(","))),
			entry,
		)))
	})

	return c.emit(expr.NewAdd(expr.NewLoad(jsonKey), expr.NewLiteral(value.Text("}"))))
}

// quoteJSON wraps a text-valued Transaction's current value in quotes at
// evaluation time, via string concatenation rather than a JSON encoder —
// sufficient for the flat string/number fields this language's value
// model supports.
func quoteJSON(t expr.Transaction) expr.Transaction {
	q := expr.NewLiteral(value.Text(`"`))
	return expr.NewAdd(expr.NewAdd(q, t), q)
}

// forEachCSV walks a comma-delimited string Transaction, invoking body
// once per element via a manual split loop (spec.md §4.1's string
// operators have no native split, only indexOf/slice/length). Each call
// allocates fresh scratch local names from c's shared sequence counter so
// nested forEachCSV calls never collide.
func forEachCSV(c *Context, list expr.Transaction, body func(scratch *Context, item expr.Transaction)) expr.Transaction {
	slot := c.freshSlot("csv")
	remainingKey := expr.NewLiteral(value.Text(slot + "_rem"))
	idxKey := expr.NewLiteral(value.Text(slot + "_idx"))
	itemKey := expr.NewLiteral(value.Text(slot + "_item"))

	// Coerce list to text via the Add overload (text + x stringifies x),
	// since a never-written $fields/$indices/$addresses key reads back as
	// none rather than "".
	c.emit(expr.NewStore(remainingKey, expr.NewAdd(expr.NewLiteral(value.Text("")), list)))

	condTx := c.capture(func(scratch *Context) {
		scratch.emit(expr.NewNegate(expr.NewEqual(expr.NewLoad(remainingKey), expr.NewLiteral(value.Text("")))))
	})

	bodyTx := c.capture(func(scratch *Context) {
		scratch.emit(expr.NewStore(idxKey, expr.NewIndexOf(expr.NewLoad(remainingKey), arrayDelim())))
		scratch.If(expr.NewEqual(expr.NewLoad(idxKey), expr.NewLiteral(value.Real(-1))), func(c2 *Context) {
			c2.emit(expr.NewStore(itemKey, expr.NewLoad(remainingKey)))
			c2.emit(expr.NewStore(remainingKey, expr.NewLiteral(value.Text(""))))
		}).Else(func(c2 *Context) {
			c2.emit(expr.NewStore(itemKey, expr.NewSlice(expr.NewLoad(remainingKey), expr.NewLiteral(value.Real(0)), expr.NewLoad(idxKey))))
			c2.emit(expr.NewStore(remainingKey, expr.NewSlice(
				expr.NewLoad(remainingKey),
				expr.NewAdd(expr.NewLoad(idxKey), expr.NewLiteral(value.Real(1))),
				expr.NewLength(expr.NewLoad(remainingKey)),
			)))
		})
		body(scratch, expr.NewLoad(itemKey))
	})

	return c.emit(expr.NewRepeat(condTx, bodyTx))
}
