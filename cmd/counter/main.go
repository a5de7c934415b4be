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

// Command counter runs spec.md §8's concrete Counter scenario end to end:
//
//	Schema{ ctx => If(!Select("x").exists){ Select("x").value = 1 } Else { Select("x").value += 1 } }
//
// run 100 times sequentially against a fresh memstore, printing the final
// value of x/value (expected output: "x/value = 100.0").
package main

import (
	"context"
	"fmt"

	"github.com/kvtxn/kvtxn/dsl"
	"github.com/kvtxn/kvtxn/expr"
	"github.com/kvtxn/kvtxn/memstore"
	"github.com/kvtxn/kvtxn/txdb"
	"github.com/kvtxn/kvtxn/value"
)

func buildCounterTx() (expr.Transaction, error) {
	c := dsl.New()
	obj, err := c.Select("x")
	if err != nil {
		return nil, err
	}
	c.If(expr.NewNegate(obj.Exists()), func(c2 *dsl.Context) {
		obj.In(c2).Field("value").Set(expr.NewLiteral(value.Real(1)))
	}).Else(func(c2 *dsl.Context) {
		obj.In(c2).Field("value").Inc(expr.NewLiteral(value.Real(1)))
	})
	c.Return(obj.Field("value").Get())
	return c.Transaction(), nil
}

// defaultConfigYAML is the retry/cache tuning document a deploy would
// normally load from disk; inlined here so the example has no external
// file dependency.
const defaultConfigYAML = `
retryDelays:
  - 50ms
  - 100ms
  - 200ms
cacheCapacity: 0
`

func main() {
	cfg, err := txdb.ParseConfig([]byte(defaultConfigYAML))
	if err != nil {
		fmt.Printf("bad config: %v\n", err)
		return
	}

	db := memstore.New()
	defer db.Close()

	schema := txdb.NewSchemaFromConfig(txdb.NewExecutor(db), cfg)

	ctx := context.Background()
	var last *value.Literal
	for i := 0; i < 100; i++ {
		result, err := schema.Run(ctx, func(context.Context) (expr.Transaction, error) {
			return buildCounterTx()
		})
		if err != nil {
			fmt.Printf("attempt %d failed: %v\n", i, err)
			return
		}
		last = result
	}

	fmt.Printf("x/value = %s\n", last.ToText())
}
