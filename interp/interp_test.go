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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvtxn/kvtxn/expr"
	"github.com/kvtxn/kvtxn/value"
)

// fakeFetcher is a minimal in-memory Fetcher for interpreter-only tests;
// txdb/memstore provides the real Database implementation.
type fakeFetcher struct {
	data map[string]value.Revision
	gets int
}

func (f *fakeFetcher) Get(_ context.Context, keys []string) (map[string]value.Revision, error) {
	f.gets++
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

func key(s string) expr.Transaction { return expr.NewLiteral(value.Text(s)) }
func lit(v *value.Literal) expr.Transaction { return expr.NewLiteral(v) }

func TestReadYourWrites(t *testing.T) {
	f := &fakeFetcher{data: map[string]value.Revision{}}
	tx := expr.NewCons(
		expr.NewWrite(key("k"), lit(value.Real(5))),
		expr.NewRead(key("k")),
	)
	result, c, err := Run(context.Background(), tx, f)
	require.NoError(t, err)
	require.Equal(t, 5.0, result.ToReal())
	require.Equal(t, 5.0, c.Writes["k"].ToReal())
}

func TestReadNeverWrittenKeyIsNone(t *testing.T) {
	f := &fakeFetcher{data: map[string]value.Revision{}}
	result, _, err := Run(context.Background(), expr.NewRead(key("missing")), f)
	require.NoError(t, err)
	require.True(t, result.IsNone())
}

func TestRollbackClearsWrites(t *testing.T) {
	f := &fakeFetcher{data: map[string]value.Revision{}}
	tx := expr.NewCons(
		expr.NewWrite(key("a"), lit(value.Real(1))),
		expr.NewCons(
			expr.NewRollback(lit(value.Real(42))),
			expr.NewWrite(key("b"), lit(value.Real(2))),
		),
	)
	result, c, err := Run(context.Background(), tx, f)
	require.NoError(t, err)
	require.Equal(t, 2.0, result.ToReal())
	require.Empty(t, c.Writes, "writes must be empty at commit time after rollback")
	require.True(t, c.ReadOnly())
}

func TestPrefetchBatchesFrontier(t *testing.T) {
	f := &fakeFetcher{data: map[string]value.Revision{
		"x": {Version: 1, Value: value.Real(1)},
		"y": {Version: 1, Value: value.Real(2)},
	}}
	tx := expr.NewCons(
		expr.NewPrefetch(key("x,y")),
		expr.NewAdd(expr.NewRead(key("x")), expr.NewRead(key("y"))),
	)
	result, _, err := Run(context.Background(), tx, f)
	require.NoError(t, err)
	require.Equal(t, 3.0, result.ToReal())
	require.Equal(t, 1, f.gets, "prefetch must amortize the later reads into one batch")
}

func TestLoadStoreLocals(t *testing.T) {
	f := &fakeFetcher{data: map[string]value.Revision{}}
	tx := expr.NewCons(
		expr.NewStore(key("$i"), lit(value.Real(10))),
		expr.NewLoad(key("$i")),
	)
	result, _, err := Run(context.Background(), tx, f)
	require.NoError(t, err)
	require.Equal(t, 10.0, result.ToReal())
}

func TestRepeatLoop(t *testing.T) {
	f := &fakeFetcher{data: map[string]value.Revision{}}
	// $i = 0; while $i < 3 { $i = $i + 1 }
	cond := expr.NewLess(expr.NewLoad(key("$i")), lit(value.Real(3)))
	body := expr.NewStore(key("$i"), expr.NewAdd(expr.NewLoad(key("$i")), lit(value.Real(1))))
	tx := expr.NewCons(
		expr.NewStore(key("$i"), lit(value.Real(0))),
		expr.NewCons(expr.NewRepeat(cond, body), expr.NewLoad(key("$i"))),
	)
	result, _, err := Run(context.Background(), tx, f)
	require.NoError(t, err)
	require.Equal(t, 3.0, result.ToReal())
}

func TestDependsVersions(t *testing.T) {
	f := &fakeFetcher{data: map[string]value.Revision{
		"k": {Version: 7, Value: value.Real(1)},
	}}
	_, c, err := Run(context.Background(), expr.NewRead(key("k")), f)
	require.NoError(t, err)
	require.Equal(t, map[string]uint64{"k": 7}, c.DependsVersions())
}
