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

package txdb

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvtxn/kvtxn/expr"
	"github.com/kvtxn/kvtxn/value"
)

// fakeDB is a minimal in-process Database for exercising Executor's retry
// loop without a real backend.
type fakeDB struct {
	mu       sync.Mutex
	data     map[string]value.Revision
	onCPut   func() // called once per CPut attempt, before the CAS check
	forceErr error
}

func newFakeDB() *fakeDB { return &fakeDB{data: map[string]value.Revision{}} }

func (f *fakeDB) Get(_ context.Context, keys []string) (map[string]value.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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

func (f *fakeDB) CPut(_ context.Context, depends map[string]uint64, changes map[string]*value.Literal) (CommitStatus, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onCPut != nil {
		f.onCPut()
	}
	if f.forceErr != nil {
		return Conflict, "", f.forceErr
	}
	for k, wantVersion := range depends {
		if f.data[k].Version != wantVersion {
			return Conflict, k, nil
		}
	}
	for k, v := range changes {
		rev := f.data[k]
		f.data[k] = value.Revision{Version: rev.Version + 1, Value: v}
	}
	return Committed, "", nil
}

func (f *fakeDB) Close() error { return nil }

func TestExecutorCommitsOnFirstTry(t *testing.T) {
	db := newFakeDB()
	exec := NewExecutor(db)
	tx := expr.NewWrite(expr.NewLiteral(value.Text("k")), expr.NewLiteral(value.Real(1)))

	result, err := exec.Execute(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, 1.0, result.ToReal())
	require.Equal(t, uint64(1), db.data["k"].Version)
}

func TestExecutorRetriesOnConflict(t *testing.T) {
	db := newFakeDB()
	db.data["k"] = value.Revision{Version: 1, Value: value.Real(100)}

	calls := 0
	db.onCPut = func() {
		calls++
		// Simulate a concurrent writer racing ahead between this attempt's
		// read and its CPut, so the first attempt's depends[k]==1 is stale
		// by the time CPut runs.
		if calls == 1 {
			db.data["k"] = value.Revision{Version: 2, Value: value.Real(101)}
		}
	}

	exec := NewExecutor(db)
	tx := expr.NewCons(
		expr.NewRead(expr.NewLiteral(value.Text("k"))),
		expr.NewWrite(expr.NewLiteral(value.Text("k")), expr.NewLiteral(value.Real(2))),
	)

	result, err := exec.Execute(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, 2.0, result.ToReal())
	require.Equal(t, 2, calls, "the stale first attempt must conflict and retry once")
}

func TestExecutorBubblesBackendError(t *testing.T) {
	db := newFakeDB()
	db.forceErr = ErrBackendTransient.New("connection reset")

	exec := NewExecutor(db)
	tx := expr.NewWrite(expr.NewLiteral(value.Text("k")), expr.NewLiteral(value.Real(1)))

	_, err := exec.Execute(context.Background(), tx)
	require.Error(t, err)
	require.True(t, IsTransient(err))
}
