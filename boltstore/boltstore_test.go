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

package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvtxn/kvtxn/txdb"
	"github.com/kvtxn/kvtxn/value"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kvtxn.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltGetMissingKeyIsZeroRevision(t *testing.T) {
	s := openTemp(t)
	out, err := s.Get(context.Background(), []string{"missing"})
	require.NoError(t, err)
	require.True(t, out["missing"].Value.IsNone())
	require.Equal(t, uint64(0), out["missing"].Version)
}

func TestBoltCPutRoundTripsEveryKind(t *testing.T) {
	s := openTemp(t)
	changes := map[string]*value.Literal{
		"flag": value.Flag(true),
		"real": value.Real(3.5),
		"text": value.Text("hello"),
		"none": value.None(),
	}
	depends := map[string]uint64{"flag": 0, "real": 0, "text": 0, "none": 0}

	status, _, err := s.CPut(context.Background(), depends, changes)
	require.NoError(t, err)
	require.Equal(t, txdb.Committed, status)

	out, err := s.Get(context.Background(), []string{"flag", "real", "text", "none"})
	require.NoError(t, err)
	require.Equal(t, true, out["flag"].Value.RawFlag())
	require.Equal(t, 3.5, out["real"].Value.RawReal())
	require.Equal(t, "hello", out["text"].Value.RawText())
	require.True(t, out["none"].Value.IsNone())
	for _, k := range []string{"flag", "real", "text", "none"} {
		require.Equal(t, uint64(1), out[k].Version)
	}
}

func TestBoltCPutConflictsOnStaleVersion(t *testing.T) {
	s := openTemp(t)
	_, _, err := s.CPut(context.Background(), map[string]uint64{"k": 0}, map[string]*value.Literal{"k": value.Real(1)})
	require.NoError(t, err)

	status, conflict, err := s.CPut(context.Background(), map[string]uint64{"k": 0}, map[string]*value.Literal{"k": value.Real(2)})
	require.NoError(t, err)
	require.Equal(t, txdb.Conflict, status)
	require.Equal(t, "k", conflict)

	out, _ := s.Get(context.Background(), []string{"k"})
	require.Equal(t, 1.0, out["k"].Value.ToReal())
}
