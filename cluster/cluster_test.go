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

package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvtxn/kvtxn/memstore"
	"github.com/kvtxn/kvtxn/txdb"
	"github.com/kvtxn/kvtxn/value"
)

func TestClusterRoutesToSomeMember(t *testing.T) {
	members := []txdb.Database{memstore.New(), memstore.New(), memstore.New()}
	c := New(members)
	defer c.Close()

	_, _, err := c.CPut(context.Background(), map[string]uint64{"k": 0}, map[string]*value.Literal{"k": value.Real(1)})
	require.NoError(t, err)

	// the write landed on exactly one member; summing Get across all three
	// must find it on at least one.
	found := false
	for _, m := range members {
		out, err := m.Get(context.Background(), []string{"k"})
		require.NoError(t, err)
		if out["k"].Version == 1 {
			found = true
		}
	}
	require.True(t, found)
}

func TestClusterCloseClosesEveryMember(t *testing.T) {
	members := []txdb.Database{memstore.New(), memstore.New()}
	c := New(members)
	require.NoError(t, c.Close())
}
