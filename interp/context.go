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

// Package interp evaluates a Transaction against a snapshot buffer,
// tracking locals, the read set, the write set and the fetch frontier
// (spec.md §4.3).
package interp

import (
	"context"

	uuid "github.com/satori/go.uuid"

	"github.com/kvtxn/kvtxn/value"
)

// Fetcher is the minimal backend capability the interpreter needs: a bulk
// snapshot read (spec.md §6 Database.get). A txdb.Database satisfies this
// interface structurally, without interp importing txdb (which depends on
// interp to run transactions — importing it back here would cycle).
type Fetcher interface {
	Get(ctx context.Context, keys []string) (map[string]value.Revision, error)
}

// Context is the per-run snapshot/locals buffer described in spec.md §3.
// A fresh Context is allocated for every attempt of a Transaction — one per
// retry of the optimistic commit loop.
type Context struct {
	// ID identifies this one attempt in txdb's commit-loop log lines. Every
	// retry gets a fresh Context and so a fresh ID; nothing in this module
	// links the IDs of successive attempts of one transaction.
	ID uuid.UUID

	Locals map[string]*value.Literal
	Reads  map[string]value.Revision
	Writes map[string]*value.Literal

	frontier map[string]struct{}
	readOnly bool

	fetcher Fetcher
}

// NewContext allocates a fresh, empty Context bound to fetcher.
func NewContext(fetcher Fetcher) *Context {
	return &Context{
		ID:       uuid.NewV4(),
		Locals:   make(map[string]*value.Literal),
		Reads:    make(map[string]value.Revision),
		Writes:   make(map[string]*value.Literal),
		frontier: make(map[string]struct{}),
		fetcher:  fetcher,
	}
}

// ReadOnly reports whether rollback() has fired on this Context, silently
// dropping all further writes (spec.md §4.3 point 8).
func (c *Context) ReadOnly() bool { return c.readOnly }

// DependsVersions returns the version map to pass to Database.cput: the
// observed version of every key in the read set (spec.md §4.4).
func (c *Context) DependsVersions() map[string]uint64 {
	out := make(map[string]uint64, len(c.Reads))
	for k, rev := range c.Reads {
		out[k] = rev.Version
	}
	return out
}

// flush drains the fetch frontier in a single batched backend call — the
// principal performance win mandated by spec.md §4.3.
func (c *Context) flush(ctx context.Context) error {
	if len(c.frontier) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.frontier))
	for k := range c.frontier {
		keys = append(keys, k)
	}
	revs, err := c.fetcher.Get(ctx, keys)
	if err != nil {
		return err
	}
	for _, k := range keys {
		rev, ok := revs[k]
		if !ok {
			rev = value.ZeroRevision()
		}
		c.Reads[k] = rev
		delete(c.frontier, k)
	}
	return nil
}
