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

// Package cluster implements the load-balancing txdb.Database decorator of
// spec.md §5: "a single client shared in a Cluster must be serialized per
// client instance by the caller — the cluster-load-balancing component
// selects a client at random and serializes per-client calls." Each
// wrapped client gets its own mutex; Cluster itself holds no cross-client
// lock, so calls against different clients proceed concurrently.
package cluster

import (
	"context"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kvtxn/kvtxn/txdb"
	"github.com/kvtxn/kvtxn/value"
)

// Logger is the narrow structured-logging surface Cluster logs picker
// decisions through (see txdb.Logger).
type Logger interface {
	Debugf(format string, args ...interface{})
}

type member struct {
	mu     sync.Mutex
	client txdb.Database
}

// Cluster is a txdb.Database spreading calls across N underlying clients,
// serializing access to whichever client is picked.
type Cluster struct {
	members []*member
	log     Logger
}

// New wraps clients into a single load-balanced Database. clients must be
// non-empty.
func New(clients []txdb.Database, opts ...Option) *Cluster {
	members := make([]*member, len(clients))
	for i, c := range clients {
		members[i] = &member{client: c}
	}
	c := &Cluster{members: members, log: logrus.New()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures a Cluster.
type Option func(*Cluster)

// WithLogger attaches a Logger that records which client index each call
// picks.
func WithLogger(l Logger) Option { return func(c *Cluster) { c.log = l } }

func (c *Cluster) pick() (*member, int) {
	i := rand.Intn(len(c.members))
	return c.members[i], i
}

// Get dispatches to a randomly chosen client, serialized against any other
// caller currently using that same client.
func (c *Cluster) Get(ctx context.Context, keys []string) (map[string]value.Revision, error) {
	m, i := c.pick()
	c.log.Debugf("cluster: routing Get(%d keys) to client %d", len(keys), i)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client.Get(ctx, keys)
}

// CPut dispatches to a randomly chosen client, serialized the same way.
func (c *Cluster) CPut(ctx context.Context, depends map[string]uint64, changes map[string]*value.Literal) (txdb.CommitStatus, string, error) {
	m, i := c.pick()
	c.log.Debugf("cluster: routing CPut(%d changes) to client %d", len(changes), i)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client.CPut(ctx, depends, changes)
}

// Close closes every member client, returning the first error encountered
// (after attempting to close all of them).
func (c *Cluster) Close() error {
	var first error
	for _, m := range c.members {
		m.mu.Lock()
		if err := m.client.Close(); err != nil && first == nil {
			first = err
		}
		m.mu.Unlock()
	}
	return first
}
