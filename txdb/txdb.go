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

// Package txdb implements the optimistic commit protocol of spec.md §4.4:
// snapshot -> execute -> CAS by version -> retry on conflict, plus the
// Schema retry wrapper of spec.md §4.4/§7 that bounds retries after
// transient backend failures.
package txdb

import (
	"context"

	"github.com/opentracing/opentracing-go"
	errors "gopkg.in/src-d/go-errors.v1"

	"github.com/kvtxn/kvtxn/expr"
	"github.com/kvtxn/kvtxn/value"
)

// Error kinds from spec.md §7 that originate at the database boundary.
var (
	ErrBackendTransient = errors.NewKind("backend transient error: %s")
	ErrBackendFatal     = errors.NewKind("backend fatal error: %s")
	ErrRetriesExhausted = errors.NewKind("retries exhausted after %d attempts: %s")
)

// CommitStatus is the outcome of a Database.CPut call.
type CommitStatus int

const (
	// Committed means every depends[k].version matched and changes were
	// installed.
	Committed CommitStatus = iota
	// Conflict means at least one depends[k].version was stale.
	Conflict
)

// Database is the only contract the core requires of a backend (spec.md
// §6): a bulk snapshot read, an atomic conditional multi-put, and close.
type Database interface {
	// Get performs a bulk snapshot read; missing keys map to (0, none)
	// (spec.md §6).
	Get(ctx context.Context, keys []string) (map[string]value.Revision, error)
	// CPut atomically installs changes if every depends[k] matches the
	// current version of k, returning the conflicting key when known.
	CPut(ctx context.Context, depends map[string]uint64, changes map[string]*value.Literal) (CommitStatus, string, error)
	Close() error
}

// Cache is the optional layer of spec.md §6 consulted on Get and written
// through on a successful CPut; invalidated on conflict.
type Cache interface {
	Fetch(ctx context.Context, keys []string) (map[string]value.Revision, error)
	Update(ctx context.Context, revs map[string]value.Revision) error
	Invalidate(ctx context.Context, keys []string) error
}

// Executor runs the optimistic commit loop of spec.md §4.4 against one
// Database, optionally layering a Cache in front of Get.
type Executor struct {
	db     Database
	cache  Cache
	tracer opentracing.Tracer
	log    Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithCache layers a Cache in front of the Database's Get.
func WithCache(c Cache) Option { return func(e *Executor) { e.cache = c } }

// WithTracer attaches an opentracing.Tracer; each Execute call and each
// fetch-frontier flush opens a span under it (spec.md §5: frontier flushes
// are the only I/O points, hence the natural instrumentation boundary).
func WithTracer(t opentracing.Tracer) Option { return func(e *Executor) { e.tracer = t } }

// WithLogger attaches a structured logger (see logging.go); defaults to a
// logrus-backed no-op-safe logger.
func WithLogger(l Logger) Option { return func(e *Executor) { e.log = l } }

// NewExecutor builds an Executor over db.
func NewExecutor(db Database, opts ...Option) *Executor {
	e := &Executor{db: db, log: defaultLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs spec.md §4.4's execute(tx) loop: a fresh Context each
// attempt, interpreting tx through the (possibly cached) Database, then
// CAS-committing the write set. Commit conflicts are not errors (spec.md
// §7) and retry unboundedly here; backend errors (transient or fatal)
// bubble to the caller, which is expected to be a Schema wrapper bounding
// transient retries.
func (e *Executor) Execute(ctx context.Context, tx expr.Transaction) (*value.Literal, error) {
	var span opentracing.Span
	if e.tracer != nil {
		span = e.tracer.StartSpan("txdb.Execute")
		defer span.Finish()
		ctx = opentracing.ContextWithSpan(ctx, span)
	}

	fetcher := &cachingFetcher{db: e.db, cache: e.cache, tracer: e.tracer}

	for attempt := 1; ; attempt++ {
		result, ictx, err := runInterp(ctx, tx, fetcher)
		if err != nil {
			e.log.Errorf("interpret failed: %v", err)
			return nil, err
		}

		status, conflictKey, err := e.db.CPut(ctx, ictx.DependsVersions(), ictx.Writes)
		if err != nil {
			e.log.Errorf("cput failed: %v", err)
			return nil, err
		}

		if status == Committed {
			if e.cache != nil && len(ictx.Writes) > 0 {
				// Write through: each committed key now sits one version past
				// the version this attempt read.
				revs := make(map[string]value.Revision, len(ictx.Writes))
				for k, v := range ictx.Writes {
					revs[k] = value.Revision{Version: ictx.Reads[k].Version + 1, Value: v}
				}
				_ = e.cache.Update(ctx, revs)
			}
			e.log.Debugf("tx %s committed on attempt %d", ictx.ID, attempt)
			return result, nil
		}

		// Conflict: discard the Context and retry from scratch, per
		// spec.md §4.4 step 5.
		if e.cache != nil {
			keys := make([]string, 0, len(ictx.Reads))
			for k := range ictx.Reads {
				keys = append(keys, k)
			}
			_ = e.cache.Invalidate(ctx, keys)
		}
		e.log.Warnf("tx %s conflict on key %q, retrying (attempt %d)", ictx.ID, conflictKey, attempt)
	}
}

// cachingFetcher adapts a Database+Cache pair into the interp.Fetcher the
// interpreter needs, consulting the cache first and writing through on a
// cache miss (spec.md §6).
type cachingFetcher struct {
	db     Database
	cache  Cache
	tracer opentracing.Tracer
}

func (f *cachingFetcher) Get(ctx context.Context, keys []string) (map[string]value.Revision, error) {
	if f.tracer != nil {
		span := f.tracer.StartSpan("txdb.flush", opentracing.ChildOf(spanContextOf(ctx)))
		span.SetTag("keys", len(keys))
		defer span.Finish()
	}

	out := make(map[string]value.Revision, len(keys))
	missing := keys
	if f.cache != nil {
		cached, err := f.cache.Fetch(ctx, keys)
		if err == nil {
			missing = make([]string, 0, len(keys))
			for _, k := range keys {
				if rev, ok := cached[k]; ok {
					out[k] = rev
				} else {
					missing = append(missing, k)
				}
			}
		}
	}
	if len(missing) > 0 {
		fromDB, err := f.db.Get(ctx, missing)
		if err != nil {
			return nil, err
		}
		for k, v := range fromDB {
			out[k] = v
		}
		if f.cache != nil {
			_ = f.cache.Update(ctx, fromDB)
		}
	}
	return out, nil
}

func spanContextOf(ctx context.Context) opentracing.SpanContext {
	if span := opentracing.SpanFromContext(ctx); span != nil {
		return span.Context()
	}
	return nil
}

// IsFatal reports whether err is a BackendFatal error, the class Schema
// never retries (spec.md §7: "fatals surface immediately").
func IsFatal(err error) bool { return ErrBackendFatal.Is(err) }

// IsTransient reports whether err is a BackendTransient error.
func IsTransient(err error) bool { return ErrBackendTransient.Is(err) }
