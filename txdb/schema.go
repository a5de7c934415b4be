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
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kvtxn/kvtxn/expr"
	"github.com/kvtxn/kvtxn/value"
)

// scheduleBackOff implements backoff.BackOff over a fixed, finite list of
// delays (spec.md §4.4/§7: "Schema(backoffs)" is given an explicit list of
// durations, not an open-ended exponential curve). Retry exhausts once the
// schedule runs out.
type scheduleBackOff struct {
	delays []time.Duration
	next   int
}

// NewScheduleBackOff returns a backoff.BackOff that yields each of delays
// in order, then backoff.Stop.
func NewScheduleBackOff(delays []time.Duration) backoff.BackOff {
	return &scheduleBackOff{delays: delays}
}

func (s *scheduleBackOff) NextBackOff() time.Duration {
	if s.next >= len(s.delays) {
		return backoff.Stop
	}
	d := s.delays[s.next]
	s.next++
	return d
}

func (s *scheduleBackOff) Reset() { s.next = 0 }

// Schema wraps an Executor with a bounded retry schedule applied to
// BackendTransient errors only; a BackendFatal error surfaces immediately
// (spec.md §7: "fatals surface immediately, transients retry on the given
// schedule, and exhausting the schedule raises RetriesExhausted").
type Schema struct {
	exec     *Executor
	schedule func() backoff.BackOff
}

// NewSchema builds a Schema retrying each Execute call with a fresh copy of
// the given delay schedule.
func NewSchema(exec *Executor, delays []time.Duration) *Schema {
	return &Schema{
		exec: exec,
		schedule: func() backoff.BackOff {
			return NewScheduleBackOff(delays)
		},
	}
}

// Run executes build's transaction, retrying BackendTransient failures on
// the configured schedule. Any other error (BackendFatal, a build error, an
// interpreter error) is returned as-is without a retry; a schedule that
// runs out before success returns the last transient error wrapped in
// ErrRetriesExhausted.
func (s *Schema) Run(ctx context.Context, build func(ctx context.Context) (expr.Transaction, error)) (*value.Literal, error) {
	var result *value.Literal
	var attempts int

	op := func() error {
		attempts++
		tx, err := build(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		v, execErr := s.exec.Execute(ctx, tx)
		if execErr == nil {
			result = v
			return nil
		}
		if !IsTransient(execErr) {
			return backoff.Permanent(execErr)
		}
		return execErr
	}

	// backoff.Retry unwraps a backoff.Permanent error before returning it, so
	// a non-nil err here is either a non-transient error (handed back
	// unchanged) or the last BackendTransient error once the schedule ran
	// out (wrapped in ErrRetriesExhausted).
	err := backoff.Retry(op, backoff.WithContext(s.schedule(), ctx))
	if err != nil {
		if !IsTransient(err) {
			return nil, err
		}
		return nil, ErrRetriesExhausted.Wrap(err, attempts, err.Error())
	}
	return result, nil
}

// Execute is the Schema-wrapped equivalent of Executor.Execute for a
// transaction already built (no per-attempt build step needed).
func (s *Schema) Execute(ctx context.Context, tx expr.Transaction) (*value.Literal, error) {
	return s.Run(ctx, func(context.Context) (expr.Transaction, error) { return tx, nil })
}
