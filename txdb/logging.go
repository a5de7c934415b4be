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
	"github.com/sirupsen/logrus"

	"github.com/kvtxn/kvtxn/interp"
	"github.com/kvtxn/kvtxn/value"

	"context"

	"github.com/kvtxn/kvtxn/expr"
)

// Logger is the leveled, structured logging surface the Executor's commit
// loop logs through — the same shape as logrus.FieldLogger, narrowed to
// what this package uses. Schema's retry loop does not log.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

func defaultLogger() Logger {
	l := logrus.New()
	return l
}

// runInterp is the seam between txdb and interp; kept in its own small
// function so the Executor's retry loop in txdb.go reads as the spec's
// execute() pseudocode almost verbatim.
func runInterp(ctx context.Context, tx expr.Transaction, fetcher interp.Fetcher) (*value.Literal, *interp.Context, error) {
	return interp.Run(ctx, tx, fetcher)
}
