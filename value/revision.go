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

package value

// Revision is the (version, value) pair persisted under each key
// (spec.md §3). Version is monotonically increasing per key; a never-
// written key is represented by the zero Revision, Version 0 and a None
// value (spec.md §6: "missing keys map to (0, none)").
type Revision struct {
	Version uint64
	Value   *Literal
}

// ZeroRevision is the revision observed for a key that has never been
// written.
func ZeroRevision() Revision {
	return Revision{Version: 0, Value: None()}
}
