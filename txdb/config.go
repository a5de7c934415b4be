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
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the tunable surface of a Schema deployment: the bounded retry
// schedule of spec.md §7 and the size of the optional Cache layer in front
// of Database.Get. Expressed as a small YAML document rather than flags so
// it can be checked into a deploy and diffed like any other config.
type Config struct {
	// RetryDelays lists the delay before each retry attempt after a
	// BackendTransient error; its length bounds the number of retries
	// (spec.md §7's ErrRetriesExhausted fires once the schedule runs out).
	RetryDelays []time.Duration `yaml:"retryDelays"`
	// CacheCapacity is the entry count for a Cache layer such as cache.New.
	// Neither ParseConfig nor NewSchemaFromConfig builds a cache from it,
	// and cache.New treats a capacity of zero or less as 1.
	CacheCapacity int `yaml:"cacheCapacity"`
}

// ParseConfig decodes a YAML document into a Config.
func ParseConfig(doc []byte) (Config, error) {
	var raw struct {
		RetryDelays   []string `yaml:"retryDelays"`
		CacheCapacity int      `yaml:"cacheCapacity"`
	}
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return Config{}, err
	}
	cfg := Config{CacheCapacity: raw.CacheCapacity}
	for _, s := range raw.RetryDelays {
		d, err := time.ParseDuration(s)
		if err != nil {
			return Config{}, err
		}
		cfg.RetryDelays = append(cfg.RetryDelays, d)
	}
	return cfg, nil
}

// NewSchemaFromConfig builds a Schema over exec using cfg's retry schedule.
func NewSchemaFromConfig(exec *Executor, cfg Config) *Schema {
	return NewSchema(exec, cfg.RetryDelays)
}
