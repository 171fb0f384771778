// Copyright (c) 2026 John Earle
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

// Package sink defines the output contract the result processor hands
// filled batches to, plus the reference sink implementations.
package sink

import "github.com/bcem/auditcollector/internal/processor"

// Sink accepts one flush's worth of per-content-type batches and
// returns once they have been durably handed off by that sink's own
// definition of durable. A sink that cannot deliver returns an error,
// which is fatal to the run. Defined canonically on processor.Sink so
// the processor package never needs to import this one.
type Sink = processor.Sink
