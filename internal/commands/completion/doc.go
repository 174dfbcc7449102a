// Copyright 2025 Tom Barlow
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

// Package completion provides shell completion scripts and the dynamic
// completion functions used by stepflow commands: definition files on
// disk, stored workflow ids, schema refs and step ids.
//
// Completion functions never fail loudly. Errors and panics yield an empty
// list so the shell falls back gracefully.
package completion
