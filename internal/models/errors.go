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

package models

import "errors"

// ErrNotFound is returned when an id, external email id, or thread id does
// not resolve to a stored row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned on an explicit create that violates a uniqueness
// constraint outside the designed get-or-create/upsert paths, e.g. creating
// a second project with the same name.
var ErrConflict = errors.New("already exists")
