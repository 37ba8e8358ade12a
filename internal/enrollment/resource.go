// Copyright 2026 The OpenEnroll Authors
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

package enrollment

import "time"

// Category partitions resources into the two selection groups: a student
// picks exactly one resource from the primary-choice pair and exactly two
// distinct resources from the elective group.
type Category string

const (
	CategoryPrimary  Category = "primary_choice"
	CategoryElective Category = "elective"
)

// Resource is a capacity-limited subject a principal may claim.
// Capacity 0 means unlimited. The live claim count is always derived from
// the claims table, never stored here.
type Resource struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Category    Category  `json:"category"`
	Description string    `json:"description,omitempty"`
	Capacity    int       `json:"capacity"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Unlimited reports whether the resource has no capacity bound.
func (r *Resource) Unlimited() bool {
	return r.Capacity <= 0
}

// Usage is the advisory per-resource view returned by Stats.
type Usage struct {
	ResourceID int64    `json:"resource_id"`
	Name       string   `json:"name"`
	Category   Category `json:"category"`
	Capacity   int      `json:"capacity"`
	Count      int      `json:"count"`
	Remaining  int      `json:"remaining"` // -1 when unlimited
	Unlimited  bool     `json:"unlimited"`
}
