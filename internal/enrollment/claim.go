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

// Status is the claim lifecycle state.
//
//	draft -> submitted -> confirmed
//	submitted | confirmed -> cancelled (terminal)
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the states that occupy capacity.
var ActiveStatuses = []Status{StatusSubmitted, StatusConfirmed}

// Selection names the three resources a principal claims: one from the
// primary-choice pair and two distinct electives.
type Selection struct {
	PrimaryID     int64 `json:"primary_id"`
	ElectiveOneID int64 `json:"elective_one_id"`
	ElectiveTwoID int64 `json:"elective_two_id"`
}

// ResourceIDs returns the selected resource ids in slot order.
func (s Selection) ResourceIDs() []int64 {
	return []int64{s.PrimaryID, s.ElectiveOneID, s.ElectiveTwoID}
}

// Claim is a principal's enrollment record. At most one row exists per
// principal; resubmission updates the row in place.
type Claim struct {
	ID          int64      `json:"id"`
	PrincipalID int64      `json:"principal_id"`
	Selection   Selection  `json:"selection"`
	Status      Status     `json:"status"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	Remark      string     `json:"remark,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Active reports whether the claim currently occupies capacity.
func (c *Claim) Active() bool {
	return c.Status == StatusSubmitted || c.Status == StatusConfirmed
}
