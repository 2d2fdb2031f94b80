// Package model contains the CRM domain records passed between layers.
package model

import (
	"strings"
	"time"
)

// Status is the relationship an entity has with the business.
type Status string

// Known statuses.
const (
	StatusClient   Status = "client"
	StatusProspect Status = "prospect"
)

// Statuses lists every known status in display order.
func Statuses() []Status {
	return []Status{StatusClient, StatusProspect}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusClient || s == StatusProspect
}

// ParseStatus normalizes and validates a status string.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", InvalidArgument("model.parse_status", "unknown status %q", s)
	}
	return st, nil
}

// Entity is a company tracked by the CRM, either a client or a prospect.
// Score is derived from revenue, headcount and status and is never taken
// from callers.
type Entity struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Revenue   *int64    `json:"revenue,omitempty" yaml:"revenue,omitempty"`
	Employees *int64    `json:"employees,omitempty" yaml:"employees,omitempty"`
	Status    Status    `json:"status" yaml:"status"`
	Score     int       `json:"score" yaml:"score,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// RevenueOrZero returns the annual revenue, treating a missing value as 0.
func (e Entity) RevenueOrZero() int64 {
	if e.Revenue == nil {
		return 0
	}
	return *e.Revenue
}

// EmployeesOrZero returns the headcount, treating a missing value as 0.
func (e Entity) EmployeesOrZero() int64 {
	if e.Employees == nil {
		return 0
	}
	return *e.Employees
}

// Opportunity is a candidate deal. Value is in whole currency units and
// Probability is a percentage in [0,100].
type Opportunity struct {
	ID               string    `json:"id" yaml:"id"`
	EntityID         string    `json:"entity_id,omitempty" yaml:"entity_id,omitempty"`
	Title            string    `json:"title" yaml:"title"`
	Value            int64     `json:"value" yaml:"value"`
	Probability      int       `json:"probability" yaml:"probability"`
	Stage            string    `json:"stage,omitempty" yaml:"stage,omitempty"`
	RequiresApproval bool      `json:"requires_approval" yaml:"-"`
	UpdatedAt        time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// Int64 returns a pointer to v, for optional entity fields.
func Int64(v int64) *int64 { return &v }
