/*
Package models defines the group load records published by the tool.

A GroupRecord describes an insurance group and its members. Records are
validated once when they are built or parsed and are treated as immutable
afterwards; the broker is responsible for persisting them after publication.
*/
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout of every calendar date in a record.
const DateLayout = "2006-01-02"

// GroupKind is the closed set of group types.
type GroupKind string

const (
	KindCorporate     GroupKind = "corporate"
	KindIndividual    GroupKind = "individual"
	KindFamily        GroupKind = "family"
	KindSmallBusiness GroupKind = "small_business"
)

// GroupKinds lists every valid GroupKind.
var GroupKinds = []GroupKind{KindCorporate, KindIndividual, KindFamily, KindSmallBusiness}

// GroupStatus is the lifecycle status of a group.
type GroupStatus string

const (
	GroupActive     GroupStatus = "active"
	GroupTerminated GroupStatus = "terminated"
)

// MemberStatus is the enrollment status of a member.
type MemberStatus string

const (
	MemberActive     MemberStatus = "active"
	MemberInactive   MemberStatus = "inactive"
	MemberPending    MemberStatus = "pending"
	MemberTerminated MemberStatus = "terminated"
)

// MemberStatuses lists every valid MemberStatus.
var MemberStatuses = []MemberStatus{MemberActive, MemberInactive, MemberPending, MemberTerminated}

// Address is the postal address of a member.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

// MemberRecord is one member of a group. It has no lifecycle of its own.
type MemberRecord struct {
	MemberID       string       `json:"member_id" validate:"required"`  // Unique within the owning group.
	FirstName      string       `json:"first_name" validate:"required"` // Member first name.
	LastName       string       `json:"last_name" validate:"required"`  // Member last name.
	Email          string       `json:"email" validate:"required"`      // Member email address.
	Phone          string       `json:"phone,omitempty"`                // Member phone number.
	DateOfBirth    string       `json:"date_of_birth,omitempty"`        // YYYY-MM-DD.
	Address        *Address     `json:"address,omitempty"`              // Postal address.
	EnrollmentDate string       `json:"enrollment_date,omitempty"`      // YYYY-MM-DD.
	Status         MemberStatus `json:"status"`                         // Defaults to active.
}

// GroupRecord is the unit published to the topic, keyed by GroupID.
type GroupRecord struct {
	GroupID         string                 `json:"group_id" validate:"required"`
	GroupName       string                 `json:"group_name" validate:"required"`
	GroupType       GroupKind              `json:"group_type" validate:"required"`
	EffectiveDate   string                 `json:"effective_date" validate:"required"`
	TerminationDate string                 `json:"termination_date,omitempty"`
	Status          GroupStatus            `json:"status"`
	Members         []MemberRecord         `json:"members" validate:"required"` // Key required, may be empty.
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// ParseGroup decodes and validates one group record.
func ParseGroup(data []byte) (GroupRecord, error) {
	var g GroupRecord
	if err := json.Unmarshal(data, &g); err != nil {
		return GroupRecord{}, decodeError(err)
	}
	if err := g.Validate(); err != nil {
		return GroupRecord{}, err
	}
	return g, nil
}

// SplitRecords splits a file payload into raw records. The payload is either
// a single JSON object or a JSON array of objects. Records are not decoded so
// that one malformed record does not prevent reading the others.
func SplitRecords(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty input")
	}
	if trimmed[0] == '{' {
		return []json.RawMessage{json.RawMessage(trimmed)}, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("input must be a JSON object or array of objects: %w", err)
	}
	return records, nil
}

// PeekGroupID extracts the group identifier from a raw record without
// validating it. It returns "unknown" when no identifier can be read.
func PeekGroupID(data []byte) string {
	var probe struct {
		GroupID interface{} `json:"group_id"`
	}
	if err := json.Unmarshal(data, &probe); err == nil {
		if id, ok := probe.GroupID.(string); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	}
	return "unknown"
}

// ValidateGroup returns a normalized, validated copy of g. The input is not
// modified. Validating an already validated record returns an equal record.
func ValidateGroup(g GroupRecord) (GroupRecord, error) {
	c := g.clone()
	if err := c.Validate(); err != nil {
		return GroupRecord{}, err
	}
	return c, nil
}

// Validate normalizes the record in place and checks it. Checks run in this
// order and stop at the first violation: required fields, date parsing,
// enumeration membership, date ordering, then each member in order.
func (g *GroupRecord) Validate() error {
	g.normalize()

	if err := checkRequired(g, ""); err != nil {
		return err
	}

	effective, err := parseDate("effective_date", g.EffectiveDate)
	if err != nil {
		return err
	}
	var termination time.Time
	if g.TerminationDate != "" {
		if termination, err = parseDate("termination_date", g.TerminationDate); err != nil {
			return err
		}
	}

	if !g.GroupType.Valid() {
		return invalid("group_type", "must be one of: corporate individual family small_business")
	}
	if !g.Status.Valid() {
		return invalid("status", "must be one of: active terminated")
	}

	if !termination.IsZero() && termination.Before(effective) {
		return invalid("termination_date", fmt.Sprintf("%s is before effective_date %s", g.TerminationDate, g.EffectiveDate))
	}

	seen := make(map[string]int, len(g.Members))
	for i := range g.Members {
		prefix := fmt.Sprintf("members[%d].", i)
		if err := g.Members[i].validate(prefix); err != nil {
			return err
		}
		if first, dup := seen[g.Members[i].MemberID]; dup {
			return invalid(prefix+"member_id", fmt.Sprintf("duplicates members[%d]", first))
		}
		seen[g.Members[i].MemberID] = i
	}

	return nil
}

// IsValid returns true if the record passes validation.
func (g GroupRecord) IsValid() bool {
	_, err := ValidateGroup(g)
	return err == nil
}

func (m *MemberRecord) validate(prefix string) error {
	if err := checkRequired(m, prefix); err != nil {
		return err
	}
	if m.DateOfBirth != "" {
		if _, err := parseDate(prefix+"date_of_birth", m.DateOfBirth); err != nil {
			return err
		}
	}
	if m.EnrollmentDate != "" {
		if _, err := parseDate(prefix+"enrollment_date", m.EnrollmentDate); err != nil {
			return err
		}
	}
	if err := checkVar(m.Email, "email", prefix+"email", "must be a valid email address"); err != nil {
		return err
	}
	if !m.Status.Valid() {
		return invalid(prefix+"status", "must be one of: active inactive pending terminated")
	}
	return nil
}

// Valid reports whether k is one of GroupKinds.
func (k GroupKind) Valid() bool {
	for _, v := range GroupKinds {
		if k == v {
			return true
		}
	}
	return false
}

// Valid reports whether s is active or terminated.
func (s GroupStatus) Valid() bool {
	return s == GroupActive || s == GroupTerminated
}

// Valid reports whether s is one of MemberStatuses.
func (s MemberStatus) Valid() bool {
	for _, v := range MemberStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (g *GroupRecord) normalize() {
	g.GroupID = strings.TrimSpace(g.GroupID)
	g.GroupName = strings.TrimSpace(g.GroupName)
	g.GroupType = GroupKind(strings.ToLower(strings.TrimSpace(string(g.GroupType))))
	g.EffectiveDate = strings.TrimSpace(g.EffectiveDate)
	g.TerminationDate = strings.TrimSpace(g.TerminationDate)
	g.Status = GroupStatus(strings.ToLower(strings.TrimSpace(string(g.Status))))
	if g.Status == "" {
		g.Status = GroupActive
	}

	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = g.CreatedAt
	}

	for i := range g.Members {
		g.Members[i].normalize()
	}
}

func (m *MemberRecord) normalize() {
	m.MemberID = strings.TrimSpace(m.MemberID)
	m.FirstName = strings.TrimSpace(m.FirstName)
	m.LastName = strings.TrimSpace(m.LastName)
	m.Email = strings.TrimSpace(m.Email)
	m.Phone = strings.TrimSpace(m.Phone)
	m.DateOfBirth = strings.TrimSpace(m.DateOfBirth)
	m.EnrollmentDate = strings.TrimSpace(m.EnrollmentDate)
	m.Status = MemberStatus(strings.ToLower(strings.TrimSpace(string(m.Status))))
	if m.Status == "" {
		m.Status = MemberActive
	}
	if m.Address != nil {
		m.Address.Street = strings.TrimSpace(m.Address.Street)
		m.Address.City = strings.TrimSpace(m.Address.City)
		m.Address.State = strings.TrimSpace(m.Address.State)
		m.Address.ZipCode = strings.TrimSpace(m.Address.ZipCode)
		m.Address.Country = strings.TrimSpace(m.Address.Country)
	}
}

func (g GroupRecord) clone() GroupRecord {
	c := g
	if g.Members != nil {
		c.Members = make([]MemberRecord, len(g.Members))
		copy(c.Members, g.Members)
		for i := range c.Members {
			if a := c.Members[i].Address; a != nil {
				cp := *a
				c.Members[i].Address = &cp
			}
		}
	}
	return c
}

// parseDate accepts YYYY-MM-DD and RFC3339 timestamps. A timestamp compares
// by its calendar date.
func parseDate(field, value string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		y, mo, d := t.Date()
		return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, invalid(field, fmt.Sprintf("%q is not a date (want YYYY-MM-DD)", value))
}
