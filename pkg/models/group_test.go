package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validGroup() GroupRecord {
	return GroupRecord{
		GroupID:       "GRP_12345",
		GroupName:     "Acme Corporation Health Plan",
		GroupType:     KindCorporate,
		EffectiveDate: "2024-01-01",
		Status:        GroupActive,
		Members: []MemberRecord{
			{
				MemberID:       "GRP_12345_M1001",
				FirstName:      "John",
				LastName:       "Doe",
				Email:          "john.doe@acme.com",
				Phone:          "+1-555-0123",
				DateOfBirth:    "1985-03-15",
				Address:        &Address{Street: "123 Main St", City: "New York", State: "NY", ZipCode: "10001", Country: "USA"},
				EnrollmentDate: "2024-01-01",
				Status:         MemberActive,
			},
			{
				MemberID:  "GRP_12345_M1002",
				FirstName: "Jane",
				LastName:  "Smith",
				Email:     "jane.smith@acme.com",
			},
		},
		Metadata: map[string]interface{}{"plan_type": "PPO"},
	}
}

func TestValidateGroupValid(t *testing.T) {
	g, err := ValidateGroup(validGroup())
	require.NoError(t, err)

	assert.Equal(t, MemberActive, g.Members[1].Status, "member status should default to active")
	assert.False(t, g.CreatedAt.IsZero())
	assert.Equal(t, g.CreatedAt, g.UpdatedAt)
	assert.True(t, g.IsValid())
}

func TestValidateGroupIdempotent(t *testing.T) {
	raw := validGroup()
	raw.GroupType = "  Family "
	raw.Status = ""
	raw.Members[0].Address.City = " New York "

	once, err := ValidateGroup(raw)
	require.NoError(t, err)
	twice, err := ValidateGroup(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, KindFamily, once.GroupType)
	assert.Equal(t, GroupActive, once.Status)
	assert.Equal(t, " New York ", raw.Members[0].Address.City, "input must not be modified")
}

func TestValidateGroupTerminationBeforeEffective(t *testing.T) {
	g := validGroup()
	g.TerminationDate = "2023-12-31"

	_, err := ValidateGroup(g)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRecord))

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "termination_date", vErr.Field)

	g.TerminationDate = "2024-01-01"
	_, err = ValidateGroup(g)
	assert.NoError(t, err, "termination on the effective date is allowed")
}

func TestValidateGroupFirstViolation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GroupRecord)
		field  string
	}{
		{"missing id", func(g *GroupRecord) { g.GroupID = "  " }, "group_id"},
		{"missing name before bad kind", func(g *GroupRecord) { g.GroupName = ""; g.GroupType = "club" }, "group_name"},
		{"bad date before bad kind", func(g *GroupRecord) { g.EffectiveDate = "01/01/2024"; g.GroupType = "club" }, "effective_date"},
		{"bad kind", func(g *GroupRecord) { g.GroupType = "club" }, "group_type"},
		{"bad status", func(g *GroupRecord) { g.Status = "inactive" }, "status"},
		{"member missing email", func(g *GroupRecord) { g.Members[1].Email = "" }, "members[1].email"},
		{"member bad email", func(g *GroupRecord) { g.Members[0].Email = "not-an-email" }, "members[0].email"},
		{"member bad birth date", func(g *GroupRecord) { g.Members[0].DateOfBirth = "1985-13-40" }, "members[0].date_of_birth"},
		{"member bad status", func(g *GroupRecord) { g.Members[1].Status = "retired" }, "members[1].status"},
		{"duplicate member", func(g *GroupRecord) { g.Members[1].MemberID = g.Members[0].MemberID }, "members[1].member_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := validGroup()
			tt.mutate(&g)

			_, err := ValidateGroup(g)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestValidateGroupAcceptsTimestampDates(t *testing.T) {
	g := validGroup()
	g.EffectiveDate = "2024-01-01T10:00:00Z"
	g.TerminationDate = "2024-01-01"

	_, err := ValidateGroup(g)
	assert.NoError(t, err)
}

func TestParseGroup(t *testing.T) {
	g, err := ParseGroup([]byte(`{
		"group_id": "GRP_1",
		"group_name": "Plan",
		"group_type": "individual",
		"effective_date": "2024-02-01",
		"termination_date": null,
		"members": [{"member_id": "M1", "first_name": "A", "last_name": "B", "email": "a@b.io"}],
		"created_at": "2024-02-01T00:00:00Z",
		"updated_at": "2024-02-02T00:00:00Z",
		"extra": "ignored"
	}`))
	require.NoError(t, err)

	assert.Equal(t, "GRP_1", g.GroupID)
	assert.Equal(t, KindIndividual, g.GroupType)
	assert.Equal(t, GroupActive, g.Status)
	assert.Equal(t, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), g.UpdatedAt)
}

func TestParseGroupMembersKey(t *testing.T) {
	g, err := ParseGroup([]byte(`{"group_id": "GRP_1", "group_name": "Plan", "group_type": "family",
		"effective_date": "2024-02-01", "members": []}`))
	require.NoError(t, err)
	assert.Empty(t, g.Members)

	for _, raw := range []string{
		`{"group_id": "GRP_1", "group_name": "Plan", "group_type": "family", "effective_date": "2024-02-01"}`,
		`{"group_id": "GRP_1", "group_name": "Plan", "group_type": "family", "effective_date": "2024-02-01", "members": null}`,
	} {
		_, err := ParseGroup([]byte(raw))
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr), raw)
		assert.Equal(t, "members", vErr.Field)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	}
}

func TestParseGroupTypeMismatch(t *testing.T) {
	_, err := ParseGroup([]byte(`{"group_id": 42, "group_name": "x"}`))

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "group_id", vErr.Field)
}

func TestParseGroupMalformed(t *testing.T) {
	_, err := ParseGroup([]byte(`{"group_id": `))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestSplitRecords(t *testing.T) {
	records, err := SplitRecords([]byte(`  {"group_id": "A"} `))
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = SplitRecords([]byte(`[{"group_id": "A"}, {"group_id": 3}, {}]`))
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, err = SplitRecords([]byte(`"text"`))
	assert.Error(t, err)

	_, err = SplitRecords([]byte("  "))
	assert.Error(t, err)
}

func TestPeekGroupID(t *testing.T) {
	assert.Equal(t, "GRP_9", PeekGroupID([]byte(`{"group_id": " GRP_9 ", "members": "bad"}`)))
	assert.Equal(t, "unknown", PeekGroupID([]byte(`{"group_id": 9}`)))
	assert.Equal(t, "unknown", PeekGroupID([]byte(`not json`)))
}

func TestGroupLoadMessage(t *testing.T) {
	g, err := ValidateGroup(validGroup())
	require.NoError(t, err)

	msg := NewGroupLoadMessage("qa", g)
	assert.Equal(t, MessageTypeGroupLoad, msg.MessageType)
	assert.NotEmpty(t, msg.MessageID)

	data, err := msg.Marshal()
	require.NoError(t, err)

	decoded, err := DecodeGroupLoadMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg.MessageID, decoded.MessageID)
	assert.Equal(t, "qa", decoded.Environment)
	assert.Equal(t, g.GroupID, decoded.GroupDetails.GroupID)
	assert.Len(t, decoded.GroupDetails.Members, 2)
}

func TestDecodeGroupLoadMessageRejects(t *testing.T) {
	_, err := DecodeGroupLoadMessage([]byte(`{"message_type": "order", "message_id": "x"}`))
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = DecodeGroupLoadMessage([]byte(`{"message_type": "group_load", "message_id": "not-a-uuid"}`))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}
