package generator

import "github.com/agbruneau/groupload/pkg/models"

// SampleGroups returns a fixed, valid sample for quick smoke tests.
// Each call returns a fresh copy.
func SampleGroups() []models.GroupRecord {
	return []models.GroupRecord{
		{
			GroupID:       "GRP_12345",
			GroupName:     "Acme Corporation Health Plan",
			GroupType:     models.KindCorporate,
			EffectiveDate: "2024-01-01",
			Status:        models.GroupActive,
			Members: []models.MemberRecord{
				{
					MemberID:    "GRP_12345_M1001",
					FirstName:   "John",
					LastName:    "Doe",
					Email:       "john.doe@acme.com",
					Phone:       "+1-555-0123",
					DateOfBirth: "1985-03-15",
					Address: &models.Address{
						Street: "123 Main St", City: "New York", State: "NY", ZipCode: "10001", Country: "USA",
					},
					EnrollmentDate: "2024-01-01",
					Status:         models.MemberActive,
				},
				{
					MemberID:    "GRP_12345_M1002",
					FirstName:   "Jane",
					LastName:    "Smith",
					Email:       "jane.smith@acme.com",
					Phone:       "+1-555-0124",
					DateOfBirth: "1990-07-22",
					Address: &models.Address{
						Street: "456 Oak Ave", City: "New York", State: "NY", ZipCode: "10002", Country: "USA",
					},
					EnrollmentDate: "2024-01-01",
					Status:         models.MemberActive,
				},
			},
			Metadata: map[string]interface{}{
				"plan_type":         "PPO",
				"coverage_level":    "employee_plus_family",
				"premium_amount":    1200.00,
				"deductible":        2000,
				"max_out_of_pocket": 5000,
			},
		},
	}
}
