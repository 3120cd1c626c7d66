/*
Package generator produces sample group records for demos and load tests.

Every record it returns has gone through models.ValidateGroup: the generator
is a source of valid input, not a way around validation.
*/
package generator

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/agbruneau/groupload/internal/config"
	"github.com/agbruneau/groupload/pkg/models"
	"github.com/brianvoe/gofakeit/v7"
)

// Corporate parameterizes corporate group generation.
type Corporate struct {
	CompanyName string // Defaults to config.GeneratorDefaultCompany.
	Employees   int    // Exact number of members of each record.
}

var (
	planTypes      = []string{"HMO", "PPO", "EPO", "POS"}
	coverageLevels = []string{"individual", "family", "employee_plus_spouse"}
	industries     = []string{"Technology", "Healthcare", "Finance", "Manufacturing", "Retail"}
)

// Generator builds random group records.
type Generator struct {
	fake                  *gofakeit.Faker
	maxMembers            int
	terminatedProbability float64
	now                   func() time.Time
	issued                map[string]struct{}
}

// Option customizes a Generator.
type Option func(*Generator)

// WithSeed makes the generated values reproducible.
func WithSeed(seed uint64) Option {
	return func(g *Generator) { g.fake = gofakeit.New(seed) }
}

// WithMaxMembers bounds the member count of non-corporate records.
func WithMaxMembers(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxMembers = n
		}
	}
}

// WithTerminatedProbability sets the share of terminated non-corporate groups.
func WithTerminatedProbability(p float64) Option {
	return func(g *Generator) { g.terminatedProbability = math.Max(0, math.Min(1, p)) }
}

// New creates a Generator with a random seed.
func New(opts ...Option) *Generator {
	g := &Generator{
		fake:                  gofakeit.New(0),
		maxMembers:            config.GeneratorMaxMembers,
		terminatedProbability: config.GeneratorTerminatedProbability,
		now:                   time.Now,
		issued:                make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns count records. With corporate parameters every record is
// a corporate group with exactly corp.Employees members; otherwise kind and
// member count are random.
func (g *Generator) Generate(count int, corp *Corporate) ([]models.GroupRecord, error) {
	if count < 0 {
		return nil, fmt.Errorf("count must not be negative, got %d", count)
	}
	groups := make([]models.GroupRecord, 0, count)
	for i := 0; i < count; i++ {
		var (
			group models.GroupRecord
			err   error
		)
		if corp != nil {
			group, err = g.CorporateGroup(corp.CompanyName, corp.Employees)
		} else {
			group, err = g.Group()
		}
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// Group generates one random group.
func (g *Generator) Group() (models.GroupRecord, error) {
	groupID := g.uniqueID(func() string { return fmt.Sprintf("GRP_%d", g.fake.Number(10000, 99999)) })
	today := g.today()

	members := make([]models.MemberRecord, g.fake.Number(1, g.maxMembers))
	for i := range members {
		members[i] = g.member(fmt.Sprintf("%s_M%04d", groupID, 1001+i), 18, 80, today.AddDate(-2, 0, 0))
		members[i].Status = models.MemberStatus(g.fake.RandomString([]string{
			string(models.MemberActive), string(models.MemberInactive),
			string(models.MemberPending), string(models.MemberTerminated),
		}))
	}

	effective := g.fake.DateRange(today.AddDate(-1, 0, 0), today)
	status := models.GroupActive
	termination := ""
	if g.fake.Float64() < g.terminatedProbability {
		termination = g.fake.DateRange(effective, today).Format(models.DateLayout)
		status = models.GroupTerminated
	}

	group := models.GroupRecord{
		GroupID:         groupID,
		GroupName:       g.fake.Company() + " Group Plan",
		GroupType:       models.GroupKinds[g.fake.Number(0, len(models.GroupKinds)-1)],
		EffectiveDate:   effective.Format(models.DateLayout),
		TerminationDate: termination,
		Status:          status,
		Members:         members,
		Metadata: map[string]interface{}{
			"plan_type":         g.fake.RandomString(planTypes),
			"coverage_level":    g.fake.RandomString(coverageLevels),
			"premium_amount":    roundCents(g.fake.Float64Range(200, 2000)),
			"deductible":        g.fake.Number(500, 5000),
			"max_out_of_pocket": g.fake.Number(1000, 10000),
		},
	}
	return models.ValidateGroup(group)
}

// CorporateGroup generates a corporate group with exactly employees members.
func (g *Generator) CorporateGroup(companyName string, employees int) (models.GroupRecord, error) {
	if employees < 0 {
		return models.GroupRecord{}, fmt.Errorf("employees must not be negative, got %d", employees)
	}
	companyName = strings.TrimSpace(companyName)
	if companyName == "" {
		companyName = config.GeneratorDefaultCompany
	}

	prefix := "CORP_" + strings.ToUpper(strings.ReplaceAll(companyName, " ", "_"))
	groupID := g.uniqueID(func() string { return fmt.Sprintf("%s_%d", prefix, g.fake.Number(1000, 9999)) })
	domain := emailPart(companyName)
	if domain == "" {
		domain = "example"
	}
	today := g.today()

	members := make([]models.MemberRecord, employees)
	for i := range members {
		m := g.member(fmt.Sprintf("%s_EMP%04d", groupID, i+1), 22, 65, today.AddDate(-1, 0, 0))
		m.Email = fmt.Sprintf("%s@%s.com", localPart(m.FirstName, m.LastName), domain)
		members[i] = m
	}

	group := models.GroupRecord{
		GroupID:       groupID,
		GroupName:     companyName + " Employee Health Plan",
		GroupType:     models.KindCorporate,
		EffectiveDate: g.fake.DateRange(today.AddDate(-1, 0, 0), today).Format(models.DateLayout),
		Status:        models.GroupActive,
		Members:       members,
		Metadata: map[string]interface{}{
			"plan_type":         "PPO",
			"coverage_level":    "employee_plus_family",
			"premium_amount":    roundCents(g.fake.Float64Range(800, 1500)),
			"deductible":        g.fake.Number(1000, 3000),
			"max_out_of_pocket": g.fake.Number(2000, 8000),
			"company_size":      employees,
			"industry":          g.fake.RandomString(industries),
		},
	}
	return models.ValidateGroup(group)
}

// member fills the kind-independent fields of a member.
func (g *Generator) member(id string, minAge, maxAge int, enrolledSince time.Time) models.MemberRecord {
	today := g.today()
	first := g.fake.FirstName()
	last := g.fake.LastName()
	return models.MemberRecord{
		MemberID:    id,
		FirstName:   first,
		LastName:    last,
		Email:       localPart(first, last) + "@" + g.fake.DomainName(),
		Phone:       g.fake.Phone(),
		DateOfBirth: g.fake.DateRange(today.AddDate(-maxAge, 0, 0), today.AddDate(-minAge, 0, 0)).Format(models.DateLayout),
		Address: &models.Address{
			Street:  g.fake.Street(),
			City:    g.fake.City(),
			State:   g.fake.StateAbr(),
			ZipCode: g.fake.Zip(),
			Country: "USA",
		},
		EnrollmentDate: g.fake.DateRange(enrolledSince, today).Format(models.DateLayout),
		Status:         models.MemberActive,
	}
}

// uniqueID draws identifiers until one has not been issued by this generator.
func (g *Generator) uniqueID(draw func() string) string {
	for {
		id := draw()
		if _, taken := g.issued[id]; !taken {
			g.issued[id] = struct{}{}
			return id
		}
	}
}

func (g *Generator) today() time.Time {
	y, m, d := g.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// emailPart lower-cases s and keeps only letters and digits.
func emailPart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// localPart builds first.last, skipping empty parts.
func localPart(first, last string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{emailPart(first), emailPart(last)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "member"
	}
	return strings.Join(parts, ".")
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
