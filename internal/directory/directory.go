// Package directory is the in-memory agent and caller lookup used by
// the transfer orchestrator. It ships with a built-in fixture and can
// load a JSON file of the same shape instead.
package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"warm-transfer-service/internal/models"
)

// ErrAgentNotFound is returned when no directory agent matches.
var ErrAgentNotFound = errors.New("directory: agent not found")

// ErrCallerNotFound is returned when no caller record matches.
var ErrCallerNotFound = errors.New("directory: caller not found")

// Investor is a caller with an existing portfolio.
type Investor struct {
	Name               string   `json:"name"`
	Email              string   `json:"email"`
	InvestedAmount     int64    `json:"investedAmount"`
	PortfolioCompanies []string `json:"portfolioCompanies"`
}

// Prospect is a caller evaluating an investment.
type Prospect struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	InterestedAmount int64  `json:"interestedAmount"`
	Notes            string `json:"notes"`
	Source           string `json:"source"`
}

type fixture struct {
	Agents    []models.DirectoryAgent `json:"agents"`
	Investors []Investor              `json:"investors"`
	Prospects []Prospect              `json:"prospects"`
}

// Directory serves agent-by-role and caller-context lookups.
type Directory struct {
	mu   sync.RWMutex
	data fixture
}

// categoryRoles maps transfer categories to the role handling them.
var categoryRoles = map[string]string{
	"billing":    "Billing Specialist",
	"technical":  "Technical Specialist",
	"account":    "Account Manager",
	"compliance": "Compliance Officer",
}

const defaultRole = "General Partner"

// New returns a directory seeded with the built-in fixture.
func New() *Directory {
	return &Directory{data: defaultFixture()}
}

// Load reads a fixture file of the same JSON shape. An empty path
// yields the built-in fixture.
func Load(path string) (*Directory, error) {
	if path == "" {
		return New(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: read fixture: %w", err)
	}
	var data fixture
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("directory: parse fixture: %w", err)
	}
	return &Directory{data: data}, nil
}

// AgentByRole returns the first agent with the given role,
// case-insensitively.
func (d *Directory) AgentByRole(role string) (*models.DirectoryAgent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := range d.data.Agents {
		if strings.EqualFold(d.data.Agents[i].Role, role) {
			a := d.data.Agents[i]
			return &a, nil
		}
	}
	return nil, ErrAgentNotFound
}

// AgentForCategory resolves the agent handling a transfer category,
// falling back to the default role for unmapped categories.
func (d *Directory) AgentForCategory(category string) (*models.DirectoryAgent, error) {
	role, ok := categoryRoles[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		role = defaultRole
	}
	return d.AgentByRole(role)
}

// CallerContext looks up what is known about a caller by email and
// type ("investor" or "prospect") and renders a one-line background
// summary for the transfer hand-off.
func (d *Directory) CallerContext(email, callerType string) (*models.CallerContext, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	switch strings.ToLower(callerType) {
	case "investor":
		for _, inv := range d.data.Investors {
			if strings.EqualFold(inv.Email, email) {
				return &models.CallerContext{
					Type:    "investor",
					Email:   inv.Email,
					Name:    inv.Name,
					Summary: investorSummary(inv),
				}, nil
			}
		}
	case "prospect":
		for _, p := range d.data.Prospects {
			if strings.EqualFold(p.Email, email) {
				return &models.CallerContext{
					Type:    "prospect",
					Email:   p.Email,
					Name:    p.Name,
					Summary: prospectSummary(p),
				}, nil
			}
		}
	}
	return nil, ErrCallerNotFound
}

// Agents returns a copy of all directory agents.
func (d *Directory) Agents() []models.DirectoryAgent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.DirectoryAgent, len(d.data.Agents))
	copy(out, d.data.Agents)
	return out
}

func investorSummary(inv Investor) string {
	return fmt.Sprintf("Invested $%s across %d companies: %s",
		formatAmount(inv.InvestedAmount), len(inv.PortfolioCompanies),
		strings.Join(inv.PortfolioCompanies, ", "))
}

func prospectSummary(p Prospect) string {
	s := fmt.Sprintf("Interested in investing $%s.", formatAmount(p.InterestedAmount))
	if p.Notes != "" {
		s += " " + p.Notes
	}
	if p.Source != "" {
		s += " Source: " + p.Source
	}
	return s
}

// formatAmount renders an amount with thousands separators.
func formatAmount(v int64) string {
	if v < 0 {
		return "-" + formatAmount(-v)
	}
	s := fmt.Sprintf("%d", v)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func defaultFixture() fixture {
	return fixture{
		Agents: []models.DirectoryAgent{
			{ID: "agent-gp", Name: "Dana Reeves", Role: "General Partner", Phone: "+15550100001"},
			{ID: "agent-compliance", Name: "Miguel Ortiz", Role: "Compliance Officer", Phone: "+15550100002"},
			{ID: "agent-billing", Name: "Priya Shah", Role: "Billing Specialist", Phone: "+15550100003"},
			{ID: "agent-tech", Name: "Sam Kowalski", Role: "Technical Specialist", Phone: "+15550100004"},
			{ID: "agent-accounts", Name: "Lin Zhao", Role: "Account Manager", Phone: "+15550100005"},
		},
		Investors: []Investor{
			{
				Name:               "Jordan Blake",
				Email:              "jordan.blake@example.com",
				InvestedAmount:     2500000,
				PortfolioCompanies: []string{"Acme Robotics", "Northwind Energy", "Helio Labs"},
			},
		},
		Prospects: []Prospect{
			{
				Name:             "Casey Morgan",
				Email:            "casey.morgan@example.com",
				InterestedAmount: 500000,
				Notes:            "Met at the spring summit, interested in the growth fund.",
				Source:           "referral",
			},
		},
	}
}
