package brain

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"applier/orchestrator"
)

// StaticProfile holds the applicant facts used for exact-match answers.
type StaticProfile struct {
	Name               string   `yaml:"name"`
	Email              string   `yaml:"email"`
	Phone              string   `yaml:"phone"`
	LinkedIn           string   `yaml:"linkedin"`
	GitHub             string   `yaml:"github"`
	Location           string   `yaml:"location"`
	CurrentTitle       string   `yaml:"current_title"`
	YearsOfExperience  int      `yaml:"years_of_experience"`
	Skills             []string `yaml:"skills"`
	Availability       string   `yaml:"availability"`
	WorkAuthorization  string   `yaml:"work_authorization"`
	SalaryExpectation  string   `yaml:"salary_expectation"`
	PreferredLocations []string `yaml:"preferred_locations"`
}

// LoadProfile reads a YAML profile file.
func LoadProfile(path string) (*StaticProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var profile StaticProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	return &profile, nil
}

// profileMatchConfidence is the score for a direct profile hit.
const profileMatchConfidence = 0.95

type fieldMapping struct {
	patterns []string
	value    func(p *StaticProfile) string
}

// Pattern order matters: earlier entries win when a question mentions
// several profile facts.
var fieldMappings = []fieldMapping{
	{[]string{"email", "e-mail"}, func(p *StaticProfile) string { return p.Email }},
	{[]string{"phone", "mobile", "contact number"}, func(p *StaticProfile) string { return p.Phone }},
	{[]string{"linkedin"}, func(p *StaticProfile) string { return p.LinkedIn }},
	{[]string{"github"}, func(p *StaticProfile) string { return orDefault(p.GitHub, "N/A") }},
	{[]string{"full name", "your name", "name"}, func(p *StaticProfile) string { return p.Name }},
	{[]string{"location", "city", "where are you based"}, func(p *StaticProfile) string { return p.Location }},
	{[]string{"years of experience", "how many years", "experience"}, func(p *StaticProfile) string { return strconv.Itoa(p.YearsOfExperience) }},
	{[]string{"current role", "current position", "job title"}, func(p *StaticProfile) string { return p.CurrentTitle }},
	{[]string{"availability", "notice period", "when can you join"}, func(p *StaticProfile) string { return orDefault(p.Availability, "Immediately") }},
	{[]string{"work authorization", "visa status", "work permit"}, func(p *StaticProfile) string { return orDefault(p.WorkAuthorization, "Authorized to work") }},
	{[]string{"salary", "compensation", "ctc"}, func(p *StaticProfile) string { return orDefault(p.SalaryExpectation, "As per market standards") }},
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// ProfileOracle answers standard form questions straight from the static
// profile with high confidence, delegating anything else to an optional
// next oracle.
type ProfileOracle struct {
	profile *StaticProfile
	next    orchestrator.Oracle
}

func NewProfileOracle(profile *StaticProfile, next orchestrator.Oracle) *ProfileOracle {
	return &ProfileOracle{profile: profile, next: next}
}

func (o *ProfileOracle) Ask(ctx context.Context, question, jobContext string) (orchestrator.Answer, error) {
	if o.profile != nil {
		if answer, ok := o.matchProfile(question); ok {
			return answer, nil
		}
	}
	if o.next != nil {
		return o.next.Ask(ctx, question, jobContext)
	}
	// Nothing to say: confidence 0 routes the question to a human.
	return orchestrator.Answer{}, nil
}

func (o *ProfileOracle) matchProfile(question string) (orchestrator.Answer, bool) {
	q := strings.ToLower(question)

	for _, mapping := range fieldMappings {
		for _, pattern := range mapping.patterns {
			if strings.Contains(q, pattern) {
				return orchestrator.Answer{
					Text:       mapping.value(o.profile),
					Confidence: profileMatchConfidence,
				}, true
			}
		}
	}

	if strings.Contains(q, "skill") || strings.Contains(q, "technologies") {
		return orchestrator.Answer{
			Text:       strings.Join(o.profile.Skills, ", "),
			Confidence: profileMatchConfidence,
		}, true
	}

	return orchestrator.Answer{}, false
}
