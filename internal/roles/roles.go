// Package roles maps free-text "who" descriptions onto a canonical role
// taxonomy. Responsibilities bind to organizational roles, never named
// individuals; when no confident match exists the assignment is surfaced
// as unresolved rather than guessed.
package roles

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/relief-ops/checklist-cli/internal/dedupe"
	"github.com/relief-ops/checklist-cli/internal/model"
)

// Role is one canonical organizational position in the taxonomy.
type Role struct {
	ID      string   `yaml:"id" json:"id"`
	Title   string   `yaml:"title" json:"title"`
	Level   string   `yaml:"level,omitempty" json:"level,omitempty"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Taxonomy is the loaded role catalog.
type Taxonomy struct {
	Roles []Role `yaml:"roles"`
}

// Load reads a role taxonomy from a YAML file.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roles: read taxonomy %s", path)
	}
	var tax Taxonomy
	if err := yaml.Unmarshal(data, &tax); err != nil {
		return nil, eris.Wrapf(err, "roles: parse taxonomy %s", path)
	}
	if len(tax.Roles) == 0 {
		return nil, eris.Errorf("roles: taxonomy %s defines no roles", path)
	}
	return &tax, nil
}

// Resolver matches who text against the taxonomy.
type Resolver struct {
	tax       *Taxonomy
	threshold float64
}

// NewResolver creates a resolver. threshold is the minimum similarity for a
// fuzzy alias match; zero selects the 0.6 default.
func NewResolver(tax *Taxonomy, threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = 0.6
	}
	return &Resolver{tax: tax, threshold: threshold}
}

// Resolve finds the canonical role for who. The second return is false when
// no confident match exists.
func (r *Resolver) Resolve(who string) (*Role, bool) {
	normalized := strings.ToLower(strings.TrimSpace(who))
	if normalized == "" {
		return nil, false
	}

	// Exact title or alias match first.
	for i := range r.tax.Roles {
		role := &r.tax.Roles[i]
		if strings.ToLower(role.Title) == normalized {
			return role, true
		}
		for _, alias := range role.Aliases {
			if strings.ToLower(alias) == normalized {
				return role, true
			}
		}
	}

	// Fuzzy match above the threshold; best score wins.
	var best *Role
	bestScore := 0.0
	for i := range r.tax.Roles {
		role := &r.tax.Roles[i]
		for _, candidate := range append([]string{role.Title}, role.Aliases...) {
			score := dedupe.Similarity(who, "", candidate, "")
			if score > bestScore {
				bestScore = score
				best = role
			}
		}
	}
	if best != nil && bestScore >= r.threshold {
		return best, true
	}
	return nil, false
}

// Annotate returns a copy of the action with its role assignment set. An
// unresolved who keeps the action but marks it for explicit review.
func (r *Resolver) Annotate(a model.Action) model.Action {
	role, ok := r.Resolve(a.Who)
	if !ok {
		zap.L().Debug("unresolved role", zap.String("who", a.Who), zap.String("action_id", a.ID))
		a.Role = &model.RoleAssignment{Unresolved: true}
		return a
	}
	a.Role = &model.RoleAssignment{RoleID: role.ID, RoleTitle: role.Title}
	if a.Level == model.LevelUnspecified {
		a.Level = model.ParseOperationalLevel(role.Level)
	}
	return a
}
