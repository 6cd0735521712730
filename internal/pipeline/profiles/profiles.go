// internal/pipeline/profiles/profiles.go
package profiles

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/common/validation"
	"hotspot-selection/internal/models"

	"gopkg.in/yaml.v3"
)

var postTimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

var weightSchema = map[string]interface{}{
	"type":    "number",
	"minimum": 0,
	"maximum": 1,
}

var stringList = map[string]interface{}{
	"type":  "array",
	"items": map[string]interface{}{"type": "string", "minLength": 1},
}

var profileSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"platforms"},
	"properties": map[string]interface{}{
		"platforms": map[string]interface{}{
			"type":          "object",
			"minProperties": 1,
			"additionalProperties": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"scoring_weights"},
				"properties": map[string]interface{}{
					"name":                map[string]interface{}{"type": "string"},
					"display_name":        map[string]interface{}{"type": "string"},
					"target_audience":     stringList,
					"content_preferences": stringList,
					"style":               map[string]interface{}{"type": "string"},
					"strategy":            map[string]interface{}{"type": "string"},
					"best_post_times":     stringList,
					"optimal_length": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"min": map[string]interface{}{"type": "integer", "minimum": 0},
							"max": map[string]interface{}{"type": "integer", "minimum": 0},
						},
					},
					"domain_focus": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"primary":   stringList,
							"secondary": stringList,
							"avoid":     stringList,
						},
					},
					"scoring_weights": map[string]interface{}{
						"type": "object",
						"required": []interface{}{
							"content_match", "audience_relevance", "timeliness", "engagement_potential",
						},
						"properties": map[string]interface{}{
							"content_match":        weightSchema,
							"audience_relevance":   weightSchema,
							"timeliness":           weightSchema,
							"engagement_potential": weightSchema,
						},
					},
					"acceptance_threshold": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
				},
			},
		},
	},
}

type profileFile struct {
	Platforms map[string]models.PlatformProfile `yaml:"platforms"`
}

// Snapshot is an immutable set of platform profiles. Profiles returned from it
// are shared and must not be modified.
type Snapshot struct {
	profiles map[string]*models.PlatformProfile
	names    []string
	source   string
	version  int64
	loadedAt time.Time
}

func (s *Snapshot) Get(name string) (*models.PlatformProfile, bool) {
	p, ok := s.profiles[name]
	return p, ok
}

// Names lists the platform names in sorted order.
func (s *Snapshot) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *Snapshot) Len() int { return len(s.names) }

// Version increases by one with every successful reload.
func (s *Snapshot) Version() int64 { return s.version }

func (s *Snapshot) Source() string { return s.source }

func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Resolve returns the named profiles in request order; an empty request
// selects every profile. Unknown names fail the whole request.
func (s *Snapshot) Resolve(names []string) ([]*models.PlatformProfile, error) {
	if len(names) == 0 {
		names = s.names
	}

	out := make([]*models.PlatformProfile, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if seen[name] {
			continue
		}
		p, ok := s.profiles[name]
		if !ok {
			return nil, errors.NewUnknownPlatformError(name)
		}
		seen[name] = true
		out = append(out, p)
	}
	return out, nil
}

// ParseFile reads and validates a profile file.
func ParseFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigInvalidError(path, err.Error())
	}
	return Parse(data, path)
}

// Parse validates the document against the profile schema and the weight-sum
// rule. Any violation rejects the whole document.
func Parse(data []byte, source string) (*Snapshot, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewConfigInvalidError(source, fmt.Sprintf("yaml: %v", err))
	}
	if doc == nil {
		return nil, errors.NewConfigInvalidError(source, "empty profile document")
	}

	schema, err := validation.Compile(profileSchema)
	if err != nil {
		return nil, errors.NewConfigInvalidError(source, err.Error())
	}
	if res := schema.Validate(doc); !res.Valid {
		return nil, errors.NewConfigInvalidError(source, res.Error())
	}

	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.NewConfigInvalidError(source, fmt.Sprintf("yaml: %v", err))
	}

	snap := &Snapshot{
		profiles: make(map[string]*models.PlatformProfile, len(file.Platforms)),
		source:   source,
		loadedAt: time.Now().UTC(),
	}
	for key, p := range file.Platforms {
		p := p
		if p.Name == "" {
			p.Name = key
		}
		if p.Name != key {
			return nil, errors.NewConfigInvalidError(source,
				fmt.Sprintf("platform %q: name %q does not match its key", key, p.Name))
		}
		if err := checkProfile(&p); err != nil {
			return nil, errors.NewConfigInvalidError(source, fmt.Sprintf("platform %q: %v", key, err))
		}
		snap.profiles[key] = &p
		snap.names = append(snap.names, key)
	}
	sort.Strings(snap.names)
	return snap, nil
}

func checkProfile(p *models.PlatformProfile) error {
	if !p.ScoringWeights.Valid() {
		return fmt.Errorf("scoring weights must be non-negative and sum to 1, got %.6f",
			p.ScoringWeights.Sum())
	}
	if math.IsNaN(p.AcceptanceThreshold) || p.AcceptanceThreshold < 0 || p.AcceptanceThreshold > 1 {
		return fmt.Errorf("acceptance_threshold %v outside [0,1]", p.AcceptanceThreshold)
	}
	if p.OptimalLength.Max > 0 && p.OptimalLength.Min > p.OptimalLength.Max {
		return fmt.Errorf("optimal_length min %d exceeds max %d", p.OptimalLength.Min, p.OptimalLength.Max)
	}
	for _, t := range p.BestPostTimes {
		if !postTimePattern.MatchString(t) {
			return fmt.Errorf("best_post_times entry %q is not HH:MM", t)
		}
	}
	return nil
}
