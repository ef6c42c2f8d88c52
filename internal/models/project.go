package models

// ConcernTemplate is a reusable, versioned block of objection text an
// applicant may select and order.
type ConcernTemplate struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Version int    `json:"version"`
}

// ProjectConfig is the per-project configuration consumed by the
// workflow: pathway, track templates, council contact and merge-field
// defaults. Owned by the project configuration store; the engine only
// reads it.
type ProjectConfig struct {
	ProjectID        string            `json:"projectId"`
	Name             string            `json:"name"`
	Pathway          Pathway           `json:"pathway"`
	DualTrack        bool              `json:"dualTrack"`
	CouncilEmail     string            `json:"councilEmail"`
	CouncilName      string            `json:"councilName"`
	CoverTemplateID  string            `json:"coverTemplateId"`
	GroundsTemplates map[Track]string  `json:"groundsTemplates"`
	Concerns         []ConcernTemplate `json:"concerns"`
	BackgroundFacts  []string          `json:"backgroundFacts"`
	MergeDefaults    map[string]string `json:"mergeDefaults,omitempty"`
}

// ConcernBodies resolves ordered concern keys against the project's
// templates, preserving the applicant's ordering and skipping unknown
// keys.
func (p *ProjectConfig) ConcernBodies(keys []string) []string {
	byKey := make(map[string]string, len(p.Concerns))
	for _, c := range p.Concerns {
		byKey[c.Key] = c.Body
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if body, ok := byKey[k]; ok {
			out = append(out, body)
		}
	}
	return out
}

// GroundsTemplateFor picks the grounds template for a track, falling
// back to the single-track template.
func (p *ProjectConfig) GroundsTemplateFor(track Track) string {
	if id, ok := p.GroundsTemplates[track]; ok {
		return id
	}
	return p.GroundsTemplates[TrackSingle]
}
