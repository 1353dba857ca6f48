package interview

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/forge-interview/internal/model"
)

// PlanTemplate is a pre-authored round plan, used instead of generative
// planning when an operator already knows the ground to cover.
type PlanTemplate struct {
	Sections []TemplateSection `yaml:"sections"`
}

// TemplateSection is one section of a plan template.
type TemplateSection struct {
	Title     string             `yaml:"title"`
	Goal      string             `yaml:"goal"`
	Questions []TemplateQuestion `yaml:"questions"`
}

// TemplateQuestion is one question of a template section.
type TemplateQuestion struct {
	Text string `yaml:"text"`
	Goal string `yaml:"goal"`
}

// LoadPlanTemplate reads a round plan from a YAML file.
func LoadPlanTemplate(path string) (*PlanTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "interview: read plan template %s", path)
	}

	var tpl PlanTemplate
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, eris.Wrap(err, "interview: parse plan template")
	}
	if len(tpl.Sections) == 0 {
		return nil, eris.New("interview: plan template has no sections")
	}
	for _, sec := range tpl.Sections {
		if sec.Title == "" || len(sec.Questions) == 0 {
			return nil, eris.Errorf("interview: template section %q needs a title and at least one question", sec.Title)
		}
	}
	return &tpl, nil
}

// Sections converts the template to planned sections for the given forge
// and round.
func (t *PlanTemplate) SectionsFor(forgeID string, round int) []model.Section {
	sections := make([]model.Section, 0, len(t.Sections))
	for i, ts := range t.Sections {
		sec := model.Section{
			ForgeID:    forgeID,
			Title:      ts.Title,
			Goal:       ts.Goal,
			OrderIndex: i,
			Round:      round,
			Status:     model.SectionStatusPending,
		}
		for j, tq := range ts.Questions {
			sec.Questions = append(sec.Questions, model.Question{
				Text:       tq.Text,
				Goal:       tq.Goal,
				OrderIndex: j,
				Status:     model.QuestionStatusPending,
			})
		}
		sections = append(sections, sec)
	}
	return sections
}
