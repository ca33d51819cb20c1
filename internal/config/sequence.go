package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// SequenceStep is one templated email step in the outreach sequence.
// Subject and Message may reference vendor template variables such as
// {{firstName}} and {{companyName}}.
type SequenceStep struct {
	Subject   string `yaml:"subject"`
	Message   string `yaml:"message"`
	DelayDays int    `yaml:"delay_days"`
}

// Sequence is the ordered list of steps created on every new campaign.
type Sequence struct {
	Steps []SequenceStep `yaml:"steps"`
}

// LoadSequence reads the campaign sequence template file.
func LoadSequence(path string) (*Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read sequence file %s", path)
	}

	var seq Sequence
	if err := yaml.Unmarshal(data, &seq); err != nil {
		return nil, eris.Wrapf(err, "config: parse sequence file %s", path)
	}
	if len(seq.Steps) == 0 {
		return nil, eris.Errorf("config: sequence file %s has no steps", path)
	}
	for i, step := range seq.Steps {
		if step.Subject == "" || step.Message == "" {
			return nil, eris.Errorf("config: sequence step %d is missing subject or message", i)
		}
	}
	return &seq, nil
}
