package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyluth/collab/internal/model"
	"gopkg.in/yaml.v3"
)

// Definition is the persisted form of an experiment. Experiment models are
// stored in their authored order; shuffling happens in Build.
type Definition struct {
	Name         string             `json:"name" yaml:"name"`
	Participants int                `json:"participants" yaml:"participants"`
	Training     []model.Definition `json:"training_models" yaml:"training_models"`
	Experiment   []model.Definition `json:"experiment_models" yaml:"experiment_models"`
}

// Load reads an experiment definition from a YAML or JSON file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes a definition. JSON documents are accepted as YAML.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse experiment: %w", err)
	}
	return &def, nil
}

// Save writes the definition as JSON when path ends in .json, YAML otherwise.
func (d *Definition) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(d, "", "  ")
	} else {
		data, err = yaml.Marshal(d)
	}
	if err != nil {
		return fmt.Errorf("failed to encode experiment: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write experiment: %w", err)
	}
	return nil
}

// Build validates every model and constructs an Experiment in the ready phase.
func (d *Definition) Build(opts ...Option) (*Experiment, error) {
	training, err := buildModels(d.Training)
	if err != nil {
		return nil, fmt.Errorf("training models: %w", err)
	}
	trials, err := buildModels(d.Experiment)
	if err != nil {
		return nil, fmt.Errorf("experiment models: %w", err)
	}
	return New(d.Name, d.Participants, training, trials, opts...)
}

func buildModels(defs []model.Definition) ([]*model.Model, error) {
	models := make([]*model.Model, 0, len(defs))
	for _, def := range defs {
		md, err := model.New(def)
		if err != nil {
			return nil, err
		}
		models = append(models, md)
	}
	return models, nil
}
