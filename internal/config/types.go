package config

import (
	"github.com/alexisbeaulieu97/diva/internal/pipeline"
)

// ProjectFileName is the name of the project document inside a project directory.
const ProjectFileName = "project.yaml"

// Project represents the full project document.
type Project struct {
	Version         string                `yaml:"version" validate:"required,semver"`
	Name            string                `yaml:"name" validate:"required,min=1,max=100"`
	Description     string                `yaml:"description,omitempty"`
	DefaultPipeline int                   `yaml:"default_pipeline,omitempty" validate:"gte=0"`
	SelectedPage    int                   `yaml:"selected_page,omitempty" validate:"gte=-1"`
	Pipelines       []pipeline.Definition `yaml:"pipelines" validate:"required,min=1,dive"`
	Pages           []Page                `yaml:"pages,omitempty" validate:"omitempty,dive"`
}

// Page is one image of the project together with its pipeline assignment.
type Page struct {
	ID    int    `yaml:"id" validate:"gte=1"`
	Name  string `yaml:"name,omitempty"`
	Image string `yaml:"image" validate:"required"`
	// Pipeline 0 selects the project's default pipeline.
	Pipeline int `yaml:"pipeline,omitempty" validate:"gte=0"`
	// Params overrides processor parameters, keyed by node id.
	Params map[string]map[string]any `yaml:"params,omitempty"`
}

// DisplayName returns the page name, falling back to its image path.
func (p Page) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Image
}

// PipelineFor returns the id of the pipeline the page runs: its own
// assignment, or the default.
func (c *Project) PipelineFor(page Page) int {
	if page.Pipeline != 0 {
		return page.Pipeline
	}
	if c.DefaultPipeline != 0 {
		return c.DefaultPipeline
	}
	if len(c.Pipelines) > 0 {
		return c.Pipelines[0].ID
	}
	return 0
}

// Pipeline returns the definition with the given id.
func (c *Project) Pipeline(id int) (*pipeline.Definition, bool) {
	for i := range c.Pipelines {
		if c.Pipelines[i].ID == id {
			return &c.Pipelines[i], true
		}
	}
	return nil, false
}

// Page returns the page with the given id.
func (c *Project) Page(id int) (*Page, bool) {
	for i := range c.Pages {
		if c.Pages[i].ID == id {
			return &c.Pages[i], true
		}
	}
	return nil, false
}
