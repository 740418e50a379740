package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/diva/internal/pipeline"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

func baseProject() *Project {
	return &Project{
		Version: "1.0.0",
		Name:    "test",
		Pipelines: []pipeline.Definition{{
			ID:   1,
			Name: "edges",
			Nodes: []pipeline.NodeDef{
				{ID: "page", Service: "page"},
				{ID: "gray", Service: "grayscale"},
			},
			Edges: []pipeline.EdgeDef{{From: "page.image", To: "gray.image"}},
		}},
		Pages: []Page{{ID: 1, Image: "p1.png"}},
	}
}

func TestValidateProject(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(p *Project)
		field  string
	}{
		{
			name:   "node id must be an identifier",
			mutate: func(p *Project) { p.Pipelines[0].Nodes[1].ID = "9 gray" },
			field:  "project.pipelines[0].nodes[1].id",
		},
		{
			name:   "edge must be a port reference",
			mutate: func(p *Project) { p.Pipelines[0].Edges[0].To = "gray" },
			field:  "project.pipelines[0].edges[0].to",
		},
		{
			name:   "pipeline ids start at one",
			mutate: func(p *Project) { p.Pipelines[0].ID = 0 },
			field:  "project.pipelines[0].id",
		},
		{
			name: "duplicate pipeline ids",
			mutate: func(p *Project) {
				p.Pipelines = append(p.Pipelines, p.Pipelines[0])
			},
			field: "pipelines[1].id",
		},
		{
			name:   "edge to unknown node",
			mutate: func(p *Project) { p.Pipelines[0].Edges[0].To = "ocr.image" },
			field:  "pipelines[0].nodes",
		},
		{
			name:   "unknown default pipeline",
			mutate: func(p *Project) { p.DefaultPipeline = 4 },
			field:  "default_pipeline",
		},
		{
			name:   "page must have an image",
			mutate: func(p *Project) { p.Pages[0].Image = "" },
			field:  "project.pages[0].image",
		},
		{
			name:   "duplicate page ids",
			mutate: func(p *Project) { p.Pages = append(p.Pages, Page{ID: 1, Image: "x.png"}) },
			field:  "pages[1].id",
		},
		{
			name:   "page assigned to unknown pipeline",
			mutate: func(p *Project) { p.Pages[0].Pipeline = 3 },
			field:  "pages[0].pipeline",
		},
		{
			name: "page parameters for unknown node",
			mutate: func(p *Project) {
				p.Pages[0].Params = map[string]map[string]any{"sobel": {"band": 2}}
			},
			field: "pages[0].params",
		},
		{
			name:   "selected page must exist",
			mutate: func(p *Project) { p.SelectedPage = 5 },
			field:  "selected_page",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := baseProject()
			tc.mutate(p)

			err := ValidateProject(p)
			var validationErr *divaerrors.ValidationError
			require.ErrorAs(t, err, &validationErr)
			require.Equal(t, tc.field, validationErr.Field)
		})
	}
}

func TestValidateProject_AcceptsBaseProject(t *testing.T) {
	t.Parallel()

	p := baseProject()
	p.SelectedPage = -1
	require.NoError(t, ValidateProject(p))
	require.Error(t, ValidateProject(nil))
}

func TestValidateProject_ReportsCycles(t *testing.T) {
	t.Parallel()

	p := baseProject()
	p.Pipelines[0].Nodes = append(p.Pipelines[0].Nodes, pipeline.NodeDef{ID: "sobel", Service: "sobel"})
	p.Pipelines[0].Edges = []pipeline.EdgeDef{
		{From: "gray.gray", To: "sobel.matrix"},
		{From: "sobel.dx", To: "gray.image"},
	}

	err := ValidateProject(p)
	require.ErrorIs(t, err, divaerrors.ErrCyclicPipeline)

	var cycleErr *divaerrors.CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.Equal(t, []string{"gray", "sobel", "gray"}, cycleErr.Path)
}

func TestGetValidatorIsShared(t *testing.T) {
	t.Parallel()

	require.Same(t, GetValidator(), GetValidator())

	type ref struct {
		Port string `validate:"port_ref"`
		Node string `validate:"node_id"`
	}
	require.NoError(t, GetValidator().Struct(ref{Port: "sobel.dx", Node: "sobel_2"}))
	require.Error(t, GetValidator().Struct(ref{Port: "sobel.dx.extra", Node: "sobel"}))
	require.Error(t, GetValidator().Struct(ref{Port: ".dx", Node: "sobel"}))
	require.Error(t, GetValidator().Struct(ref{Port: "sobel.dx", Node: "so.bel"}))
}
