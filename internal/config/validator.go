package config

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/diva/internal/pipeline"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	semverPattern = regexp.MustCompile(`^\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
	nodeIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("node_id", func(fl validator.FieldLevel) bool {
			return nodeIDPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("port_ref", func(fl validator.FieldLevel) bool {
			ref, err := pipeline.ParsePortRef(fl.Field().String())
			if err != nil {
				return false
			}
			return nodeIDPattern.MatchString(ref.Node)
		})

		validateInst = v
	})

	return validateInst
}

// GetValidator returns the configured validator instance for use outside the config package.
func GetValidator() *validator.Validate {
	return validatorInstance()
}

// ValidateProject performs schema and cross-field validation on a project document.
func ValidateProject(cfg *Project) error {
	if cfg == nil {
		return divaerrors.NewValidationError("project", "project is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	pipelineIndex := make(map[int]int, len(cfg.Pipelines))
	for i := range cfg.Pipelines {
		def := &cfg.Pipelines[i]
		if _, exists := pipelineIndex[def.ID]; exists {
			return divaerrors.NewValidationError(fieldForPipeline(i, "id"), fmt.Sprintf("duplicate pipeline id %d", def.ID), nil)
		}
		if err := def.Validate(); err != nil {
			return divaerrors.NewValidationError(fieldForPipeline(i, "nodes"), err.Error(), err)
		}
		pipelineIndex[def.ID] = i
	}

	if cfg.DefaultPipeline != 0 {
		if _, ok := pipelineIndex[cfg.DefaultPipeline]; !ok {
			return divaerrors.NewValidationError("default_pipeline", fmt.Sprintf("references unknown pipeline %d", cfg.DefaultPipeline), nil)
		}
	}

	pageIndex := make(map[int]int, len(cfg.Pages))
	for i, page := range cfg.Pages {
		if _, exists := pageIndex[page.ID]; exists {
			return divaerrors.NewValidationError(fieldForPage(i, "id"), fmt.Sprintf("duplicate page id %d", page.ID), nil)
		}
		pageIndex[page.ID] = i

		pipelineID := cfg.PipelineFor(page)
		idx, ok := pipelineIndex[pipelineID]
		if !ok {
			return divaerrors.NewValidationError(fieldForPage(i, "pipeline"), fmt.Sprintf("references unknown pipeline %d", pipelineID), nil)
		}
		if err := validatePageParams(page, i, &cfg.Pipelines[idx]); err != nil {
			return err
		}
	}

	if cfg.SelectedPage > 0 {
		if _, ok := pageIndex[cfg.SelectedPage]; !ok {
			return divaerrors.NewValidationError("selected_page", fmt.Sprintf("references unknown page %d", cfg.SelectedPage), nil)
		}
	}

	return nil
}

func validatePageParams(page Page, index int, def *pipeline.Definition) error {
	nodes := make(map[string]struct{}, len(def.Nodes))
	for _, n := range def.Nodes {
		nodes[n.ID] = struct{}{}
	}
	for nodeID := range page.Params {
		if _, ok := nodes[nodeID]; !ok {
			return divaerrors.NewValidationError(fieldForPage(index, "params"), fmt.Sprintf("references unknown node %q of pipeline %d", nodeID, def.ID), nil)
		}
	}
	return nil
}
