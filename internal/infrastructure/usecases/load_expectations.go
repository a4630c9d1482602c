package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/sophialabs/stubhttp/internal/domain/expectation"
	"github.com/sophialabs/stubhttp/internal/domain/scenario"
	"github.com/sophialabs/stubhttp/internal/infrastructure/ports"
	"github.com/sophialabs/stubhttp/internal/infrastructure/services"
)

// FileGroup tags expectations that came from the definitions directory, so
// a reload replaces them without touching ones registered over the API.
const FileGroup = "file"

// LoadExpectationsUseCase loads every definition from the repository,
// compiles it and swaps the file-backed group in the registry.
type LoadExpectationsUseCase struct {
	repo          scenario.Repository
	compiler      *services.Compiler
	registry      *expectation.Registry
	metrics       ports.Metrics
	logger        ports.Logger
	defaultEngine string
}

// NewLoadExpectationsUseCase creates a new use case.
func NewLoadExpectationsUseCase(
	repo scenario.Repository,
	compiler *services.Compiler,
	registry *expectation.Registry,
	metrics ports.Metrics,
	logger ports.Logger,
) *LoadExpectationsUseCase {
	return &LoadExpectationsUseCase{
		repo:     repo,
		compiler: compiler,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// SetDefaultEngine sets the engine applied to definitions that have a body
// but no explicit engine.
func (uc *LoadExpectationsUseCase) SetDefaultEngine(engine string) {
	uc.defaultEngine = engine
}

// Execute reloads the file group. The swap is all or nothing: if any
// definition fails to load or compile, the registry keeps its previous
// contents and every failure is returned.
func (uc *LoadExpectationsUseCase) Execute(ctx context.Context) (int, error) {
	n, err := uc.load(ctx)
	uc.metrics.ObserveReload(err)
	return n, err
}

func (uc *LoadExpectationsUseCase) load(ctx context.Context) (int, error) {
	defs, err := uc.repo.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load definitions: %w", err)
	}
	uc.logger.Info("loaded definitions from repository", "count", len(defs))

	var errs []error
	ids := make(map[string]string, len(defs))
	exps := make([]*expectation.Expectation, 0, len(defs))

	for _, d := range defs {
		if uc.defaultEngine != "" && d.Response.Engine == "" && d.Response.Body+d.Response.BodyFile != "" {
			d.Response.Engine = uc.defaultEngine
		}
		if d.ID != "" {
			if prev, dup := ids[d.ID]; dup {
				errs = append(errs, fmt.Errorf("duplicate expectation ID %q in %s (first seen in %s)", d.ID, d.SourceFile, prev))
				continue
			}
			ids[d.ID] = d.SourceFile
		}

		e, err := uc.compiler.Compile(d)
		if err != nil {
			uc.logger.Warn("failed to compile definition", "id", d.ID, "file", d.SourceFile, "error", err)
			errs = append(errs, err)
			continue
		}
		uc.logger.Debug("compiled definition", "id", e.ID(), "matcher", e.Matcher().String())
		exps = append(exps, e)
	}
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}

	if err := uc.registry.ReplaceGroup(FileGroup, exps); err != nil {
		return 0, err
	}
	uc.logger.Info("expectations registered", "group", FileGroup, "count", len(exps), "total", uc.registry.Len())
	return len(exps), nil
}
