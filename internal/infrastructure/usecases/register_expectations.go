package usecases

import (
	"fmt"

	"github.com/sophialabs/stubhttp/internal/domain/expectation"
	"github.com/sophialabs/stubhttp/internal/domain/scenario"
	"github.com/sophialabs/stubhttp/internal/infrastructure/ports"
	"github.com/sophialabs/stubhttp/internal/infrastructure/services"
)

// RegisterExpectationsUseCase compiles definitions received over the admin
// API and appends them to the registry.
type RegisterExpectationsUseCase struct {
	compiler *services.Compiler
	registry *expectation.Registry
	logger   ports.Logger
}

// NewRegisterExpectationsUseCase creates a new use case.
func NewRegisterExpectationsUseCase(compiler *services.Compiler, registry *expectation.Registry, logger ports.Logger) *RegisterExpectationsUseCase {
	return &RegisterExpectationsUseCase{
		compiler: compiler,
		registry: registry,
		logger:   logger,
	}
}

// Execute registers defs in order. Either all of them are registered or,
// on the first error, none are.
func (uc *RegisterExpectationsUseCase) Execute(defs []*scenario.Definition) ([]*expectation.Expectation, error) {
	exps := make([]*expectation.Expectation, 0, len(defs))
	for i, d := range defs {
		e, err := uc.compiler.Compile(d)
		if err != nil {
			return nil, fmt.Errorf("definition %d: %w", i, err)
		}
		exps = append(exps, e)
	}

	for i, e := range exps {
		if err := uc.registry.Add(e); err != nil {
			for _, added := range exps[:i] {
				uc.registry.Remove(added.ID())
			}
			return nil, err
		}
		uc.logger.Info("expectation registered", "id", e.ID(), "matcher", e.Matcher().String(), "times", e.Times().String())
	}
	return exps, nil
}
