package service

import (
	"context"
	"log"
	"strings"

	"github.com/xiaot623/manimate/internal/domain"
	"github.com/xiaot623/manimate/internal/script"
)

// validateScript statically checks a script before it is rendered. Syntax
// errors and policy violations become a ValidationFailure whose log is handed
// to the repairer.
func (s *Service) validateScript(ctx context.Context, src, scene string) *domain.StageError {
	parsed, err := script.Parse(src)
	if err != nil {
		return domain.NewStageError(domain.FailureValidation, domain.RunStateValidating, "SyntaxError: "+err.Error(), nil)
	}

	if s.policyEngine == nil {
		return nil
	}
	violations, err := s.policyEngine.Evaluate(ctx, parsed.Facts(scene))
	if err != nil {
		log.Printf("WARN: script policy evaluation failed: %v", err)
		return nil
	}
	if len(violations) == 0 {
		return nil
	}
	return domain.NewStageError(domain.FailureValidation, domain.RunStateValidating, "Static validation failed:\n- "+strings.Join(violations, "\n- "), nil)
}
