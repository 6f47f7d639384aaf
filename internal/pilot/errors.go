package pilot

import (
	"fmt"

	"github.com/sensorvision/pilot/pkg/llm"
)

// Failure helpers keeping assembler code terse. The llm.Error codes let
// HTTP handlers map pipeline failures to the right status without
// string matching.

func newValidationError(msg string) error {
	return llm.NewError(llm.ErrCodeValidation, msg, nil)
}

func newTenantAccessError(entity, id string) error {
	return llm.NewError(llm.ErrCodeTenantAccessDenied,
		fmt.Sprintf("%s %s does not belong to the caller's organization", entity, id), nil)
}

func newNotFoundError(entity, id string) error {
	return llm.NewError(llm.ErrCodeNotFound, fmt.Sprintf("%s %s not found", entity, id), nil)
}
