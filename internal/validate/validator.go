// Package validate provides the default output validator. Production
// deployments with strict schemas plug in their own domain.OutputValidator;
// this one catches the failure modes every task type shares.
package validate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/emberio/hearth/internal/domain"
)

// ContentValidator checks model output is usable before it is cached or
// returned.
type ContentValidator struct{}

// NewContentValidator creates the default validator.
func NewContentValidator() *ContentValidator {
	return &ContentValidator{}
}

// Validate rejects blank output for every task type and non-JSON output for
// classification tasks, which downstream consumers parse structurally.
func (v *ContentValidator) Validate(_ context.Context, task domain.TaskType, content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("model produced empty output")
	}

	if task == domain.TaskClassification {
		if !json.Valid([]byte(strings.TrimSpace(content))) {
			return errors.New("classification output is not valid JSON")
		}
	}

	return nil
}
