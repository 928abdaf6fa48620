/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package typederrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrors(t *testing.T) {
	e := errors.New("a standard error")
	ge := GenericError{
		Message: "a GenericError",
		Err:     nil,
	}
	gew := GenericError{
		Message: "a GenericError wraps a standard error",
		Err:     e,
	}
	ew := fmt.Errorf("a standard error wraps a GenericError: %w", ge)
	rre := NewRuleEvaluationError(nil, "a RuleEvaluationError")
	rrew := NewRuleEvaluationError(e, "a RuleEvaluationError wraps a %s", "standard error")
	vae := NewValidationError(nil, "a ValidationError")
	vaew := NewValidationError(e, "a ValidationError wraps a %s", "standard error")
	vaew2 := NewValidationError(rre, "a ValidationError wraps a %s", "RuleEvaluationError")
	ew2 := fmt.Errorf("a standard error wraps a RuleEvaluationError: %w", rre)
	vaew3 := NewValidationError(ew2, "a ValidationError wraps a %s which wraps a %s", "standard error", "RuleEvaluationError")

	tests := []struct {
		description            string
		wrappedError           error
		errorType              error
		expectedMessage        string
		expectIsValidationErr  bool
		expectIsRuleEvalErr    bool
		expectWrap             bool
	}{
		{
			description:           "a standard error wraps a GenericError",
			errorType:             ew,
			wrappedError:          ge,
			expectedMessage:       "a standard error wraps a GenericError: a GenericError",
			expectIsValidationErr: false,
			expectIsRuleEvalErr:   false,
			expectWrap:            true,
		},
		{
			description:           "a GenericError wraps a standard error",
			wrappedError:          e,
			errorType:             gew,
			expectedMessage:       "a GenericError wraps a standard error",
			expectIsValidationErr: false,
			expectIsRuleEvalErr:   false,
			expectWrap:            true,
		},
		{
			description:           "a ValidationError wraps a standard error",
			wrappedError:          e,
			errorType:             vaew,
			expectedMessage:       "a ValidationError wraps a standard error",
			expectIsValidationErr: true,
			expectIsRuleEvalErr:   false,
			expectWrap:            true,
		},
		{
			description:           "a ValidationError does not wrap an error",
			wrappedError:          nil,
			errorType:             vae,
			expectedMessage:       "a ValidationError",
			expectIsValidationErr: true,
			expectIsRuleEvalErr:   false,
			expectWrap:            false,
		},
		{
			description:           "a ValidationError wraps a RuleEvaluationError",
			wrappedError:          rre,
			errorType:             vaew2,
			expectedMessage:       "a ValidationError wraps a RuleEvaluationError",
			expectIsValidationErr: true,
			expectIsRuleEvalErr:   true,
			expectWrap:            true,
		},
		{
			description:           "a RuleEvaluationError wraps a standard error",
			wrappedError:          e,
			errorType:             rrew,
			expectedMessage:       "a RuleEvaluationError wraps a standard error",
			expectIsValidationErr: false,
			expectIsRuleEvalErr:   true,
			expectWrap:            true,
		},
		{
			description:           "a ValidationError wraps a standard error which wraps a RuleEvaluationError (check RuleEvaluationError wrapped)",
			wrappedError:          rre,
			errorType:             vaew3,
			expectedMessage:       "a ValidationError wraps a standard error which wraps a RuleEvaluationError",
			expectIsValidationErr: true,
			expectIsRuleEvalErr:   true,
			expectWrap:            true,
		},
		{
			description:           "a ValidationError wraps a standard error which wraps a RuleEvaluationError (check standard error wrapped)",
			wrappedError:          ew2,
			errorType:             vaew3,
			expectedMessage:       "a ValidationError wraps a standard error which wraps a RuleEvaluationError",
			expectIsValidationErr: true,
			expectIsRuleEvalErr:   true,
			expectWrap:            true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			if tt.errorType.Error() != tt.expectedMessage {
				t.Errorf("expected message: '%s', got '%s'", tt.expectedMessage, tt.errorType.Error())
			}

			if errors.Is(tt.errorType, tt.wrappedError) != tt.expectWrap {
				t.Errorf("expected wrap: %v", tt.expectWrap)
			}

			if IsValidationError(tt.errorType) != tt.expectIsValidationErr {
				t.Errorf("expected IsValidationError: %v", tt.expectIsValidationErr)
			}

			if IsRuleEvaluationError(tt.errorType) != tt.expectIsRuleEvalErr {
				t.Errorf("expected IsRuleEvaluationError: %v", tt.expectIsRuleEvalErr)
			}
		})
	}
}

func TestDuplicateNodeError(t *testing.T) {
	err := NewDuplicateNodeError([]string{"mac=aa-bb-cc-dd-ee-02"}, []string{"node-1", "node-2"})
	if !IsDuplicateNodeError(err) {
		t.Errorf("expected IsDuplicateNodeError to be true")
	}
	var dup *DuplicateNodeError
	if !errors.As(err, &dup) {
		t.Fatalf("expected errors.As to succeed")
	}
	if len(dup.NodeIDs) != 2 {
		t.Errorf("expected 2 node ids, got %d", len(dup.NodeIDs))
	}
}
