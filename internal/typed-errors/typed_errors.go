/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package typederrors

import (
	"errors"
	"fmt"
)

// GenericError is an error structure containing common fields to be
// embedded by specific error types defined below
type GenericError struct {
	Message string
	Err     error
}

func (ge GenericError) Error() string {
	return ge.Message
}

func (ge GenericError) Unwrap() error {
	return ge.Err
}

// InvalidArgumentError is returned when a caller supplies neither facts nor hw_info
// to the identity resolver, or supplies a descriptor with no match-eligible keys.
type InvalidArgumentError struct {
	GenericError
}

func NewInvalidArgumentError(err error, format string, args ...interface{}) error {
	return InvalidArgumentError{
		GenericError: GenericError{fmt.Sprintf(format, args...), err},
	}
}

func IsInvalidArgumentError(target error) bool {
	var e InvalidArgumentError
	return errors.As(target, &e)
}

// ValidationError is returned when a node attribute violates a data model invariant,
// e.g. hw_info holding a malformed entry, or IPMI credentials set without a hostname.
type ValidationError struct {
	GenericError
}

func NewValidationError(err error, format string, args ...interface{}) error {
	return ValidationError{
		GenericError: GenericError{fmt.Sprintf(format, args...), err},
	}
}

func IsValidationError(target error) bool {
	var e ValidationError
	return errors.As(target, &e)
}

// RuleEvaluationError wraps a failure reported by the tag matcher. The checkin
// processor logs it against the node with severity error before re-raising.
type RuleEvaluationError struct {
	GenericError
}

func NewRuleEvaluationError(err error, format string, args ...interface{}) error {
	return RuleEvaluationError{
		GenericError: GenericError{fmt.Sprintf(format, args...), err},
	}
}

func IsRuleEvaluationError(target error) bool {
	var e RuleEvaluationError
	return errors.As(target, &e)
}

// ManagementError is returned by the power reconciler when the remote management
// channel fails. It wraps every error the channel returns; a transport failure and an
// error reported by the device are not told apart.
type ManagementError struct {
	GenericError
}

func NewManagementError(err error, format string, args ...interface{}) error {
	return ManagementError{
		GenericError: GenericError{fmt.Sprintf(format, args...), err},
	}
}

func IsManagementError(target error) bool {
	var e ManagementError
	return errors.As(target, &e)
}

// DuplicateNodeError is raised by the identity resolver when an incoming descriptor
// overlaps more than one stored node and no unambiguous fact/firmware merge applies.
// It carries the offending canonical hw_info and the full set of matching node IDs so
// that the caller (or the boot path) can annotate every candidate.
type DuplicateNodeError struct {
	HwInfo  []string
	NodeIDs []string
	Err     error
}

func NewDuplicateNodeError(hwInfo []string, nodeIDs []string) error {
	return &DuplicateNodeError{
		HwInfo:  hwInfo,
		NodeIDs: nodeIDs,
	}
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("hw_info %v matches %d nodes, identity is ambiguous", e.HwInfo, len(e.NodeIDs))
}

func (e *DuplicateNodeError) Unwrap() error {
	return e.Err
}

func IsDuplicateNodeError(target error) bool {
	var e *DuplicateNodeError
	return errors.As(target, &e)
}
