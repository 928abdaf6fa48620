/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package models

import typederrors "github.com/nodecore/provisioner/internal/typed-errors"

var (
	errInstalledInvariant = typederrors.NewValidationError(nil, "installed and installed_at must both be set or both be absent")
	errIPMIInvariant      = typederrors.NewValidationError(nil, "ipmi_username or ipmi_password set without ipmi_hostname")
	errDuplicateHwInfo    = typederrors.NewValidationError(nil, "hw_info contains a duplicate entry")
)
