// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol

// Code is the numeric outcome reported to the client of a login or
// registration request.
type Code int

// Login outcomes.
const (
	CodeLoginSuccess         Code = 0
	CodeReconnectSuccess     Code = 1
	CodeInvalidCredentials   Code = 3
	CodeAlreadyLoggedIn      Code = 4
	CodeTooManyAccounts      Code = 6
	CodeThrottled            Code = 7
	CodeNotConnectedToWorld  Code = 9
	CodeTemporarilyBanned    Code = 11
	CodePermanentlyBanned    Code = 12
	CodeMembershipExpired    Code = 15
	CodeElevatedLoginSuccess Code = 25
)

// Registration outcomes. Some values overlap with login codes; clients
// interpret them by the request they sent.
const (
	CodeRegisterSuccess           Code = 2
	CodeRegisterDuplicateUsername Code = 3
	CodeRegisterInvalid           Code = 5
	CodeRegisterCooldown          Code = 7
)

// Symbolic names, used for logs and metric labels only.
var loginCodeNames = map[Code]string{
	CodeLoginSuccess:         "login_success",
	CodeReconnectSuccess:     "reconnect_success",
	CodeInvalidCredentials:   "invalid_credentials",
	CodeAlreadyLoggedIn:      "already_logged_in",
	CodeTooManyAccounts:      "too_many_accounts",
	CodeThrottled:            "throttled",
	CodeNotConnectedToWorld:  "not_connected_to_world",
	CodeTemporarilyBanned:    "temporarily_banned",
	CodePermanentlyBanned:    "permanently_banned",
	CodeMembershipExpired:    "membership_expired",
	CodeElevatedLoginSuccess: "elevated_login_success",
}

var registerCodeNames = map[Code]string{
	CodeRegisterSuccess:           "register_success",
	CodeRegisterDuplicateUsername: "duplicate_username",
	CodeTooManyAccounts:           "too_many_accounts",
	CodeRegisterInvalid:           "invalid",
	CodeRegisterCooldown:          "cooldown",
}

// LoginName returns the symbolic name of a login code.
func (c Code) LoginName() string {
	if name, ok := loginCodeNames[c]; ok {
		return name
	}
	return "unknown"
}

// RegisterName returns the symbolic name of a registration code.
func (c Code) RegisterName() string {
	if name, ok := registerCodeNames[c]; ok {
		return name
	}
	return "unknown"
}

// IsLoginSuccess reports whether c is one of the successful login codes.
func (c Code) IsLoginSuccess() bool {
	return c == CodeLoginSuccess || c == CodeReconnectSuccess || c == CodeElevatedLoginSuccess
}
