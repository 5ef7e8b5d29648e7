// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package protocol defines the messages exchanged between worldgate and the
// processes linked to it.
//
// Every request carries an opaque Token supplied by the caller. Responses echo
// it verbatim so callers can correlate replies on a shared link.
//
// # Handlers
//
// The set of request and event kinds is closed. Handler values are parsed from
// the "handler" field of a frame with ParseHandler; unknown names are rejected
// before any pipeline runs.
//
// # Codes
//
// Code values are a private contract between the gateway and its clients and
// must never be renumbered.
package protocol
