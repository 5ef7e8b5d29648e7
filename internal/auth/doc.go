// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements the admission stages of the worldgate login and
// registration pipelines.
//
// # Stages
//
// A login request passes through, in order:
//   - RateLimiter - per-address failed attempt throttling and induced delay
//   - CredentialVerifier - bcrypt verification with transparent rehash
//   - AccessGate - duplicate session, per-address cap, ban and membership checks
//
// Each stage reports business rejections as values (Admission, Verification,
// Verdict). Errors returned by a stage are faults from a collaborator and
// abort only the request being processed.
//
// # Storage
//
// Stages depend on the narrow repository interfaces in store.go. The postgres,
// redis and memory subpackages provide implementations.
package auth
