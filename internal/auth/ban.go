// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "time"

// BanEnd describes when a ban on an account ends.
// The zero value means the account is not banned.
type BanEnd struct {
	until     time.Time
	permanent bool
}

// PermanentBan is the sentinel for an indefinite ban.
var PermanentBan = BanEnd{permanent: true}

// BanUntil returns a ban ending at t. A zero t means not banned.
func BanUntil(t time.Time) BanEnd {
	return BanEnd{until: t}
}

// IsZero reports whether there is no ban.
func (b BanEnd) IsZero() bool {
	return !b.permanent && b.until.IsZero()
}

// IsPermanent reports whether b is the permanent sentinel.
func (b BanEnd) IsPermanent() bool {
	return b.permanent
}

// Until returns the end of a temporary ban. It is zero for permanent bans and
// for no ban.
func (b BanEnd) Until() time.Time {
	return b.until
}

// ActiveAt reports whether the ban still applies at now.
func (b BanEnd) ActiveAt(now time.Time) bool {
	return b.permanent || b.until.After(now)
}
