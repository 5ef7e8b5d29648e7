// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/worldgate/internal/protocol"
	"github.com/holomush/worldgate/pkg/errutil"
)

func TestParseHandler(t *testing.T) {
	tests := []struct {
		name    string
		want    protocol.Handler
		request bool
	}{
		{"playerLogin", protocol.HandlerPlayerLogin, true},
		{"playerRegister", protocol.HandlerPlayerRegister, true},
		{"playerLogout", protocol.HandlerPlayerLogout, true},
		{"playerMessage", protocol.HandlerPlayerMessage, true},
		{"playerCount", protocol.HandlerPlayerCount, true},
		{"playerOnlineCount", protocol.HandlerPlayerOnlineCount, true},
		{"playerGetWorlds", protocol.HandlerPlayerGetWorlds, true},
		{"playerUpdate", protocol.HandlerPlayerUpdate, true},
		{"playerLoggedIn", protocol.HandlerPlayerLoggedIn, false},
		{"playerLoggedOut", protocol.HandlerPlayerLoggedOut, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := protocol.ParseHandler(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, h)
			assert.Equal(t, tt.name, h.String())
			assert.Equal(t, tt.request, h.IsRequest())
		})
	}
}

func TestParseHandler_Unknown(t *testing.T) {
	h, err := protocol.ParseHandler("playerDelete")
	require.Error(t, err)
	assert.Equal(t, protocol.HandlerUnknown, h)
	errutil.AssertErrorCode(t, err, "PROTOCOL_UNKNOWN_HANDLER")
	assert.Equal(t, "unknown", h.String())
}

func TestCode_StableValues(t *testing.T) {
	// Clients depend on these exact integers.
	assert.Equal(t, 0, int(protocol.CodeLoginSuccess))
	assert.Equal(t, 1, int(protocol.CodeReconnectSuccess))
	assert.Equal(t, 2, int(protocol.CodeRegisterSuccess))
	assert.Equal(t, 3, int(protocol.CodeInvalidCredentials))
	assert.Equal(t, 3, int(protocol.CodeRegisterDuplicateUsername))
	assert.Equal(t, 4, int(protocol.CodeAlreadyLoggedIn))
	assert.Equal(t, 6, int(protocol.CodeTooManyAccounts))
	assert.Equal(t, 7, int(protocol.CodeThrottled))
	assert.Equal(t, 7, int(protocol.CodeRegisterCooldown))
	assert.Equal(t, 9, int(protocol.CodeNotConnectedToWorld))
	assert.Equal(t, 11, int(protocol.CodeTemporarilyBanned))
	assert.Equal(t, 12, int(protocol.CodePermanentlyBanned))
	assert.Equal(t, 15, int(protocol.CodeMembershipExpired))
	assert.Equal(t, 25, int(protocol.CodeElevatedLoginSuccess))
}

func TestCode_Names(t *testing.T) {
	assert.Equal(t, "throttled", protocol.CodeThrottled.LoginName())
	assert.Equal(t, "cooldown", protocol.CodeRegisterCooldown.RegisterName())
	assert.Equal(t, "unknown", protocol.Code(99).LoginName())
	assert.True(t, protocol.CodeElevatedLoginSuccess.IsLoginSuccess())
	assert.False(t, protocol.CodeThrottled.IsLoginSuccess())
}

func TestToken_EchoedVerbatim(t *testing.T) {
	var hdr protocol.Header
	require.NoError(t, json.Unmarshal([]byte(`{"handler":"playerCount","token":{"n":7,"s":"x"}}`), &hdr))

	out, err := json.Marshal(protocol.CountResponse{Token: hdr.Token, Count: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":{"n":7,"s":"x"},"count":3}`, string(out))
}
