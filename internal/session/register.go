// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"

	"github.com/holomush/worldgate/internal/auth"
	"github.com/holomush/worldgate/internal/protocol"
)

// RegistrationCooldown is the minimum time between two registrations from
// the same address.
const RegistrationCooldown = 5 * time.Minute

// Register creates an account.
func (c *Coordinator) Register(ctx context.Context, req Request, in protocol.RegisterRequest) (resp protocol.RegisterResponse, err error) {
	username := strings.TrimSpace(in.Username)
	ctx, finish := c.startSpan(ctx, "register", req, attribute.String("username", auth.NormalizeUsername(username)))
	defer func() { finish(err) }()

	resp = protocol.RegisterResponse{Token: in.Token}
	code, err := c.register(ctx, username, in.Password, in.Address)
	if err != nil {
		return resp, oops.Code("REGISTER_FAILED").
			With("username", username).
			With("address", in.Address).
			Wrap(err)
	}

	resp.Code = code
	resp.Success = code == protocol.CodeRegisterSuccess
	recordRegister(code)
	if resp.Success {
		slog.InfoContext(ctx, "account registered",
			"username", username,
			"address", in.Address,
		)
	} else {
		slog.DebugContext(ctx, "registration rejected",
			"username", username,
			"address", in.Address,
			"code", code.RegisterName(),
		)
	}
	return resp, nil
}

func (c *Coordinator) register(ctx context.Context, username, password, address string) (protocol.Code, error) {
	atCap, err := c.gate.AddressAtCap(ctx, address, nil)
	if err != nil {
		return 0, err
	}
	if atCap {
		return protocol.CodeTooManyAccounts, nil
	}

	last, err := c.store.LastRegistrationAt(ctx, address)
	if err != nil {
		return 0, oops.With("operation", "last registration").Wrap(err)
	}
	if !last.IsZero() && c.clock.Now().Sub(last) < RegistrationCooldown {
		return protocol.CodeRegisterCooldown, nil
	}

	if err := auth.ValidateUsername(username); err != nil {
		return protocol.CodeRegisterInvalid, nil //nolint:nilerr // invalid input is a reply code
	}

	exists, err := c.store.UsernameExists(ctx, username)
	if err != nil {
		return 0, oops.With("operation", "username exists").Wrap(err)
	}
	if exists {
		return protocol.CodeRegisterDuplicateUsername, nil
	}

	hash, err := c.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrEmptyPassword) || errors.Is(err, auth.ErrPasswordTooLong) {
			return protocol.CodeRegisterInvalid, nil
		}
		return 0, oops.With("operation", "hash password").Wrap(err)
	}

	account, err := auth.NewAccount(username, hash, address, c.clock.Now())
	if err != nil {
		return 0, oops.With("operation", "new account").Wrap(err)
	}
	if err := c.store.Create(ctx, account); err != nil {
		if errors.Is(err, auth.ErrDuplicateUsername) {
			return protocol.CodeRegisterDuplicateUsername, nil
		}
		return 0, oops.With("operation", "create account").Wrap(err)
	}
	return protocol.CodeRegisterSuccess, nil
}
