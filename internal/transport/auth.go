// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package transport

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// ProtocolHeader carries the protocol version a link speaks.
const ProtocolHeader = "X-Worldgate-Protocol"

// DefaultProtocol is the version constraint links must satisfy.
const DefaultProtocol = "^1.0.0"

// assumedVersion is used for links that do not send ProtocolHeader.
var assumedVersion = semver.MustParse("1.0.0")

// LinkClaims are the JWT claims of a link token.
type LinkClaims struct {
	World int `json:"world"`
	jwt.RegisteredClaims
}

// AuthConfig configures an Authenticator.
type AuthConfig struct {
	// Secret signs link tokens. Token checks are off when it is empty.
	Secret string

	// AllowedAddrs are glob patterns matched against the remote host.
	// An empty list allows every address.
	AllowedAddrs []string

	// Protocol is a semver constraint on ProtocolHeader.
	Protocol string
}

// Authenticator decides whether an HTTP request may open a link.
type Authenticator struct {
	secret     []byte
	allowed    []glob.Glob
	constraint *semver.Constraints
}

// NewAuthenticator compiles the address patterns and protocol constraint.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	a := &Authenticator{secret: []byte(cfg.Secret)}

	for _, pattern := range cfg.AllowedAddrs {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, oops.Code("LINK_AUTH_CONFIG_INVALID").
				With("pattern", pattern).
				Wrap(err)
		}
		a.allowed = append(a.allowed, g)
	}

	protocol := cfg.Protocol
	if protocol == "" {
		protocol = DefaultProtocol
	}
	constraint, err := semver.NewConstraint(protocol)
	if err != nil {
		return nil, oops.Code("LINK_AUTH_CONFIG_INVALID").
			With("protocol", protocol).
			Wrap(err)
	}
	a.constraint = constraint
	return a, nil
}

// Authorize checks the remote address, protocol version and link token of
// r for a link bound to world. Auxiliary links use world 0.
func (a *Authenticator) Authorize(r *http.Request, world int) error {
	if err := a.checkAddress(r.RemoteAddr); err != nil {
		return err
	}
	if err := a.checkProtocol(r.Header.Get(ProtocolHeader)); err != nil {
		return err
	}
	return a.checkToken(r.Header.Get("Authorization"), world)
}

func (a *Authenticator) checkAddress(remote string) error {
	if len(a.allowed) == 0 {
		return nil
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	for _, g := range a.allowed {
		if g.Match(host) {
			return nil
		}
	}
	return oops.Code("LINK_ADDRESS_DENIED").
		With("address", host).
		Errorf("address not allowed")
}

func (a *Authenticator) checkProtocol(header string) error {
	version := assumedVersion
	if header != "" {
		v, err := semver.NewVersion(header)
		if err != nil {
			return oops.Code("LINK_PROTOCOL_UNSUPPORTED").
				With("protocol", header).
				Wrap(err)
		}
		version = v
	}
	if !a.constraint.Check(version) {
		return oops.Code("LINK_PROTOCOL_UNSUPPORTED").
			With("protocol", version.String()).
			With("constraint", a.constraint.String()).
			Errorf("protocol version not supported")
	}
	return nil
}

func (a *Authenticator) checkToken(header string, world int) error {
	if len(a.secret) == 0 {
		return nil
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return oops.Code("LINK_UNAUTHORIZED").Errorf("missing bearer token")
	}

	claims := &LinkClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return oops.Code("LINK_UNAUTHORIZED").Wrap(err)
	}
	if claims.World != world {
		return oops.Code("LINK_UNAUTHORIZED").
			With("claimed_world", claims.World).
			With("world_id", world).
			Errorf("token issued for another world")
	}
	return nil
}

// IssueToken signs a link token for world. A ttl of zero issues a token
// that does not expire.
func (a *Authenticator) IssueToken(world int, ttl time.Duration, now time.Time) (string, error) {
	if len(a.secret) == 0 {
		return "", oops.Code("LINK_AUTH_CONFIG_INVALID").Errorf("link secret is not configured")
	}
	claims := LinkClaims{
		World: world,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", oops.Code("LINK_TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// statusFor maps an authorization error to an HTTP status.
func statusFor(err error) int {
	switch codeOf(err) {
	case "LINK_ADDRESS_DENIED":
		return http.StatusForbidden
	case "LINK_PROTOCOL_UNSUPPORTED":
		return http.StatusUpgradeRequired
	default:
		return http.StatusUnauthorized
	}
}

func codeOf(err error) string {
	if o, ok := oops.AsOops(err); ok {
		if code, ok := o.Code().(string); ok {
			return code
		}
	}
	return ""
}
