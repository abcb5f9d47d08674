// Package auth resolves the calling actor and answers capability checks.
// Tokens are verified upstream; the gateway forwards the resulting identity
// in request headers.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

type Capability string

const (
	CapCancelOwnOrder Capability = "orders:cancel_own"
	CapFulfilOrders   Capability = "orders:fulfil"
	CapViewAnyOrder   Capability = "orders:view_any"
	CapManageCatalog  Capability = "catalog:manage"
)

var roleCapabilities = map[Role]map[Capability]bool{
	RoleCustomer: {CapCancelOwnOrder: true},
	RoleStaff:    {CapFulfilOrders: true, CapViewAnyOrder: true},
	RoleAdmin: {
		CapCancelOwnOrder: true,
		CapFulfilOrders:   true,
		CapViewAnyOrder:   true,
		CapManageCatalog:  true,
	},
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) Can(c Capability) bool {
	return roleCapabilities[p.Role][c]
}

// Owns reports whether the principal is the given user.
func (p Principal) Owns(userID string) bool {
	return p.UserID != "" && p.UserID == userID
}

type Authenticator interface {
	Authenticate(r *http.Request) (Principal, error)
}

const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

// HeaderAuthenticator trusts the identity headers set by the gateway.
// A missing role means customer.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return Principal{}, ErrUnauthorized
	}
	role := Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole))))
	if role == "" {
		role = RoleCustomer
	}
	if _, ok := roleCapabilities[role]; !ok {
		return Principal{}, ErrUnauthorized
	}
	return Principal{UserID: userID, Role: role}, nil
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// Middleware rejects unauthenticated requests through onErr and stores the
// principal in the request context otherwise.
func Middleware(a Authenticator, onErr func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.Authenticate(r)
			if err != nil {
				onErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Require rejects principals lacking capability c with ErrForbidden.
func Require(c Capability, onErr func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				onErr(w, r, ErrUnauthorized)
				return
			}
			if !p.Can(c) {
				onErr(w, r, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
