package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipal_Can(t *testing.T) {
	tests := []struct {
		role auth.Role
		cap  auth.Capability
		want bool
	}{
		{auth.RoleCustomer, auth.CapCancelOwnOrder, true},
		{auth.RoleCustomer, auth.CapFulfilOrders, false},
		{auth.RoleCustomer, auth.CapViewAnyOrder, false},
		{auth.RoleStaff, auth.CapFulfilOrders, true},
		{auth.RoleStaff, auth.CapViewAnyOrder, true},
		{auth.RoleStaff, auth.CapManageCatalog, false},
		{auth.RoleAdmin, auth.CapManageCatalog, true},
		{auth.RoleAdmin, auth.CapCancelOwnOrder, true},
		{auth.Role("guest"), auth.CapCancelOwnOrder, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.cap), func(t *testing.T) {
			p := auth.Principal{UserID: "u1", Role: tt.role}
			assert.Equal(t, tt.want, p.Can(tt.cap))
		})
	}
}

func TestHeaderAuthenticator(t *testing.T) {
	tests := []struct {
		name    string
		user    string
		role    string
		want    auth.Principal
		wantErr bool
	}{
		{name: "defaults to customer", user: "u1", want: auth.Principal{UserID: "u1", Role: auth.RoleCustomer}},
		{name: "staff", user: "s1", role: "Staff", want: auth.Principal{UserID: "s1", Role: auth.RoleStaff}},
		{name: "missing user", role: "admin", wantErr: true},
		{name: "unknown role", user: "u1", role: "root", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.user != "" {
				r.Header.Set(auth.HeaderUserID, tt.user)
			}
			if tt.role != "" {
				r.Header.Set(auth.HeaderRole, tt.role)
			}
			got, err := auth.HeaderAuthenticator{}.Authenticate(r)
			if tt.wantErr {
				assert.ErrorIs(t, err, auth.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMiddleware(t *testing.T) {
	var gotErr error
	onErr := func(w http.ResponseWriter, r *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusUnauthorized)
	}
	var seen auth.Principal
	h := auth.Middleware(auth.HeaderAuthenticator{}, onErr)(
		auth.Require(auth.CapManageCatalog, onErr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = auth.FromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})))

	r := httptest.NewRequest(http.MethodPost, "/products", nil)
	r.Header.Set(auth.HeaderUserID, "a1")
	r.Header.Set(auth.HeaderRole, "admin")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "a1", seen.UserID)

	r = httptest.NewRequest(http.MethodPost, "/products", nil)
	r.Header.Set(auth.HeaderUserID, "c1")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.True(t, errors.Is(gotErr, auth.ErrForbidden))

	r = httptest.NewRequest(http.MethodPost, "/products", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.True(t, errors.Is(gotErr, auth.ErrUnauthorized))
}
