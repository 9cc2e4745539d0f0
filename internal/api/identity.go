package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ignite/newsletter-service/internal/domain"
	"github.com/ignite/newsletter-service/internal/pkg/httputil"
	"github.com/ignite/newsletter-service/internal/pkg/logger"
)

type identityContextKey struct{}

// ServiceScope marks tokens minted for the storefront backend. Only those may
// call the customer-save hook or read arbitrary subscribers.
const ServiceScope = "newsletter:service"

// StoreClaims are the storefront claims carried by a customer session token
// or, with Scope set to ServiceScope, by a backend service token.
type StoreClaims struct {
	CustomerID      int64  `json:"customer_id,omitempty"`
	CustomerStoreID int64  `json:"customer_store_id,omitempty"`
	StoreID         int64  `json:"store_id"`
	WebsiteID       int64  `json:"website_id"`
	Scope           string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// StoreResolver maps a website to its default store.
type StoreResolver interface {
	DefaultStoreID(websiteID int64) int64
}

// IdentityResolver derives the caller identity of a request from an optional
// HS256 bearer token and the X-Store-ID / X-Website-ID headers.
type IdentityResolver struct {
	secret []byte
	stores StoreResolver
}

// NewIdentityResolver creates a resolver. An empty secret disables tokens and
// every caller is a guest.
func NewIdentityResolver(secret string, stores StoreResolver) *IdentityResolver {
	return &IdentityResolver{secret: []byte(secret), stores: stores}
}

// Middleware attaches the resolved identity to the request context. Missing
// or invalid tokens yield a guest identity.
func (ir *IdentityResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), identityContextKey{}, ir.resolve(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireToken rejects requests without a valid token.
func RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			httputil.Unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireService admits only service tokens: 401 without a token, 403 for a
// customer session token.
func RequireService(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := r.Context().Value(identityContextKey{}).(identity)
		switch {
		case !v.authenticated:
			httputil.Unauthorized(w)
		case !v.service:
			logger.Warn("customer token used on service route", "customer_id", v.CustomerID, "path", r.URL.Path)
			httputil.Forbidden(w)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

type identity struct {
	domain.Identity
	authenticated bool
	service       bool
}

// IdentityFrom returns the identity of the request and whether it came from
// a valid token.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	v, ok := ctx.Value(identityContextKey{}).(identity)
	if !ok {
		return domain.Identity{}, false
	}
	return v.Identity, v.authenticated
}

// IsService reports whether the request carried a service token.
func IsService(ctx context.Context) bool {
	v, _ := ctx.Value(identityContextKey{}).(identity)
	return v.authenticated && v.service
}

func (ir *IdentityResolver) resolve(r *http.Request) identity {
	if claims, ok := ir.claims(r); ok {
		id := domain.Identity{
			CustomerID:      claims.CustomerID,
			CustomerStoreID: claims.CustomerStoreID,
			StoreID:         claims.StoreID,
			WebsiteID:       claims.WebsiteID,
		}
		if id.CustomerStoreID == 0 {
			id.CustomerStoreID = id.StoreID
		}
		if id.StoreID == 0 {
			id.StoreID = ir.defaultStore(id.WebsiteID)
		}
		return identity{Identity: id, authenticated: true, service: claims.Scope == ServiceScope}
	}

	websiteID := headerInt(r, "X-Website-ID")
	storeID := headerInt(r, "X-Store-ID")
	if storeID == 0 {
		storeID = ir.defaultStore(websiteID)
	}
	return identity{Identity: domain.Identity{StoreID: storeID, WebsiteID: websiteID}}
}

func (ir *IdentityResolver) claims(r *http.Request) (*StoreClaims, bool) {
	header := r.Header.Get("Authorization")
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if header == "" || tokenString == header || len(ir.secret) == 0 {
		return nil, false
	}

	claims := &StoreClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ir.secret, nil
	})
	if err != nil || !token.Valid {
		logger.Debug("identity token rejected", "error", err)
		return nil, false
	}
	return claims, true
}

func (ir *IdentityResolver) defaultStore(websiteID int64) int64 {
	if ir.stores == nil {
		return 0
	}
	return ir.stores.DefaultStoreID(websiteID)
}

func headerInt(r *http.Request, name string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(name)), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
