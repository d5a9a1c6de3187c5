/*
Package access provides bearer-token authentication for the generated
admin routes.

The package does not know where principals live: an AuthProvider
collaborator checks credentials and resolves principal ids. Auth wraps
the provider with JWT token issuing, a mux middleware that resolves the
calling principal from the Authorization header, and the login/token/me
endpoints.
*/
package access

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/meridian-tech/adminpanel/core/logger"
)

// Principal is the authenticated caller of an admin route.
type Principal struct {
	ID       string `json:"id"`
	Login    string `json:"login"`
	Fullname string `json:"fullname"`
}

// AuthProvider resolves principals. Implementations typically check a
// users table; Login must return an error for unknown credentials.
type AuthProvider interface {
	Login(ctx context.Context, login, password string) (Principal, error)
	PrincipalByID(ctx context.Context, id string) (Principal, error)
}

// Auth issues and validates bearer tokens for an AuthProvider.
type Auth struct {
	Provider AuthProvider
	Secret   []byte
	// TokenValidity bounds the access token lifetime. Zero means the
	// token does not expire.
	TokenValidity time.Duration
}

// cookie fallback for browser frontends
const jwtCookieName = "Admin-JWT"

type contextKeyPrincipalType struct{}

var contextKeyPrincipal = &contextKeyPrincipalType{}

// PrincipalFromContext returns the authenticated principal stored by the
// middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKeyPrincipal).(Principal)
	return p, ok
}

// ContextWithPrincipal stores a principal in the context. Exposed for
// in-process clients and tests.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, p)
}

// Middleware returns a mux middleware that requires a valid bearer
// token on every route and stores the resolved principal in the request
// context. Requests without a resolvable principal are rejected with
// status 401.
func (a *Auth) Middleware() mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); ok {
				h.ServeHTTP(w, r)
				return
			}

			tokenString := ""
			bearer := r.Header.Get("Authorization")
			if len(bearer) > 0 && bearer != "null" {
				if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
					tokenString = bearer[7:]
				} else {
					tokenString = bearer
				}
			} else if cookie, _ := r.Cookie(jwtCookieName); cookie != nil {
				tokenString = cookie.Value
			}
			if len(tokenString) == 0 {
				unauthorized(w, "missing bearer token")
				return
			}

			userID, ok := a.ValidateAccessToken(tokenString)
			if !ok {
				unauthorized(w, "wrong JWT token")
				return
			}

			principal, err := a.Provider.PrincipalByID(r.Context(), userID)
			if err != nil {
				unauthorized(w, "wrong JWT token")
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			ctx, _ = logger.ContextWithLoggerIdentity(ctx, principal.Login)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HandleAuthRoutes adds the authentication endpoints to the router:
// POST /login with a JSON credentials body, POST /token with an OAuth2
// password form, and GET /me returning the calling principal.
func (a *Auth) HandleAuthRoutes(router *mux.Router) {
	router.HandleFunc("/login", a.loginEndpoint).Methods(http.MethodPost)
	router.HandleFunc("/token", a.tokenEndpoint).Methods(http.MethodPost)
	router.Handle("/me", a.Middleware()(http.HandlerFunc(a.meEndpoint))).Methods(http.MethodGet)
}

type credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (a *Auth) loginEndpoint(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "cannot parse credentials")
		return
	}
	a.issueTokens(w, r, creds.Login, creds.Password)
}

func (a *Auth) tokenEndpoint(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "cannot parse form")
		return
	}
	a.issueTokens(w, r, r.PostFormValue("username"), r.PostFormValue("password"))
}

func (a *Auth) issueTokens(w http.ResponseWriter, r *http.Request, login, password string) {
	principal, err := a.Provider.Login(r.Context(), login, password)
	if err != nil {
		unauthorized(w, "wrong login or password")
		return
	}
	pair, err := a.CreateTokenPair(principal.ID)
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Error("cannot sign token pair")
		writeDetail(w, http.StatusInternalServerError, "cannot create tokens")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (a *Auth) meEndpoint(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, "missing bearer token")
		return
	}
	writeJSON(w, http.StatusOK, principal)
}

func unauthorized(w http.ResponseWriter, detail string) {
	writeDetail(w, http.StatusUnauthorized, detail)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := json.MarshalWithOption(body, json.DisableHTMLEscape())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}
