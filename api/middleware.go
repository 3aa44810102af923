package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/basic"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/sos-dispatch-api/config"
	"github.com/linesmerrill/sos-dispatch-api/databases"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

// credentialCacheTTL bounds how long a validated credential or token is
// trusted without going back to the accounts collection
const credentialCacheTTL = 5 * time.Minute

var errInvalidCredentials = errors.New("invalid credentials")

// Claims are carried in every issued bearer token
type Claims struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenResponse is returned by CreateToken
type TokenResponse struct {
	Token     string      `json:"token"`
	ID        string      `json:"_id"`
	Role      models.Role `json:"role"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Guard authenticates requests with basic credentials checked against the
// accounts collection or with a signed bearer token
type Guard struct {
	accounts      databases.AccountDatabase
	secret        []byte
	ttl           time.Duration
	authenticator auth.Authenticator
}

// NewGuard sets up go-guardian with the basic and bearer strategies
func NewGuard(accounts databases.AccountDatabase, secret string, ttl time.Duration) *Guard {
	g := &Guard{
		accounts: accounts,
		secret:   []byte(secret),
		ttl:      ttl,
	}

	g.authenticator = auth.New()
	basicStrategy := basic.New(g.ValidateUser, store.NewFIFO(context.Background(), credentialCacheTTL))
	tokenStrategy := bearer.New(g.ValidateToken, store.NewFIFO(context.Background(), credentialCacheTTL))

	g.authenticator.EnableStrategy(basic.StrategyKey, basicStrategy)
	g.authenticator.EnableStrategy(bearer.CachedStrategyKey, tokenStrategy)
	return g
}

// Middleware rejects unauthenticated requests and stores the caller on the
// request context
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := g.authenticator.Authenticate(r)
		if err != nil {
			zap.S().Warnw("unauthorized", "url", r.URL.Path)
			config.ErrorStatus("unauthorized", http.StatusUnauthorized, w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actorFromInfo(info))))
	})
}

// RequireRole only lets callers holding one of roles through. It must run
// inside Middleware.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok || !slices.Contains(roles, actor.Role) {
				config.ErrorStatus("role not permitted", http.StatusForbidden, w, models.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TokenFromQuery copies an access_token query parameter into the
// Authorization header. Browsers cannot set headers on websocket handshakes.
func TokenFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := r.URL.Query().Get("access_token"); token != "" && r.Header.Get("Authorization") == "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		next.ServeHTTP(w, r)
	})
}

// CreateToken exchanges basic credentials for a signed bearer token
func (g *Guard) CreateToken(w http.ResponseWriter, r *http.Request) {
	info, err := g.authenticator.Strategy(basic.StrategyKey).Authenticate(r.Context(), r)
	if err != nil {
		config.ErrorStatus("basic auth failed", http.StatusUnauthorized, w, err)
		return
	}
	actor := actorFromInfo(info)

	token, expiresAt, err := g.IssueToken(info.UserName(), actor)
	if err != nil {
		config.ErrorStatus("failed to sign token", http.StatusInternalServerError, w, err)
		return
	}

	b, err := json.Marshal(TokenResponse{Token: token, ID: actor.ID, Role: actor.Role, ExpiresAt: expiresAt})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// IssueToken signs an HS256 token for actor valid for the configured TTL
func (g *Guard) IssueToken(email string, actor models.Actor) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(g.ttl)
	claims := Claims{
		Email: email,
		Role:  actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateUser checks basic credentials against the stored bcrypt hash
func (g *Guard) ValidateUser(ctx context.Context, r *http.Request, email, password string) (auth.Info, error) {
	account, err := g.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	if !account.Active {
		return nil, fmt.Errorf("account %s is inactive", account.ID)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	return auth.NewDefaultUser(account.Email, account.ID, []string{string(account.Role)}, nil), nil
}

// ValidateToken verifies the signature and expiry of a bearer token
func (g *Guard) ValidateToken(ctx context.Context, r *http.Request, token string) (auth.Info, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return auth.NewDefaultUser(claims.Email, claims.Subject, []string{string(claims.Role)}, nil), nil
}

func actorFromInfo(info auth.Info) models.Actor {
	actor := models.Actor{ID: info.ID()}
	if groups := info.Groups(); len(groups) > 0 {
		actor.Role = models.Role(groups[0])
	}
	return actor
}
