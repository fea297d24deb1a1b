package httpapi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"retailpos/internal/domain"
)

const tokenIssuer = "retailpos"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
	ErrUsernameTaken      = errors.New("username already exists")
	errInvalidToken       = errors.New("invalid or expired token")
)

// UserStore persists back-office logins. Passwords are bcrypt hashes; plain
// values left by older seeds are rehashed on load.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager signs staff tokens and checks the manager PIN. Credentials are
// cached in memory and reloaded from the user store on a cache miss.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	pinHash  []byte
	users    UserStore

	mu    sync.RWMutex
	creds map[string]credential
}

type credential struct {
	hash    string
	role    string
	active  bool
	created time.Time
}

type staffClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// dummyHash keeps a login for an unknown username as slow as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("retailpos-no-such-user"), bcrypt.DefaultCost)

func NewAuthManager(ctx context.Context, secret string, tokenTTL time.Duration, managerPIN string, users UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	a := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		creds:    make(map[string]credential),
	}
	if pin := strings.TrimSpace(managerPIN); pin != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			log.Warn().Err(err).Msg("auth: manager PIN could not be hashed, top-ups disabled")
		} else {
			a.pinHash = hash
		}
	}
	if err := a.reload(ctx); err != nil {
		log.Warn().Err(err).Msg("auth: failed to load users")
	}
	return a
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := normalizeUsername(req.Username)
	cred, ok := a.lookup(ctx, username)
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !checkPassword(cred.hash, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, ErrInactiveAccount
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, cred.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	claims := &staffClaims{}
	token, err := jwtlib.ParseWithClaims(raw, claims, func(*jwtlib.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return domain.Actor{}, errInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.Role == "" {
		return domain.Actor{}, errInvalidToken
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	now := time.Now().UTC()
	claims := staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			Issuer:    tokenIssuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

// ValidateManagerPIN gates balance top-ups. Without a configured PIN nothing
// validates.
func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	pin = strings.TrimSpace(pin)
	if pin == "" || len(a.pinHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.pinHash, []byte(pin)) == nil
}

func (a *AuthManager) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	username := normalizeUsername(req.Username)
	switch {
	case len(username) < 4:
		return domain.CashierUser{}, fmt.Errorf("username must be at least 4 characters")
	case strings.ContainsAny(username, " \t\r\n"):
		return domain.CashierUser{}, fmt.Errorf("username must not contain spaces")
	case len(strings.TrimSpace(req.Password)) < 6:
		return domain.CashierUser{}, fmt.Errorf("password must be at least 6 characters")
	}
	if _, exists := a.lookup(ctx, username); exists {
		return domain.CashierUser{}, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.CashierUser{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.UserAccount{
		Username:  username,
		Password:  string(hash),
		Role:      domain.RoleCashier,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if a.users != nil {
		if err := a.users.CreateUser(ctx, user); err != nil {
			return domain.CashierUser{}, err
		}
	}

	a.mu.Lock()
	a.creds[username] = credential{hash: user.Password, role: user.Role, active: true, created: user.CreatedAt}
	a.mu.Unlock()

	return domain.CashierUser{Username: username, Role: user.Role, Active: true, CreatedAt: user.CreatedAt}, nil
}

func (a *AuthManager) ListCashiers(ctx context.Context) []domain.CashierUser {
	if err := a.reload(ctx); err != nil {
		log.Warn().Err(err).Msg("auth: failed to refresh users")
	}

	a.mu.RLock()
	out := make([]domain.CashierUser, 0, len(a.creds))
	for username, cred := range a.creds {
		if cred.role != domain.RoleCashier {
			continue
		}
		out = append(out, domain.CashierUser{Username: username, Role: cred.role, Active: cred.active, CreatedAt: cred.created})
	}
	a.mu.RUnlock()

	slices.SortFunc(out, func(x, y domain.CashierUser) int { return strings.Compare(x.Username, y.Username) })
	return out
}

// lookup reads the credential cache and reloads once from the store when the
// user is not cached yet, so logins created by another instance work.
func (a *AuthManager) lookup(ctx context.Context, username string) (credential, bool) {
	a.mu.RLock()
	cred, ok := a.creds[username]
	a.mu.RUnlock()
	if ok || a.users == nil {
		return cred, ok
	}

	if err := a.reload(ctx); err != nil {
		log.Warn().Err(err).Msg("auth: failed to refresh users")
		return credential{}, false
	}
	a.mu.RLock()
	cred, ok = a.creds[username]
	a.mu.RUnlock()
	return cred, ok
}

// reload merges the store's users into the credential cache. Plain-text
// passwords are rehashed and written back.
func (a *AuthManager) reload(ctx context.Context) error {
	if a.users == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	users, err := a.users.ListUsers(ctx)
	if err != nil {
		return err
	}

	loaded := make(map[string]credential, len(users))
	for _, user := range users {
		username := normalizeUsername(user.Username)
		if username == "" {
			continue
		}
		hash := user.Password
		if !isBcryptHash(hash) {
			upgraded, err := bcrypt.GenerateFromPassword([]byte(hash), bcrypt.DefaultCost)
			if err != nil {
				continue
			}
			hash = string(upgraded)
			if err := a.users.UpdateUserPassword(ctx, username, hash); err != nil {
				log.Warn().Err(err).Str("username", username).Msg("auth: failed to store upgraded password hash")
			}
		}
		loaded[username] = credential{hash: hash, role: user.Role, active: user.Active, created: user.CreatedAt}
	}

	a.mu.Lock()
	for username, cred := range a.creds {
		if _, ok := loaded[username]; !ok {
			loaded[username] = cred
		}
	}
	a.creds = loaded
	a.mu.Unlock()
	return nil
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func checkPassword(hash string, input string) bool {
	if hash == "" || strings.TrimSpace(input) == "" || !isBcryptHash(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(input)) == nil
}

func isBcryptHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
