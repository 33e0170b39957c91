package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"taxEvents/internal/utils"
	"taxEvents/internal/utils/logger/sl"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
	RoleCron   = "cron"
)

var (
	ErrNoSession      = errors.New("missing session")
	ErrInvalidSession = errors.New("invalid session")
	ErrForbidden      = errors.New("admin session required")
)

// Claims - claims сессии от провайдера учётных записей. Subject - id профиля в каталоге.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Session - аутентифицированный автор запроса.
type Session struct {
	ProfileID string
	Role      string
}

func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

type sessionKey struct{}

// WithSession кладёт сессию в контекст.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext возвращает сессию автора запроса, если она есть.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// Auth проверяет HS256 токены сессий и секрет плановых задач.
type Auth struct {
	log        *slog.Logger
	secret     []byte
	cronSecret string
}

// NewAuth создаёт новый экземпляр Auth. Пустой cronSecret отключает доступ плановых задач.
func NewAuth(log *slog.Logger, secret, cronSecret string) *Auth {
	return &Auth{
		log:        log.With(slog.String("component", "middleware/auth")),
		secret:     []byte(secret),
		cronSecret: cronSecret,
	}
}

// IssueToken подписывает токен сессии для утилит и тестов. Боевые токены выдаёт провайдер учётных записей.
func (a *Auth) IssueToken(profileID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profileID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Auth) parse(raw string) (Session, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return Session{}, fmt.Errorf("%w: empty subject", ErrInvalidSession)
	}
	return Session{ProfileID: claims.Subject, Role: claims.Role}, nil
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func (a *Auth) isCron(token string) bool {
	return a.cronSecret != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.cronSecret)) == 1
}

// Optional добавляет сессию зрителя при валидном токене. Испорченный токен всё равно отклоняется.
func (a *Auth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		s, err := a.parse(token)
		if err != nil {
			a.deny(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// Admin требует сессию администратора.
func (a *Auth) Admin(next http.Handler) http.Handler {
	return a.admin(next, false)
}

// AdminOrCron дополнительно принимает секрет плановых задач.
func (a *Auth) AdminOrCron(next http.Handler) http.Handler {
	return a.admin(next, true)
}

func (a *Auth) admin(next http.Handler, allowCron bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok {
			a.deny(w, http.StatusUnauthorized, ErrNoSession)
			return
		}
		if allowCron && a.isCron(token) {
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), Session{ProfileID: RoleCron, Role: RoleCron})))
			return
		}

		s, err := a.parse(token)
		if err != nil {
			a.deny(w, http.StatusUnauthorized, err)
			return
		}
		if !s.IsAdmin() {
			a.deny(w, http.StatusForbidden, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func (a *Auth) deny(w http.ResponseWriter, status int, err error) {
	a.log.Warn("request denied", slog.Int("status", status), sl.Err(err))
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	if httpErr := utils.Err(w, status, err); httpErr != nil {
		a.log.Error("error sending http response", sl.Err(httpErr))
	}
}
