package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
	"retailpos/internal/service"
)

const (
	requestIDKey = "request_id"
	actorKey     = "actor"
)

type API struct {
	service        *service.Service
	auth           *AuthManager
	allowedOrigin  string
	loginLimiter   *attemptLimiter
	pinLimiter     *attemptLimiter
	validate       *validator.Validate
	log            zerolog.Logger
	metricsHandler http.Handler
}

type Option func(*API)

func WithLogger(logger zerolog.Logger) Option {
	return func(a *API) { a.log = logger }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *API) { a.metricsHandler = h }
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, opts ...Option) *API {
	a := &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		validate:      newValidator(),
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func newValidator() *validator.Validate {
	v := validator.New()
	// decimal.Decimal validates as a number so min/gt tags apply to money fields.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func (a *API) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies(nil)
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		writeError(c, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})
	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, errors.New("route not found"))
	})

	r.Use(a.requestID(), a.recovery(), a.requestLogger(), securityHeaders(), a.corsMiddleware(), limitBody(1<<20))

	r.GET("/healthz", a.handleHealth)
	if a.metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(a.metricsHandler))
	}

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", a.handleLogin)

	staff := v1.Group("", a.requireAuth(domain.RoleCashier, domain.RoleAdmin))
	staff.GET("/products", a.handleProducts)
	staff.POST("/sales", a.handleSubmitSale)
	staff.GET("/sales", a.handleListSales)
	staff.GET("/sales/:id", a.handleGetSale)
	staff.GET("/customers/:id/account", a.handleCustomerAccount)
	staff.GET("/receivables", a.handleReceivables)
	staff.GET("/register", a.handleRegister)
	staff.POST("/register/open", a.handleRegisterOpen)

	admin := v1.Group("", a.requireAuth(domain.RoleAdmin))
	admin.POST("/customers/:id/credit", a.handleAccountCredit)
	admin.GET("/customers/:id/movements", a.handleAccountMovements)
	admin.GET("/stats/daily", a.handleDailyStats)
	admin.POST("/register/close", a.handleRegisterClose)
	admin.GET("/register/movements", a.handleCashMovements)
	admin.GET("/audit-logs", a.handleAuditLogs)
	admin.GET("/users/cashiers", a.handleListCashiers)
	admin.POST("/users/cashiers", a.handleCreateCashier)

	return r
}

func (a *API) requireAuth(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(c, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(c, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(c, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		c.Set(actorKey, actor.Username)
		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// recovery turns panics into a 500 without exposing the panic value.
func (a *API) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				a.log.Error().
					Str("request_id", c.GetString(requestIDKey)).
					Interface("panic", rec).
					Msg("panic recovered")
				writeError(c, http.StatusInternalServerError, errors.New("panic"))
			}
		}()
		c.Next()
	}
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := a.log.Info()
		if status >= http.StatusInternalServerError {
			event = a.log.Error()
			if len(c.Errors) > 0 {
				event = event.Err(c.Errors.Last().Err)
			}
		}
		event.
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Str("actor", c.GetString(actorKey)).
			Dur("latency", time.Since(startedAt)).
			Msg("request")
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		c.Next()
	}
}

func (a *API) corsMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "Content-Type", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	origin := strings.TrimSpace(a.allowedOrigin)
	if origin == "" || origin == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = strings.Split(origin, ",")
		for i := range cfg.AllowOrigins {
			cfg.AllowOrigins[i] = strings.TrimSpace(cfg.AllowOrigins[i])
		}
	}
	return cors.New(cfg)
}

func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil && c.Request.Method != http.MethodGet {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// bindJSON decodes the body strictly and runs validator tags. On failure it
// writes a 400 and returns false.
func (a *API) bindJSON(c *gin.Context, dest any) bool {
	decoder := json.NewDecoder(c.Request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return false
	}
	if err := a.validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":  "validation failed",
				"code":   "invalid_request",
				"fields": fields,
			})
			return false
		}
		writeError(c, http.StatusBadRequest, err)
		return false
	}
	return true
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeDomainError responds with the status, code and detail of a domain
// error.
func writeDomainError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		writeError(c, status, err)
		return
	}
	body := gin.H{
		"error": err.Error(),
		"code":  errorCode(err),
	}
	if detail := errorDetail(err); detail != nil {
		body["detail"] = detail
	}
	c.AbortWithStatusJSON(status, body)
}

func writeError(c *gin.Context, status int, err error) {
	// 5xx bodies stay generic; the cause is only logged.
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal server error"
		if status == http.StatusServiceUnavailable {
			msg = "sale could not be committed, retry later"
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
