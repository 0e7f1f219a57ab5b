package session

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/eternisai/chat-relay/internal/conversation"
	"github.com/eternisai/chat-relay/internal/errors"
	"github.com/eternisai/chat-relay/internal/logger"
	"github.com/gin-gonic/gin"
)

type contextKey string

const (
	// StateKey is the gin context key for the request's *conversation.State.
	StateKey contextKey = "session_state"
	// IDKey is the gin context key for the session id.
	IDKey contextKey = "session_id"

	managerKey contextKey = "session_manager"
)

// ManagerConfig configures the session cookie.
type ManagerConfig struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager binds a browser cookie to server-side session state.
type Manager struct {
	store  Store
	tokens *Tokens
	config ManagerConfig
	logger *logger.Logger
}

func NewManager(store Store, tokens *Tokens, cfg ManagerConfig, log *logger.Logger) *Manager {
	return &Manager{
		store:  store,
		tokens: tokens,
		config: cfg,
		logger: log.WithComponent("session"),
	}
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// Middleware loads the session for the request cookie, issuing a new session when
// the cookie is missing or invalid. Dirty state left by the handler is saved after it returns.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := m.logger.WithContext(c.Request.Context())

		sessionID := ""
		if cookie, err := c.Cookie(m.config.CookieName); err == nil && cookie != "" {
			id, err := m.tokens.Parse(cookie)
			if err != nil {
				log.Debug("discarding session cookie", slog.String("error", err.Error()))
			} else {
				sessionID = id
			}
		}
		if sessionID == "" {
			sessionID = NewID()
		}

		ctx := logger.WithSessionID(c.Request.Context(), sessionID)
		c.Request = c.Request.WithContext(ctx)
		log = m.logger.WithContext(ctx)

		state, err := m.store.Load(ctx, sessionID)
		if err != nil {
			m.logger.LogError(ctx, err, "failed to load session")
			errors.AbortWithInternal(c, "Failed to load session")
			return
		}

		token, err := m.tokens.Issue(sessionID)
		if err != nil {
			log.Error("failed to issue session token", slog.String("error", err.Error()))
			errors.AbortWithInternal(c, "Failed to start session")
			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(m.config.CookieName, token, int(m.config.TTL.Seconds()), "/", "", m.config.Secure, true)

		c.Set(string(StateKey), state)
		c.Set(string(IDKey), sessionID)
		c.Set(string(managerKey), m)

		c.Next()

		if state.Dirty() {
			if err := m.save(c, sessionID, state); err != nil {
				log.Error("failed to save session after request", slog.String("error", err.Error()))
			}
		}
	}
}

func (m *Manager) save(c *gin.Context, sessionID string, state *conversation.State) error {
	if err := m.store.Save(c.Request.Context(), sessionID, state); err != nil {
		return err
	}
	state.MarkClean()
	return nil
}

// Save persists the request's session state now, so a failure can still shape the response.
func Save(c *gin.Context) error {
	state, ok := State(c)
	if !ok {
		return nil
	}
	if !state.Dirty() {
		return nil
	}

	m, ok := c.Get(string(managerKey))
	if !ok {
		return nil
	}
	return m.(*Manager).save(c, ID(c), state)
}

// State returns the session state attached by Middleware.
func State(c *gin.Context) (*conversation.State, bool) {
	v, exists := c.Get(string(StateKey))
	if !exists {
		return nil, false
	}

	state, ok := v.(*conversation.State)
	return state, ok
}

// ID returns the session id attached by Middleware.
func ID(c *gin.Context) string {
	return c.GetString(string(IDKey))
}
