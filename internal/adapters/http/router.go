package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/tempvoice/internal/adapters/signal"
	"github.com/dkeye/tempvoice/internal/app/orch"
	"github.com/dkeye/tempvoice/internal/app/proposals"
	"github.com/dkeye/tempvoice/internal/config"
	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	sessionName = "tempvoice"
	tokenKey    = "ct"
)

// ClientTokenMiddleware gives every browser a stable token kept in the
// signed session cookie. The token is the session and user id.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(tokenKey).(string)
		if token == "" || len(token) > domain.MaxUserIDLen {
			token = uuid.NewString()
			session.Set(tokenKey, token)
			if err := session.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type Deps struct {
	Orch      *orch.Orchestrator
	Signal    *signal.Controller
	Proposals *proposals.Coordinator
}

type proposalView struct {
	ID           proposals.ID  `json:"id"`
	Kind         string        `json:"kind"`
	Proposer     domain.UserID `json:"proposer"`
	Counterparty domain.UserID `json:"counterparty"`
	Room         domain.RoomID `json:"room"`
	State        string        `json:"state"`
	CreatedAt    time.Time     `json:"created_at"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.GET("/me", func(c *gin.Context) {
		sid := core.SessionID(c.GetString("client_token"))
		deps.Orch.Registry.GetOrCreateUser(sid)
		user, _ := deps.Orch.Registry.LookupUser(sid.UserID())
		c.JSON(http.StatusOK, user)
	})
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": deps.Orch.Rooms.List()})
	})
	api.GET("/proposals", func(c *gin.Context) {
		self := domain.UserID(c.GetString("client_token"))
		user := domain.UserID(c.DefaultQuery("user", string(self)))
		if user != self {
			if ok, _ := isAdmin(c, cfg.Secret); !ok {
				c.JSON(http.StatusForbidden, gin.H{"error": "admin only"})
				return
			}
		}
		out := make([]proposalView, 0)
		for _, p := range deps.Proposals.ForUser(user) {
			out = append(out, proposalView{
				ID:           p.ID,
				Kind:         p.Kind.String(),
				Proposer:     p.ProposerID,
				Counterparty: p.CounterpartyID,
				Room:         p.TargetRoomID,
				State:        p.State.String(),
				CreatedAt:    p.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"proposals": out})
	})

	admin := api.Group("/admin", AdminAuth(cfg.Secret))
	admin.PUT("/users/:id/roles", func(c *gin.Context) {
		var body struct {
			Roles []domain.Role `json:"roles"`
			Bot   bool          `json:"bot"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		id := domain.UserID(c.Param("id"))
		if !deps.Orch.Registry.SetProfile(id, body.Roles, body.Bot) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
			return
		}
		log.Info().Str("module", "adapters.http").Str("user", string(id)).Str("by", c.GetString("admin_subject")).Msg("profile updated")
		c.Status(http.StatusNoContent)
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		deps.Signal.HandleSignal(ctx, c)
	})

	return r
}
