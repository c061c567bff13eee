package router

import (
	"log/slog"
	"net/http"
	"piiquante/internal/config"
	"piiquante/internal/handlers"
	"piiquante/internal/middleware"
	"piiquante/internal/services"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const sessionName = "piiquante_session"

// Deps is everything the routes need.
type Deps struct {
	Config  *config.Config
	Auth    *services.AuthService
	Catalog *services.SauceCatalog
	Images  *services.ImageStore
	Logger  *slog.Logger
}

// New builds the engine with middleware and every route registered.
func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(d.Logger))
	r.Use(middleware.CORS(d.Config.CORS.AllowedOrigin), middleware.SecurityHeaders())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.MaxMultipartMemory = 8 << 20

	useSession := d.Config.Session.Secret != ""
	if useSession {
		store := cookie.NewStore([]byte(d.Config.Session.Secret))
		store.Options(sessions.Options{
			Path:     "/",
			MaxAge:   int(d.Config.TokenTTL().Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		r.Use(sessions.Sessions(sessionName, store))
	}

	RegisterRoutes(r, d, useSession)
	return r
}

func RegisterRoutes(r *gin.Engine, d Deps, useSession bool) {
	authHandler := handlers.NewAuthHandler(d.Auth, useSession)
	sauceHandler := handlers.NewSauceHandler(d.Catalog, d.Config.Images.PublicBaseURL, d.Config.Images.MaxBytes)
	voteHandler := handlers.NewVoteHandler(d.Catalog)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.Static("/images", d.Images.Dir())

	auth := r.Group("/api/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
	}

	sauces := r.Group("/api/sauces")
	sauces.Use(middleware.AuthRequired(d.Auth, useSession))
	{
		sauces.GET("", sauceHandler.List)
		sauces.POST("", sauceHandler.Create)
		sauces.GET("/:id", sauceHandler.Get)
		sauces.PUT("/:id", sauceHandler.Update)
		sauces.DELETE("/:id", sauceHandler.Delete)
		sauces.POST("/:id/like", voteHandler.Vote)
	}
}
