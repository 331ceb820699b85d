// Package api 把 GameService 的操作暴露为 HTTP 接口
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/qianlnk/werewolf-companion/services"
	"go.uber.org/zap"
)

// Server HTTP 接口
type Server struct {
	sessions *services.SessionManager
	logger   *zap.Logger
	origins  []string
	upgrader websocket.Upgrader
}

// NewServer 创建接口服务，allowOrigins 为空时允许所有来源
func NewServer(sessions *services.SessionManager, logger *zap.Logger, allowOrigins []string) *Server {
	s := &Server{
		sessions: sessions,
		logger:   logger,
		origins:  allowOrigins,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowOrigins),
	}
	return s
}

// Router 注册全部路由
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(s.origins) == 0 {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = s.origins
	}
	r.Use(cors.New(corsConfig))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.sessions.Count()})
	})

	r.GET("/ws/sessions/:id", s.servePageSocket)

	api := r.Group("/api")
	{
		api.GET("/role-deck", s.roleDeck)
		api.POST("/sessions", s.createSession)

		session := api.Group("/sessions/:id")
		{
			session.DELETE("", s.endSession)
			session.GET("/game", s.getGameData)
			session.GET("/roles", s.getRoleData)
			session.GET("/pass-to", s.passTo)
			session.PUT("/page", s.updatePage)
			session.PATCH("/game", s.updateGameData)
			session.POST("/reset", s.reset)
			session.POST("/restart", s.restart)
			session.POST("/players", s.addPlayer)
			session.POST("/next-night", s.nextNight)

			night := session.Group("/night")
			{
				night.POST("/kill", s.recordKill)
				night.POST("/witch", s.witch)
				night.POST("/hunter", s.hunter)
				night.POST("/guardian", s.guardian)
				night.POST("/killed-by", s.killedBy)
			}
		}
	}

	return r
}

func originChecker(allowOrigins []string) func(r *http.Request) bool {
	if len(allowOrigins) == 0 {
		return func(r *http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(allowOrigins))
	for _, o := range allowOrigins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
