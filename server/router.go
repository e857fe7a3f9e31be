package server

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) setupRouter() *gin.Engine {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "test" {
		r := gin.New()
		s.defineRoutes(r)
		return r
	}

	r := gin.New()

	// LoggerWithFormatter middleware will write the logs to gin.DefaultWriter
	// By default gin.DefaultWriter = os.Stdout
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	r.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if s.Config.AccessControlAllowOrigin != "" {
		corsConfig.AllowAllOrigins = false
		corsConfig.AllowOrigins = []string{s.Config.AccessControlAllowOrigin}
	}
	r.Use(cors.New(corsConfig))
	s.defineRoutes(r)

	return r
}

func (s *Server) defineRoutes(router *gin.Engine) {
	limitSend := s.messageRateLimiter()

	apirouter := router.Group("/api/v1")
	// The socket identifies in-band, so the upgrade itself is unauthenticated.
	apirouter.GET("/ws/chat", s.handleChatSocket())

	authorized := apirouter.Group("/")
	authorized.Use(s.Authorize())
	authorized.POST("/conversations/start", s.handleStartConversation())
	authorized.GET("/conversations", s.handleListConversations())
	authorized.POST("/conversations/:id/messages", limitSend, s.handleSendMessage())
	authorized.GET("/conversations/:id/messages", s.handleGetConversationMessages())
}
