package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tutorlinkhq/tutorlink/config"
	"github.com/tutorlinkhq/tutorlink/db"
	"github.com/tutorlinkhq/tutorlink/realtime"
	"github.com/tutorlinkhq/tutorlink/services"
)

type Server struct {
	Config              *config.Config
	DB                  *db.GormDB
	UserRepository      db.UserRepository
	ConversationService services.ConversationService
	MessageService      services.MessageService
	Notifications       *services.NotificationService
	Hub                 *realtime.Hub
}

// Start runs the HTTP server until SIGINT/SIGTERM, then drains live socket
// connections and shuts down.
func (s *Server) Start() {
	r := s.setupRouter()

	port := s.Config.Port
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen error: %v", err)
		}
	}()
	log.Printf("server started on port %d", port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	s.Hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
}
