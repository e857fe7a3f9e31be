package main

import (
	"log"

	"github.com/tutorlinkhq/tutorlink/config"
	"github.com/tutorlinkhq/tutorlink/db"
	"github.com/tutorlinkhq/tutorlink/realtime"
	"github.com/tutorlinkhq/tutorlink/server"
	"github.com/tutorlinkhq/tutorlink/services"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	gormDB := db.GetDB(conf)

	userRepo := db.NewUserRepo(gormDB)
	convRepo := db.NewConversationRepo(gormDB)
	msgRepo := db.NewMessageRepo(gormDB)

	conversationService := services.NewConversationService(convRepo, userRepo, conf)
	messageService := services.NewMessageService(msgRepo, userRepo, conversationService)

	s := &server.Server{
		Config:              conf,
		DB:                  gormDB,
		UserRepository:      userRepo,
		ConversationService: conversationService,
		MessageService:      messageService,
		Notifications:       services.NewNotificationService(conf),
		Hub:                 realtime.NewHub(),
	}
	s.Start()
}
