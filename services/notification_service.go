package services

import (
	"context"
	"log"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"google.golang.org/api/option"

	"github.com/tutorlinkhq/tutorlink/config"
)

// NotificationService delivers best-effort push notifications to
// participants without a live socket. It is entirely optional: with no
// credentials configured every call is a no-op, and failures are logged but
// never surfaced to the message path.
type NotificationService struct {
	client *messaging.Client
}

func NewNotificationService(conf *config.Config) *NotificationService {
	s := &NotificationService{}
	if conf.FirebaseCredentialsFile == "" {
		return s
	}

	opt := option.WithCredentialsFile(conf.FirebaseCredentialsFile)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		log.Printf("firebase init failed, push notifications disabled: %v", err)
		return s
	}
	client, err := app.Messaging(context.Background())
	if err != nil {
		log.Printf("firebase messaging init failed, push notifications disabled: %v", err)
		return s
	}
	s.client = client
	return s
}

func (s *NotificationService) Enabled() bool {
	return s.client != nil
}

// PushNewMessage notifies one device about a new chat message.
func (s *NotificationService) PushNewMessage(deviceToken string, senderName string, body string) {
	if s.client == nil || deviceToken == "" {
		return
	}

	message := &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: senderName,
			Body:  body,
		},
	}
	if _, err := s.client.Send(context.Background(), message); err != nil {
		log.Println("Error sending push notification:", err)
	}
}
