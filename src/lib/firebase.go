package lib

import (
	"context"
	"log"
	"os"
	"path"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

var innerApp *firebase.App
var innerMessaging *messaging.Client

func getOpts() *option.ClientOption {
	secretsPath := os.Getenv("SECRETS_DIR")
	opt := option.WithCredentialsFile(path.Join(secretsPath, "admin-sdk-credentials.json"))
	return &opt
}

func GetFirebaseMessaging() (*messaging.Client, error) {
	if innerMessaging != nil {
		return innerMessaging, nil
	}
	opt := getOpts()
	if innerApp == nil {
		app, err := firebase.NewApp(context.Background(), nil, *opt)
		if err != nil {
			log.Printf("error initializing app: %v\n", err.Error())
			return nil, err
		}
		innerApp = app
	}

	msg, err := innerApp.Messaging(context.Background())
	if err != nil {
		log.Printf("error initializing Firebase Messaging: %v\n", err.Error())
		return nil, err
	}
	innerMessaging = msg

	return msg, nil
}

// SendPush delivers one notification to a batch of device tokens. Invalid
// tokens are logged and skipped.
func SendPush(title, body string, tokens []string) {
	if len(tokens) == 0 {
		return
	}
	client, err := GetFirebaseMessaging()
	if err != nil {
		return
	}
	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
	}
	resp, err := client.SendEachForMulticast(context.Background(), msg)
	if err != nil {
		log.Printf("Error sending push notification: %s\n", err.Error())
		return
	}
	log.Printf("Push notifications sent: success=%d failure=%d\n", resp.SuccessCount, resp.FailureCount)
}
