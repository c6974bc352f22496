// get_token prints a Gmail refresh token that may send digests on behalf of
// the configured account.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

func main() {
	clientID := os.Getenv("GMAIL_CLIENT_ID")
	clientSecret := os.Getenv("GMAIL_CLIENT_SECRET")

	if clientID == "" || clientSecret == "" {
		logrus.Fatal("Please set GMAIL_CLIENT_ID and GMAIL_CLIENT_SECRET environment variables")
	}

	redirectURL := os.Getenv("GMAIL_REDIRECT_URL")
	if redirectURL == "" {
		redirectURL = "http://localhost:8080/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
	}

	authURL := config.AuthCodeURL("mail-digest", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("Open this link and grant the digest sender access:\n%v\n", authURL)

	var authCode string
	fmt.Print("\nPaste the 'code' parameter of the redirect URL: ")
	if _, err := fmt.Scan(&authCode); err != nil {
		logrus.Fatalf("Unable to read authorization code: %v", err)
	}

	tok, err := config.Exchange(context.Background(), authCode)
	if err != nil {
		logrus.Fatalf("Unable to retrieve token from web: %v", err)
	}
	if tok.RefreshToken == "" {
		logrus.Fatal("Google returned no refresh token; revoke the app's access and try again")
	}

	fmt.Println("\nAdd the refresh token to config.yaml under gmail.refresh_token or export it:")
	fmt.Printf("export GMAIL_REFRESH_TOKEN=\"%s\"\n", tok.RefreshToken)
}
