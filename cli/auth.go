// ABOUTME: Google OAuth setup and credential check commands
// ABOUTME: Runs the browser consent flow and verifies Gmail and Sheets access
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/oauth2"

	"github.com/harperreed/leadsync/config"
	"github.com/harperreed/leadsync/sync"
)

// AuthCommand runs the OAuth consent flow, or with --check verifies the stored token.
func AuthCommand(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	check := fs.Bool("check", false, "Verify stored credentials instead of authenticating")
	_ = fs.Parse(args)

	ctx := context.Background()
	if *check {
		return authCheck(ctx, cfg)
	}

	oauthConfig, err := sync.RequireOAuthConfig()
	if err != nil {
		return fmt.Errorf("failed to get OAuth config: %w", err)
	}

	// Start local server for OAuth callback
	callbackChan := make(chan *oauth2.Token, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- errors.New("no authorization code received")
			return
		}

		token, err := oauthConfig.Exchange(ctx, code)
		if err != nil {
			errChan <- fmt.Errorf("failed to exchange code: %w", err)
			return
		}

		callbackChan <- token
		_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
	})

	server := &http.Server{Addr: ":8080", Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	authURL := oauthConfig.AuthCodeURL("state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Println("Opening browser for Google OAuth...")
	fmt.Printf("\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)

	_ = openBrowser(authURL)

	select {
	case token := <-callbackChan:
		_ = server.Shutdown(ctx)

		if err := sync.SaveToken(token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}

		fmt.Printf("\n✓ Authenticated successfully\n")
		fmt.Printf("✓ Tokens saved to %s\n\n", sync.TokenPath())
		fmt.Println("Run 'leadsync auth --check' to verify mailbox and sheet access.")
		return nil

	case err := <-errChan:
		_ = server.Shutdown(ctx)
		return fmt.Errorf("OAuth flow failed: %w", err)
	}
}

func authCheck(ctx context.Context, cfg *config.Config) error {
	client, err := sync.NewHTTPClient(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Checking Google access...")

	gmailSvc, err := sync.NewGmailClient(ctx, client)
	if err != nil {
		return err
	}
	profile, err := gmailSvc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail check failed: %w", err)
	}
	fmt.Printf("  ✓ Gmail: %s (%d messages)\n", profile.EmailAddress, profile.MessagesTotal)

	if cfg.Sheets.SpreadsheetID == "" {
		fmt.Println("  - Sheets: no spreadsheet configured")
		return nil
	}

	sheetsSvc, err := sync.NewSheetsClient(ctx, client)
	if err != nil {
		return err
	}
	sheet, err := sheetsSvc.Spreadsheets.Get(cfg.Sheets.SpreadsheetID).Fields("properties/title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets check failed: %w", err)
	}
	fmt.Printf("  ✓ Sheets: %q\n", sheet.Properties.Title)

	return nil
}

// openBrowser attempts to open URL in default browser
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	return exec.Command(cmd, args...).Start()
}
