package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	gsheet "google.golang.org/api/sheets/v4"
)

type oauthInitCmd struct {
	ClientJSON string        `name:"client-json" help:"OAuth client JSON." env:"GOOGLE_OAUTH_CLIENT_JSON"`
	ClientFile string        `name:"client-file" help:"OAuth client JSON file." env:"GOOGLE_OAUTH_CLIENT_FILE"`
	TokenFile  string        `name:"token-file" help:"Where to save the token." default:"token.json" env:"GOOGLE_OAUTH_TOKEN_FILE"`
	Port       int           `help:"Port of the local redirect listener." default:"8085" env:"OAUTH_REDIRECT_PORT"`
	Timeout    time.Duration `help:"How long to wait for authorization." default:"5m"`
}

// Run prints the consent URL, waits for Google to redirect back to the
// local listener and stores the exchanged token. The redirect URI
// http://localhost:<port>/callback must be registered on the OAuth client.
func (c *oauthInitCmd) Run(g *Globals) error {
	clientJSON := []byte(c.ClientJSON)
	if c.ClientJSON == "" {
		if c.ClientFile == "" {
			return errors.New("set --client-json or --client-file")
		}
		b, err := os.ReadFile(c.ClientFile)
		if err != nil {
			return fmt.Errorf("read client file: %w", err)
		}
		clientJSON = b
	}
	cfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return fmt.Errorf("oauth config: %w", err)
	}
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d/callback", c.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", c.Port))
	if err != nil {
		return fmt.Errorf("listen for redirect: %w", err)
	}
	state := uuid.NewString()
	codes := make(chan string, 1)
	srv := &http.Server{Handler: callbackHandler(state, codes), ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	fmt.Fprintf(g.writer(), "Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	var code string
	select {
	case code = <-codes:
	case <-ctx.Done():
		return fmt.Errorf("authorization not completed: %w", ctx.Err())
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	if err := saveToken(c.TokenFile, tok); err != nil {
		return err
	}
	green.Fprintf(g.writer(), "Saved token to %s\n", c.TokenFile)
	return nil
}

// callbackHandler forwards the authorization code of a redirect whose state
// matches. Only the first code is kept.
func callbackHandler(state string, codes chan<- string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
			return
		}
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		select {
		case codes <- code:
		default:
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
	})
	return mux
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}
