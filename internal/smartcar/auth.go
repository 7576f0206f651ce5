package smartcar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openvalet/valet/internal/config"
	"golang.org/x/oauth2"
)

const (
	defaultAuthURL  = "https://connect.smartcar.com/oauth/authorize"
	defaultTokenURL = "https://auth.smartcar.com/oauth/token"
)

// connectScopes are the permissions Valet requests on connect.
var connectScopes = []string{
	"read_vehicle_info",
	"read_location",
	"read_odometer",
	"read_fuel",
	"read_battery",
	"read_tires",
	"read_security",
	"control_security",
}

// Credential is one vehicle's OAuth token pair with its absolute expiry.
type Credential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Auth handles the Smartcar OAuth flows: authorization URLs, code exchange,
// and refresh-token grants. Built on golang.org/x/oauth2.
type Auth struct {
	cfg  oauth2.Config
	mode string
}

// AuthOpts holds parameters for creating an Auth.
type AuthOpts struct {
	Smartcar config.SmartcarConfig
	AuthURL  string // override for tests
	TokenURL string // override for tests
}

// NewAuth creates an Auth from the smartcar config section.
func NewAuth(opts AuthOpts) (*Auth, error) {
	sc := opts.Smartcar
	if sc.ClientID == "" || sc.ClientSecret == "" {
		return nil, fmt.Errorf("smartcar: client id and secret are required")
	}
	authURL := opts.AuthURL
	if authURL == "" {
		authURL = defaultAuthURL
	}
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	return &Auth{
		cfg: oauth2.Config{
			ClientID:     sc.ClientID,
			ClientSecret: sc.ClientSecret,
			RedirectURL:  sc.RedirectURI,
			Scopes:       connectScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		mode: sc.Mode,
	}, nil
}

// AuthURL returns the authorization URL a user visits to connect a vehicle.
// State should identify the requesting user for the callback side.
func (a *Auth) AuthURL(state string) string {
	return a.cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("mode", a.mode))
}

// Exchange trades an authorization code for a Credential.
func (a *Auth) Exchange(ctx context.Context, code string) (Credential, error) {
	tok, err := a.cfg.Exchange(ctx, code)
	if err != nil {
		return Credential{}, classifyTokenError("exchange code", err)
	}
	return credentialFrom(tok)
}

// Refresh exchanges a refresh token for a fresh Credential. Smartcar rotates
// refresh tokens on use, so the returned Credential carries a new one that
// must be persisted.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (Credential, error) {
	src := a.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return Credential{}, classifyTokenError("refresh token", err)
	}
	return credentialFrom(tok)
}

// credentialFrom converts an oauth2 token, enforcing the invariant that a
// credential without an expiry is never valid.
func credentialFrom(tok *oauth2.Token) (Credential, error) {
	if tok.AccessToken == "" {
		return Credential{}, &APIError{Kind: KindTransient, Message: "token response missing access token"}
	}
	expiry := tok.Expiry
	if expiry.IsZero() {
		return Credential{}, &APIError{Kind: KindTransient, Message: "token response missing expiry"}
	}
	return Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       expiry.UTC(),
	}, nil
}

// classifyTokenError maps oauth2 failures onto the API error taxonomy:
// a definitive rejection from the token endpoint is unauthorized (the
// refresh token is revoked or invalid); everything else is transient.
func classifyTokenError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := retrieveErr.Response.StatusCode
		if status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden {
			return &APIError{Kind: KindUnauthorized, StatusCode: status, Message: op + " rejected"}
		}
		return &APIError{Kind: KindTransient, StatusCode: status, Message: op + " failed"}
	}
	return &APIError{Kind: KindTransient, Message: fmt.Sprintf("%s: %v", op, err)}
}
