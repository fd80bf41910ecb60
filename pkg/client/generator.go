package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/authrelay/pkg/events"
)

// GeneratorConfig describes the sign-in flow the synthetic events narrate.
type GeneratorConfig struct {
	// Issuer is the identity provider org URL, e.g. https://dev-123.okta.com.
	Issuer string
	// ClientID is the OAuth client id of the sign-in widget.
	ClientID string
	// Origin is the viewer origin used for redirect URIs.
	Origin string
}

// DefaultGeneratorConfig returns a config for a local development viewer.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Issuer:   "https://example.okta.com",
		ClientID: "demo-client",
		Origin:   "http://localhost:5173",
	}
}

// Generator builds synthetic events for the browser side of a sign-in, plus
// sample payloads for the server-side hooks.
type Generator struct {
	cfg   GeneratorConfig
	now   func() time.Time
	newID func() string
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorClock sets the time source.
func WithGeneratorClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a generator. Empty config fields take defaults.
func NewGenerator(cfg GeneratorConfig, opts ...GeneratorOption) *Generator {
	def := DefaultGeneratorConfig()
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = def.ClientID
	}
	if cfg.Origin == "" {
		cfg.Origin = def.Origin
	}
	cfg.Issuer = strings.TrimRight(cfg.Issuer, "/")
	cfg.Origin = strings.TrimRight(cfg.Origin, "/")

	g := &Generator{cfg: cfg, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) synthetic(t events.Type, at time.Time, req events.Request, resp *events.Response, desc string) events.Event {
	return events.Event{
		ID:        g.newID(),
		Type:      t,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Request:   req,
		Response:  resp,
		Metadata: events.Metadata{
			events.MetaSynthetic:   true,
			events.MetaSource:      events.SourceFrontend,
			events.MetaDescription: desc,
		},
	}
}

func (g *Generator) redirectURI() string {
	return g.cfg.Origin + "/callback"
}

// WidgetInit records the sign-in widget starting up.
func (g *Generator) WidgetInit() events.Event {
	return g.widgetInit(g.now())
}

func (g *Generator) widgetInit(at time.Time) events.Event {
	return g.synthetic(events.TypeWidgetInit, at, events.Request{
		URL:    g.cfg.Origin,
		Method: "INIT",
		Body: map[string]any{
			"baseUrl":     g.cfg.Issuer,
			"clientId":    g.cfg.ClientID,
			"flow":        "Authorization Code + PKCE (Popup Mode)",
			"redirectUri": g.redirectURI(),
		},
	}, nil, "Sign-in widget initialized")
}

// OAuthRedirect records the browser opening the authorization URL. An
// empty authURL defaults to the issuer's authorize endpoint.
func (g *Generator) OAuthRedirect(authURL string) events.Event {
	return g.oauthRedirect(g.now(), authURL)
}

func (g *Generator) oauthRedirect(at time.Time, authURL string) events.Event {
	if authURL == "" {
		authURL = g.cfg.Issuer + "/oauth2/v1/authorize"
	}
	return g.synthetic(events.TypeOAuthRedirect, at, events.Request{
		URL:    authURL,
		Method: "GET",
		Body: map[string]any{
			"responseType": "code",
			"pkce":         true,
			"scopes":       []string{"openid", "profile", "email"},
		},
	}, nil, "Opening authentication in popup window")
}

// OAuthCallback records the authorization code arriving in the popup.
func (g *Generator) OAuthCallback() events.Event {
	return g.oauthCallback(g.now())
}

func (g *Generator) oauthCallback(at time.Time) events.Event {
	return g.synthetic(events.TypeOAuthCallback, at, events.Request{
		URL:    "popup://authentication/callback",
		Method: "GET",
		Body: map[string]any{
			"code":  "[authorization_code]",
			"state": "[state_parameter]",
			"mode":  "popup",
		},
	}, &events.Response{
		Status: 200,
		Body:   map[string]any{"codeReceived": true, "popup": true},
	}, "OAuth callback received in popup window")
}

// TokenExchange records the code being exchanged for tokens.
func (g *Generator) TokenExchange() events.Event {
	return g.tokenExchange(g.now())
}

func (g *Generator) tokenExchange(at time.Time) events.Event {
	return g.synthetic(events.TypeTokenExchange, at, events.Request{
		URL:    g.cfg.Issuer + "/oauth2/v1/token",
		Method: "POST",
		Body: map[string]any{
			"grantType":    "authorization_code",
			"codeVerifier": "[pkce_code_verifier]",
			"redirectUri":  g.redirectURI(),
		},
	}, nil, "Exchanging authorization code for tokens")
}

// AuthSuccess records the sign-in completing.
func (g *Generator) AuthSuccess() events.Event {
	return g.authSuccess(g.now())
}

func (g *Generator) authSuccess(at time.Time) events.Event {
	return g.synthetic(events.TypeAuthSuccess, at, events.Request{
		URL:    g.cfg.Origin,
		Method: "SUCCESS",
		Body:   map[string]any{"tokensReceived": true},
	}, &events.Response{
		Status: 200,
		Body:   map[string]any{"authenticated": true, "tokensStored": true},
	}, "Authentication completed successfully")
}

// LoginFlow returns the full synthetic sequence starting now, with step
// between consecutive events.
func (g *Generator) LoginFlow(step time.Duration) []events.Event {
	at := g.now()
	next := func() time.Time {
		t := at
		at = at.Add(step)
		return t
	}
	return []events.Event{
		g.widgetInit(next()),
		g.oauthRedirect(next(), ""),
		g.oauthCallback(next()),
		g.tokenExchange(next()),
		g.authSuccess(next()),
	}
}

// Synthetic builds the synthetic event of type t.
func (g *Generator) Synthetic(t events.Type) (events.Event, error) {
	switch t {
	case events.TypeWidgetInit:
		return g.WidgetInit(), nil
	case events.TypeOAuthRedirect:
		return g.OAuthRedirect(""), nil
	case events.TypeOAuthCallback:
		return g.OAuthCallback(), nil
	case events.TypeTokenExchange:
		return g.TokenExchange(), nil
	case events.TypeAuthSuccess:
		return g.AuthSuccess(), nil
	}
	return events.Event{}, fmt.Errorf("%q is not a synthetic event type", t)
}

// SampleOptions customizes sample server-side payloads.
type SampleOptions struct {
	Phone   string
	Channel string
	User    string
}

// SamplePayload builds a capture payload of server type t shaped like the
// instrumented telephony hook sends.
func (g *Generator) SamplePayload(t events.Type, o SampleOptions) (*events.Payload, error) {
	if o.Phone == "" {
		o.Phone = "+15555550100"
	}
	if o.Channel == "" {
		o.Channel = events.ChannelSMS
	}
	if o.User == "" {
		o.User = "user@example.com"
	}
	sid := "VE" + strings.ReplaceAll(g.newID(), "-", "")
	now := g.now()

	switch t {
	case events.TypeTelephonyHook:
		return events.NewPayload(t, now, events.Request{
			URL:    "https://example.twil.io/telephony-hook",
			Method: "POST",
			Body: map[string]any{
				"userId":          o.User,
				"phoneNumber":     o.Phone,
				"channel":         o.Channel,
				"otpCode":         "123456",
				"factorType":      strings.ToUpper(o.Channel),
				"deliveryChannel": o.Channel,
			},
		}, &events.Response{
			Status: 200,
			Body: map[string]any{
				"verificationSid": sid,
				"status":          events.StatusPending,
				"to":              o.Phone,
				"channel":         o.Channel,
				"valid":           false,
			},
		}, events.Metadata{
			events.MetaPhoneNumber:     o.Phone,
			events.MetaChannel:         o.Channel,
			events.MetaVerificationSID: sid,
			events.MetaStatus:          events.StatusPending,
			events.MetaSource:          events.SourceBackend,
		}), nil

	case events.TypeVerifyAPI:
		return events.NewPayload(t, now, events.Request{
			URL:    "https://verify.twilio.com/v2/Services/VA000/Verifications",
			Method: "POST",
			Body:   map[string]any{"to": o.Phone, "channel": o.Channel},
		}, &events.Response{
			Status: 201,
			Body:   map[string]any{"sid": sid, "status": events.StatusPending},
		}, events.Metadata{
			events.MetaPhoneNumber:     o.Phone,
			events.MetaChannel:         o.Channel,
			events.MetaVerificationSID: sid,
			events.MetaStatus:          events.StatusPending,
			events.MetaSource:          events.SourceBackend,
		}), nil

	case events.TypeEventHook:
		return events.NewPayload(t, now, events.Request{
			URL:    "https://relay.example.com/hooks/events",
			Method: "POST",
			Body: map[string]any{
				"eventType": "user.authentication.auth_via_mfa",
				"actor":     o.User,
				"outcome":   "SUCCESS",
			},
		}, nil, events.Metadata{
			events.MetaStatus: events.StatusApproved,
			events.MetaSource: events.SourceBackend,
		}), nil
	}
	return nil, fmt.Errorf("%q is not a server event type", t)
}
