package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Versifine/mcclient/internal/protocol"
)

const (
	DefaultSessionServer = "https://sessionserver.mojang.com"
	tracerName           = "github.com/Versifine/mcclient/internal/auth"
)

var (
	ErrMissingCredentials = errors.New("missing access token or profile id")
	ErrTokenExpired       = errors.New("access token expired")
)

// SessionServer joins servers through the session server's
// /session/minecraft/join endpoint.
type SessionServer struct {
	BaseURL string
	Client  *http.Client
	// Now is used for the token expiry check.
	Now    func() time.Time
	tracer trace.Tracer
}

func NewSessionServer(baseURL string) *SessionServer {
	if baseURL == "" {
		baseURL = DefaultSessionServer
	}
	return &SessionServer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
		Now:     time.Now,
		tracer:  otel.Tracer(tracerName),
	}
}

type joinRequest struct {
	AccessToken     string `json:"accessToken"`
	SelectedProfile string `json:"selectedProfile"`
	ServerID        string `json:"serverId"`
}

type errorResponse struct {
	Error        string `json:"error"`
	ErrorMessage string `json:"errorMessage"`
}

// Join announces that the profile is about to log into the server that
// sent serverID and publicKey. Every failure is an *protocol.AuthenticationError.
func (s *SessionServer) Join(ctx context.Context, accessToken string, profileID uuid.UUID, serverID string, secret, publicKey []byte) (err error) {
	hash := ServerHash(serverID, secret, publicKey)
	ctx, span := s.tracer.Start(ctx, "session_server.join",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("minecraft.profile_id", profileID.String()),
			attribute.String("minecraft.server_hash", hash),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	if accessToken == "" || profileID == uuid.Nil {
		return &protocol.AuthenticationError{Err: ErrMissingCredentials}
	}
	if err := CheckAccessToken(accessToken, s.now()); err != nil {
		return &protocol.AuthenticationError{Err: err}
	}

	body, err := json.Marshal(joinRequest{
		AccessToken:     accessToken,
		SelectedProfile: strings.ReplaceAll(profileID.String(), "-", ""),
		ServerID:        hash,
	})
	if err != nil {
		return &protocol.AuthenticationError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/session/minecraft/join", bytes.NewReader(body))
	if err != nil {
		return &protocol.AuthenticationError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return &protocol.AuthenticationError{Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	authErr := &protocol.AuthenticationError{StatusCode: resp.StatusCode}
	var payload errorResponse
	if data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); len(data) > 0 {
		if json.Unmarshal(data, &payload) == nil {
			authErr.Message = payload.ErrorMessage
			if authErr.Message == "" {
				authErr.Message = payload.Error
			}
		}
	}
	return authErr
}

func (s *SessionServer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CheckAccessToken rejects tokens that are JWTs with an exp claim in the
// past. Opaque tokens pass; the session server is the authority.
func CheckAccessToken(token string, now time.Time) error {
	if strings.Count(token, ".") != 2 {
		return nil
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	}
	return nil
}
