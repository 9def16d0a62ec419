package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/phenrril/storefront/internal/domain"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	AccessTokenTTL     = 7 * 24 * time.Hour
	RefreshTokenTTL    = 30 * 24 * time.Hour

	// refreshLeeway refreshes an access token that expires this soon.
	refreshLeeway = time.Minute
)

// AuthUC forwards credentials to the upstream API and keeps its tokens in
// HttpOnly cookies. No session state lives on this side.
type AuthUC struct {
	API    domain.AuthAPI
	Secure bool
	Now    func() time.Time
}

// Login validates the form, exchanges the credentials for tokens and checks
// them against the profile endpoint before storing them. Failures carry a
// message fit for the login form.
func (uc *AuthUC) Login(ctx context.Context, jar CookieJar, email, password string) ActionResult {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return fail("Please enter a valid email address.")
	}
	if password == "" {
		return fail("Password is required.")
	}

	tokens, err := uc.API.Login(ctx, domain.Credentials{Email: email, Password: password})
	if err != nil {
		log.Warn().Err(err).Str("email", email).Msg("login failed")
		return fail(loginMessage(err))
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return fail("Invalid response from the server. Please try again.")
	}
	if _, err := uc.API.Profile(ctx, tokens.AccessToken); err != nil {
		log.Warn().Err(err).Msg("login profile check")
		return fail("Could not load your profile. Please log in again.")
	}
	uc.setTokens(jar, tokens)
	return succeed(nil)
}

// CurrentUser returns the signed-in user. An access token close to expiry,
// or one the API rejects, is refreshed once before giving up.
func (uc *AuthUC) CurrentUser(ctx context.Context, jar CookieJar) (*domain.User, error) {
	access, _ := jar.Cookie(AccessTokenCookie)
	if access == "" || uc.expiresSoon(access) {
		if err := uc.Refresh(ctx, jar); err != nil {
			return nil, err
		}
		access, _ = jar.Cookie(AccessTokenCookie)
	}
	u, err := uc.API.Profile(ctx, access)
	if errors.Is(err, domain.ErrUnauthorized) {
		if rerr := uc.Refresh(ctx, jar); rerr != nil {
			return nil, rerr
		}
		access, _ = jar.Cookie(AccessTokenCookie)
		u, err = uc.API.Profile(ctx, access)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Refresh trades the refresh token for a new pair. When the API refuses,
// both cookies are cleared and ErrUnauthorized is returned.
func (uc *AuthUC) Refresh(ctx context.Context, jar CookieJar) error {
	rt, _ := jar.Cookie(RefreshTokenCookie)
	if rt == "" {
		return domain.ErrUnauthorized
	}
	tokens, err := uc.API.RefreshToken(ctx, rt)
	if err != nil {
		var ue *domain.UpstreamError
		if !errors.As(err, &ue) {
			// transport failure, keep the cookies for the next attempt
			return err
		}
		log.Info().Err(err).Msg("refresh token rejected")
		uc.Logout(jar)
		return fmt.Errorf("refresh: %w", domain.ErrUnauthorized)
	}
	uc.setTokens(jar, tokens)
	return nil
}

func (uc *AuthUC) Logout(jar CookieJar) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		jar.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   uc.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (uc *AuthUC) setTokens(jar CookieJar, t *domain.AuthTokens) {
	now := uc.now()
	jar.SetCookie(&http.Cookie{
		Name: AccessTokenCookie, Value: t.AccessToken, Path: "/",
		MaxAge: int(AccessTokenTTL.Seconds()), Expires: now.Add(AccessTokenTTL),
		HttpOnly: true, Secure: uc.Secure, SameSite: http.SameSiteLaxMode,
	})
	jar.SetCookie(&http.Cookie{
		Name: RefreshTokenCookie, Value: t.RefreshToken, Path: "/",
		MaxAge: int(RefreshTokenTTL.Seconds()), Expires: now.Add(RefreshTokenTTL),
		HttpOnly: true, Secure: uc.Secure, SameSite: http.SameSiteLaxMode,
	})
}

// expiresSoon reads the exp claim without verifying the signature; the
// upstream API remains the judge of validity.
func (uc *AuthUC) expiresSoon(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Before(uc.now().Add(refreshLeeway))
}

func (uc *AuthUC) now() time.Time {
	if uc.Now != nil {
		return uc.Now()
	}
	return time.Now()
}

func loginMessage(err error) string {
	var ue *domain.UpstreamError
	if !errors.As(err, &ue) {
		return "Connection error. Check your connection and try again."
	}
	switch ue.StatusCode {
	case http.StatusUnauthorized:
		return "Incorrect email or password. Check your credentials."
	case http.StatusBadRequest:
		if ue.Message != "" {
			return ue.Message
		}
		return "Invalid login data."
	case http.StatusTooManyRequests:
		return "Too many login attempts. Try again in a few minutes."
	case http.StatusInternalServerError:
		return "Internal server error. Try again later."
	default:
		return fmt.Sprintf("Login failed (%d). Please try again.", ue.StatusCode)
	}
}
