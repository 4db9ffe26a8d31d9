// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"
	"time"
)

// CredentialCarrier moves a session token between the service and a client.
type CredentialCarrier interface {
	// Attach adds token to the response.
	Attach(w http.ResponseWriter, token string)
	// Read returns the token carried by the request, if any.
	Read(r *http.Request) (string, bool)
	// Clear instructs the client to discard its token.
	Clear(w http.ResponseWriter)
}

// CookieConfig configures a CookieCarrier.
type CookieConfig struct {
	Name     string
	SameSite http.SameSite
	Secure   bool
	// MaxAge should match the session token validity window.
	MaxAge time.Duration
}

// CookieCarrier carries the session token in an HTTP-only cookie on path "/".
type CookieCarrier struct {
	cfg CookieConfig
}

var _ CredentialCarrier = (*CookieCarrier)(nil)

// NewCookieCarrier creates a CookieCarrier. SameSite defaults to Lax.
func NewCookieCarrier(cfg CookieConfig) *CookieCarrier {
	if cfg.SameSite == 0 || cfg.SameSite == http.SameSiteDefaultMode || cfg.SameSite == http.SameSiteNoneMode {
		cfg.SameSite = http.SameSiteLaxMode
	}
	return &CookieCarrier{cfg: cfg}
}

// Attach sets the session cookie.
func (c *CookieCarrier) Attach(w http.ResponseWriter, token string) {
	cookie := c.cookie(token)
	cookie.MaxAge = int(c.cfg.MaxAge / time.Second)
	http.SetCookie(w, cookie)
}

// Read returns the session cookie value. An empty cookie counts as absent.
func (c *CookieCarrier) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.cfg.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Clear expires the session cookie.
func (c *CookieCarrier) Clear(w http.ResponseWriter) {
	cookie := c.cookie("")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}

func (c *CookieCarrier) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     c.cfg.Name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: c.cfg.SameSite,
	}
}
