package models

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Credential is the OAuth token set persisted for one named account.
type Credential struct {
	Name         string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	Scopes       []string
	UpdatedAt    time.Time
}

// CredentialFromToken builds a credential for account name.
//
// Granted scopes are read from the token response's space separated "scope" field.
func CredentialFromToken(name string, tok *oauth2.Token) *Credential {
	c := &Credential{
		Name:         name,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		UpdatedAt:    time.Now(),
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		c.Scopes = strings.Fields(scope)
	}
	return c
}

// Token converts the credential back to an [oauth2.Token].
func (c *Credential) Token() *oauth2.Token {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    tokenType,
		Expiry:       c.Expiry,
	}
}

// ExpiresWithin reports whether the access token is expired or will expire within margin of now.
// An unknown (zero) expiry counts as expiring.
func (c *Credential) ExpiresWithin(margin time.Duration, now time.Time) bool {
	if c.AccessToken == "" || c.Expiry.IsZero() {
		return true
	}
	return !now.Add(margin).Before(c.Expiry)
}

// Rotate returns a copy of c carrying a refreshed token. The old refresh token is kept when
// the provider does not issue a new one.
func (c *Credential) Rotate(tok *oauth2.Token) *Credential {
	next := CredentialFromToken(c.Name, tok)
	if next.RefreshToken == "" {
		next.RefreshToken = c.RefreshToken
	}
	if len(next.Scopes) == 0 {
		next.Scopes = append([]string(nil), c.Scopes...)
	}
	return next
}
