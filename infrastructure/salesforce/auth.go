// Package salesforce implements crm.Session against the Salesforce REST API.
//
// A session is obtained once through an OAuth2 client-credentials exchange
// and then shared by every caller. Tokens are never refreshed; when the
// provider expires a token, calls start failing with crm.RemoteError.
package salesforce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/felixgeelhaar/salesforce-mcp/domain/crm"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/logging"
)

// AuthTimeout bounds the token exchange.
const AuthTimeout = 30 * time.Second

// Credentials identify the connected app for the client-credentials flow.
type Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

func (c Credentials) missing() []string {
	var missing []string
	if c.TokenURL == "" {
		missing = append(missing, "token url")
	}
	if c.ClientID == "" {
		missing = append(missing, "client id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client secret")
	}
	return missing
}

// Authenticate performs the client-credentials exchange.
//
// The request is a form-encoded POST carrying grant_type, client_id and
// client_secret in the body. Any failure, including unset credentials, is
// returned as *crm.AuthenticationError.
func Authenticate(ctx context.Context, creds Credentials, client *http.Client) (crm.Token, error) {
	if missing := creds.missing(); len(missing) > 0 {
		return crm.Token{}, &crm.AuthenticationError{
			Err: fmt.Errorf("%w: %s", crm.ErrMissingCredentials, strings.Join(missing, ", ")),
		}
	}

	if client == nil {
		client = &http.Client{Timeout: AuthTimeout}
	}

	ctx, cancel := context.WithTimeout(ctx, AuthTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	cc := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	tok, err := cc.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return crm.Token{}, &crm.AuthenticationError{
				StatusCode: status,
				Body:       string(retrieveErr.Body),
				Err:        err,
			}
		}
		return crm.Token{}, &crm.AuthenticationError{Err: err}
	}

	instanceURL, _ := tok.Extra("instance_url").(string)
	if instanceURL == "" {
		return crm.Token{}, &crm.AuthenticationError{
			Err: fmt.Errorf("%w: instance_url missing from token response", crm.ErrMalformedResponse),
		}
	}

	logging.Info().
		Add(logging.Component("salesforce")).
		Add(logging.URL(instanceURL)).
		Msg("authenticated")

	return crm.Token{
		AccessToken: tok.AccessToken,
		InstanceURL: strings.TrimRight(instanceURL, "/"),
		TokenType:   tok.TokenType,
		IssuedAt:    time.Now(),
	}, nil
}

// Login authenticates and returns a session bound to the resulting token.
func Login(ctx context.Context, creds Credentials, opts ...Option) (*Session, error) {
	cfg := newSessionConfig(opts)

	token, err := Authenticate(ctx, creds, cfg.authClient)
	if err != nil {
		return nil, err
	}
	return NewSession(token, opts...), nil
}
