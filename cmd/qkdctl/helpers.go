package main

import (
	"github.com/QKD-VITAP/qkdctl/internal/config"
	clierrors "github.com/QKD-VITAP/qkdctl/internal/errors"
	"github.com/QKD-VITAP/qkdctl/internal/session"
)

// newSession builds a session against the configured API URL with any
// persisted credential already activated.
func newSession() (*session.Session, *config.Config) {
	cfg := config.Load()
	sess := session.New(cfg.APIURL())
	sess.LoadPersisted()

	return sess, cfg
}

// newAuthenticatedSession is newSession plus the deployment's auth
// gate: when authentication is required and no credential is active,
// the command fails before any network call.
func newAuthenticatedSession() (*session.Session, *config.Config, error) {
	sess, cfg := newSession()

	if cfg.AuthRequired() && sess.Token() == "" {
		return nil, nil, clierrors.NotAuthenticated()
	}

	return sess, cfg, nil
}
