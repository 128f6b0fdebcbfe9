package main

import (
	"os"
	"path/filepath"

	"github.com/fentz26/nudge/internal/auth"
	"github.com/fentz26/nudge/internal/client"
	"github.com/fentz26/nudge/internal/config"
)

// configDir holds credentials.json and the default config file.
func configDir() string {
	return filepath.Dir(config.DefaultPath())
}

func newAuthManager() (*auth.Manager, error) {
	return auth.NewManager(configDir())
}

// currentOwner resolves the owner for header-based auth: --owner, then a
// saved session, then $NUDGE_OWNER, then $USER.
func currentOwner(mgr *auth.Manager) string {
	if ownerFlag != "" {
		return ownerFlag
	}
	if mgr != nil {
		if sess := mgr.GetSession(); sess != nil && sess.Owner != "" {
			return sess.Owner
		}
	}
	if v := os.Getenv("NUDGE_OWNER"); v != "" {
		return v
	}
	return os.Getenv("USER")
}

// newAPIClient returns a client authenticated with the saved session token when
// one is valid, falling back to the owner header otherwise.
func newAPIClient() *client.Client {
	mgr, _ := newAuthManager()

	opts := []client.Option{client.WithOwner(currentOwner(mgr))}
	if mgr != nil && ownerFlag == "" && mgr.IsAuthenticated() {
		opts = append(opts, client.WithToken(mgr.GetSession().Token))
	}
	return client.New(apiAddr, opts...)
}
