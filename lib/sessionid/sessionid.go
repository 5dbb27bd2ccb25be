// Package sessionid manages the opaque token that correlates every
// gateway call made by one client lifetime to one server-side login
// attempt.
package sessionid

import (
	"context"
	"strings"

	"oasys-backend/lib/statestore"

	"github.com/mazen160/go-random"
)

// GetOrCreate returns the stored session id, generating and persisting
// a fresh one on the first call of a client lifetime. The id is never
// regenerated implicitly afterwards; clearing the session scope of the
// store is the only way to get a new one.
func GetOrCreate(ctx context.Context, store statestore.Store) (string, error) {
	id, ok, err := store.GetSession(ctx, statestore.KeySessionId)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	generated, err := random.String(8)
	if err != nil {
		return "", err
	}
	// the web client drew ids from base36, keep the same alphabet
	id = strings.ToLower(generated)

	err = store.SetSession(ctx, statestore.KeySessionId, id)
	if err != nil {
		return "", err
	}
	return id, nil
}
