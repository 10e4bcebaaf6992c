/*
identity.go - Explicit caller identity

PURPOSE:
  Every core operation takes an explicit actor; nothing in the engine
  reads ambient session state. This middleware is the single place that
  turns the transport-level identity (the X-Actor-ID header, supplied by
  the identity provider in front of this service) into the ActorID the
  handlers pass down.

SECURITY NOTE:
  The header is trusted as-is: authentication is an external
  collaborator, out of scope here.
*/
package api

import (
	"context"
	"net/http"

	"github.com/dormhub/booking-engine/booking"
)

// ActorHeader carries the caller identity.
const ActorHeader = "X-Actor-ID"

type contextKey string

const actorKey contextKey = "actor"

// RequireActor rejects requests without an identity and stores the
// actor in the request context for handlers.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get(ActorHeader)
		if actor == "" {
			writeError(w, http.StatusUnauthorized, "Actor identity required", nil)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey, booking.ActorID(actor))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actorFrom returns the actor stored by RequireActor.
func actorFrom(r *http.Request) booking.ActorID {
	actor, _ := r.Context().Value(actorKey).(booking.ActorID)
	return actor
}
