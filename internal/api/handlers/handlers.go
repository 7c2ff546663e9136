// Package handlers contains the HTTP handlers for the TipKoro API.
//
// Handlers decode and validate the request, call one service method and
// write the result through the core response helpers. Each handler declares
// the narrow service interface it needs so tests can substitute fakes.
//
// Routes are split by access: RegisterRoutes mounts endpoints that need a
// signed-in caller and is wrapped in core.Server.RequireActor by the entry
// point; RegisterPublicRoutes mounts endpoints reachable anonymously.
package handlers

import (
	"net/http"

	"tipkoro/internal/core"
	"tipkoro/internal/types"
)

// maxWebhookBodySize bounds webhook payloads read before verification.
const maxWebhookBodySize = 64 * 1024

// actorFrom returns the caller or writes a 401. RequireActor normally rejects
// anonymous calls first; this keeps handlers safe when mounted without it.
func actorFrom(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok || actor.ID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return types.Actor{}, false
	}
	return actor, true
}

// decodeValid decodes the JSON body into dst and validates it. On failure it
// writes the error response and returns false.
func decodeValid(w http.ResponseWriter, r *http.Request, v *core.Validator, dst any) bool {
	if err := core.DecodeJSON(w, r, dst); err != nil {
		core.Error(w, r, err)
		return false
	}
	if err := v.ValidateStruct(dst); err != nil {
		core.Error(w, r, err)
		return false
	}
	return true
}

func writeData(w http.ResponseWriter, r *http.Request, data any) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: data})
}
