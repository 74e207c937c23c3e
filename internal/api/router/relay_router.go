package router

import (
	"net/http"
	"strings"

	"canvas-relay/internal/api"
	"canvas-relay/internal/api/endpoints"
	"canvas-relay/internal/api/middleware"
)

// RelayRoutes mounts the websocket endpoint at wsPath and the admin room
// listing under apiPrefix.
func RelayRoutes(wsPath, apiPrefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		relayEndpoints := endpoints.NewRelayEndpoints(s.Relay())

		mux.HandleFunc(wsPath, s.MakeHTTPHandleFunc(relayEndpoints.Websocket))
		mux.HandleFunc(strings.TrimRight(apiPrefix, "/")+"/rooms", s.MakeHTTPHandleFunc(relayEndpoints.Rooms, middleware.ValidateAdminJWT))
	}
}
