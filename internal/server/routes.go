package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/docsight/docsight/internal/api/v1"
	"github.com/docsight/docsight/internal/api/ws"
)

func registerAPIRoutes(api huma.API, store v1.DataStore, chatRunner v1.ChatRunner, insightRunner v1.InsightRunner, loader v1.TableLoader) {
	v1.RegisterSessionRoutes(api, store, loader)
	v1.RegisterChatRoutes(api, store, chatRunner)
	v1.RegisterInsightRoutes(api, store, insightRunner)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/turns/{messageID}", hub.ServeTurn)
}
