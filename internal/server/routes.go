package server

import "github.com/go-chi/chi/v5"

// registerRoutes mounts the full /api surface described in the HTTP surface
// section. Dashboard static files, if configured, are mounted separately by
// New so they don't shadow /api/*.
func (a *appContext) registerRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", a.handleStatus)
		r.Get("/weather", a.handleWeather)
		r.Get("/sensors", a.handleSensors)
		r.Get("/log", a.handleLog)
		r.Get("/history", a.handleHistory)

		r.Route("/heating", func(r chi.Router) {
			r.Post("/on", a.handleHeatingOn)
			r.Post("/off", a.handleHeatingOff)
		})
	})
}
