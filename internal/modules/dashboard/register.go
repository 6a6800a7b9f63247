package dashboard

import (
	"context"
	"net/http"

	"station-dashboard/internal/modules/dashboard/controller"
	"station-dashboard/internal/modules/dashboard/session"
)

func RegisterFeature(ctx context.Context, mux *http.ServeMux, cat session.Cataloger, provider session.TimeSeriesProvider, settings controller.Settings) {
	dashboardController := controller.NewDashboardController(cat, provider, settings)
	dashboardController.RegisterRoutes(mux)
	go dashboardController.RunSessionReaper(ctx)
}
