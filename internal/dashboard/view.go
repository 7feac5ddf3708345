package dashboard

import (
	"context"

	"github.com/nkiryanov/edps/internal/models"
	"github.com/nkiryanov/edps/internal/router"
)

// View is data a dashboard page shows. Only fields of the resolved route are set
type View struct {
	Route string
	Title string

	Summary            models.RiskSummary
	PhaseSummary       models.PhaseSummary
	Predictions        []models.Prediction
	StudentNumber      string
	StudentPredictions []models.Prediction
	RiskIncreases      []models.RiskIncrease
	ModelInfo          models.ModelInfo
	Users              []models.User
}

// Load fetches the data of the navigated page
func (s *Service) Load(ctx context.Context, nav router.Navigation) (View, error) {
	view := View{Route: nav.Route.Name, Title: nav.Title}
	var err error

	switch nav.Route.Name {
	case router.RouteHome:
		if view.Summary, err = s.Summary(ctx); err != nil {
			return view, err
		}
		view.PhaseSummary, err = s.SummaryByPhase(ctx)

	case router.RouteStudents, router.RoutePredictions:
		view.Predictions, err = s.Predictions(ctx)

	case router.RouteStudentProfile:
		view.StudentNumber = nav.Params["id"]
		view.StudentPredictions, err = s.StudentPredictions(ctx, view.StudentNumber)

	case router.RouteModelInsights:
		if view.RiskIncreases, err = s.RiskIncreases(ctx, defaultRiskIncreaseLimit); err != nil {
			return view, err
		}
		view.ModelInfo, err = s.ModelInfo(ctx)

	case router.RouteAdmin:
		view.Users, err = s.Users(ctx)
	}

	return view, err
}
