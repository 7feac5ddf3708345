package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nkiryanov/edps/internal/logger"
	"github.com/nkiryanov/edps/internal/models"
)

const defaultRiskIncreaseLimit = 5

// API is the part of HTTP client dashboard views need
type API interface {
	Do(ctx context.Context, method string, path string, body any, out any) error
	Upload(ctx context.Context, path string, field string, filename string, r io.Reader, out any) error
}

// Service loads dashboard data from the backend on behalf of the signed in user
type Service struct {
	api    API
	logger logger.Logger
}

func New(api API, l logger.Logger) *Service {
	return &Service{api: api, logger: l}
}

// Summary is the number of students per risk level
func (s *Service) Summary(ctx context.Context) (models.RiskSummary, error) {
	var summary models.RiskSummary
	err := s.get(ctx, "/students/summary", &summary)
	return summary, err
}

func (s *Service) SummaryByPhase(ctx context.Context) (models.PhaseSummary, error) {
	var summary models.PhaseSummary
	err := s.get(ctx, "/students/summary-by-phase", &summary)
	return summary, err
}

// Predictions returns the latest prediction of every student
func (s *Service) Predictions(ctx context.Context) ([]models.Prediction, error) {
	var predictions []models.Prediction
	err := s.get(ctx, "/predictions", &predictions)
	return predictions, err
}

// StudentPredictions returns prediction history of one student
func (s *Service) StudentPredictions(ctx context.Context, studentNumber string) ([]models.Prediction, error) {
	var predictions []models.Prediction
	err := s.get(ctx, "/predictions/"+url.PathEscape(studentNumber), &predictions)
	return predictions, err
}

// Predict asks the model for student risk. Existing prediction is kept unless recalculate is set
func (s *Service) Predict(ctx context.Context, studentNumber string, recalculate bool) (models.Prediction, error) {
	q := url.Values{}
	q.Set("recalculate", strconv.FormatBool(recalculate))

	var prediction models.Prediction
	err := s.get(ctx, "/predict/by-number/"+url.PathEscape(studentNumber)+"?"+q.Encode(), &prediction)
	return prediction, err
}

// RiskIncreases returns students whose risk grew most between the two latest predictions
func (s *Service) RiskIncreases(ctx context.Context, limit int) ([]models.RiskIncrease, error) {
	if limit <= 0 {
		limit = defaultRiskIncreaseLimit
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var increases []models.RiskIncrease
	err := s.get(ctx, "/insights/risk-increase?"+q.Encode(), &increases)
	return increases, err
}

func (s *Service) ModelInfo(ctx context.Context) (models.ModelInfo, error) {
	var info models.ModelInfo
	err := s.get(ctx, "/model/info", &info)
	return info, err
}

func (s *Service) get(ctx context.Context, path string, out any) error {
	if err := s.api.Do(ctx, http.MethodGet, path, nil, out); err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return nil
}
