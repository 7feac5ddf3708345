package dashboard

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/nkiryanov/edps/internal/apperrors"
	"github.com/nkiryanov/edps/internal/models"
)

const (
	// Same limit as backend has
	MaxUploadSize = 2 << 20

	uploadField = "file"
)

// Kind of CSV upload and the columns its header must have
type UploadKind struct {
	Name     string
	Path     string
	Required []string
}

var (
	UploadStudents = UploadKind{
		Name:     "students",
		Path:     "/upload/students",
		Required: []string{"student_number", "first_name", "last_name"},
	}
	UploadGrades = UploadKind{
		Name:     "grades",
		Path:     "/upload/grades",
		Required: []string{"student_number"},
	}
)

// UploadKindByName returns 'students' or 'grades' upload kind
func UploadKindByName(name string) (UploadKind, bool) {
	for _, kind := range []UploadKind{UploadStudents, UploadGrades} {
		if kind.Name == name {
			return kind, true
		}
	}
	return UploadKind{}, false
}

func (s *Service) UploadStudents(ctx context.Context, filename string, r io.Reader) (models.UploadResult, error) {
	return s.Upload(ctx, UploadStudents, filename, r)
}

func (s *Service) UploadGrades(ctx context.Context, filename string, r io.Reader) (models.UploadResult, error) {
	return s.Upload(ctx, UploadGrades, filename, r)
}

// Upload checks CSV file locally and sends it to the backend
func (s *Service) Upload(ctx context.Context, kind UploadKind, filename string, r io.Reader) (models.UploadResult, error) {
	var result models.UploadResult

	content, err := checkCSV(kind, filename, r)
	if err != nil {
		return result, err
	}

	if err := s.api.Upload(ctx, kind.Path, uploadField, filepath.Base(filename), bytes.NewReader(content), &result); err != nil {
		return result, fmt.Errorf("upload %s: %w", kind.Name, err)
	}

	s.logger.Info("File uploaded", "kind", kind.Name, "file", filepath.Base(filename), "added", result.Added, "failed", result.Failed)
	return result, nil
}

func checkCSV(kind UploadKind, filename string, r io.Reader) ([]byte, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUploadNotCSV, filepath.Base(filename))
	}

	content, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if len(content) > MaxUploadSize {
		return nil, &ValidationError{Fields: map[string]string{uploadField: "File too large. Limit is 2MB"}}
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, apperrors.ErrUploadEmpty
	}

	header, err := csv.NewReader(bytes.NewReader(content)).Read()
	if errors.Is(err, io.EOF) {
		return nil, apperrors.ErrUploadEmpty
	}
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{uploadField: "Failed to read CSV: " + err.Error()}}
	}

	columns := make(map[string]bool, len(header))
	for _, name := range header {
		columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = true
	}

	var missing []string
	for _, name := range kind.Required {
		if !columns[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: map[string]string{uploadField: "Missing required columns: " + strings.Join(missing, ", ")}}
	}

	return content, nil
}
