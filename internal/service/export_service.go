package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorclass-api/internal/models"
	appErrors "github.com/noah-isme/tutorclass-api/pkg/errors"
	"github.com/noah-isme/tutorclass-api/pkg/export"
)

const exportPageSize = 500

type classLister interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassInstance, int, error)
}

type teacherLister interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	// MaxRows caps the number of classes written to one file.
	MaxRows int
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// ExportService renders class listings as CSV or XLSX.
type ExportService struct {
	classes  classLister
	teachers teacherLister
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(classes classLister, teachers teacherLister, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10000
	}
	return &ExportService{classes: classes, teachers: teachers, logger: logger, cfg: cfg}
}

var classExportHeaders = []string{"Date", "Time", "Teacher", "Student", "Class Type", "Status", "Notes"}

// ExportClasses renders every class matching filter in the requested format.
func (s *ExportService) ExportClasses(ctx context.Context, filter models.ClassFilter, format string, actor *models.JWTClaims) (*ExportFile, error) {
	renderer, err := export.ForFormat(strings.ToLower(strings.TrimSpace(format)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	if actor != nil && actor.Role == models.RoleTeacher {
		filter.TeacherID = actor.UserID
	}

	classes, err := s.collect(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes for export")
	}
	teacherNames := s.teacherNames(ctx)

	dataset := export.Dataset{Headers: classExportHeaders, Rows: make([]map[string]string, 0, len(classes))}
	for _, class := range classes {
		teacher := teacherNames[class.TeacherID]
		if teacher == "" {
			teacher = class.TeacherID
		}
		notes := ""
		if class.Notes != nil {
			notes = *class.Notes
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":       class.ScheduleDate.String(),
			"Time":       class.Time.Display12h(),
			"Teacher":    teacher,
			"Student":    class.StudentName,
			"Class Type": string(class.ClassType),
			"Status":     string(class.Status),
			"Notes":      notes,
		})
	}

	data, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("classes exported", zap.String("format", renderer.Extension()), zap.Int("rows", len(classes)))
	return &ExportFile{
		Filename:    fmt.Sprintf("classes_%s.%s", time.Now().UTC().Format("20060102_150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        data,
		Rows:        len(classes),
	}, nil
}

func (s *ExportService) collect(ctx context.Context, filter models.ClassFilter) ([]models.ClassInstance, error) {
	filter.PageSize = exportPageSize
	var out []models.ClassInstance
	for page := 1; ; page++ {
		filter.Page = page
		batch, total, err := s.classes.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < exportPageSize || len(out) >= total || len(out) >= s.cfg.MaxRows {
			break
		}
	}
	if len(out) > s.cfg.MaxRows {
		out = out[:s.cfg.MaxRows]
	}
	return out, nil
}

func (s *ExportService) teacherNames(ctx context.Context) map[string]string {
	names := map[string]string{}
	if s.teachers == nil {
		return names
	}
	teachers, _, err := s.teachers.List(ctx, models.TeacherFilter{PageSize: 100})
	if err != nil {
		s.logger.Warn("export without teacher names", zap.Error(err))
		return names
	}
	for _, t := range teachers {
		names[t.ID] = t.Name
	}
	return names
}
