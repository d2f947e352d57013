package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

const sqlExpectedOutputSchema = `{
  "type": "array",
  "items": {"type": "object"}
}`

const xlsxMime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Import columns, in sheet order.
var questionImportColumns = []string{
	"title", "description", "language", "difficulty", "marks", "sample_input", "sample_output",
	"constraints", "hints", "starter_code", "solution_code", "test_cases",
}

// QuestionService manages the question bank.
type QuestionService interface {
	List(ctx context.Context, req dto.QuestionListRequest) ([]dto.QuestionResponse, error)
	Get(ctx context.Context, id uint) (dto.QuestionResponse, error)
	GetForStudent(ctx context.Context, id uint) (dto.QuestionResponse, error)
	Create(ctx context.Context, actor Actor, payload dto.QuestionRequest) (dto.QuestionResponse, error)
	Update(ctx context.Context, actor Actor, id uint, payload dto.QuestionRequest) (dto.QuestionResponse, error)
	Delete(ctx context.Context, actor Actor, id uint) error
	Import(ctx context.Context, actor Actor, data []byte) (dto.QuestionImportResponse, error)
}

type questionService struct {
	repo      repository.QuestionRepository
	validator *validator.Validate
	activity  ActivityRecorder
	rich      *bluemonday.Policy
	plain     *bluemonday.Policy
	rowSchema *jsonschema.Schema
	logger    zerolog.Logger
}

// NewQuestionService constructs the question service.
func NewQuestionService(repo repository.QuestionRepository, validator *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) QuestionService {
	return &questionService{
		repo:      repo,
		validator: validator,
		activity:  activity,
		rich:      bluemonday.UGCPolicy(),
		plain:     bluemonday.StrictPolicy(),
		rowSchema: jsonschema.MustCompileString("sql-expected-output.json", sqlExpectedOutputSchema),
		logger:    logger.With().Str("component", "question_service").Logger(),
	}
}

func (s *questionService) List(ctx context.Context, req dto.QuestionListRequest) ([]dto.QuestionResponse, error) {
	questions, err := s.repo.List(ctx, repository.QuestionFilter{
		Language:   grading.NormalizeLanguage(req.Language),
		Difficulty: strings.ToLower(strings.TrimSpace(req.Difficulty)),
		Search:     strings.TrimSpace(req.Search),
	})
	if err != nil {
		return nil, err
	}

	responses := make([]dto.QuestionResponse, 0, len(questions))
	for _, question := range questions {
		responses = append(responses, dto.NewQuestionResponse(question))
	}
	return responses, nil
}

func (s *questionService) Get(ctx context.Context, id uint) (dto.QuestionResponse, error) {
	question, err := s.find(ctx, id)
	if err != nil {
		return dto.QuestionResponse{}, err
	}
	return dto.NewQuestionResponse(question), nil
}

func (s *questionService) GetForStudent(ctx context.Context, id uint) (dto.QuestionResponse, error) {
	question, err := s.find(ctx, id)
	if err != nil {
		return dto.QuestionResponse{}, err
	}
	return dto.NewStudentQuestionResponse(question), nil
}

func (s *questionService) Create(ctx context.Context, actor Actor, payload dto.QuestionRequest) (dto.QuestionResponse, error) {
	question, err := s.build(payload)
	if err != nil {
		return dto.QuestionResponse{}, err
	}
	if err := s.repo.Create(ctx, &question); err != nil {
		return dto.QuestionResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, actor, "question.created", "question", question.ID, map[string]interface{}{"language": question.Language})
	return dto.NewQuestionResponse(question), nil
}

func (s *questionService) Update(ctx context.Context, actor Actor, id uint, payload dto.QuestionRequest) (dto.QuestionResponse, error) {
	existing, err := s.find(ctx, id)
	if err != nil {
		return dto.QuestionResponse{}, err
	}

	question, err := s.build(payload)
	if err != nil {
		return dto.QuestionResponse{}, err
	}
	question.ID = existing.ID
	question.CreatedAt = existing.CreatedAt

	if err := s.repo.Update(ctx, &question); err != nil {
		return dto.QuestionResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, actor, "question.updated", "question", question.ID, nil)
	return dto.NewQuestionResponse(question), nil
}

func (s *questionService) Delete(ctx context.Context, actor Actor, id uint) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	recordActivity(ctx, s.activity, s.logger, actor, "question.deleted", "question", id, nil)
	return nil
}

// Import creates questions from the first sheet of an xlsx workbook. The first
// row is a header; invalid rows are reported and skipped.
func (s *questionService) Import(ctx context.Context, actor Actor, data []byte) (dto.QuestionImportResponse, error) {
	// Some writers order zip entries so that only the container type is sniffed.
	if detected := mimetype.Detect(data); !detected.Is(xlsxMime) && !detected.Is("application/zip") {
		return dto.QuestionImportResponse{}, ErrInvalidImportFile
	}

	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return dto.QuestionImportResponse{}, fmt.Errorf("%w: %v", ErrInvalidImportFile, err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return dto.QuestionImportResponse{}, ErrInvalidImportFile
	}
	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return dto.QuestionImportResponse{}, fmt.Errorf("read sheet: %w", err)
	}

	result := dto.QuestionImportResponse{
		Questions: []dto.QuestionResponse{},
		Errors:    []dto.QuestionImportRowError{},
	}
	questions := make([]models.Question, 0, len(rows))
	for i, row := range rows {
		if i == 0 || isBlankRow(row) {
			continue
		}
		payload, err := questionRequestFromRow(row)
		if err == nil {
			var question models.Question
			question, err = s.build(payload)
			if err == nil {
				questions = append(questions, question)
				continue
			}
		}
		result.Errors = append(result.Errors, dto.QuestionImportRowError{Row: i + 1, Message: err.Error()})
	}

	if len(questions) > 0 {
		if err := s.repo.CreateBatch(ctx, questions); err != nil {
			return dto.QuestionImportResponse{}, err
		}
	}
	for _, question := range questions {
		result.Questions = append(result.Questions, dto.NewQuestionResponse(question))
	}
	result.Imported = len(questions)

	recordActivity(ctx, s.activity, s.logger, actor, "question.imported", "question", 0, map[string]interface{}{
		"imported": result.Imported,
		"rejected": len(result.Errors),
	})
	s.logger.Info().Int("imported", result.Imported).Int("rejected", len(result.Errors)).Msg("questions imported")
	return result, nil
}

func (s *questionService) find(ctx context.Context, id uint) (models.Question, error) {
	question, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Question{}, ErrQuestionNotFound
		}
		return models.Question{}, err
	}
	return question, nil
}

func (s *questionService) build(payload dto.QuestionRequest) (models.Question, error) {
	payload.Language = grading.NormalizeLanguage(payload.Language)
	payload.Difficulty = strings.ToLower(strings.TrimSpace(payload.Difficulty))
	if err := s.validator.Struct(payload); err != nil {
		return models.Question{}, err
	}

	hints := make([]string, 0, len(payload.Hints))
	for _, hint := range payload.Hints {
		if cleaned := strings.TrimSpace(s.plain.Sanitize(hint)); cleaned != "" {
			hints = append(hints, cleaned)
		}
	}

	testCases := make([]grading.TestCase, 0, len(payload.TestCases))
	for i, tc := range payload.TestCases {
		expected := strings.TrimSpace(tc.ExpectedOutput)
		if payload.Language == grading.LanguageSQL {
			minified, err := s.checkSQLExpectedOutput(expected)
			if err != nil {
				return models.Question{}, fmt.Errorf("test case %d: %w", i+1, err)
			}
			expected = minified
		}
		testCases = append(testCases, grading.TestCase{
			Input:          tc.Input,
			ExpectedOutput: expected,
			IsHidden:       tc.IsHidden,
			Marks:          tc.Marks,
		})
	}

	return models.Question{
		Title:        strings.TrimSpace(s.plain.Sanitize(payload.Title)),
		Description:  s.rich.Sanitize(payload.Description),
		Language:     payload.Language,
		Difficulty:   payload.Difficulty,
		Marks:        payload.Marks,
		SampleInput:  payload.SampleInput,
		SampleOutput: payload.SampleOutput,
		Constraints:  s.rich.Sanitize(payload.Constraints),
		Hints:        hints,
		StarterCode:  payload.StarterCode,
		SolutionCode: payload.SolutionCode,
		TestCases:    testCases,
	}, nil
}

// checkSQLExpectedOutput validates the row-array shape and returns the compact form
// the SQL backend produces, so comparisons are not defeated by formatting.
func (s *questionService) checkSQLExpectedOutput(expected string) (string, error) {
	var decoded interface{}
	if err := json.Unmarshal([]byte(expected), &decoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidExpectedOutput, err)
	}
	if err := s.rowSchema.Validate(decoded); err != nil {
		return "", ErrInvalidExpectedOutput
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(expected)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidExpectedOutput, err)
	}
	return compact.String(), nil
}

func questionRequestFromRow(row []string) (dto.QuestionRequest, error) {
	cell := func(name string) string {
		for i, column := range questionImportColumns {
			if column == name && i < len(row) {
				return strings.TrimSpace(row[i])
			}
		}
		return ""
	}

	payload := dto.QuestionRequest{
		Title:        cell("title"),
		Description:  cell("description"),
		Language:     cell("language"),
		Difficulty:   cell("difficulty"),
		SampleInput:  cell("sample_input"),
		SampleOutput: cell("sample_output"),
		Constraints:  cell("constraints"),
		StarterCode:  cell("starter_code"),
		SolutionCode: cell("solution_code"),
	}

	if raw := cell("marks"); raw != "" {
		marks, err := strconv.Atoi(raw)
		if err != nil {
			return dto.QuestionRequest{}, fmt.Errorf("marks must be a number")
		}
		payload.Marks = marks
	}
	if raw := cell("hints"); raw != "" {
		payload.Hints = strings.Split(raw, "\n")
	}
	if raw := cell("test_cases"); raw != "" {
		var cases []grading.TestCase
		if err := json.Unmarshal([]byte(raw), &cases); err != nil {
			return dto.QuestionRequest{}, fmt.Errorf("test_cases must be a JSON array: %v", err)
		}
		for _, tc := range cases {
			payload.TestCases = append(payload.TestCases, dto.TestCaseRequest{
				Input:          tc.Input,
				ExpectedOutput: tc.ExpectedOutput,
				IsHidden:       tc.IsHidden,
				Marks:          tc.Marks,
			})
		}
	}
	return payload, nil
}

func isBlankRow(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
