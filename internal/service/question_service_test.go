package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

func newTestQuestionService(t *testing.T) QuestionService {
	t.Helper()
	db := setupServiceDB(t)
	return NewQuestionService(repository.NewQuestionRepository(db), testValidator(), nil, testLogger())
}

func sqlQuestionRequest(expected string) dto.QuestionRequest {
	return dto.QuestionRequest{
		Title:       "Total orders",
		Description: "Sum the order counts",
		Language:    "SQL",
		TestCases: []dto.TestCaseRequest{
			{Input: "CREATE TABLE t (n INT); INSERT INTO t VALUES (1), (1);", ExpectedOutput: expected},
		},
	}
}

func TestQuestionServiceSanitizesContent(t *testing.T) {
	svc := newTestQuestionService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, Actor{ID: 1, Role: "admin"}, dto.QuestionRequest{
		Title:        "Hello <b>World</b>",
		Description:  `<p>Print hello</p><script>alert(1)</script>`,
		Language:     "Python",
		Hints:        []string{"<i>use print</i>", "   "},
		SolutionCode: "print('hello')",
		TestCases: []dto.TestCaseRequest{
			{ExpectedOutput: "hello"},
			{Input: "1", ExpectedOutput: "hello", IsHidden: true},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Hello World", created.Title)
	require.Equal(t, "<p>Print hello</p>", created.Description)
	require.Equal(t, []string{"use print"}, created.Hints)
	require.Equal(t, grading.LanguagePython, created.Language)

	student, err := svc.GetForStudent(ctx, created.ID)
	require.NoError(t, err)
	require.Empty(t, student.SolutionCode)
	require.Len(t, student.TestCases, 1)

	admin, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "print('hello')", admin.SolutionCode)
	require.Len(t, admin.TestCases, 2)

	_, err = svc.Get(ctx, 999)
	require.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestQuestionServiceSQLExpectedOutput(t *testing.T) {
	svc := newTestQuestionService(t)
	ctx := context.Background()
	admin := Actor{ID: 1, Role: "admin"}

	created, err := svc.Create(ctx, admin, sqlQuestionRequest(`[ {"sum": 2} ]`))
	require.NoError(t, err)
	require.Equal(t, `[{"sum":2}]`, created.TestCases[0].ExpectedOutput)

	_, err = svc.Create(ctx, admin, sqlQuestionRequest(`{"sum": 2}`))
	require.ErrorIs(t, err, ErrInvalidExpectedOutput)

	_, err = svc.Create(ctx, admin, sqlQuestionRequest(`[1, 2]`))
	require.ErrorIs(t, err, ErrInvalidExpectedOutput)

	_, err = svc.Create(ctx, admin, sqlQuestionRequest(`not json`))
	require.ErrorIs(t, err, ErrInvalidExpectedOutput)
}

func TestQuestionServiceRejectsUnknownLanguage(t *testing.T) {
	svc := newTestQuestionService(t)
	_, err := svc.Create(context.Background(), Actor{ID: 1, Role: "admin"}, dto.QuestionRequest{
		Title:       "Ruby",
		Description: "Nope",
		Language:    "ruby",
		TestCases:   []dto.TestCaseRequest{{ExpectedOutput: "x"}},
	})
	require.Error(t, err)
}

func TestQuestionServiceImportWorkbook(t *testing.T) {
	svc := newTestQuestionService(t)

	cases, err := json.Marshal([]grading.TestCase{{Input: "", ExpectedOutput: "hi"}})
	require.NoError(t, err)

	workbook := excelize.NewFile()
	sheet := workbook.GetSheetName(0)
	rows := [][]interface{}{
		{"title", "description", "language", "difficulty", "marks", "sample_input", "sample_output", "constraints", "hints", "starter_code", "solution_code", "test_cases"},
		{"Say hi", "Print hi", "python", "easy", "10", "", "hi", "", "print\nquotes", "", "print('hi')", string(cases)},
		{"Broken", "No cases", "java", "easy", "ten", "", "", "", "", "", "", ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, workbook.SetSheetRow(sheet, cell, &row))
	}
	buf, err := workbook.WriteToBuffer()
	require.NoError(t, err)

	result, err := svc.Import(context.Background(), Actor{ID: 1, Role: "admin"}, buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 1, result.Imported)
	require.Len(t, result.Questions, 1)
	require.Equal(t, "Say hi", result.Questions[0].Title)
	require.Equal(t, 10, result.Questions[0].Marks)
	require.Equal(t, []string{"print", "quotes"}, result.Questions[0].Hints)
	require.NotZero(t, result.Questions[0].ID)
	require.Len(t, result.Errors, 1)
	require.Equal(t, 3, result.Errors[0].Row)

	_, err = svc.Import(context.Background(), Actor{ID: 1, Role: "admin"}, []byte("title,description\n"))
	require.ErrorIs(t, err, ErrInvalidImportFile)
}
