package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
)

func TestAdminRoutesRequireStaff(t *testing.T) {
	ta := newTestApp(t, nil)
	payload := dto.CourseRequest{Code: "cs300", Title: "Algorithms"}

	resp := ta.do(t, fiber.MethodPost, "/api/v2/admin/courses", studentID, "student", payload)
	requireErrorContract(t, resp, fiber.StatusForbidden)

	resp = ta.do(t, fiber.MethodPost, "/api/v2/admin/courses", adminID, "teacher", payload)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var course dto.CourseResponse
	decodeData(t, readEnvelope(t, resp), &course)
	require.Equal(t, "CS300", course.Code)

	resp = ta.do(t, fiber.MethodPost, "/api/v2/admin/courses", adminID, "admin", dto.CourseRequest{Code: "x"})
	env := requireErrorContract(t, resp, fiber.StatusBadRequest)
	var details map[string]string
	require.NoError(t, json.Unmarshal(env.Details, &details))
	require.Equal(t, "required", details["Title"])

	resp = ta.do(t, fiber.MethodPost, fmt.Sprintf("/api/v2/admin/courses/%d/enrollments", course.ID), adminID, "admin", dto.EnrollmentRequest{UserID: studentID})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = ta.do(t, fiber.MethodGet, "/api/v2/courses", studentID, "student", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var visible []dto.CourseResponse
	decodeData(t, readEnvelope(t, resp), &visible)
	require.Len(t, visible, 1)

	resp = ta.do(t, fiber.MethodGet, "/api/v2/admin/activity?entity_type=course", adminID, "admin", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var activity []dto.ActivityResponse
	decodeData(t, readEnvelope(t, resp), &activity)
	require.Len(t, activity, 2)
}

func TestAdminQuestionAndAssessmentValidation(t *testing.T) {
	ta := newTestApp(t, nil)

	resp := ta.do(t, fiber.MethodPost, "/api/v2/admin/questions", adminID, "admin", dto.QuestionRequest{
		Title:       "Sum rows",
		Description: "Select the sum",
		Language:    "sql",
		TestCases:   []dto.TestCaseRequest{{Input: "CREATE TABLE t (n INT);", ExpectedOutput: `{"sum": 1}`}},
	})
	requireErrorContract(t, resp, fiber.StatusBadRequest)

	resp = ta.do(t, fiber.MethodPost, "/api/v2/admin/questions", adminID, "admin", dto.QuestionRequest{
		Title:       "Sum rows",
		Description: "Select the sum",
		Language:    "sql",
		TestCases:   []dto.TestCaseRequest{{Input: "CREATE TABLE t (n INT);", ExpectedOutput: `[{"sum": 1}]`}},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var question dto.QuestionResponse
	decodeData(t, readEnvelope(t, resp), &question)
	require.Equal(t, `[{"sum":1}]`, question.TestCases[0].ExpectedOutput)

	resp = ta.do(t, fiber.MethodPost, "/api/v2/admin/courses", adminID, "admin", dto.CourseRequest{Code: "DB1", Title: "Databases"})
	var course dto.CourseResponse
	decodeData(t, readEnvelope(t, resp), &course)

	request := dto.AssessmentRequest{
		Title:       "SQL basics",
		CourseID:    course.ID,
		TimeLimit:   20,
		Chances:     2,
		QuestionIDs: []uint{question.ID, 404},
	}
	resp = ta.do(t, fiber.MethodPost, "/api/v2/admin/assessments", adminID, "admin", request)
	env := requireErrorContract(t, resp, fiber.StatusBadRequest)
	require.Contains(t, env.Message, "404")

	request.QuestionIDs = []uint{question.ID}
	resp = ta.do(t, fiber.MethodPost, "/api/v2/admin/assessments", adminID, "admin", request)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var assessment dto.AssessmentResponse
	decodeData(t, readEnvelope(t, resp), &assessment)
	require.Equal(t, 100, assessment.MaxMarks)

	resp = ta.do(t, fiber.MethodGet, fmt.Sprintf("/api/v2/admin/assessments?course_id=%d", course.ID), adminID, "admin", nil)
	var listed []dto.AssessmentResponse
	decodeData(t, readEnvelope(t, resp), &listed)
	require.Len(t, listed, 1)

	resp = ta.do(t, fiber.MethodDelete, "/api/v2/admin/assessments/999", adminID, "admin", nil)
	requireErrorContract(t, resp, fiber.StatusNotFound)
}

func TestAdminQuestionImport(t *testing.T) {
	ta := newTestApp(t, nil)

	workbook := excelize.NewFile()
	sheet := workbook.GetSheetName(0)
	header := []interface{}{"title", "description", "language", "difficulty", "marks", "sample_input", "sample_output", "constraints", "hints", "starter_code", "solution_code", "test_cases"}
	row := []interface{}{"Greeting", "Print hi", "python", "easy", "5", "", "hi", "", "", "", "", `[{"expectedOutput":"hi"}]`}
	require.NoError(t, workbook.SetSheetRow(sheet, "A1", &header))
	require.NoError(t, workbook.SetSheetRow(sheet, "A2", &row))
	data, err := workbook.WriteToBuffer()
	require.NoError(t, err)

	upload := func(name string, content []byte) *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(fiber.MethodPost, "/api/v2/admin/questions/import", body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("X-User-ID", "1")
		req.Header.Set("X-User-Role", "admin")
		resp, err := ta.app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	resp := upload("questions.xlsx", data.Bytes())
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var result dto.QuestionImportResponse
	decodeData(t, readEnvelope(t, resp), &result)
	require.Equal(t, 1, result.Imported)
	require.Empty(t, result.Errors)

	resp = upload("questions.csv", []byte("title,description\nA,B\n"))
	requireErrorContract(t, resp, fiber.StatusUnsupportedMediaType)
}

func TestHealthReportsDependencies(t *testing.T) {
	healthy := newTestApp(t, map[string]handler.HealthProbe{
		"database": func(context.Context) error { return nil },
	})
	resp := healthy.do(t, fiber.MethodGet, "/api/v1/health", 0, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "Test", resp.Header.Get("X-Application"))
	var payload handler.HealthResponse
	decodeData(t, readEnvelope(t, resp), &payload)
	require.Equal(t, "ok", payload.Dependencies["database"])

	degraded := newTestApp(t, map[string]handler.HealthProbe{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	resp = degraded.do(t, fiber.MethodGet, "/api/v1/health", 0, "", nil)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	env := readEnvelope(t, resp)
	require.False(t, env.Success)
	require.Contains(t, string(env.Details), "connection refused")
}
