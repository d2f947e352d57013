package handler_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
)

func requireSchema(t *testing.T, schemaPath string, raw json.RawMessage) {
	t.Helper()
	schema, err := jsonschema.Compile(schemaPath)
	require.NoError(t, err)

	var value interface{}
	require.NoError(t, json.Unmarshal(raw, &value))
	require.NoError(t, schema.Validate(value))
}

func requireErrorContract(t *testing.T, resp *http.Response, status int) envelope {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	requireSchema(t, "testdata/error.schema.json", data)

	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestStudentCompletesAssessmentOverHTTP(t *testing.T) {
	ta := newTestApp(t, nil)
	assessment, question := ta.seedAssessment(t)
	base := "/api/v2/assessments/" + strconv.FormatUint(uint64(assessment.ID), 10)
	questionPath := fmt.Sprintf("%s/questions/%d", base, question.ID)

	resp := ta.do(t, fiber.MethodGet, "/api/v2/assessments", studentID, "student", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	env := readEnvelope(t, resp)
	requireSchema(t, "testdata/catalog.schema.json", env.Data)
	var catalog dto.StudentCatalogResponse
	decodeData(t, env, &catalog)
	require.Len(t, catalog.Items, 1)
	require.Equal(t, 1, catalog.Items[0].ChancesRemaining)

	resp = ta.do(t, fiber.MethodPost, base+"/start", studentID, "student", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var started dto.StartAssessmentResponse
	decodeData(t, readEnvelope(t, resp), &started)
	require.Equal(t, question.ID, started.QuestionID)
	require.Equal(t, 30*60, started.TimeRemaining)

	resp = ta.do(t, fiber.MethodGet, questionPath, studentID, "student", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var entered dto.QuestionSessionResponse
	decodeData(t, readEnvelope(t, resp), &entered)
	require.Equal(t, "# start", entered.Code)
	require.Empty(t, entered.Question.SolutionCode)

	resp = ta.do(t, fiber.MethodPost, questionPath+"/submit", studentID, "student", nil)
	env = requireErrorContract(t, resp, fiber.StatusConflict)
	require.Contains(t, env.Message, "run the code")

	resp = ta.do(t, fiber.MethodPost, questionPath+"/run", studentID, "student", dto.CodeRequest{Code: "hello"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	env = readEnvelope(t, resp)
	requireSchema(t, "testdata/run.schema.json", env.Data)
	var run dto.RunResponse
	decodeData(t, env, &run)
	require.Equal(t, 100, run.Score.Score)
	require.Equal(t, "accepted", run.Score.Status)

	resp = ta.do(t, fiber.MethodPost, questionPath+"/submit", studentID, "student", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	env = readEnvelope(t, resp)
	require.Equal(t, "assessment completed", env.Message)
	var submitted dto.SubmitResponse
	decodeData(t, env, &submitted)
	require.True(t, submitted.Completed)
	require.NotNil(t, submitted.Review)
	require.Equal(t, 100, submitted.Review.TotalScore)

	resp = ta.do(t, fiber.MethodGet, base+"/review", studentID, "student", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	env = readEnvelope(t, resp)
	requireSchema(t, "testdata/review.schema.json", env.Data)

	resp = ta.do(t, fiber.MethodGet, base+"/review/workbook", studentID, "student", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), ".xlsx")
	require.NoError(t, resp.Body.Close())

	resp = ta.do(t, fiber.MethodGet, base+"/review", studentID+1, "student", nil)
	requireErrorContract(t, resp, fiber.StatusNotFound)

	resp = ta.do(t, fiber.MethodPost, base+"/review/export", studentID, "student", nil)
	requireErrorContract(t, resp, fiber.StatusServiceUnavailable)

	resp = ta.do(t, fiber.MethodPost, base+"/start", studentID, "student", nil)
	requireErrorContract(t, resp, fiber.StatusConflict)

	resp = ta.do(t, fiber.MethodGet, "/api/v2/assessments/completions", studentID, "student", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var completions dto.CompletionMap
	decodeData(t, readEnvelope(t, resp), &completions)
	require.Equal(t, 100, completions[strconv.FormatUint(uint64(assessment.ID), 10)].Score)

	resp = ta.do(t, fiber.MethodGet, "/api/v2/assessments", studentID, "student", nil)
	var refreshed dto.StudentCatalogResponse
	decodeData(t, readEnvelope(t, resp), &refreshed)
	require.True(t, refreshed.Items[0].Completed)
	require.NotNil(t, refreshed.Items[0].Score)
}

func TestAttemptRoutesRejectOutsiders(t *testing.T) {
	ta := newTestApp(t, nil)
	assessment, question := ta.seedAssessment(t)
	questionPath := fmt.Sprintf("/api/v2/assessments/%d/questions/%d", assessment.ID, question.ID)

	resp := ta.do(t, fiber.MethodGet, questionPath, studentID+1, "student", nil)
	requireErrorContract(t, resp, fiber.StatusForbidden)

	resp = ta.do(t, fiber.MethodGet, fmt.Sprintf("/api/v2/assessments/%d/questions/999", assessment.ID), studentID, "student", nil)
	requireErrorContract(t, resp, fiber.StatusNotFound)

	resp = ta.do(t, fiber.MethodGet, "/api/v2/assessments/abc/questions/1", studentID, "student", nil)
	requireErrorContract(t, resp, fiber.StatusBadRequest)

	resp = ta.do(t, fiber.MethodGet, questionPath, 0, "", nil)
	requireErrorContract(t, resp, fiber.StatusUnauthorized)
}
