package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-ats/internal/api/handler"
	"smart-ats/internal/api/router"
	"smart-ats/internal/config"
	"smart-ats/internal/gateway"
	"smart-ats/internal/parser"
	"smart-ats/internal/processor"
	"smart-ats/internal/storage"
)

const resumeJSON = `{"name": "Ada Lovelace", "email": "ada@example.com", "skills": ["Python", "SQL"],
 "experience": [{"company": "Engines Ltd", "job_title": "Data Analyst", "responsibilities": ["Built reports"]}]}`

const tailored = `=== HEADER ===
Ada Lovelace
ada@example.com

=== SKILLS ===
Python, SQL

=== PROFESSIONAL EXPERIENCE ===
Data Analyst | Engines Ltd
`

const atsJSON = `{"JD Match": "85", "MissingKeywords": ["Airflow"], "KeyStrength": "Python",
 "Recommendations": "Show pipelines", "Profile Summary": "Good fit", "ExperienceMatch": "80%",
 "SkillsMatch": "90%", "EducationMatch": "70%"}`

func respond(prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "Extract ALL information"):
		return resumeJSON, nil
	case strings.Contains(prompt, "Resume Tailoring Engine"):
		return tailored, nil
	case strings.Contains(prompt, "Hey, act like a skilled"):
		return atsJSON, nil
	default:
		return `{"matched_skills": ["Python"], "missing_keywords": ["Airflow"]}`, nil
	}
}

type staticExtractor struct{ text string }

func (s staticExtractor) Extract(context.Context, []byte, parser.FileType, string) (string, error) {
	return s.text, nil
}

type testServer struct {
	h    *server.Hertz
	mock *gateway.MockChatModel
}

func newTestServer(t *testing.T, auth config.AuthConfig, llm func(string) (string, error)) *testServer {
	t.Helper()
	mock := gateway.NewMockChatModelFunc(llm)
	gw := gateway.NewMockGateway(mock, gateway.WithCatalog(gateway.Catalog{
		Hosted: map[gateway.Provider]gateway.HostedEntry{
			gateway.ProviderGemini: {Configured: true, Models: []string{"gemini-2.0-flash"}},
		},
	}))
	sessions := storage.NewMemorySessionCache(time.Minute)
	svc := processor.NewResumeService(gw, staticExtractor{text: "Ada Lovelace\nada@example.com"}, sessions)

	h := server.New(server.WithHostPorts("127.0.0.1:0"))
	router.RegisterRoutes(h, config.ServerConfig{}, auth,
		handler.NewResumeHandler(svc, gw, 1024*1024, nil),
		handler.NewSystemHandler("test", sessions, nil, nil),
	)
	return &testServer{h: h, mock: mock}
}

func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func defaultFields() map[string]string {
	return map[string]string{
		"job_description": "Python data engineer",
		"job_position":    "Data Engineer",
		"provider":        "Gemini",
		"model":           "gemini-2.0-flash",
	}
}

func (s *testServer) post(t *testing.T, path, filename string, fields map[string]string, headers ...ut.Header) *ut.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, filename, []byte("%PDF-1.4 ada"), fields)
	headers = append(headers, ut.Header{Key: "Content-Type", Value: contentType})
	return ut.PerformRequest(s.h.Engine, http.MethodPost, path, &ut.Body{Body: body, Len: body.Len()}, headers...)
}

func decode(t *testing.T, resp *ut.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out), resp.Body.String())
	return out
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{}, respond)

	resp := ut.PerformRequest(s.h.Engine, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = ut.PerformRequest(s.h.Engine, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["cache_size"])
}

func TestAPIKeyAuth(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{Enabled: true, APIKeys: []string{"secret"}}, respond)

	resp := ut.PerformRequest(s.h.Engine, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code, "健康检查不需要认证")

	resp = ut.PerformRequest(s.h.Engine, http.MethodGet, "/api/reconstruct/template", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, false, decode(t, resp)["success"])

	resp = ut.PerformRequest(s.h.Engine, http.MethodGet, "/api/reconstruct/template", nil, ut.Header{Key: router.APIKeyHeader, Value: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = ut.PerformRequest(s.h.Engine, http.MethodGet, "/api/reconstruct/template", nil, ut.Header{Key: router.APIKeyHeader, Value: "secret"})
	require.Equal(t, http.StatusOK, resp.Code)
	template := decode(t, resp)["template"].(map[string]any)
	assert.Equal(t, "Professional Clean Template", template["name"])
}

func TestAnalysisEndpoint(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{}, respond)

	resp := s.post(t, "/api/analysis", "ada.pdf", defaultFields())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	body := decode(t, resp)
	assert.Equal(t, "85%", body["JD Match"])
	assert.Equal(t, []any{"Airflow"}, body["MissingKeywords"])
	assert.Equal(t, "Good fit", body["Profile Summary"])
	assert.Equal(t, "ada.pdf", body["filename"])
	assert.Equal(t, "pdf", body["file_type"])
	assert.Len(t, body["session_id"], 16)
}

func TestReconstructDownload(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{}, respond)

	resp := s.post(t, "/api/reconstruct", "ada.docx", defaultFields())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	header := resp.Header()
	assert.Contains(t, string(header.Peek("Content-Disposition")), `filename="Ada_Lovelace_reconstructed.txt"`)
	assert.Contains(t, string(header.ContentType()), "text/plain")
	assert.Equal(t, "false", string(header.Peek("X-Cache-Hit")))
	assert.True(t, strings.HasPrefix(resp.Body.String(), "=== HEADER ==="))
}

func TestReconstructPreviewReusesSession(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{}, respond)

	resp := s.post(t, "/api/reconstruct/preview", "ada.pdf", defaultFields())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	first := decode(t, resp)
	assert.Equal(t, true, first["success"])
	assert.Equal(t, false, first["cache_hit"])
	assert.Equal(t, "fast", first["mode"])
	summary := first["parsed_resume_summary"].(map[string]any)
	assert.Equal(t, "Ada Lovelace", summary["name"])
	assert.Equal(t, float64(2), summary["skills_count"])
	assert.NotEmpty(t, first["sections"])
	assert.Equal(t, true, first["validation"].(map[string]any)["valid"])
	callsAfterFirst := s.mock.Calls()
	assert.Equal(t, 2, callsAfterFirst, "快速模式：一次解析加一次合并重构")

	fields := defaultFields()
	fields["session_id"] = first["session_id"].(string)
	fields["mode"] = "full"
	resp = s.post(t, "/api/reconstruct/preview", "ada.pdf", fields)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	second := decode(t, resp)
	assert.Equal(t, true, second["cache_hit"])
	assert.Equal(t, "full", second["mode"])
	assert.Equal(t, callsAfterFirst+2, s.mock.Calls(), "命中缓存后只调用差距分析和重构")
	for _, p := range s.mock.Prompts()[callsAfterFirst:] {
		assert.NotContains(t, p, "Extract ALL information")
	}
}

func TestErrorResponses(t *testing.T) {
	upstreamDown := func(prompt string) (string, error) {
		return "", errors.New("connection refused")
	}

	cases := []struct {
		name     string
		llm      func(string) (string, error)
		filename string
		mutate   func(map[string]string)
		status   int
		message  string
	}{
		{"missing file", respond, "", nil, http.StatusBadRequest, "Missing required field: file"},
		{"unsupported type", respond, "ada.png", nil, http.StatusBadRequest, "Unsupported file type"},
		{"unknown provider", respond, "ada.pdf", func(f map[string]string) { f["provider"] = "mistral" }, http.StatusBadRequest, "Unknown provider"},
		{"unknown hosted model", respond, "ada.pdf", func(f map[string]string) { f["model"] = "gemini-9" }, http.StatusBadRequest, "Unknown model"},
		{"upstream failure", upstreamDown, "ada.pdf", nil, http.StatusBadGateway, ""},
		{"unparseable ats output", func(string) (string, error) { return "no json here", nil }, "ada.pdf", nil, http.StatusBadGateway, "Failed to parse AI response."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, config.AuthConfig{}, tc.llm)
			fields := defaultFields()
			if tc.mutate != nil {
				tc.mutate(fields)
			}

			resp := s.post(t, "/api/analysis", tc.filename, fields)
			require.Equal(t, tc.status, resp.Code, resp.Body.String())
			body := decode(t, resp)
			assert.Equal(t, false, body["success"])
			assert.Contains(t, body["error"], tc.message)
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{}, respond)

	body, contentType := multipartBody(t, "big.pdf", bytes.Repeat([]byte("a"), 2*1024*1024), defaultFields())
	resp := ut.PerformRequest(s.h.Engine, http.MethodPost, "/api/analysis", &ut.Body{Body: body, Len: body.Len()},
		ut.Header{Key: "Content-Type", Value: contentType})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	assert.Equal(t, 0, s.mock.Calls())
}

func TestModelsEndpoint(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{}, respond)

	resp := ut.PerformRequest(s.h.Engine, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp)
	gemini := body["Gemini"].(map[string]any)
	assert.Equal(t, true, gemini["available"])
	assert.Equal(t, []any{"gemini-2.0-flash"}, gemini["models"])
	ollama := body["Ollama"].(map[string]any)
	assert.Equal(t, false, ollama["available"])
}
