package parser

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-ats/internal/gateway"
	"smart-ats/internal/types"
)

const sampleResumeJSON = `{
  "name": "Ada Lovelace",
  "email": "ada@example.com",
  "phone": "",
  "linkedin": "",
  "location": "London",
  "summary": "Analyst",
  "skills": ["Python", "SQL"],
  "experience": [
    {"company": "Engines Ltd", "job_title": "Data Analyst", "duration": "2020 - Present", "location": "London", "responsibilities": ["Built reports in SQL"]}
  ],
  "projects": [],
  "education": [{"institution": "UCL", "degree": "BSc", "field_of_study": "Mathematics", "graduation_date": "2019", "gpa": ""}],
  "certifications": [],
  "languages": ["English"]
}`

func sampleResume() *types.ParsedResume {
	var r types.ParsedResume
	if err := json.Unmarshal([]byte(sampleResumeJSON), &r); err != nil {
		panic(err)
	}
	return r.Normalize()
}

func TestResumeParserParsesFencedJSON(t *testing.T) {
	mock := gateway.NewMockChatModel(gateway.MockResponse{Content: "```json\n" + sampleResumeJSON + "\n```"})
	p := NewResumeParser(gateway.NewMockGateway(mock))

	resume, err := p.Parse(context.Background(), "Ada Lovelace\nada@example.com", gateway.ProviderGemini, "gemini-2.0-flash")
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", resume.Name)
	assert.Equal(t, []string{"Python", "SQL"}, resume.Skills)
	require.Len(t, resume.Experience, 1)
	assert.Equal(t, "Engines Ltd", resume.Experience[0].Company)
	assert.NotNil(t, resume.Projects)
	assert.NotNil(t, resume.Certifications)

	prompts := mock.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Ada Lovelace\nada@example.com")
	assert.Contains(t, prompts[0], `"responsibilities"`)
}

func TestResumeParserDefaultsMissingFields(t *testing.T) {
	mock := gateway.NewMockChatModel(gateway.MockResponse{Content: `{"name": "Bob", "skills": null, "experience": [{"company": "X"}]}`})
	p := NewResumeParser(gateway.NewMockGateway(mock))

	resume, err := p.Parse(context.Background(), "Bob", gateway.ProviderOllama, "llama3")
	require.NoError(t, err)

	assert.Equal(t, "Bob", resume.Name)
	assert.Equal(t, "", resume.Email)
	assert.Equal(t, []string{}, resume.Skills, "缺失或为 null 的技能应为空数组")
	assert.Equal(t, []string{}, resume.Languages)
	require.Len(t, resume.Experience, 1)
	assert.Equal(t, []string{}, resume.Experience[0].Responsibilities)

	data, err := json.Marshal(resume)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"skills":[]`)
	assert.NotContains(t, string(data), "null")
}

func TestResumeParserToleratesTypeDrift(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		check func(t *testing.T, r *types.ParsedResume)
	}{
		{"numeric gpa", `{"name": "Ada", "education": [{"institution": "UCL", "gpa": 3.8, "graduation_date": 2019}]}`,
			func(t *testing.T, r *types.ParsedResume) {
				require.Len(t, r.Education, 1)
				assert.Equal(t, "3.8", r.Education[0].GPA)
				assert.Equal(t, "2019", r.Education[0].GraduationDate)
			}},
		{"numeric phone", `{"name": "Ada", "phone": 5551234567}`,
			func(t *testing.T, r *types.ParsedResume) {
				assert.Equal(t, "5551234567", r.Phone)
			}},
		{"comma separated skills", `{"name": "Ada", "skills": "Python, SQL", "languages": "English"}`,
			func(t *testing.T, r *types.ParsedResume) {
				assert.Equal(t, []string{"Python", "SQL"}, r.Skills)
				assert.Equal(t, []string{"English"}, r.Languages)
			}},
		{"string responsibilities", `{"name": "Ada", "experience": [{"company": "Engines Ltd", "responsibilities": "Built reports"}],
			"projects": [{"name": "ETL", "technologies": "Airflow, Python", "highlights": null}]}`,
			func(t *testing.T, r *types.ParsedResume) {
				require.Len(t, r.Experience, 1)
				assert.Equal(t, []string{"Built reports"}, r.Experience[0].Responsibilities)
				require.Len(t, r.Projects, 1)
				assert.Equal(t, []string{"Airflow", "Python"}, r.Projects[0].Technologies)
				assert.Equal(t, []string{}, r.Projects[0].Highlights)
			}},
		{"list summary", `{"name": "Ada", "summary": ["Analyst", "Mathematician"]}`,
			func(t *testing.T, r *types.ParsedResume) {
				assert.Equal(t, "Analyst; Mathematician", r.Summary)
			}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := gateway.NewMockChatModel(gateway.MockResponse{Content: tc.body})
			p := NewResumeParser(gateway.NewMockGateway(mock))

			resume, err := p.Parse(context.Background(), "Ada", gateway.ProviderOllama, "llama3")
			require.NoError(t, err)
			assert.Equal(t, "Ada", resume.Name)
			tc.check(t, resume)
		})
	}
}

func TestResumeParserFormatError(t *testing.T) {
	mock := gateway.NewMockChatModel(gateway.MockResponse{Content: "I am unable to parse this resume."})
	p := NewResumeParser(gateway.NewMockGateway(mock))

	_, err := p.Parse(context.Background(), "text", gateway.ProviderOpenAI, "gpt-4o")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StageParse, perr.Stage)
	assert.Equal(t, "Failed to parse resume into structured format", err.Error())
	assert.Equal(t, 1, mock.Calls(), "格式错误不应重试")
}

func TestResumeParserPropagatesTransportError(t *testing.T) {
	mock := gateway.NewMockChatModel(gateway.MockResponse{Error: errors.New("connection reset")})
	p := NewResumeParser(gateway.NewMockGateway(mock))

	_, err := p.Parse(context.Background(), "text", gateway.ProviderClaude, "claude-3-haiku-20240307")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrTransport)
	assert.False(t, errors.Is(err, ErrFormat))
}

func TestBuildParsePromptEmbedsText(t *testing.T) {
	prompt := BuildParsePrompt("RESUME-BODY")
	assert.True(t, strings.HasPrefix(prompt, "Extract ALL information"))
	assert.Contains(t, prompt, "RESUME-BODY")
	assert.NotContains(t, prompt, "%!")
}
