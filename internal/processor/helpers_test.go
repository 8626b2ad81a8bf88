package processor

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"smart-ats/internal/gateway"
	"smart-ats/internal/parser"
	"smart-ats/internal/storage"
	"smart-ats/internal/types"
)

const testResumeJSON = `{
  "name": "Ada Lovelace",
  "email": "ada@example.com",
  "location": "London",
  "summary": "Analyst",
  "skills": ["Python", "SQL"],
  "experience": [
    {"company": "Engines Ltd", "job_title": "Data Analyst", "duration": "2020 - Present", "responsibilities": ["Built reports in SQL"]}
  ],
  "education": [{"institution": "UCL", "degree": "BSc", "field_of_study": "Mathematics", "graduation_date": "2019"}],
  "languages": ["English"]
}`

const testGapJSON = `{
  "jd_keywords": ["Python", "Airflow"],
  "matched_skills": ["Python"],
  "missing_keywords": ["Airflow"],
  "weak_sections": ["SQL reporting is under-described"],
  "improvement_recommendations": ["Lead with SQL reporting"],
  "priority_skills": ["Python"]
}`

const testATSJSON = `{
  "JD Match": "0.72",
  "MissingKeywords": ["Airflow"],
  "KeyStrength": "Python and SQL",
  "Recommendations": "Show pipeline work",
  "Profile Summary": "Solid analyst",
  "ExperienceMatch": "70%",
  "SkillsMatch": "80",
  "EducationMatch": "90%"
}`

const testTailored = `Sure, here is the resume:
=== HEADER ===
Ada Lovelace
ada@example.com | London

=== PROFESSIONAL SUMMARY ===
Data analyst working in Python and SQL.

=== SKILLS ===
Python, SQL

=== PROFESSIONAL EXPERIENCE ===
Data Analyst | Engines Ltd | 2020 - Present
• Built SQL reports

=== EDUCATION ===
BSc Mathematics | UCL | 2019
`

// fakeLLM 按提示词类型返回固定响应，错误字段非空时对应阶段失败
type fakeLLM struct {
	parseErr       error
	gapErr         error
	reconstructErr error
}

func (f *fakeLLM) respond(prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "Extract ALL information"):
		if f.parseErr != nil {
			return "", f.parseErr
		}
		return "```json\n" + testResumeJSON + "\n```", nil
	case strings.Contains(prompt, "Resume Tailoring Engine"):
		if f.reconstructErr != nil {
			return "", f.reconstructErr
		}
		if strings.Contains(prompt, parser.FastGapMarker) {
			return parser.FastGapMarker + "\n" + testGapJSON + "\n\n" + testTailored, nil
		}
		return testTailored, nil
	case strings.Contains(prompt, "Hey, act like a skilled"):
		return testATSJSON, nil
	default:
		if f.gapErr != nil {
			return "", f.gapErr
		}
		return testGapJSON, nil
	}
}

func newFakeGateway(f *fakeLLM) (*gateway.Gateway, *gateway.MockChatModel) {
	mock := gateway.NewMockChatModelFunc(f.respond)
	return gateway.NewMockGateway(mock), mock
}

// countingParser 记录解析阶段被调用的次数
type countingParser struct {
	inner ResumeParsing
	calls atomic.Int32
}

func (c *countingParser) Parse(ctx context.Context, text string, provider gateway.Provider, modelName string) (*types.ParsedResume, error) {
	c.calls.Add(1)
	return c.inner.Parse(ctx, text, provider, modelName)
}

// stubExtractor 返回固定文本
type stubExtractor struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (s *stubExtractor) Extract(_ context.Context, _ []byte, _ parser.FileType, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.text, s.err
}

func (s *stubExtractor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingSubmitter 记录提交的预热任务
type recordingSubmitter struct {
	mu    sync.Mutex
	tasks []storage.WarmTaskMessage
}

func (r *recordingSubmitter) Submit(task storage.WarmTaskMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return true
}

func (r *recordingSubmitter) Tasks() []storage.WarmTaskMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]storage.WarmTaskMessage(nil), r.tasks...)
}
