package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-ats/internal/gateway"
	"smart-ats/internal/parser"
	"smart-ats/internal/storage"
)

const testJD = "We need a data engineer with Python and Airflow."

type serviceFixture struct {
	svc       *ResumeService
	mock      *gateway.MockChatModel
	parser    *countingParser
	extractor *stubExtractor
	sessions  *storage.MemorySessionCache
	warm      *recordingSubmitter
}

func newServiceFixture(t *testing.T, llm *fakeLLM, opts ...ServiceOption) *serviceFixture {
	t.Helper()
	gw, mock := newFakeGateway(llm)
	f := &serviceFixture{
		mock:      mock,
		parser:    &countingParser{inner: parser.NewResumeParser(gw)},
		extractor: &stubExtractor{text: "Ada Lovelace\nada@example.com\nPython, SQL"},
		sessions:  storage.NewMemorySessionCache(time.Minute),
		warm:      &recordingSubmitter{},
	}
	base := []ServiceOption{WithResumeParser(f.parser), WithWarmer(f.warm)}
	f.svc = NewResumeService(gw, f.extractor, f.sessions, append(base, opts...)...)
	return f
}

func reconstructRequest(sessionID, mode string) ReconstructRequest {
	return ReconstructRequest{
		FileName:       "ada.pdf",
		FileBytes:      []byte("%PDF-1.4 ada"),
		JobDescription: testJD,
		JobPosition:    "Data Engineer",
		Provider:       "gemini",
		Model:          "gemini-2.0-flash",
		SessionID:      sessionID,
		Mode:           mode,
	}
}

func TestAnalyzeReturnsAnalysisAndSubmitsWarmTask(t *testing.T) {
	f := newServiceFixture(t, &fakeLLM{})

	res, err := f.svc.Analyze(context.Background(), AnalyzeRequest{
		FileName:       "ada.pdf",
		FileBytes:      []byte("%PDF-1.4 ada"),
		JobDescription: testJD,
		JobPosition:    "Data Engineer",
		Provider:       "Gemini",
		Model:          "gemini-2.0-flash",
	})
	require.NoError(t, err)

	assert.Equal(t, "72%", res.Analysis.JDMatch)
	assert.Equal(t, "80%", res.Analysis.SkillsMatch)
	assert.Equal(t, "ada.pdf", res.Analysis.Filename)
	assert.Equal(t, "pdf", res.Analysis.FileType)
	assert.Equal(t, storage.Fingerprint([]byte("%PDF-1.4 ada"), testJD), res.SessionID)
	assert.True(t, res.Warming)

	tasks := f.warm.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, res.SessionID, tasks[0].SessionID)
	assert.Equal(t, "Ada Lovelace\nada@example.com\nPython, SQL", tasks[0].CVText)
	assert.Equal(t, string(gateway.ProviderGemini), tasks[0].Provider)
	assert.Equal(t, int32(0), f.parser.calls.Load(), "评估请求本身不应等待解析")
}

func TestReconstructReusesCachedSession(t *testing.T) {
	f := newServiceFixture(t, &fakeLLM{})
	ctx := context.Background()

	first, err := f.svc.Reconstruct(ctx, reconstructRequest("", ""))
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, int32(1), f.parser.calls.Load())
	assert.Equal(t, 1, f.sessions.Len())

	second, err := f.svc.Reconstruct(ctx, reconstructRequest(first.SessionID, ""))
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, int32(1), f.parser.calls.Load(), "命中缓存时不应再次调用解析阶段")
	assert.Equal(t, 1, f.extractor.Calls(), "命中缓存时不应再次提取文本")
}

func TestReconstructUsesWarmedSession(t *testing.T) {
	f := newServiceFixture(t, &fakeLLM{})
	ctx := context.Background()

	analysis, err := f.svc.Analyze(ctx, AnalyzeRequest{
		FileName:       "ada.pdf",
		FileBytes:      []byte("%PDF-1.4 ada"),
		JobDescription: testJD,
		Provider:       "gemini",
		Model:          "gemini-2.0-flash",
	})
	require.NoError(t, err)

	warmer := NewCacheWarmer(f.parser, f.sessions)
	defer warmer.Close()
	require.NoError(t, warmer.Process(ctx, f.warm.Tasks()[0]))
	assert.Equal(t, int32(1), f.parser.calls.Load())

	res, err := f.svc.Reconstruct(ctx, reconstructRequest(analysis.SessionID, ""))
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Equal(t, int32(1), f.parser.calls.Load())
}

func TestReconstructUnknownSessionFallsBackToFingerprint(t *testing.T) {
	f := newServiceFixture(t, &fakeLLM{})

	res, err := f.svc.Reconstruct(context.Background(), reconstructRequest("does-not-exist", ""))
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, storage.Fingerprint([]byte("%PDF-1.4 ada"), testJD), res.SessionID)
}

func TestReconstructFastModeOutput(t *testing.T) {
	f := newServiceFixture(t, &fakeLLM{})

	res, err := f.svc.Reconstruct(context.Background(), reconstructRequest("", "fast"))
	require.NoError(t, err)

	assert.Equal(t, "fast", res.Mode)
	assert.True(t, len(res.ReconstructedText) > 0)
	assert.Equal(t, "=== HEADER ===", res.ReconstructedText[:len("=== HEADER ===")], "前言应被去掉")
	assert.True(t, res.Validation.Valid, "warnings: %v", res.Validation.Warnings)
	assert.Equal(t, "Ada Lovelace", res.Validation.OriginalName)
	assert.Equal(t, []string{"Airflow"}, res.GapAnalysis.MissingKeywords)
	require.NotEmpty(t, res.Sections)
	assert.Equal(t, "HEADER", string(res.Sections[0].Type))
	assert.Equal(t, "Ada_Lovelace_reconstructed.txt", res.DownloadName())

	prompts := f.mock.Prompts()
	require.Len(t, prompts, 2, "解析一次，合并的差距分析与重构一次")
	assert.Contains(t, prompts[1], parser.FastGapMarker)
}

func TestReconstructFullModeUsesSeparateGapCall(t *testing.T) {
	f := newServiceFixture(t, &fakeLLM{})

	res, err := f.svc.Reconstruct(context.Background(), reconstructRequest("", "full"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Airflow"}, res.GapAnalysis.MissingKeywords)

	prompts := f.mock.Prompts()
	require.Len(t, prompts, 3)
	assert.NotContains(t, prompts[2], parser.FastGapMarker)
	assert.Contains(t, prompts[2], "Under-expressed keywords", "重构提示词应包含差距分析结果")
}

func TestReconstructFullModeDegradesOnGapFailure(t *testing.T) {
	f := newServiceFixture(t, &fakeLLM{gapErr: errors.New("gap backend down")})

	res, err := f.svc.Reconstruct(context.Background(), reconstructRequest("", "full"))
	require.NoError(t, err)
	assert.Equal(t, "full", res.Mode)
	assert.True(t, res.GapAnalysis.IsEmpty())
	assert.NotEmpty(t, res.ReconstructedText)

}

func TestReconstructFastModePropagatesTransportError(t *testing.T) {
	f := newServiceFixture(t, &fakeLLM{reconstructErr: errors.New("backend down")})

	_, err := f.svc.Reconstruct(context.Background(), reconstructRequest("", "fast"))
	require.Error(t, err, "快速模式下合并调用的传输错误应向上传播")
	var perr *gateway.ProviderError
	assert.ErrorAs(t, err, &perr)
}

func TestReconstructRejectsInvalidMode(t *testing.T) {
	f := newServiceFixture(t, &fakeLLM{})

	_, err := f.svc.Reconstruct(context.Background(), reconstructRequest("", "turbo"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidField)
	assert.Equal(t, 0, f.mock.Calls())
}

func TestInputErrorsStopBeforeModelCalls(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ReconstructRequest)
		target error
	}{
		{"unsupported file", func(r *ReconstructRequest) { r.FileName = "ada.txt" }, ErrUnsupportedFileType},
		{"empty file", func(r *ReconstructRequest) { r.FileBytes = nil }, ErrMissingField},
		{"missing jd", func(r *ReconstructRequest) { r.JobDescription = "  " }, ErrMissingField},
		{"missing model", func(r *ReconstructRequest) { r.Model = "" }, ErrMissingField},
		{"unknown provider", func(r *ReconstructRequest) { r.Provider = "mistral" }, gateway.ErrUnknownProvider},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newServiceFixture(t, &fakeLLM{})
			req := reconstructRequest("", "")
			tc.mutate(&req)

			_, err := f.svc.Reconstruct(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.target)
			assert.Equal(t, 0, f.mock.Calls())
			assert.Equal(t, 0, f.extractor.Calls())
		})
	}
}

func TestEmptyExtractedText(t *testing.T) {
	f := newServiceFixture(t, &fakeLLM{})
	f.extractor.text = "   \n"

	_, err := f.svc.Analyze(context.Background(), AnalyzeRequest{
		FileName:       "ada.docx",
		FileBytes:      []byte("PK"),
		JobDescription: testJD,
		Provider:       "ollama",
		Model:          "llama3",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.EqualError(t, err, "Could not extract text from file.")
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "analyze", inputErr.Op)
	assert.Equal(t, 0, f.mock.Calls())
	assert.Empty(t, f.warm.Tasks())
}

func TestParseFailureIsReported(t *testing.T) {
	f := newServiceFixture(t, &fakeLLM{})
	f.parser.inner = parser.NewResumeParser(gateway.NewMockGateway(gateway.NewMockChatModel(gateway.MockResponse{Content: "not json at all"})))

	_, err := f.svc.Reconstruct(context.Background(), reconstructRequest("", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, parser.ErrFormat)
	assert.Equal(t, 0, f.sessions.Len(), "解析失败时不应写入缓存")
}

type blockingSender struct{}

func (blockingSender) Send(ctx context.Context, _ string, _ gateway.Provider, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestPipelineTimeout(t *testing.T) {
	svc := NewResumeService(blockingSender{}, &stubExtractor{text: "cv"}, storage.NewMemorySessionCache(0),
		WithPipelineTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := svc.Reconstruct(context.Background(), reconstructRequest("", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
