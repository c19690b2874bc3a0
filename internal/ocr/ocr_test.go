package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/supplier-verify/internal/config"
	"github.com/sells-group/supplier-verify/internal/resilience"
)

func TestNewExtractor_Local(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "local", PdfToTextPath: "/usr/bin/pdftotext"})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ext)
}

func TestNewExtractor_LocalDefault(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: ""})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ext)
}

func TestNewExtractor_MistralMissingKey(t *testing.T) {
	_, err := NewExtractor(config.OCRConfig{Provider: "mistral"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral provider requires mistral_api_key")
}

func TestNewExtractor_MistralWithKey(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "mistral", MistralKey: "test-key", MaxPages: 2})
	require.NoError(t, err)
	chain, ok := ext.(Chain)
	require.True(t, ok)
	require.Len(t, chain, 2)
	assert.IsType(t, &PdfToText{}, chain[0])
	m, ok := chain[1].(*MistralOCR)
	require.True(t, ok)
	assert.Equal(t, 2, m.maxPages)
}

func TestNewExtractor_UnknownProvider(t *testing.T) {
	_, err := NewExtractor(config.OCRConfig{Provider: "unknown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "unknown"`)
}

type stubExtractor struct {
	text  string
	err   error
	calls int
}

func (s *stubExtractor) ExtractText(context.Context, string) (string, error) {
	s.calls++
	return s.text, s.err
}

const statementText = "BANCO MERCANTIL DEL NORTE ESTADO DE CUENTA CLABE 072180001234567891 CUENTA 0123456789"

func TestChain_FirstUsableWins(t *testing.T) {
	first := &stubExtractor{text: statementText}
	second := &stubExtractor{text: "unused"}

	text, err := Chain{first, second}.ExtractText(context.Background(), "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, statementText, text)
	assert.Equal(t, 0, second.calls)
}

func TestChain_FallsThroughScannedAndErrors(t *testing.T) {
	scanned := &stubExtractor{text: "  \f "}
	broken := &stubExtractor{err: errors.New("boom")}
	remote := &stubExtractor{text: statementText}

	text, err := Chain{scanned, broken, remote}.ExtractText(context.Background(), "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, statementText, text)
}

func TestChain_ReturnsBestShortText(t *testing.T) {
	text, err := Chain{&stubExtractor{text: "BBVA"}, &stubExtractor{err: errors.New("boom")}}.
		ExtractText(context.Background(), "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, "BBVA", text)
}

func TestChain_AllFail(t *testing.T) {
	_, err := Chain{&stubExtractor{err: errors.New("first")}, &stubExtractor{err: errors.New("second")}}.
		ExtractText(context.Background(), "x.pdf")
	require.Error(t, err)
	assert.Equal(t, "second", err.Error())
}

func TestUsable(t *testing.T) {
	assert.False(t, Usable(""))
	assert.False(t, Usable("BBVA 1234"))
	assert.True(t, Usable(statementText))
}

func TestNormalize(t *testing.T) {
	in := "Linea 1   \r\n\r\n\r\n\fLinea 2\t\n\n"
	assert.Equal(t, "Linea 1\n\n\fLinea 2", Normalize(in))
}

func TestPdfToText_Args(t *testing.T) {
	p := NewPdfToText("", 0)
	assert.Equal(t, "pdftotext", p.binPath)
	assert.Equal(t, []string{"-layout", "-enc", "UTF-8", "a.pdf", "-"}, p.args("a.pdf"))

	p = NewPdfToText("/custom/pdftotext", 2)
	assert.Equal(t, "/custom/pdftotext", p.binPath)
	assert.Equal(t, []string{"-layout", "-enc", "UTF-8", "-f", "1", "-l", "2", "a.pdf", "-"}, p.args("a.pdf"))
}

func TestPdfToText_ExtractText_BinaryNotFound(t *testing.T) {
	p := NewPdfToText("/nonexistent/pdftotext", 0)
	_, err := p.ExtractText(context.Background(), "/tmp/test.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func TestPdfToText_ExtractText_Success(t *testing.T) {
	// Fake pdftotext that echoes its arguments
	tmpDir := t.TempDir()
	fakeBin := filepath.Join(tmpDir, "pdftotext")
	script := "#!/bin/sh\nprintf 'Extracted text content   \\n\\n\\n'\nprintf '%s\\n' \"$*\"\n"
	require.NoError(t, os.WriteFile(fakeBin, []byte(script), 0755))

	p := NewPdfToText(fakeBin, 1)
	text, err := p.ExtractText(context.Background(), "/tmp/dummy.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Extracted text content\n\n-layout -enc UTF-8 -f 1 -l 1 /tmp/dummy.pdf -", text)
}

func writePDF(t *testing.T) string {
	t.Helper()
	pdfPath := filepath.Join(t.TempDir(), "test.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4 test content"), 0644))
	return pdfPath
}

func fastRetry() MistralOption {
	return WithRetry(resilience.NewRetryConfig(3, time.Millisecond))
}

func TestMistralOCR_DefaultModel(t *testing.T) {
	m := NewMistralOCR("key", "")
	assert.Equal(t, defaultMistralModel, m.model)
	assert.Equal(t, mistralOCREndpoint, m.endpoint)
}

func TestMistralOCR_ExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "document_url", req.Document.Type)
		assert.True(t, strings.HasPrefix(req.Document.DocumentURL, "data:application/pdf;base64,"))
		assert.Equal(t, []int{0, 1}, req.Pages)

		resp := mistralOCRResponse{
			Pages: []mistralOCRPage{
				{Index: 0, Markdown: "Page one content"},
				{Index: 1, Markdown: "Page two content"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	m := NewMistralOCR("test-key", "test-model", WithEndpoint(srv.URL), WithMaxPages(2))
	text, err := m.ExtractText(context.Background(), writePDF(t))
	require.NoError(t, err)
	assert.Equal(t, "Page one content\n\nPage two content", text)
}

func TestMistralOCR_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(mistralOCRResponse{Pages: []mistralOCRPage{{Markdown: "ok"}}}) //nolint:errcheck
	}))
	defer srv.Close()

	m := NewMistralOCR("key", "", WithEndpoint(srv.URL), fastRetry())
	text, err := m.ExtractText(context.Background(), writePDF(t))
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMistralOCR_APIError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	m := NewMistralOCR("bad-key", "", WithEndpoint(srv.URL), fastRetry())
	_, err := m.ExtractText(context.Background(), writePDF(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral API returned 401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestMistralOCR_FileNotFound(t *testing.T) {
	m := NewMistralOCR("key", "model")
	_, err := m.ExtractText(context.Background(), "/nonexistent/file.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read PDF")
}

func TestMistralOCR_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{invalid json`)) //nolint:errcheck
	}))
	defer srv.Close()

	m := NewMistralOCR("test-key", "", WithEndpoint(srv.URL), fastRetry())
	_, err := m.ExtractText(context.Background(), writePDF(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal mistral response")
}
