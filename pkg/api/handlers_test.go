package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/wbr/pkg/deck"
	"github.com/ethpandaops/wbr/pkg/harness"
	"github.com/ethpandaops/wbr/pkg/loader"
	"github.com/ethpandaops/wbr/pkg/publish"
)

const reportConfig = `
setup:
  weekEnding: 25-SEP-2021
  title: Ads Review
metrics:
  Daily:
    column: value
    aggf: sum
deck:
  - block:
      uiType: 6_12Graph
      title: Daily
      metrics:
        Daily:
          lineStyle: primary
`

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	log := logrus.New()

	publisher, err := publish.New(context.Background(), log, publish.Config{
		Option:      publish.OptionLocal,
		LocalDir:    t.TempDir(),
		Environment: "test",
	})
	require.NoError(t, err)

	s := &service{
		config:    &Config{Addr: ":0"},
		loader:    loader.New(log),
		publisher: publisher,
		runner:    harness.New(log, t.TempDir()),
		log:       log,
	}

	return s.buildApp()
}

// dailyCSV renders all-ones daily data covering two full years before the
// fixture's week ending.
func dailyCSV() string {
	var b strings.Builder

	b.WriteString("Date,value\n")

	for d := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC); !d.After(time.Date(2021, 9, 25, 0, 0, 0, 0, time.UTC)); d = d.AddDate(0, 0, 1) {
		fmt.Fprintf(&b, "%s,1\n", d.Format("2006-01-02"))
	}

	return b.String()
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for field, content := range files {
		part, err := writer.CreateFormFile(field, field+".txt")
		require.NoError(t, err)

		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func postReport(t *testing.T, app *fiber.App, url string, files map[string]string) *http.Response {
	t.Helper()

	body, contentType := multipartBody(t, files)

	req := httptest.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req, fiber.TestConfig{Timeout: 10 * time.Second})
	require.NoError(t, err)

	return resp
}

func TestHandleReportWithCSVOverride(t *testing.T) {
	app := newTestApp(t)

	resp := postReport(t, app, "/report", map[string]string{
		"configfile": reportConfig,
		"csvfile":    dailyCSV(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc deck.Document

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "Ads Review", doc.Title)
	assert.Equal(t, "25 September 2021", doc.WeekEnding)
	assert.Len(t, doc.Blocks, 1)
}

func TestHandleReportQueryOverrides(t *testing.T) {
	app := newTestApp(t)

	resp := postReport(t, app, "/report?title=Overridden&blockStartingNumber=5", map[string]string{
		"configfile": reportConfig,
		"csvfile":    dailyCSV(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc deck.Document

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "Overridden", doc.Title)
	assert.Equal(t, 5, doc.BlockStartingNumber)
}

func TestHandleReportMissingConfig(t *testing.T) {
	app := newTestApp(t)

	resp := postReport(t, app, "/report", map[string]string{"csvfile": dailyCSV()})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleReportBadYAML(t *testing.T) {
	app := newTestApp(t)

	resp := postReport(t, app, "/get-wbr-metrics", map[string]string{
		"configfile": "setup: [unclosed",
		"csvfile":    dailyCSV(),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]any

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ConfigError", body["kind"])
}

func TestHandleReportHTMLOutputUnsupported(t *testing.T) {
	app := newTestApp(t)

	resp := postReport(t, app, "/report?outputType=HTML", map[string]string{
		"configfile": reportConfig,
		"csvfile":    dailyCSV(),
	})
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestHandleDownloadYAML(t *testing.T) {
	app := newTestApp(t)

	resp := postReport(t, app, "/download_yaml", map[string]string{
		"csvfile": "Date,Revenue\n2021-09-04,1000000\n",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-yaml", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "6_12Graph")
	assert.Contains(t, string(data), "Revenue")
}

func TestPublishAndFetchReport(t *testing.T) {
	app := newTestApp(t)

	doc := deck.Document{Title: "Ads Review", WeekEnding: "25 September 2021"}
	payload, err := json.Marshal(doc)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/publish-wbr-report", bytes.NewReader(payload))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Path string `json:"path"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Contains(t, out.Path, "/build-wbr/publish?file=")

	fetchURL := out.Path[strings.Index(out.Path, "/build-wbr"):]

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, fetchURL, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched deck.Document

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fetched))
	assert.Equal(t, "Ads Review", fetched.Title)
}

func TestPublishProtectedReport(t *testing.T) {
	app := newTestApp(t)

	payload, err := json.Marshal(deck.Document{Title: "Secret Review"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/publish-protected-report?password=hunter2", bytes.NewReader(payload))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Path string `json:"path"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Contains(t, out.Path, "/build-wbr/publish/protected?file=")

	fetchURL := out.Path[strings.Index(out.Path, "/build-wbr"):]

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, fetchURL+"&password=wrong", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, fetchURL+"&password=hunter2", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched deck.Document

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fetched))
	assert.Equal(t, "Secret Review", fetched.Title)
}

func TestPublishProtectedRequiresPassword(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/publish-protected-report", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFetchReportNotFound(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/build-wbr/publish?file=missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnitTestEndpointEmptySuite(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/wbr-unit-test", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result harness.Result

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Empty(t, result.Scenarios)
}

func TestConfigValidate(t *testing.T) {
	assert.ErrorIs(t, (&Config{}).Validate(), ErrAddrRequired)
	assert.NoError(t, (&Config{Addr: ":5001"}).Validate())
}
