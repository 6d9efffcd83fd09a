package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/YumeNoTenshi/ecoscan/internal/history"
	"github.com/YumeNoTenshi/ecoscan/internal/models"
	"github.com/YumeNoTenshi/ecoscan/internal/session"
	"github.com/YumeNoTenshi/ecoscan/internal/strategy"
	"github.com/YumeNoTenshi/ecoscan/pkg/ml"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingPublisher struct {
	saved []models.HistoryRecord
	err   error
}

func (p *recordingPublisher) PublishHistorySaved(_ context.Context, rec models.HistoryRecord) error {
	p.saved = append(p.saved, rec)
	return p.err
}

func (p *recordingPublisher) Close() {}

type fakeProvider struct {
	inv models.Inventory
	err error
}

func (f fakeProvider) Name() string { return "fake" }

func (f fakeProvider) DiscoverGPUInstances(context.Context) (models.Inventory, error) {
	return f.inv, f.err
}

func newTestServer(t *testing.T, d Deps) *httptest.Server {
	t.Helper()
	if d.Logger == nil {
		d.Logger = quietLogger
	}
	srv := httptest.NewServer(NewServer(d).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

func startDefault(t *testing.T, srv *httptest.Server) AssessmentResponse {
	t.Helper()
	resp := do(t, srv, "POST", "/api/v1/assessments", "", nil)
	expectStatus(t, resp, http.StatusCreated)
	return decode[AssessmentResponse](t, resp)
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	srv := newTestServer(t, Deps{Auth: AuthConfig{APIKey: "secret"}})

	expectStatus(t, do(t, srv, "GET", "/api/v1/health", "", nil), http.StatusOK)
	expectStatus(t, do(t, srv, "GET", "/metrics", "", nil), http.StatusOK)
}

func TestAuth(t *testing.T) {
	const secret = "jwt-secret"
	srv := newTestServer(t, Deps{Auth: AuthConfig{APIKey: "key", JWTSecret: secret}})

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"no credentials", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"api key", map[string]string{"X-API-Key": "key"}, http.StatusOK},
		{"garbage token", map[string]string{"Authorization": "Bearer abc.def.ghi"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, do(t, srv, "GET", "/api/v1/reference", "", tt.headers), tt.want)
		})
	}

	t.Run("token signed with another secret", func(t *testing.T) {
		token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "eve"}).SignedString([]byte("other"))
		resp := do(t, srv, "GET", "/api/v1/reference", "", map[string]string{"Authorization": "Bearer " + token})
		expectStatus(t, resp, http.StatusUnauthorized)
	})
}

func TestReportRequester(t *testing.T) {
	const secret = "jwt-secret"
	srv := newTestServer(t, Deps{Auth: AuthConfig{APIKey: "key", JWTSecret: secret, DefaultRequester: "ops"}})
	headers := map[string]string{"X-API-Key": "key"}

	resp := do(t, srv, "POST", "/api/v1/assessments", "", headers)
	expectStatus(t, resp, http.StatusCreated)
	id := decode[AssessmentResponse](t, resp).ID

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"api key only", map[string]string{"X-API-Key": "key"}, "ops"},
		{"api key with user", map[string]string{"X-API-Key": "key", "X-User": "bob"}, "bob"},
		{"jwt subject", map[string]string{"Authorization": "Bearer " + token}, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, "GET", "/api/v1/assessments/"+id+"/report", "", tt.headers)
			expectStatus(t, resp, http.StatusOK)
			if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "ecoscan_report_") {
				t.Errorf("Content-Disposition = %q", cd)
			}
			rep := decode[models.Report](t, resp)
			if rep.RequestedBy != tt.want {
				t.Errorf("requestedBy = %q, want %q", rep.RequestedBy, tt.want)
			}
		})
	}
}

func TestEstimate(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp := do(t, srv, "POST", "/api/v1/estimate", `{"hardwareModel":"TPU v9","gpuCount":0}`, nil)
	expectStatus(t, resp, http.StatusOK)
	got := decode[EstimateResponse](t, resp)
	if got.Config.HardwareModel != "NVIDIA A100" || got.Config.GPUCount != 1 {
		t.Errorf("config = %+v", got.Config)
	}
	if len(got.Substitutions) != 2 {
		t.Errorf("substitutions = %+v", got.Substitutions)
	}

	expectStatus(t, do(t, srv, "POST", "/api/v1/estimate", `{"gpuCount":"eight"}`, nil), http.StatusBadRequest)
}

func TestAssessmentLifecycle(t *testing.T) {
	pub := &recordingPublisher{}
	store := history.NewMemoryStore()
	srv := newTestServer(t, Deps{History: store, Publisher: pub})

	a := startDefault(t, srv)
	if a.Source != session.SourceDefaults {
		t.Errorf("source = %s", a.Source)
	}
	if math.Abs(a.Metrics.Baseline.TotalCo2Kg-6608.5) > 0.01 || a.Metrics.Baseline.Grade != models.GradeD {
		t.Errorf("baseline metrics = %+v", a.Metrics.Baseline)
	}
	if len(a.Strategies) != 6 {
		t.Fatalf("strategies = %d", len(a.Strategies))
	}

	base := "/api/v1/assessments/" + a.ID

	resp := do(t, srv, "POST", base+"/strategies/hardware/toggle", "", nil)
	expectStatus(t, resp, http.StatusOK)
	toggled := decode[ToggleResponse](t, resp)
	if toggled.Action != strategy.ActionApply || toggled.Current.HardwareModel != "NVIDIA T4" {
		t.Errorf("toggle = %s %s", toggled.Action, toggled.Current.HardwareModel)
	}
	if toggled.Metrics.Current.TotalCo2Kg >= toggled.Metrics.Baseline.TotalCo2Kg {
		t.Error("hardware swap should reduce emissions")
	}

	resp = do(t, srv, "GET", base+"/strategies", "", nil)
	expectStatus(t, resp, http.StatusOK)
	for _, ev := range decode[[]strategy.Evaluation](t, resp) {
		if ev.ID == "hardware" && ev.Status != strategy.StatusApplied {
			t.Errorf("hardware status = %s", ev.Status)
		}
	}

	expectStatus(t, do(t, srv, "POST", base+"/strategies/warp_drive/toggle", "", nil), http.StatusNotFound)

	resp = do(t, srv, "GET", base+"/plan", "", nil)
	expectStatus(t, resp, http.StatusOK)
	plan := decode[struct {
		Steps []struct {
			StrategyID string `json:"strategyId"`
		} `json:"steps"`
	}](t, resp)
	for _, step := range plan.Steps {
		if step.StrategyID == "hardware" {
			t.Error("applied strategy must not be planned")
		}
	}

	resp = do(t, srv, "POST", base+"/save", "", nil)
	expectStatus(t, resp, http.StatusCreated)
	rec := decode[models.HistoryRecord](t, resp)
	if !strings.HasPrefix(rec.Name, "Scan_") || rec.CarbonOffsetPercent <= 0 {
		t.Errorf("record = %+v", rec)
	}
	if len(pub.saved) != 1 || pub.saved[0].ID != rec.ID {
		t.Errorf("published = %+v", pub.saved)
	}

	resp = do(t, srv, "GET", base, "", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[AssessmentResponse](t, resp); got.Current.HardwareModel != "NVIDIA T4" {
		t.Error("saving must not change the session")
	}

	expectStatus(t, do(t, srv, "DELETE", base, "", nil), http.StatusNoContent)
	expectStatus(t, do(t, srv, "GET", base, "", nil), http.StatusNotFound)
}

func TestToggleRevertRestoresBaseline(t *testing.T) {
	srv := newTestServer(t, Deps{})
	a := startDefault(t, srv)
	path := "/api/v1/assessments/" + a.ID + "/strategies/quantization/toggle"

	expectStatus(t, do(t, srv, "POST", path, "", nil), http.StatusOK)
	resp := do(t, srv, "POST", path, "", nil)
	expectStatus(t, resp, http.StatusOK)
	got := decode[ToggleResponse](t, resp)
	if got.Action != strategy.ActionRevert || got.Current.AvgLatencySeconds != a.Baseline.AvgLatencySeconds {
		t.Errorf("revert = %s latency %v", got.Action, got.Current.AvgLatencySeconds)
	}
}

func TestSetConfig(t *testing.T) {
	srv := newTestServer(t, Deps{})
	a := startDefault(t, srv)
	path := "/api/v1/assessments/" + a.ID + "/config"

	resp := do(t, srv, "PUT", path, `{"trainingRegion":"France (Nuclear)","inferenceRegion":"Atlantis"}`, nil)
	expectStatus(t, resp, http.StatusOK)
	got := decode[AssessmentResponse](t, resp)
	if got.Current.TrainingRegion != "France (Nuclear)" || got.Current.InferenceRegion != "Global Avg" {
		t.Errorf("current = %+v", got.Current)
	}
	if got.Current.GPUCount != a.Current.GPUCount {
		t.Error("fields missing from the body should be kept")
	}
	if got.Baseline.TrainingRegion != a.Baseline.TrainingRegion {
		t.Error("baseline changed")
	}
	if len(got.Substitutions) != 1 {
		t.Errorf("substitutions = %+v", got.Substitutions)
	}

	expectStatus(t, do(t, srv, "PUT", path, `not json`, nil), http.StatusBadRequest)
	expectStatus(t, do(t, srv, "PUT", "/api/v1/assessments/missing/config", `{}`, nil), http.StatusNotFound)
}

func TestOversizedConfigStaysServable(t *testing.T) {
	srv := newTestServer(t, Deps{})
	a := startDefault(t, srv)
	base := "/api/v1/assessments/" + a.ID

	resp := do(t, srv, "PUT", base+"/config", `{"monthlyRequests":1e308,"avgLatencySeconds":1e308}`, nil)
	expectStatus(t, resp, http.StatusOK)
	got := decode[AssessmentResponse](t, resp)
	if got.Current.MonthlyRequests != session.MaxMonthlyRequests || got.Current.AvgLatencySeconds != session.MaxAvgLatencySeconds {
		t.Errorf("current = %+v", got.Current)
	}
	if len(got.Substitutions) != 2 {
		t.Errorf("substitutions = %+v", got.Substitutions)
	}

	expectStatus(t, do(t, srv, "POST", base+"/save", "", nil), http.StatusCreated)
	expectStatus(t, do(t, srv, "GET", "/api/v1/history", "", nil), http.StatusOK)
	expectStatus(t, do(t, srv, "GET", "/api/v1/portfolio", "", nil), http.StatusOK)
}

func TestImport(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp := do(t, srv, "POST", "/api/v1/assessments/import", "hardwareModel: NVIDIA V100\ngpuCount: 4\n", nil)
	expectStatus(t, resp, http.StatusCreated)
	got := decode[AssessmentResponse](t, resp)
	if got.Source != session.SourceImport || got.Baseline.HardwareModel != "NVIDIA V100" || got.ImportError != "" {
		t.Errorf("import = %+v", got)
	}

	resp = do(t, srv, "POST", "/api/v1/assessments/import", "[1, 2, 3]", nil)
	expectStatus(t, resp, http.StatusCreated)
	got = decode[AssessmentResponse](t, resp)
	if got.Source != session.SourceFallback || got.ImportError == "" || got.Baseline.GPUCount != 16 {
		t.Errorf("fallback = %+v", got)
	}
}

func TestDiscover(t *testing.T) {
	expectStatus(t, do(t, newTestServer(t, Deps{}), "POST", "/api/v1/assessments/discover", "", nil), http.StatusServiceUnavailable)

	failing := newTestServer(t, Deps{Provider: fakeProvider{err: errors.New("expired credentials")}})
	expectStatus(t, do(t, failing, "POST", "/api/v1/assessments/discover", "", nil), http.StatusBadGateway)

	empty := newTestServer(t, Deps{Provider: fakeProvider{inv: models.Inventory{Provider: "fake", Region: "us-east-1"}}})
	expectStatus(t, do(t, empty, "POST", "/api/v1/assessments/discover", "", nil), http.StatusUnprocessableEntity)

	srv := newTestServer(t, Deps{Provider: fakeProvider{inv: models.Inventory{
		Provider: "fake",
		Region:   "eu-west-3",
		Instances: []models.GPUInstance{
			{ID: "i-1", InstanceType: "g4dn.xlarge", GPUCount: 1},
			{ID: "i-2", InstanceType: "g4dn.12xlarge", GPUCount: 4},
		},
	}}})
	resp := do(t, srv, "POST", "/api/v1/assessments/discover", "", nil)
	expectStatus(t, resp, http.StatusCreated)
	got := decode[AssessmentResponse](t, resp)
	if got.Source != session.SourceDiscover || got.Baseline.HardwareModel != "NVIDIA T4" ||
		got.Baseline.GPUCount != 5 || got.Baseline.TrainingRegion != "France (Nuclear)" {
		t.Errorf("discovered = %+v", got.Baseline)
	}
}

func TestHistoryLibrary(t *testing.T) {
	srv := newTestServer(t, Deps{})
	a := startDefault(t, srv)

	resp := do(t, srv, "POST", "/api/v1/assessments/"+a.ID+"/save", `{"name":"  First  "}`, nil)
	expectStatus(t, resp, http.StatusCreated)
	first := decode[models.HistoryRecord](t, resp)
	if first.Name != "First" {
		t.Errorf("name = %q", first.Name)
	}
	expectStatus(t, do(t, srv, "POST", "/api/v1/assessments/"+a.ID+"/save", `{"name":"Second"}`, nil), http.StatusCreated)

	resp = do(t, srv, "GET", "/api/v1/history", "", nil)
	expectStatus(t, resp, http.StatusOK)
	list := decode[[]models.HistoryRecord](t, resp)
	if len(list) != 2 || list[0].Name != "Second" {
		t.Fatalf("history = %+v", list)
	}

	path := "/api/v1/history/" + first.ID
	resp = do(t, srv, "PATCH", path, `{"name":"Renamed"}`, nil)
	expectStatus(t, resp, http.StatusOK)
	if got := decode[models.HistoryRecord](t, resp); got.Name != "Renamed" || got.CarbonOffsetPercent != first.CarbonOffsetPercent {
		t.Errorf("renamed = %+v", got)
	}
	expectStatus(t, do(t, srv, "PATCH", path, `{"name":"   "}`, nil), http.StatusBadRequest)
	expectStatus(t, do(t, srv, "GET", "/api/v1/history/unknown", "", nil), http.StatusNotFound)

	resp = do(t, srv, "POST", path+"/open", "", nil)
	expectStatus(t, resp, http.StatusCreated)
	opened := decode[AssessmentResponse](t, resp)
	if opened.Source != session.SourceHistory || opened.ID == a.ID {
		t.Errorf("opened = %+v", opened)
	}
	if opened.Baseline.HardwareModel != first.ConfigAtSave.HardwareModel || opened.Current.GPUCount != first.ConfigAtSave.GPUCount {
		t.Error("opened session should start from configAtSave")
	}
}

func TestPortfolio(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp := do(t, srv, "GET", "/api/v1/portfolio", "", nil)
	expectStatus(t, resp, http.StatusOK)
	got := decode[PortfolioResponse](t, resp)
	if got.Summary.ProjectCount != 0 || got.Trend != nil || got.TrendStatus != ml.ErrInsufficientData.Error() {
		t.Errorf("empty portfolio = %+v", got)
	}

	a := startDefault(t, srv)
	expectStatus(t, do(t, srv, "POST", "/api/v1/assessments/"+a.ID+"/strategies/training_region/toggle", "", nil), http.StatusOK)
	expectStatus(t, do(t, srv, "POST", "/api/v1/assessments/"+a.ID+"/save", "", nil), http.StatusCreated)

	resp = do(t, srv, "GET", "/api/v1/portfolio", "", nil)
	expectStatus(t, resp, http.StatusOK)
	got = decode[PortfolioResponse](t, resp)
	if got.Summary.ProjectCount != 1 || got.Summary.TotalCo2SavedKg <= 0 {
		t.Errorf("summary = %+v", got.Summary)
	}
}

func TestSaveSurvivesPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	store := history.NewMemoryStore()
	srv := newTestServer(t, Deps{History: store, Publisher: pub})
	a := startDefault(t, srv)

	expectStatus(t, do(t, srv, "POST", "/api/v1/assessments/"+a.ID+"/save", "", nil), http.StatusCreated)
	records, _ := store.List(context.Background())
	if len(records) != 1 {
		t.Fatalf("records = %d", len(records))
	}
}

func TestActiveSessionsGaugeFollowsEviction(t *testing.T) {
	sessions := session.NewManager(session.ManagerConfig{
		IdleTimeout:     20 * time.Millisecond,
		CleanupInterval: 5 * time.Millisecond,
	}, quietLogger)
	srv := newTestServer(t, Deps{Sessions: sessions})
	startDefault(t, srv)

	scrape := func() string {
		resp := do(t, srv, "GET", "/metrics", "", nil)
		expectStatus(t, resp, http.StatusOK)
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}
	if !strings.Contains(scrape(), "ecoscan_active_sessions 1") {
		t.Fatal("gauge should count the new session")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sessions.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for sessions.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sessions.Len() != 0 {
		t.Fatal("idle session was not evicted")
	}
	if body := scrape(); !strings.Contains(body, "ecoscan_active_sessions 0") {
		t.Errorf("gauge not updated after eviction:\n%s", body)
	}
}

func TestMetricsExposition(t *testing.T) {
	srv := newTestServer(t, Deps{})
	startDefault(t, srv)

	resp := do(t, srv, "GET", "/metrics", "", nil)
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"ecoscan_assessments_started_total", "ecoscan_active_sessions 1"} {
		if !bytes.Contains(body, []byte(name)) {
			t.Errorf("metrics missing %q", name)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrNotFound, http.StatusNotFound},
		{history.ErrNotFound, http.StatusNotFound},
		{strategy.ErrUnknown, http.StatusNotFound},
		{history.ErrEmptyName, http.StatusBadRequest},
		{errInvalidPayload, http.StatusBadRequest},
		{errDiscoveryDisabled, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
