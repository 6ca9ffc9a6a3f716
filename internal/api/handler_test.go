package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/asthmacare/companion/internal/conversation"
	"github.com/asthmacare/companion/internal/domain"
	"github.com/asthmacare/companion/internal/gateway"
	"github.com/asthmacare/companion/internal/session"
	"github.com/go-chi/chi/v5"
)

type fakeGateway struct {
	loginErr   error
	historyErr error
	records    []domain.HistoryRecord
}

func (f *fakeGateway) Login(_ context.Context, _, _ string) error { return f.loginErr }

func (f *fakeGateway) Signup(_ context.Context, _, _, _ string) error { return nil }

func (f *fakeGateway) Logout(_ context.Context) error { return errors.New("backend down") }

func (f *fakeGateway) CheckSession(_ context.Context) (domain.Session, error) {
	return domain.Session{}, nil
}

func (f *fakeGateway) SubmitSymptoms(_ context.Context, _ domain.SymptomReport, _ string) (domain.AssessmentResult, error) {
	return domain.AssessmentResult{}, errors.New("not implemented")
}

func (f *fakeGateway) FetchHistory(_ context.Context, _ string) ([]domain.HistoryRecord, error) {
	return f.records, f.historyErr
}

type memHints struct{ hint string }

func (m *memHints) IdentityHint(_ context.Context) (string, error) { return m.hint, nil }

func (m *memHints) SaveIdentityHint(_ context.Context, u string) error {
	m.hint = u
	return nil
}

func (m *memHints) ClearIdentityHint(_ context.Context) error {
	m.hint = ""
	return nil
}

func newTestRouter(t *testing.T, gw *fakeGateway, loggedIn bool) chi.Router {
	t.Helper()

	sessions := session.NewManager(gw, &memHints{}, nil)
	if loggedIn {
		if err := sessions.Login(context.Background(), "maya", "secret"); err != nil {
			t.Fatalf("test login failed: %v", err)
		}
	}
	// Long delays keep scheduled replies pending for the duration of a test.
	engine := conversation.NewEngine(conversation.Config{
		ReplyDelay:    time.Minute,
		FormOpenDelay: time.Minute,
	}, sessions, gw, nil)
	handler := NewHandler(sessions, engine, gw, nil)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestLoginRejectionSurfacesServerReason(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{loginErr: &gateway.RejectionError{Reason: "Invalid username or password"}}
	r := newTestRouter(t, gw, false)

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"username": "maya", "password": "wrong"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error"] != "Invalid username or password" {
		t.Errorf("error = %q, want the server's verbatim reason", body["error"])
	}
}

func TestLoginTransportFailureIsBadGateway(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{loginErr: errors.New("connection refused")}
	r := newTestRouter(t, gw, false)

	req := httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"username": "maya", "password": "secret"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestLogoutSucceedsDespiteRemoteFailure(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeGateway{}, true)

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var sess domain.Session
	if err := json.NewDecoder(w.Body).Decode(&sess); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if sess.IsAuthenticated {
		t.Errorf("session still authenticated after logout: %+v", sess)
	}
}

func TestSendMessageRejectsBlankContent(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeGateway{}, false)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/messages",
		strings.NewReader(`{"content": "   "}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSendMessageAccepted(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeGateway{}, false)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/messages",
		strings.NewReader(`{"content": "hello"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/chat/messages", nil)
	listW := httptest.NewRecorder()
	r.ServeHTTP(listW, listReq)

	var body struct {
		Messages []domain.Message `json:"messages"`
		Typing   int              `json:"typing"`
	}
	if err := json.NewDecoder(listW.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Greeting plus the user message; the reply is still pending.
	if len(body.Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(body.Messages))
	}
	if body.Typing != 1 {
		t.Errorf("typing = %d, want 1", body.Typing)
	}
}

func TestDashboardRequiresLogin(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeGateway{}, false)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "log in") {
		t.Errorf("expected a log-in prompt, got %s", w.Body.String())
	}
}

func TestDashboardDistinguishesExpiredSession(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{historyErr: gateway.ErrUnauthenticated}
	r := newTestRouter(t, gw, true)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for an expired session", w.Code)
	}
}

func TestDashboardTransportFailure(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{historyErr: errors.New("backend down")}
	r := newTestRouter(t, gw, true)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 for a transport failure", w.Code)
	}
	if !strings.Contains(w.Body.String(), "failed to load") {
		t.Errorf("expected a load-failure message, got %s", w.Body.String())
	}
}

func TestDashboardAggregates(t *testing.T) {
	t.Parallel()

	sev1, sev3 := 1, 3
	ts := "2024-01-01T10:00:00"
	gw := &fakeGateway{records: []domain.HistoryRecord{
		{Username: "maya", Symptoms: []int{1, 0, 0, 0, 0, 0}, Severity: &sev1, Timestamp: &ts},
		{Username: "maya", Symptoms: []int{1, 1, 1, 0, 0, 0}, Severity: &sev3, Timestamp: &ts},
		{Username: "liam", Symptoms: []int{1, 0, 0, 0, 0, 0}, Severity: &sev1, Timestamp: &ts},
	}}
	r := newTestRouter(t, gw, true)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Empty      bool                   `json:"empty"`
		Records    []domain.HistoryRecord `json:"records"`
		Comparison *struct {
			Previous int `json:"previous"`
			Latest   int `json:"latest"`
		} `json:"comparison"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Empty {
		t.Error("dashboard reported empty with two valid records")
	}
	if len(body.Records) != 2 {
		t.Errorf("got %d records, want 2 (only maya's)", len(body.Records))
	}
	if body.Comparison == nil || body.Comparison.Previous != 1 || body.Comparison.Latest != 3 {
		t.Errorf("comparison = %+v, want previous=1 latest=3", body.Comparison)
	}
}

func TestSubmitAssessmentWithoutOpenFormConflicts(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeGateway{}, true)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/assessment",
		strings.NewReader(`{"dry_cough": true, "age": "34", "gender": "female"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 when no form is open", w.Code)
	}
}
