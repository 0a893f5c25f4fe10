package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/propelhealth/onboardflow/internal/models"
	"github.com/propelhealth/onboardflow/internal/store"
	"github.com/propelhealth/onboardflow/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	mem := store.NewInMemoryStore()
	srv := NewServer(testutil.NewTestSchema(), testutil.NewTestReferenceData(), mem, mem, nil,
		WithSaveWindow(time.Hour))
	t.Cleanup(srv.closeAllSessions)
	return srv, srv.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// createSession starts a session with a submitter identity and returns its id.
func createSession(t *testing.T, handler http.Handler) string {
	t.Helper()
	rr := doJSON(t, handler, http.MethodPost, "/sessions", map[string]interface{}{
		"client_key": "test-device",
		"identity":   map[string]string{"email": "alice@clinic.org", "id": "user-1"},
	})
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create session")
	resp := testutil.AssertJSONResponse(t, rr, "ok")

	result, _ := resp["result"].(map[string]interface{})
	session, _ := result["session"].(map[string]interface{})
	id, _ := session["session_id"].(string)
	if id == "" {
		t.Fatalf("no session id in response: %v", resp)
	}
	return id
}

func setAnswers(t *testing.T, handler http.Handler, id string, values map[string]interface{}) {
	t.Helper()
	rr := doJSON(t, handler, http.MethodPost, "/sessions/"+id+"/answers", map[string]interface{}{"values": values})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "set answers")
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestServer(t)
	rr := doJSON(t, handler, http.MethodGet, "/health", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result, _ := resp["result"].(map[string]interface{})
	if result["status"] != "healthy" {
		t.Errorf("health result = %v", result)
	}
}

func TestSchemaAndReferenceDataEndpoints(t *testing.T) {
	_, handler := newTestServer(t)

	rr := doJSON(t, handler, http.MethodGet, "/schema", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "schema")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result, _ := resp["result"].(map[string]interface{})
	if result["form_id"] != "clinic_onboarding_test" {
		t.Errorf("schema form_id = %v", result["form_id"])
	}

	rr = doJSON(t, handler, http.MethodGet, "/reference-data", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "reference data")
	resp = testutil.AssertJSONResponse(t, rr, "ok")
	result, _ = resp["result"].(map[string]interface{})
	if programs, ok := result["programs"].([]interface{}); !ok || len(programs) != 3 {
		t.Errorf("reference programs = %v", result["programs"])
	}
}

func TestCreateSessionReportsLocalDraft(t *testing.T) {
	srv, handler := newTestServer(t)

	rr := doJSON(t, handler, http.MethodPost, "/sessions", nil)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create with empty body")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result, _ := resp["result"].(map[string]interface{})
	if result["has_local_draft"] != false {
		t.Errorf("fresh device should report no local draft: %v", result)
	}

	// Seed the device's slot, then create another session with the same key.
	if err := srv.local.WriteSnapshot("onboardflow_draft:device-2", models.DraftSnapshot{
		Answers:     models.AnswerSet{"clinic_name": "Mercy Health"},
		CurrentStep: 1,
		SavedAt:     time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seeding snapshot: %v", err)
	}
	rr = doJSON(t, handler, http.MethodPost, "/sessions", map[string]interface{}{"client_key": "device-2"})
	resp = testutil.AssertJSONResponse(t, rr, "ok")
	result, _ = resp["result"].(map[string]interface{})
	if result["has_local_draft"] != true {
		t.Errorf("seeded device should report a local draft: %v", result)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	_, handler := newTestServer(t)
	rr := doJSON(t, handler, http.MethodGet, "/sessions/no-such-session", nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown session")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestAnswersAndNextFlow(t *testing.T) {
	_, handler := newTestServer(t)
	id := createSession(t, handler)

	// Advancing without the required program answer fails validation.
	rr := doJSON(t, handler, http.MethodPost, "/sessions/"+id+"/next", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "blocked next")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result, _ := resp["result"].(map[string]interface{})
	validation, _ := result["validation"].(map[string]interface{})
	if validation["is_valid"] != false {
		t.Fatalf("expected blocked advance: %v", validation)
	}
	session, _ := result["session"].(map[string]interface{})
	if session["current_step_index"] != float64(0) {
		t.Errorf("blocked advance moved the session: %v", session["current_step_index"])
	}

	setAnswers(t, handler, id, map[string]interface{}{"program": "GRX"})
	rr = doJSON(t, handler, http.MethodPost, "/sessions/"+id+"/next", nil)
	resp = testutil.AssertJSONResponse(t, rr, "ok")
	result, _ = resp["result"].(map[string]interface{})
	session, _ = result["session"].(map[string]interface{})
	if session["current_step_index"] != float64(1) {
		t.Errorf("advance did not move the session: %v", session["current_step_index"])
	}

	rr = doJSON(t, handler, http.MethodPost, "/sessions/"+id+"/previous", nil)
	resp = testutil.AssertJSONResponse(t, rr, "ok")
	session, _ = resp["result"].(map[string]interface{})
	if session["current_step_index"] != float64(0) {
		t.Errorf("previous did not move back: %v", session["current_step_index"])
	}
}

func TestAnswersRejectsBadRequests(t *testing.T) {
	_, handler := newTestServer(t)
	id := createSession(t, handler)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/answers", strings.NewReader("not json"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "malformed body")

	rr = doJSON(t, handler, http.MethodPost, "/sessions/"+id+"/answers", map[string]interface{}{"values": map[string]interface{}{}})
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "empty values")
}

func TestJumpBeyondReachIsForbidden(t *testing.T) {
	_, handler := newTestServer(t)
	id := createSession(t, handler)

	rr := doJSON(t, handler, http.MethodPost, "/sessions/"+id+"/jump", map[string]int{"index": 3})
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "jump past furthest")
	testutil.AssertJSONResponse(t, rr, "error")

	// Jumping to the current step is always allowed.
	rr = doJSON(t, handler, http.MethodPost, "/sessions/"+id+"/jump", map[string]int{"index": 0})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "jump to reached step")
}

func TestResumeVerificationFailureIsForbidden(t *testing.T) {
	_, handler := newTestServer(t)
	id := createSession(t, handler)

	rr := doJSON(t, handler, http.MethodPost, "/sessions/"+id+"/resume", map[string]string{
		"draft_id":      "no-such-draft",
		"contact_email": "someone@clinic.org",
	})
	testutil.AssertHTTPStatus(t, http.StatusForbidden, rr.Code, "resume unverified")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestListDraftsRequiresEmail(t *testing.T) {
	srv, handler := newTestServer(t)
	id := createSession(t, handler)

	rr := doJSON(t, handler, http.MethodGet, "/sessions/"+id+"/drafts?email=", nil)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing email")

	// Seed a remote draft for the listing path.
	if _, err := srv.remote.UpsertDraft(models.DraftRecord{
		OwnerEmail: "bob@clinic.org",
		Status:     models.DraftStatusDraft,
		Snapshot: models.DraftSnapshot{
			Answers: models.AnswerSet{"clinic_name": "Mercy Health"},
			SavedAt: time.Now().UTC(),
		},
	}); err != nil {
		t.Fatalf("seeding draft: %v", err)
	}
	rr = doJSON(t, handler, http.MethodGet, "/sessions/"+id+"/drafts?email=bob@clinic.org", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list drafts")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	if summaries, ok := resp["result"].([]interface{}); !ok || len(summaries) != 1 {
		t.Errorf("draft listing = %v", resp["result"])
	}
}

func TestExportImportEndpoints(t *testing.T) {
	_, handler := newTestServer(t)
	id := createSession(t, handler)
	setAnswers(t, handler, id, map[string]interface{}{"program": "GRX", "clinic_name": "Mercy Health"})

	rr := doJSON(t, handler, http.MethodGet, "/sessions/"+id+"/export", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "export")
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "onboarding-draft.json") {
		t.Errorf("content disposition = %q", cd)
	}
	exported := rr.Body.Bytes()

	// A fresh session imports the file.
	other := createSession(t, handler)
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+other+"/import", bytes.NewReader(exported))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "import")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	session, _ := resp["result"].(map[string]interface{})
	answers, _ := session["answers"].(map[string]interface{})
	if answers["clinic_name"] != "Mercy Health" {
		t.Errorf("imported answers = %v", answers)
	}

	// Garbage is rejected with a client error.
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+other+"/import", strings.NewReader("not a draft"))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "malformed import")
}

func TestForegroundAndRetrySync(t *testing.T) {
	_, handler := newTestServer(t)
	id := createSession(t, handler)

	rr := doJSON(t, handler, http.MethodPost, "/sessions/"+id+"/foreground", map[string]bool{"foreground": false})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "background")
	rr = doJSON(t, handler, http.MethodPost, "/sessions/"+id+"/foreground", map[string]bool{"foreground": true})
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "foreground")
	rr = doJSON(t, handler, http.MethodPost, "/sessions/"+id+"/retry-sync", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "retry sync")
}

// fillFullForm answers every required question in the test schema.
func fillFullForm(t *testing.T, handler http.Handler, id string) {
	t.Helper()
	setAnswers(t, handler, id, map[string]interface{}{
		"program":             "GRX",
		"clinic_name":         "Mercy Health",
		"champion_is_primary": true,
		"clinic_champion":     testutil.ValidContact("Dr. Reyes", "reyes@mercy.org"),
		"ordering_providers":  []interface{}{testutil.ValidProviderItem("Dr. Chen")},
	})
}

func TestSubmitFlow(t *testing.T) {
	srv, handler := newTestServer(t)
	id := createSession(t, handler)
	fillFullForm(t, handler, id)

	rr := doJSON(t, handler, http.MethodPost, "/sessions/"+id+"/submit", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "submit")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	doc, _ := resp["result"].(map[string]interface{})
	if doc["program"] != "GRX" {
		t.Errorf("submission document program = %v", doc["program"])
	}
	if doc["schema_version"] != "1.0" {
		t.Errorf("submission schema version = %v", doc["schema_version"])
	}

	// The stored record flipped to submitted.
	coord := srv.coordinatorFor(id)
	stored, err := srv.remote.GetDraftByID(coord.DraftID())
	if err != nil || stored == nil {
		t.Fatalf("submitted record missing: %v, %v", stored, err)
	}
	if stored.Status != models.DraftStatusSubmitted {
		t.Errorf("stored status = %q", stored.Status)
	}
}

func TestSubmitWithoutEmailIsRejected(t *testing.T) {
	_, handler := newTestServer(t)

	// No identity and no contact answers means no submitter email.
	rr := doJSON(t, handler, http.MethodPost, "/sessions", nil)
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result, _ := resp["result"].(map[string]interface{})
	session, _ := result["session"].(map[string]interface{})
	id, _ := session["session_id"].(string)

	rr = doJSON(t, handler, http.MethodPost, "/sessions/"+id+"/submit", nil)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "submit without email")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestStartOverResetsSession(t *testing.T) {
	_, handler := newTestServer(t)
	id := createSession(t, handler)
	setAnswers(t, handler, id, map[string]interface{}{"program": "GRX", "clinic_name": "Mercy Health"})

	rr := doJSON(t, handler, http.MethodPost, "/sessions/"+id+"/start-over", nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "start over")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	session, _ := resp["result"].(map[string]interface{})
	answers, _ := session["answers"].(map[string]interface{})
	if len(answers) != 0 {
		t.Errorf("start over kept answers: %v", answers)
	}
	if session["current_step_index"] != float64(0) {
		t.Errorf("start over kept position: %v", session["current_step_index"])
	}
}

func TestCloseSession(t *testing.T) {
	_, handler := newTestServer(t)
	id := createSession(t, handler)

	rr := doJSON(t, handler, http.MethodDelete, "/sessions/"+id, nil)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "close session")

	rr = doJSON(t, handler, http.MethodGet, "/sessions/"+id, nil)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "closed session is gone")
}
