package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"pillbot/internal/dose"
	"pillbot/internal/storage"
	"pillbot/pkg/clock"
	logx "pillbot/pkg/logx"
)

var (
	secret = []byte("test-secret")
	now    = time.Date(2024, 3, 5, 8, 30, 0, 0, time.UTC)
)

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "api")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	s := New(Deps{Store: st, Clock: clock.Fixed(now)}, logx.Nop())
	ts := httptest.NewServer(s.Handler(cfg.withDefaults()))
	t.Cleanup(ts.Close)
	return ts, st
}

func do(t *testing.T, method, url, token, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var buf strings.Builder
	dec := json.NewDecoder(resp.Body)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err == nil {
		buf.Write(raw)
	}
	return resp, []byte(buf.String())
}

func token(t *testing.T, owner int64) string {
	t.Helper()
	tok, err := IssueToken(secret, owner, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

func TestHealthNeedsNoAuth(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, Config{JWTSecret: string(secret)})

	resp, body := do(t, http.MethodGet, ts.URL+"/healthz", "", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"ok"`) {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing request id")
	}
}

func TestAuthAndOwnerScope(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, Config{JWTSecret: string(secret)})
	url := ts.URL + "/api/v1/owners/7/schedules"

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{name: "missing", token: "", want: http.StatusUnauthorized},
		{name: "garbage", token: "not-a-jwt", want: http.StatusUnauthorized},
		{name: "other owner", token: token(t, 8), want: http.StatusForbidden},
		{name: "owner", token: token(t, 7), want: http.StatusOK},
	}
	for _, tc := range cases {
		resp, body := do(t, http.MethodGet, url, tc.token, "")
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: status=%d want %d body=%s", tc.name, resp.StatusCode, tc.want, body)
		}
	}

	expired, err := IssueToken(secret, 7, time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if resp, _ := do(t, http.MethodGet, url, expired, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expired token: status=%d", resp.StatusCode)
	}
	wrongKey, _ := IssueToken([]byte("other"), 7, time.Hour, time.Now())
	if resp, _ := do(t, http.MethodGet, url, wrongKey, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong key: status=%d", resp.StatusCode)
	}
}

func TestOwnerZeroSeesNothing(t *testing.T) {
	t.Parallel()

	if _, err := IssueToken(secret, dose.AllOwners, time.Hour, time.Now()); !errors.Is(err, dose.ErrInvalidOwner) {
		t.Fatalf("IssueToken(0) err=%v", err)
	}
	// A token signed by hand for subject 0 must not authenticate.
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "0",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for _, cfg := range []Config{{JWTSecret: string(secret)}, {}} {
		ts, st := newTestServer(t, cfg)
		s := dose.Schedule{OwnerID: 7, Name: "Iron", Start: dose.Date{Year: 2024, Month: time.March, Day: 1},
			Phases: []dose.Phase{{Days: dose.OpenEnded, Dose: "1", Time: dose.TimeOfDay{Hour: 9}}}}
		if err := st.InsertSchedule(context.Background(), s); err != nil {
			t.Fatalf("insert: %v", err)
		}
		tok := ""
		if cfg.JWTSecret != "" {
			tok = forged
		}
		for _, path := range []string{"/schedules", "/today", "/pending"} {
			resp, body := do(t, http.MethodGet, ts.URL+"/api/v1/owners/0"+path, tok, "")
			if resp.StatusCode == http.StatusOK || strings.Contains(string(body), "Iron") {
				t.Fatalf("secret=%t %s: status=%d body=%s", cfg.JWTSecret != "", path, resp.StatusCode, body)
			}
		}
		if resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/owners/-7/schedules", tok, ""); resp.StatusCode == http.StatusOK {
			t.Fatalf("negative owner: status=%d", resp.StatusCode)
		}
	}
}

func TestScheduleLifecycle(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, Config{JWTSecret: string(secret)})
	tok := token(t, 7)
	base := ts.URL + "/api/v1/owners/7"

	add := `{"name":"Pred","start_date":"2024-03-01","schedule":[{"duration_days":3,"dosage":"20mg","time":"08:00"},{"duration_days":5,"dosage":"10mg","time":"08:00"}]}`
	if resp, body := do(t, http.MethodPost, base+"/schedules", tok, add); resp.StatusCode != http.StatusCreated {
		t.Fatalf("add: status=%d body=%s", resp.StatusCode, body)
	}
	if resp, body := do(t, http.MethodPost, base+"/schedules", tok, add); resp.StatusCode != http.StatusConflict || !strings.Contains(string(body), "already exists") {
		t.Fatalf("duplicate add: status=%d body=%s", resp.StatusCode, body)
	}
	if resp, _ := do(t, http.MethodPost, base+"/schedules", tok, `{"name":"","start_date":"x","schedule":[]}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid add: status=%d", resp.StatusCode)
	}

	resp, body := do(t, http.MethodGet, base+"/schedules", tok, "")
	var list []scheduleJSON
	if err := json.Unmarshal(body, &list); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status=%d err=%v body=%s", resp.StatusCode, err, body)
	}
	if len(list) != 1 || list[0].Active == nil || list[0].Active.Dosage != "10mg" {
		t.Fatalf("list=%+v", list)
	}

	resp, body = do(t, http.MethodDelete, base+"/schedules/Pred", tok, "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"deleted":1`) {
		t.Fatalf("delete: status=%d body=%s", resp.StatusCode, body)
	}
	if resp, _ := do(t, http.MethodDelete, base+"/schedules/Pred", tok, ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: status=%d", resp.StatusCode)
	}
}

func TestPendingAndTaken(t *testing.T) {
	t.Parallel()
	ts, st := newTestServer(t, Config{JWTSecret: string(secret)})
	tok := token(t, 7)
	base := ts.URL + "/api/v1/owners/7"
	start := dose.Date{Year: 2024, Month: time.March, Day: 1}
	for _, s := range []dose.Schedule{
		{OwnerID: 7, Name: "Iron", Start: start, Phases: []dose.Phase{{Days: dose.OpenEnded, Dose: "1", Time: dose.TimeOfDay{Hour: 9}}}},
		{OwnerID: 7, Name: "Zinc", Start: start, Phases: []dose.Phase{{Days: 2, Dose: "1", Time: dose.TimeOfDay{Hour: 9}}}},
	} {
		if err := st.InsertSchedule(context.Background(), s); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	_, body := do(t, http.MethodGet, base+"/pending", tok, "")
	var items []itemJSON
	if err := json.Unmarshal(body, &items); err != nil || len(items) != 1 || items[0].Name != "Iron" {
		t.Fatalf("pending=%s err=%v", body, err)
	}
	_, body = do(t, http.MethodGet, base+"/pending?at=2024-03-02T10:00:00Z", tok, "")
	if err := json.Unmarshal(body, &items); err != nil || len(items) != 2 {
		t.Fatalf("pending at=%s err=%v", body, err)
	}
	if resp, _ := do(t, http.MethodGet, base+"/pending?at=yesterday", tok, ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad at: status=%d", resp.StatusCode)
	}

	if resp, body := do(t, http.MethodPost, base+"/taken", tok, `{"name":"Iron","time":"09:00"}`); resp.StatusCode != http.StatusCreated {
		t.Fatalf("taken: status=%d body=%s", resp.StatusCode, body)
	}
	if resp, _ := do(t, http.MethodPost, base+"/taken", tok, `{"name":"Iron","time":"09:00"}`); resp.StatusCode != http.StatusConflict {
		t.Fatalf("second taken: status=%d", resp.StatusCode)
	}
	_, body = do(t, http.MethodGet, base+"/pending", tok, "")
	if err := json.Unmarshal(body, &items); err != nil || len(items) != 0 {
		t.Fatalf("pending after taken=%s", body)
	}
	_, body = do(t, http.MethodGet, base+"/today", tok, "")
	if err := json.Unmarshal(body, &items); err != nil || len(items) != 1 || !items[0].Taken {
		t.Fatalf("today=%s", body)
	}
}

func TestPprofBehindAuth(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, Config{JWTSecret: string(secret), Pprof: true})

	if resp, _ := do(t, http.MethodGet, ts.URL+"/debug/pprof/", "", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated pprof: status=%d", resp.StatusCode)
	}
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/debug/pprof/", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, 1))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("pprof: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pprof: status=%d", resp.StatusCode)
	}
}

func TestCheckBind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		cfg Config
		ok  bool
	}{
		{cfg: Config{Addr: "127.0.0.1:0"}, ok: true},
		{cfg: Config{Addr: "localhost:8088"}, ok: true},
		{cfg: Config{Addr: "[::1]:8088"}, ok: true},
		{cfg: Config{Addr: "0.0.0.0:8088"}, ok: false},
		{cfg: Config{Addr: "0.0.0.0:8088", JWTSecret: "s"}, ok: true},
		{cfg: Config{Addr: ":8088", AllowInsecure: true}, ok: true},
	}
	for _, tc := range cases {
		if err := CheckBind(tc.cfg); (err == nil) != tc.ok {
			t.Fatalf("CheckBind(%+v)=%v want ok=%v", tc.cfg, err, tc.ok)
		}
	}
}

func TestApplyStartsAndStops(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "api")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	s := New(Deps{Store: st}, logx.Nop())
	ctx := context.Background()

	if err := s.Apply(ctx, Config{Enabled: true, Addr: "0.0.0.0:0"}); err == nil {
		t.Fatalf("expected bind refusal")
	}
	if err := s.Apply(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatalf("no listen address")
	}
	resp, err := http.Get("http://" + addr + "/api/v1/owners/1/schedules")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unauthenticated loopback api: status=%d", resp.StatusCode)
	}
	s.Stop(ctx)
	if s.Addr() != "" {
		t.Fatalf("server still running")
	}
}
