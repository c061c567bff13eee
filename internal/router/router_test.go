package router

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"piiquante/internal/config"
	"piiquante/internal/models"
	"piiquante/internal/services"
	"piiquante/internal/store"
	"piiquante/internal/testutil"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	engine    *gin.Engine
	imagesDir string
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		JWT:    config.JWTConfig{Secret: "router-test-secret", ExpireHours: 1},
		Images: config.ImagesConfig{Dir: t.TempDir(), MaxBytes: 1 << 20},
		CORS:   config.CORSConfig{AllowedOrigin: "*"},
		Vote:   config.VoteConfig{MaxRetries: 5},
		Cache:  config.CacheConfig{Size: 100, TTL: time.Minute},
	}
	logger := testutil.Logger()
	conn := testutil.SetupTestDB(t)

	auth, err := services.NewAuthService(store.NewUserStore(conn, logger), cfg.JWT.Secret, cfg.TokenTTL(), bcrypt.MinCost, logger)
	if err != nil {
		t.Fatal(err)
	}
	images, err := services.NewImageStore(cfg.Images.Dir, cfg.Images.MaxBytes, logger)
	if err != nil {
		t.Fatal(err)
	}
	catalog, err := services.NewSauceCatalog(store.NewSauceStore(conn, logger), images, cfg.Vote, cfg.Cache, logger)
	if err != nil {
		t.Fatal(err)
	}

	r := New(Deps{Config: cfg, Auth: auth, Catalog: catalog, Images: images, Logger: logger})
	return &testServer{engine: r, imagesDir: cfg.Images.Dir}
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) doJSON(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, method, path, token, strings.NewReader(body), "application/json")
}

// login signs a user up and returns its id and token.
func (s *testServer) login(t *testing.T, email string) (string, string) {
	t.Helper()
	creds := `{"email":"` + email + `","password":"secret1"}`
	if w := s.doJSON(t, http.MethodPost, "/api/auth/signup", "", creds); w.Code != http.StatusCreated {
		t.Fatalf("signup %s: status = %d body = %s", email, w.Code, w.Body)
	}
	w := s.doJSON(t, http.MethodPost, "/api/auth/login", "", creds)
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status = %d body = %s", email, w.Code, w.Body)
	}
	var resp struct {
		UserID string `json:"userId"`
		Token  string `json:"token"`
	}
	decode(t, w, &resp)
	return resp.UserID, resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func sauceForm(t *testing.T, sauce string, withImage bool) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("sauce", sauce); err != nil {
		t.Fatal(err)
	}
	if withImage {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="reaper.png"`)
		h.Set("Content-Type", "image/png")
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte("fake png"))
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

const sauceJSON = `{"name":"Reaper","manufacturer":"PuckerButt","description":"Hot","mainPepper":"Carolina Reaper","heat":9}`

func createSauce(t *testing.T, s *testServer, token string) models.Sauce {
	t.Helper()
	body, ct := sauceForm(t, sauceJSON, true)
	w := s.do(t, http.MethodPost, "/api/sauces", token, body, ct)
	if w.Code != http.StatusCreated {
		t.Fatalf("create sauce: status = %d body = %s", w.Code, w.Body)
	}
	var resp struct {
		Sauce models.Sauce `json:"sauce"`
	}
	decode(t, w, &resp)
	return resp.Sauce
}

func TestHealthz(t *testing.T) {
	s := setupServer(t)
	w := s.do(t, http.MethodGet, "/healthz", "", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("healthz: status = %d body = %s", w.Code, w.Body)
	}
}

func TestAuthRoutes(t *testing.T) {
	s := setupServer(t)
	s.login(t, "chef@example.com")

	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"duplicate email", "/api/auth/signup", `{"email":"CHEF@example.com","password":"secret1"}`, http.StatusConflict},
		{"short password", "/api/auth/signup", `{"email":"new@example.com","password":"123"}`, http.StatusBadRequest},
		{"bad json", "/api/auth/signup", `{"email":`, http.StatusBadRequest},
		{"wrong password", "/api/auth/login", `{"email":"chef@example.com","password":"nope!!"}`, http.StatusUnauthorized},
		{"unknown user", "/api/auth/login", `{"email":"ghost@example.com","password":"secret1"}`, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.doJSON(t, http.MethodPost, tc.path, "", tc.body)
			if w.Code != tc.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tc.status, w.Body)
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("body = %s, want an error field", w.Body)
			}
		})
	}
}

func TestSauceRoutesRequireAuth(t *testing.T) {
	s := setupServer(t)
	for _, path := range []string{"/api/sauces", "/api/sauces/x"} {
		if w := s.do(t, http.MethodGet, path, "", nil, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: status = %d, want 401", path, w.Code)
		}
		if w := s.do(t, http.MethodGet, path, "garbage", nil, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s with bad token: status = %d, want 401", path, w.Code)
		}
	}
}

func TestSauceLifecycle(t *testing.T) {
	s := setupServer(t)
	ownerID, ownerToken := s.login(t, "owner@example.com")
	_, fanToken := s.login(t, "fan@example.com")

	sauce := createSauce(t, s, ownerToken)
	if sauce.UserID != ownerID || sauce.Likes != 0 || len(sauce.UsersLiked) != 0 {
		t.Fatalf("created sauce = %+v", sauce)
	}
	imageName := sauce.ImageURL[strings.LastIndex(sauce.ImageURL, "/")+1:]
	if _, err := os.Stat(filepath.Join(s.imagesDir, imageName)); err != nil {
		t.Fatalf("image not stored: %v", err)
	}
	if w := s.do(t, http.MethodGet, "/images/"+imageName, "", nil, ""); w.Code != http.StatusOK {
		t.Errorf("GET image: status = %d", w.Code)
	}

	w := s.do(t, http.MethodGet, "/api/sauces", fanToken, nil, "")
	var list []models.Sauce
	decode(t, w, &list)
	if w.Code != http.StatusOK || len(list) != 1 || list[0].ID != sauce.ID {
		t.Fatalf("list: status = %d sauces = %+v", w.Code, list)
	}

	// edits by someone else are refused
	edit := `{"name":"Stolen","manufacturer":"x","description":"x","mainPepper":"x","heat":1}`
	if w := s.doJSON(t, http.MethodPut, "/api/sauces/"+sauce.ID, fanToken, edit); w.Code != http.StatusForbidden {
		t.Errorf("PUT by non-owner: status = %d, want 403", w.Code)
	}
	badEdit := strings.Replace(edit, `"heat":1`, `"heat":42`, 1)
	if w := s.doJSON(t, http.MethodPut, "/api/sauces/"+sauce.ID, fanToken, badEdit); w.Code != http.StatusForbidden {
		t.Errorf("invalid PUT by non-owner: status = %d, want 403", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/api/sauces/"+sauce.ID, fanToken, nil, ""); w.Code != http.StatusForbidden {
		t.Errorf("DELETE by non-owner: status = %d, want 403", w.Code)
	}

	if w := s.doJSON(t, http.MethodPost, "/api/sauces/"+sauce.ID+"/like", fanToken, `{"like":1}`); w.Code != http.StatusOK {
		t.Fatalf("like: status = %d body = %s", w.Code, w.Body)
	}

	w = s.doJSON(t, http.MethodPut, "/api/sauces/"+sauce.ID, ownerToken,
		`{"name":"Reaper XL","manufacturer":"PuckerButt","description":"Hotter","mainPepper":"Carolina Reaper","heat":10,"likes":99,"userId":"someone"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT: status = %d body = %s", w.Code, w.Body)
	}
	var updated struct {
		Sauce models.Sauce `json:"sauce"`
	}
	decode(t, w, &updated)
	if updated.Sauce.Name != "Reaper XL" || updated.Sauce.Likes != 1 || updated.Sauce.UserID != ownerID {
		t.Errorf("updated sauce = %+v", updated.Sauce)
	}

	body, ct := sauceForm(t, sauceJSON, true)
	if w := s.do(t, http.MethodPut, "/api/sauces/"+sauce.ID, ownerToken, body, ct); w.Code != http.StatusOK {
		t.Fatalf("PUT with image: status = %d body = %s", w.Code, w.Body)
	}
	if _, err := os.Stat(filepath.Join(s.imagesDir, imageName)); !os.IsNotExist(err) {
		t.Errorf("replaced image still on disk: %v", err)
	}

	if w := s.do(t, http.MethodDelete, "/api/sauces/"+sauce.ID, ownerToken, nil, ""); w.Code != http.StatusOK {
		t.Fatalf("DELETE: status = %d body = %s", w.Code, w.Body)
	}
	if w := s.do(t, http.MethodGet, "/api/sauces/"+sauce.ID, ownerToken, nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("GET after delete: status = %d, want 404", w.Code)
	}
	entries, _ := os.ReadDir(s.imagesDir)
	if len(entries) != 0 {
		t.Errorf("images left after delete: %d", len(entries))
	}
}

func TestCreateSauceValidation(t *testing.T) {
	s := setupServer(t)
	_, token := s.login(t, "owner@example.com")

	noImage, ct := sauceForm(t, sauceJSON, false)
	if w := s.do(t, http.MethodPost, "/api/sauces", token, noImage, ct); w.Code != http.StatusBadRequest {
		t.Errorf("no image: status = %d, want 400", w.Code)
	}
	badJSON, ct := sauceForm(t, `{"name":`, true)
	if w := s.do(t, http.MethodPost, "/api/sauces", token, badJSON, ct); w.Code != http.StatusBadRequest {
		t.Errorf("bad sauce json: status = %d, want 400", w.Code)
	}
	hot, ct := sauceForm(t, strings.Replace(sauceJSON, `"heat":9`, `"heat":42`, 1), true)
	if w := s.do(t, http.MethodPost, "/api/sauces", token, hot, ct); w.Code != http.StatusBadRequest {
		t.Errorf("heat 42: status = %d, want 400", w.Code)
	}
	if w := s.doJSON(t, http.MethodPost, "/api/sauces", token, sauceJSON); w.Code != http.StatusBadRequest {
		t.Errorf("plain json create: status = %d, want 400", w.Code)
	}
	entries, _ := os.ReadDir(s.imagesDir)
	if len(entries) != 0 {
		t.Errorf("rejected creates left %d images", len(entries))
	}
}

func TestLikeRoute(t *testing.T) {
	s := setupServer(t)
	_, ownerToken := s.login(t, "owner@example.com")
	fanID, fanToken := s.login(t, "fan@example.com")
	sauce := createSauce(t, s, ownerToken)
	likePath := "/api/sauces/" + sauce.ID + "/like"

	steps := []struct {
		body     string
		likes    int
		dislikes int
	}{
		{`{"userId":"` + fanID + `","like":1}`, 1, 0},
		{`{"like":1}`, 0, 0},
		{`{"like":-1}`, 0, 1},
		{`{"like":1}`, 1, 0},
		{`{"like":0}`, 0, 0},
	}
	for i, step := range steps {
		w := s.doJSON(t, http.MethodPost, likePath, fanToken, step.body)
		if w.Code != http.StatusOK {
			t.Fatalf("step %d: status = %d body = %s", i, w.Code, w.Body)
		}
		var got models.Sauce
		decode(t, w, &got)
		if got.Likes != step.likes || got.Dislikes != step.dislikes {
			t.Fatalf("step %d: counts = %d/%d, want %d/%d", i, got.Likes, got.Dislikes, step.likes, step.dislikes)
		}
		if got.Likes != len(got.UsersLiked) || got.Dislikes != len(got.UsersDisliked) {
			t.Fatalf("step %d: counters drifted: %+v", i, got)
		}
	}

	rejects := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"like 5", likePath, `{"like":5}`, http.StatusBadRequest},
		{"like as string", likePath, `{"like":"1"}`, http.StatusBadRequest},
		{"like fractional", likePath, `{"like":0.5}`, http.StatusBadRequest},
		{"like missing", likePath, `{}`, http.StatusBadRequest},
		{"someone else's userId", likePath, `{"userId":"other","like":1}`, http.StatusUnauthorized},
		{"unknown sauce", "/api/sauces/missing/like", `{"like":1}`, http.StatusNotFound},
	}
	for _, tc := range rejects {
		t.Run(tc.name, func(t *testing.T) {
			if w := s.doJSON(t, http.MethodPost, tc.path, fanToken, tc.body); w.Code != tc.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tc.status, w.Body)
			}
		})
	}

	w := s.do(t, http.MethodGet, "/api/sauces/"+sauce.ID, fanToken, nil, "")
	var final models.Sauce
	decode(t, w, &final)
	if final.Likes != 0 || final.Dislikes != 0 {
		t.Errorf("rejected votes changed state: %+v", final)
	}
}

func TestPreflight(t *testing.T) {
	s := setupServer(t)
	w := s.do(t, http.MethodOptions, "/api/sauces", "", nil, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header: %v", w.Header())
	}
}
