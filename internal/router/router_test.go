package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/classbook/internal/config"
	"github.com/stemsi/classbook/internal/export"
	"github.com/stemsi/classbook/internal/handler"
	"github.com/stemsi/classbook/internal/lock"
	"github.com/stemsi/classbook/internal/repository/memory"
	"github.com/stemsi/classbook/internal/service"
	"github.com/stemsi/classbook/internal/validator"
	ws "github.com/stemsi/classbook/internal/websocket"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	validator.Setup()
	os.Exit(m.Run())
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

type server struct {
	t     *testing.T
	r     *gin.Engine
	token string
}

func newServer(t *testing.T) *server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{
		GinMode:             gin.TestMode,
		JWTSecret:           "test-secret",
		JWTExpiry:           time.Hour,
		AdminUsername:       "admin",
		AdminPasswordHash:   string(hash),
		MaxImageBytes:       1000000,
		SignupRatePerMinute: 1000,
		MaxOccurrenceWindow: 366,
	}
	log := zerolog.Nop()
	store := memory.New()

	authService := service.NewAuthService(cfg, log)
	classService := service.NewClassService(store, cfg.MaxImageBytes, log)
	enrollmentService := service.NewEnrollmentService(store, store, lock.NewKeyedMutex(), nil, time.Second, log)
	catalogService := service.NewCatalogService(store, store, log)
	broker := ws.NewMemoryBroker()
	enrollmentService.SetPublisher(broker)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := SetupRouter(ctx, authService, &Handlers{
		Auth:       handler.NewAuthHandler(authService),
		Class:      handler.NewClassHandler(classService, catalogService, cfg.MaxImageBytes, cfg.MaxOccurrenceWindow, log),
		Enrollment: handler.NewEnrollmentHandler(enrollmentService, classService, log),
		Catalog:    handler.NewCatalogHandler(catalogService, log),
		System:     handler.NewSystemHandler(nil, log),
		WS:         handler.NewWSHandler(classService, enrollmentService, broker, log, nil),
	}, cfg)

	s := &server{t: t, r: r}
	s.token = s.login()
	return s
}

func (s *server) do(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)

	var env envelope
	if ct := w.Header().Get("Content-Type"); len(ct) >= 16 && ct[:16] == "application/json" {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *server) json(method, path string, body any, auth bool) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return s.do(req)
}

func (s *server) login() string {
	s.t.Helper()
	w, env := s.json(http.MethodPost, "/api/v1/auth/admin/login", map[string]string{"username": "admin", "password": "s3cret"}, false)
	require.Equal(s.t, http.StatusOK, w.Code)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	return out.Token
}

func (s *server) createClass(fields map[string]string, image []byte) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(s.t, mw.WriteField(k, v))
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "cover.png")
		require.NoError(s.t, err)
		_, err = fw.Write(image)
		require.NoError(s.t, err)
	}
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/classes", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token)
	return s.do(req)
}

func (s *server) mustCreateClass(title, size, frequency, days string) string {
	s.t.Helper()
	w, env := s.createClass(map[string]string{
		"title": title, "description": "about " + title, "date": "2024-01-01",
		"size": size, "frequency": frequency, "days": days,
	}, nil)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	var out struct {
		Class struct {
			ID string `json:"id"`
		} `json:"class"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	return out.Class.ID
}

func signupBody(classID, date string) map[string]string {
	return map[string]string{
		"name": "Ana", "phone": "0123", "insurance": "public",
		"selectedDate": date, "selectedClass": classID,
	}
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestHealth(t *testing.T) {
	s := newServer(t)
	w, _ := s.json(http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newServer(t)

	w, env := s.json(http.MethodGet, "/api/v1/admin/catalog", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_REQUIRED", env.Error.Code)

	w, _ = s.json(http.MethodGet, "/api/v1/admin/catalog", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w, env = s.json(http.MethodPost, "/api/v1/auth/admin/login", map[string]string{"username": "admin", "password": "nope"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
}

func TestCreateClassMultipart(t *testing.T) {
	s := newServer(t)

	w, env := s.createClass(map[string]string{
		"title": "Yoga", "description": "Stretch", "date": "2024-01-01",
		"size": "10", "frequency": "weekly", "days": "1, 3",
	}, pngHeader)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var out struct {
		Class struct {
			ID       string `json:"id"`
			Days     []int  `json:"days"`
			HasImage bool   `json:"has_image"`
		} `json:"class"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, []int{1, 3}, out.Class.Days)
	assert.True(t, out.Class.HasImage)

	img, _ := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/public/classes/"+out.Class.ID+"/image", nil))
	assert.Equal(t, http.StatusOK, img.Code)
	assert.Equal(t, "image/png", img.Header().Get("Content-Type"))
	assert.Equal(t, pngHeader, img.Body.Bytes())
}

func TestCreateClassValidation(t *testing.T) {
	s := newServer(t)

	w, env := s.createClass(map[string]string{
		"title": "Yoga", "description": "Stretch", "date": "2024-01-01",
		"size": "10", "frequency": "weekly", "days": "1,9",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "days")

	w, env = s.createClass(map[string]string{
		"title": "Yoga", "description": "Stretch", "date": "2024-01-01",
		"size": "10", "frequency": "weekly",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error.Fields, "days")

	w, env = s.createClass(map[string]string{
		"title": "Yoga", "description": "Stretch", "date": "2024-01-01",
		"size": "0", "frequency": "yearly",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error.Fields, "frequency")
}

func TestSignupFlow(t *testing.T) {
	s := newServer(t)
	id := s.mustCreateClass("Pottery", "1", "bi-weekly", "1")

	w, env := s.json(http.MethodPost, "/api/v1/public/signups", signupBody(id, "2024-01-08"), false)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_OCCURRENCE", env.Error.Code)

	w, _ = s.json(http.MethodPost, "/api/v1/public/signups", signupBody(id, "2024-01-15"), false)
	assert.Equal(t, http.StatusCreated, w.Code)

	w, env = s.json(http.MethodPost, "/api/v1/public/signups", signupBody(id, "2024-01-15"), false)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CAPACITY_EXCEEDED", env.Error.Code)

	w, env = s.json(http.MethodGet, "/api/v1/public/classes/"+id+"/availability?date=2024-01-15", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var av struct {
		Availability struct {
			Count    int  `json:"count"`
			Capacity int  `json:"capacity"`
			Full     bool `json:"full"`
		} `json:"availability"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &av))
	assert.Equal(t, 1, av.Availability.Count)
	assert.Equal(t, 1, av.Availability.Capacity)
	assert.True(t, av.Availability.Full)

	w, env = s.json(http.MethodPost, "/api/v1/public/signups", signupBody("00000000-0000-0000-0000-000000000001", "2024-01-15"), false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestConcurrentSignupsForLastSeat(t *testing.T) {
	s := newServer(t)
	id := s.mustCreateClass("Choir", "1", "daily", "")

	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var buf bytes.Buffer
			_ = json.NewEncoder(&buf).Encode(signupBody(id, "2024-02-01"))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/public/signups", &buf)
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			s.r.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusConflict}, codes)
}

func TestOccurrencesAndCalendar(t *testing.T) {
	s := newServer(t)
	id := s.mustCreateClass("Book club", "5", "monthly", "")

	w, env := s.json(http.MethodGet, "/api/v1/public/classes/"+id+"/occurrences?from=2024-01-01&to=2024-04-30", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var occ struct {
		Occurrences []string `json:"occurrences"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &occ))
	assert.Equal(t, []string{"2024-01-01", "2024-02-01", "2024-03-01", "2024-04-01"}, occ.Occurrences)

	w, env = s.json(http.MethodGet, "/api/v1/public/classes/"+id+"/occurrences?from=2024-01-01&to=2026-01-01", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "WINDOW_TOO_LARGE", env.Error.Code)

	w, env = s.json(http.MethodGet, "/api/v1/public/classes/"+id+"/occurrences?from=jan&to=2024-01-02", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_DATE", env.Error.Code)

	cal, _ := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/public/classes/"+id+"/calendar.ics", nil))
	require.Equal(t, http.StatusOK, cal.Code)
	assert.Contains(t, cal.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, cal.Body.String(), "RRULE:FREQ=MONTHLY;BYMONTHDAY=1")
}

func TestCatalogSwapOverHTTP(t *testing.T) {
	s := newServer(t)
	ids := []string{
		s.mustCreateClass("A", "1", "daily", ""),
		s.mustCreateClass("B", "1", "daily", ""),
		s.mustCreateClass("C", "1", "daily", ""),
		s.mustCreateClass("D", "1", "daily", ""),
	}

	w, env := s.json(http.MethodGet, "/api/v1/admin/catalog", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var snap struct {
		Catalog struct {
			IDs     []string `json:"ids"`
			Version int64    `json:"version"`
		} `json:"catalog"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	require.Equal(t, ids, snap.Catalog.IDs)
	base := snap.Catalog.Version

	w, env = s.json(http.MethodPost, "/api/v1/admin/catalog/swap", map[string]any{"a": 0, "b": 2, "version": base}, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, []string{ids[2], ids[1], ids[0], ids[3]}, snap.Catalog.IDs)

	w, env = s.json(http.MethodPost, "/api/v1/admin/catalog/swap", map[string]any{"a": 1, "b": 3, "version": base}, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONCURRENCY_CONFLICT", env.Error.Code)

	w, env = s.json(http.MethodGet, "/api/v1/public/classes?all=true", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Classes []struct {
			Title string `json:"title"`
		} `json:"classes"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Classes, 4)
	assert.Equal(t, "C", list.Classes[0].Title)
}

func TestAttendanceExport(t *testing.T) {
	s := newServer(t)
	id := s.mustCreateClass("Swim", "5", "weekly", "1")

	for _, d := range []string{"2024-01-01", "2024-01-08", "2024-01-08"} {
		w, _ := s.json(http.MethodPost, "/api/v1/public/signups", signupBody(id, d), false)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, env := s.json(http.MethodGet, "/api/v1/admin/classes/"+id+"/attendance", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var att struct {
		Sheets []struct {
			OccurrenceDate string            `json:"occurrence_date"`
			Enrollments    []json.RawMessage `json:"enrollments"`
		} `json:"sheets"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &att))
	require.Len(t, att.Sheets, 2)
	assert.Len(t, att.Sheets[1].Enrollments, 2)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/classes/"+id+"/attendance.xlsx", nil)
	req.Header.Set("Authorization", "Bearer "+s.token)
	xw, _ := s.do(req)
	require.Equal(t, http.StatusOK, xw.Code)
	assert.Equal(t, export.ContentTypeXLSX, xw.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprintf(`attachment; filename="attendance-%s.xlsx"`, id), xw.Header().Get("Content-Disposition"))
	assert.NotZero(t, xw.Body.Len())
}

func TestDeleteClass(t *testing.T) {
	s := newServer(t)
	id := s.mustCreateClass("Gone", "1", "daily", "")

	w, _ := s.json(http.MethodDelete, "/api/v1/admin/classes/"+id, nil, true)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := s.json(http.MethodGet, "/api/v1/public/classes/"+id, nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	w, env = s.json(http.MethodGet, "/api/v1/public/classes/not-a-uuid", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", env.Error.Code)
}

func TestAvailabilityStream(t *testing.T) {
	s := newServer(t)
	id := s.mustCreateClass("Drums", "2", "weekly", "1")

	srv := httptest.NewServer(s.r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/public/classes/" + id + "/availability"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var errEvent ws.ErrorResponse
	require.NoError(t, conn.WriteJSON(ws.Request{Action: ws.ActionWatch, Date: "2024-01-09"}))
	require.NoError(t, conn.ReadJSON(&errEvent))
	assert.Equal(t, ws.EventError, errEvent.Event)

	var snapshot ws.AvailabilityResponse
	require.NoError(t, conn.WriteJSON(ws.Request{Action: ws.ActionWatch, Date: "2024-01-08"}))
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, ws.EventAvailability, snapshot.Event)
	assert.Equal(t, 0, snapshot.Availability.Count)
	assert.Equal(t, 2, snapshot.Availability.Capacity)

	// A signup for an unwatched date is not forwarded.
	w, _ := s.json(http.MethodPost, "/api/v1/public/signups", signupBody(id, "2024-01-15"), false)
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = s.json(http.MethodPost, "/api/v1/public/signups", signupBody(id, "2024-01-08"), false)
	require.Equal(t, http.StatusCreated, w.Code)

	var update ws.AvailabilityResponse
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "2024-01-08", update.Availability.OccurrenceDate)
	assert.Equal(t, 1, update.Availability.Count)
	assert.Equal(t, 1, update.Availability.Remaining)

	var pong ws.PongResponse
	require.NoError(t, conn.WriteJSON(ws.Request{Action: ws.ActionPing}))
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, ws.EventPong, pong.Event)
}

func TestAvailabilityStreamUnknownClass(t *testing.T) {
	s := newServer(t)

	srv := httptest.NewServer(s.r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/public/classes/00000000-0000-0000-0000-000000000001/availability"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
