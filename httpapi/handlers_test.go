package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academiafc/clubsync/auth"
	"github.com/academiafc/clubsync/core/document"
	"github.com/academiafc/clubsync/core/mutate"
	"github.com/academiafc/clubsync/core/sync"
	"github.com/academiafc/clubsync/images"
	"github.com/academiafc/clubsync/memory"
	"github.com/academiafc/clubsync/notify"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router      *gin.Engine
	store       *memory.Store
	manager     *sync.Manager
	gate        *auth.Gate
	tokens      *auth.Tokens
	uploadsRoot string
}

func newServerFixture(t *testing.T) *fixture {
	t.Helper()

	st := memory.NewStore(nil)
	gate := auth.NewGate(auth.Credentials{Email: "admin@academiafc.cl", Password: "secret"}, nil)
	tokens := auth.NewTokens("test-secret")
	manager := sync.NewManager(st, nil)
	notifier, err := notify.NewNotifier(nil)
	require.NoError(t, err)
	gateway := mutate.NewGateway(st, notifier, nil)

	uploadsRoot := t.TempDir()
	imageService, err := images.NewLocalService(uploadsRoot, "http://localhost:8080", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, manager.Open(ctx))
	t.Cleanup(manager.Close)

	// Registrations follow the gate separately from the primaries.
	stopRegs, err := manager.Subscribe(ctx, document.CollectionRegistrations, nil)
	require.NoError(t, err)
	t.Cleanup(stopRegs)

	server := NewServer(gate, tokens, manager, gateway, notifier, imageService, nil)
	return &fixture{
		router:      server.Router("http://localhost:5173", ""),
		store:       st,
		manager:     manager,
		gate:        gate,
		tokens:      tokens,
		uploadsRoot: uploadsRoot,
	}
}

func (f *fixture) request(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) adminToken(t *testing.T) string {
	t.Helper()
	token, err := f.tokens.Generate(&auth.User{ID: "u-admin", Email: "admin@academiafc.cl", Admin: true})
	require.NoError(t, err)
	return token
}

// seed writes directly to the store and waits until the manager's snapshot
// catches up; store pushes are asynchronous.
func (f *fixture) seed(t *testing.T, collection string, fields ...document.Fields) {
	t.Helper()
	before := f.manager.Count(collection)
	for _, fl := range fields {
		_, err := f.store.Create(context.Background(), collection, fl)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		return f.manager.Count(collection) == before+len(fields)
	}, 2*time.Second, 10*time.Millisecond)
}

func decodeItems(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var body struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Items
}

func TestHealth(t *testing.T) {
	f := newServerFixture(t)
	w := f.request(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogin(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{name: "valid", body: gin.H{"email": "admin@academiafc.cl", "password": "secret"}, wantCode: http.StatusOK},
		{name: "wrong password", body: gin.H{"email": "admin@academiafc.cl", "password": "nope"}, wantCode: http.StatusUnauthorized},
		{name: "not an email", body: gin.H{"email": "admin", "password": "secret"}, wantCode: http.StatusBadRequest},
		{name: "missing password", body: gin.H{"email": "admin@academiafc.cl"}, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.request(t, http.MethodPost, "/api/auth/login", tt.body, "")
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				var body struct {
					Token string     `json:"token"`
					User  *auth.User `json:"user"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.NotEmpty(t, body.Token)
				assert.True(t, body.User.Admin)
			}
		})
	}
}

func TestPublicCollectionFiltersAndCaps(t *testing.T) {
	f := newServerFixture(t)

	// Five news items, one hidden. Public default cap is 3.
	f.seed(t, document.CollectionNews,
		document.Fields{"title": "a", document.FieldVisible: true, document.FieldOrder: 0.0},
		document.Fields{"title": "b", document.FieldVisible: false, document.FieldOrder: 1.0},
		document.Fields{"title": "c", document.FieldVisible: true, document.FieldOrder: 2.0},
		document.Fields{"title": "d", document.FieldVisible: true, document.FieldOrder: 3.0},
		document.Fields{"title": "e", document.FieldVisible: true, document.FieldOrder: 4.0},
	)

	w := f.request(t, http.MethodGet, "/api/public/news", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	items := decodeItems(t, w)
	require.Len(t, items, 3)
	// The hidden item is dropped before the cap applies.
	assert.Equal(t, "a", items[0]["title"])
	assert.Equal(t, "c", items[1]["title"])
	assert.Equal(t, "d", items[2]["title"])

	w = f.request(t, http.MethodGet, "/api/public/news?limit=10", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeItems(t, w), 4)
}

func TestPublicCollectionUnknown(t *testing.T) {
	f := newServerFixture(t)
	w := f.request(t, http.MethodGet, "/api/public/payments", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitRegistration(t *testing.T) {
	f := newServerFixture(t)

	w := f.request(t, http.MethodPost, "/api/public/registrations", gin.H{
		"name": "Ana Soto", "dob": "2016-04-02", "category": "Sub-10",
		"parent": "Carmen Soto", "phone": "+56911111111",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	require.Eventually(t, func() bool {
		return f.manager.Count(document.CollectionRegistrations) == 1
	}, 2*time.Second, 10*time.Millisecond)
	regs := f.manager.Snapshot(document.CollectionRegistrations)
	assert.Equal(t, document.StatusPending, regs[0][document.FieldStatus])
	assert.Equal(t, "Ana Soto", regs[0]["name"])
}

func TestSubmitRegistrationRejectsInvalid(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name string
		body gin.H
	}{
		{name: "short name", body: gin.H{"name": "An", "dob": "2016-04-02", "category": "Sub-10", "parent": "Carmen", "phone": "+56911111111"}},
		{name: "missing phone", body: gin.H{"name": "Ana Soto", "dob": "2016-04-02", "category": "Sub-10", "parent": "Carmen"}},
		{name: "bad email", body: gin.H{"name": "Ana Soto", "dob": "2016-04-02", "category": "Sub-10", "parent": "Carmen", "phone": "+56911111111", "email": "not-an-email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.request(t, http.MethodPost, "/api/public/registrations", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAdminRequiresToken(t *testing.T) {
	f := newServerFixture(t)

	w := f.request(t, http.MethodGet, "/api/admin/collections/news", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.request(t, http.MethodGet, "/api/admin/collections/news", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	nonAdmin, err := f.tokens.Generate(&auth.User{ID: "u-1", Anonymous: true})
	require.NoError(t, err)
	w = f.request(t, http.MethodGet, "/api/admin/collections/news", nil, nonAdmin)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminCollectionIncludesHidden(t *testing.T) {
	f := newServerFixture(t)
	token := f.adminToken(t)

	f.seed(t, document.CollectionNews,
		document.Fields{"title": "a", document.FieldVisible: true, document.FieldOrder: 0.0},
		document.Fields{"title": "b", document.FieldVisible: false, document.FieldOrder: 1.0},
	)

	w := f.request(t, http.MethodGet, "/api/admin/collections/news", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeItems(t, w), 2)
}

func TestAdminCollectionSearch(t *testing.T) {
	f := newServerFixture(t)
	token := f.adminToken(t)

	f.seed(t, document.CollectionStudents,
		document.Fields{"name": "Ana Soto", "category": "Sub-10"},
		document.Fields{"name": "Pedro Ruiz", "category": "Sub-12"},
	)

	w := f.request(t, http.MethodGet, "/api/admin/collections/students?q=ana", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	items := decodeItems(t, w)
	require.Len(t, items, 1)
	assert.Equal(t, "Ana Soto", items[0]["name"])
}

func TestCreateDocumentAppends(t *testing.T) {
	f := newServerFixture(t)
	token := f.adminToken(t)

	f.seed(t, document.CollectionNews,
		document.Fields{"title": "a", document.FieldOrder: 0.0},
		document.Fields{"title": "b", document.FieldOrder: 1.0},
	)

	w := f.request(t, http.MethodPost, "/api/admin/collections/news", gin.H{
		"title": "c",
		"id":    "client-must-not-pick-this",
	}, token)
	require.Equal(t, http.StatusCreated, w.Code)

	require.Eventually(t, func() bool {
		return f.manager.Count(document.CollectionNews) == 3
	}, 2*time.Second, 10*time.Millisecond)

	var created document.Document
	for _, doc := range f.manager.Snapshot(document.CollectionNews) {
		if doc["title"] == "c" {
			created = doc
		}
	}
	require.NotNil(t, created)
	assert.NotEqual(t, "client-must-not-pick-this", document.IDOf(created))
	assert.Equal(t, 2.0, document.OrderOf(created, -1))
	assert.Equal(t, true, created[document.FieldVisible])
}

func TestUpdateAndDeleteDocument(t *testing.T) {
	f := newServerFixture(t)
	token := f.adminToken(t)

	f.seed(t, document.CollectionStudents, document.Fields{"name": "Ana", "category": "Sub-10"})
	id := document.IDOf(f.manager.Snapshot(document.CollectionStudents)[0])

	w := f.request(t, http.MethodPatch, "/api/admin/collections/students/"+id, gin.H{"category": "Sub-12"}, token)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Eventually(t, func() bool {
		docs := f.manager.Snapshot(document.CollectionStudents)
		return len(docs) == 1 && docs[0]["category"] == "Sub-12"
	}, 2*time.Second, 10*time.Millisecond)

	w = f.request(t, http.MethodPatch, "/api/admin/collections/students/"+id, gin.H{}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.request(t, http.MethodDelete, "/api/admin/collections/students/"+id, nil, token)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Eventually(t, func() bool {
		return f.manager.Count(document.CollectionStudents) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestToggleVisible(t *testing.T) {
	f := newServerFixture(t)
	token := f.adminToken(t)

	f.seed(t, document.CollectionNews, document.Fields{"title": "a", document.FieldVisible: true, document.FieldOrder: 0.0})
	id := document.IDOf(f.manager.Snapshot(document.CollectionNews)[0])

	w := f.request(t, http.MethodPost, "/api/admin/collections/news/"+id+"/toggle", nil, token)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Eventually(t, func() bool {
		docs := f.manager.Snapshot(document.CollectionNews)
		return len(docs) == 1 && docs[0][document.FieldVisible] == false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReorder(t *testing.T) {
	f := newServerFixture(t)
	token := f.adminToken(t)

	f.seed(t, document.CollectionSchedules,
		document.Fields{"cat": "Sub-8", document.FieldOrder: 0.0},
		document.Fields{"cat": "Sub-10", document.FieldOrder: 1.0},
		document.Fields{"cat": "Sub-12", document.FieldOrder: 2.0},
	)

	w := f.request(t, http.MethodPost, "/api/admin/reorder", gin.H{
		"collection": "schedules", "index": 1, "direction": "later",
	}, token)
	require.Equal(t, http.StatusNoContent, w.Code)

	require.Eventually(t, func() bool {
		docs := f.manager.Snapshot(document.CollectionSchedules)
		return len(docs) == 3 && docs[1]["cat"] == "Sub-12" && docs[2]["cat"] == "Sub-10"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReorderRejectsNonOrderedCollection(t *testing.T) {
	f := newServerFixture(t)
	token := f.adminToken(t)

	w := f.request(t, http.MethodPost, "/api/admin/reorder", gin.H{
		"collection": "students", "index": 0, "direction": "later",
	}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.request(t, http.MethodPost, "/api/admin/reorder", gin.H{
		"collection": "schedules", "index": 0, "direction": "sideways",
	}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnroll(t *testing.T) {
	f := newServerFixture(t)
	token := f.adminToken(t)

	f.seed(t, document.CollectionRegistrations, document.Fields{
		"name": "Ana Soto", "dob": "2016-04-02", "category": "Sub-10",
		"parent": "Carmen Soto", "phone": "+56911111111",
		document.FieldStatus: document.StatusPending,
	})
	id := document.IDOf(f.manager.Snapshot(document.CollectionRegistrations)[0])

	w := f.request(t, http.MethodPost, "/api/admin/enroll/"+id, nil, token)
	require.Equal(t, http.StatusNoContent, w.Code)

	require.Eventually(t, func() bool {
		return f.manager.Count(document.CollectionStudents) == 1 &&
			f.manager.Count(document.CollectionRegistrations) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Ana Soto", f.manager.Snapshot(document.CollectionStudents)[0]["name"])
}

func TestUploadAndDeleteUpload(t *testing.T) {
	f := newServerFixture(t)
	token := f.adminToken(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "crest.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("folder", "sponsors"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.URL)

	rel := strings.TrimPrefix(created.URL, "http://localhost:8080/uploads/")
	onDisk := filepath.Join(f.uploadsRoot, filepath.FromSlash(rel))
	_, err = os.Stat(onDisk)
	require.NoError(t, err)

	w = f.request(t, http.MethodDelete, "/api/admin/uploads", gin.H{"url": created.URL}, token)
	require.Equal(t, http.StatusNoContent, w.Code)
	_, err = os.Stat(onDisk)
	assert.True(t, os.IsNotExist(err))

	// Deleting again, or a URL outside the upload space, is a no-op.
	w = f.request(t, http.MethodDelete, "/api/admin/uploads", gin.H{"url": created.URL}, token)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.request(t, http.MethodDelete, "/api/admin/uploads", gin.H{"url": "http://elsewhere/x.png"}, token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.request(t, http.MethodDelete, "/api/admin/uploads", gin.H{"url": created.URL}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEnrollUnknownRegistration(t *testing.T) {
	f := newServerFixture(t)
	w := f.request(t, http.MethodPost, "/api/admin/enroll/missing", nil, f.adminToken(t))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
