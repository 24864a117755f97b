package web

import (
	"bytes"
	"encoding/binary"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/r4inX/dbf-to-csv-converter/internal/config"
)

// sampleDBF builds a small dBASE III customer table with cp1252 text.
func sampleDBF(t *testing.T) []byte {
	t.Helper()

	fields := []struct {
		name   string
		typ    byte
		length int
	}{
		{"ID", 'N', 4},
		{"NAME", 'C', 12},
	}
	payloads := [][]byte{
		record("   1", "M\xFCller"),
		record("   2", "Sch\xF6ne\r\nGmbH"),
		record("   3", ""),
	}

	recordLen := 1
	for _, f := range fields {
		recordLen += f.length
	}
	headerLen := 32 + 32*len(fields) + 1

	var buf bytes.Buffer
	hdr := make([]byte, 32)
	hdr[0] = 0x03
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(payloads)))
	binary.LittleEndian.PutUint16(hdr[8:], uint16(headerLen))
	binary.LittleEndian.PutUint16(hdr[10:], uint16(recordLen))
	buf.Write(hdr)

	for _, f := range fields {
		desc := make([]byte, 32)
		copy(desc, f.name)
		desc[11] = f.typ
		desc[16] = byte(f.length)
		buf.Write(desc)
	}
	buf.WriteByte(0x0D)

	for i, p := range payloads {
		if len(p) != recordLen-1 {
			t.Fatalf("record %d payload length %d, want %d", i, len(p), recordLen-1)
		}
		buf.WriteByte(' ')
		buf.Write(p)
	}
	buf.WriteByte(0x1A)
	return buf.Bytes()
}

func record(id, name string) []byte {
	p := make([]byte, 16)
	for i := range p {
		p[i] = ' '
	}
	copy(p[0:4], id)
	copy(p[4:16], name)
	return p
}

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 0, RequestTimeout: time.Minute, ShutdownTimeout: time.Second},
		Upload: config.UploadConfig{
			MaxFileSize:     1 << 20,
			Dir:             t.TempDir(),
			SessionTTL:      time.Hour,
			CleanupInterval: time.Minute,
			MaxConcurrent:   2,
		},
		Convert:  config.ConvertConfig{Encoding: "auto", Delimiter: ";", OutputEncoding: "utf-8", ProgressInterval: 1000},
		Rate:     config.RateLimitConfig{Enabled: false},
		Security: config.SecurityConfig{EnableCSP: true},
		Logging:  config.LoggingConfig{Level: "error", Format: "text"},
	}
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

// uploadSample posts the fixture table and returns the session ID.
func uploadSample(t *testing.T, s *Server) string {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "kunden.dbf")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(sampleDBF(t))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}

	var info sessionInfo
	if err := sonic.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("upload response: %v", err)
	}
	if info.SessionID == "" {
		t.Fatal("upload response missing session_id")
	}
	if info.RecordCount != 3 {
		t.Errorf("record_count = %d, want 3", info.RecordCount)
	}
	if len(info.Fields) != 2 || info.Fields[0].Name != "ID" || info.Fields[1].Name != "NAME" {
		t.Errorf("fields = %+v, want ID and NAME", info.Fields)
	}
	return info.SessionID
}

func TestUploadAndConvert(t *testing.T) {
	s := testServer(t)
	id := uploadSample(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/session/"+id+"/convert?encoding=cp1252", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("convert status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "kunden.csv") {
		t.Errorf("Content-Disposition = %q, want kunden.csv attachment", cd)
	}

	want := "\"ID\";\"NAME\"\n" +
		"\"1\";\"Müller\"\n" +
		"\"2\";\"Schöne GmbH\"\n" +
		"\"3\";\"\"\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("csv = %q, want %q", got, want)
	}
}

func TestUploadStoresCompanions(t *testing.T) {
	s := testServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "kunden.dbf")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(sampleDBF(t))
	memo, err := mw.CreateFormFile("file", "kunden.fpt")
	if err != nil {
		t.Fatal(err)
	}
	memo.Write([]byte("memo block payload"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	var info sessionInfo
	if err := sonic.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("upload response: %v", err)
	}
	if len(info.Companions) != 1 || !strings.HasSuffix(info.Companions[0], ".fpt") {
		t.Fatalf("companions = %v, want one .fpt entry", info.Companions)
	}

	sess, err := s.sessions.Get(info.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.Companions) != 1 {
		t.Fatalf("stored companions = %d, want 1", len(sess.Companions))
	}
	companion := sess.Companions[0]
	if _, err := os.Stat(companion); err != nil {
		t.Fatalf("companion file missing: %v", err)
	}

	// Deleting the session removes the companion alongside the table.
	req = httptest.NewRequest(http.MethodDelete, "/api/session/"+info.SessionID+"/", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	if _, err := os.Stat(companion); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("companion should be removed, stat err = %v", err)
	}
}

func TestUploadRateLimit(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 0, RequestTimeout: time.Minute, ShutdownTimeout: time.Second},
		Upload: config.UploadConfig{
			MaxFileSize:     1 << 20,
			Dir:             t.TempDir(),
			SessionTTL:      time.Hour,
			CleanupInterval: time.Minute,
			MaxConcurrent:   2,
		},
		Convert:  config.ConvertConfig{Encoding: "auto", Delimiter: ";", OutputEncoding: "utf-8", ProgressInterval: 1000},
		Rate:     config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1000, UploadLimit: 1},
		Security: config.SecurityConfig{},
		Logging:  config.LoggingConfig{Level: "error", Format: "text"},
	}
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	post := func() *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, _ := mw.CreateFormFile("file", "kunden.dbf")
		part.Write(sampleDBF(t))
		mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		return rec
	}

	if rec := post(); rec.Code != http.StatusCreated {
		t.Fatalf("first upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec := post(); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload status = %d, want 429", rec.Code)
	}

	// Read endpoints keep working under the upload limiter.
	req := httptest.NewRequest(http.MethodGet, "/api/encodings", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("encodings status = %d, want 200", rec.Code)
	}
}

func TestUploadRejectsNonDBF(t *testing.T) {
	s := testServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "notes.txt")
	part.Write([]byte("hello"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error response: %v", err)
	}
	if resp.Code != "FILE002" {
		t.Errorf("code = %q, want FILE002", resp.Code)
	}
}

func TestUploadRejectsGarbageDBF(t *testing.T) {
	s := testServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "broken.dbf")
	part.Write([]byte{0x03, 0x01})
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestPreview(t *testing.T) {
	s := testServer(t)
	id := uploadSample(t, s)

	req := httptest.NewRequest(http.MethodGet, "/api/session/"+id+"/preview?n=2", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp previewResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("preview response: %v", err)
	}
	if resp.Encoding != "cp1252" {
		t.Errorf("encoding = %q, want cp1252", resp.Encoding)
	}
	if len(resp.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(resp.Rows))
	}
	if resp.Rows[0][1] != "Müller" {
		t.Errorf("first name = %q, want Müller", resp.Rows[0][1])
	}
}

func TestValidateEndpoint(t *testing.T) {
	s := testServer(t)
	id := uploadSample(t, s)

	req := httptest.NewRequest(http.MethodGet, "/api/session/"+id+"/validate", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("validate status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp validateResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("validate response: %v", err)
	}
	if resp.Stats.Records != 3 {
		t.Errorf("records = %d, want 3", resp.Stats.Records)
	}
	if resp.Report == nil || resp.Report.TotalRecords != 3 {
		t.Errorf("report = %+v, want 3 total records", resp.Report)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := testServer(t)
	id := uploadSample(t, s)

	req := httptest.NewRequest(http.MethodGet, "/api/session/"+id+"/", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("info status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/session/"+id+"/", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/session/"+id+"/", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("info after delete = %d, want 404", rec.Code)
	}
	var resp ErrorResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error response: %v", err)
	}
	if resp.Code != "UPL001" {
		t.Errorf("code = %q, want UPL001", resp.Code)
	}
}

func TestUnknownSession(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/session/nope/convert", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListEncodings(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/encodings", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list []encodingInfo
	if err := sonic.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("response: %v", err)
	}
	if len(list) == 0 || list[0].Name != "auto" {
		t.Fatalf("list = %+v, want auto first", list)
	}
	names := make(map[string]bool)
	for _, e := range list {
		names[e.Name] = true
	}
	for _, want := range []string{"cp1252", "iso-8859-1", "cp850", "cp437", "utf-8"} {
		if !names[want] {
			t.Errorf("encoding list missing %s", want)
		}
	}
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
