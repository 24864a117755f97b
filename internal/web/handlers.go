package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/r4inX/dbf-to-csv-converter/internal/charset"
	"github.com/r4inX/dbf-to-csv-converter/internal/core"
	"github.com/r4inX/dbf-to-csv-converter/internal/dbf"
	"github.com/r4inX/dbf-to-csv-converter/internal/logging"
)

// handleIndex serves the single-page upload UI.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// encodingInfo describes one selectable source encoding.
type encodingInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var encodingDescriptions = map[string]string{
	"cp1252":     "Windows Western European (most common for German DBF files)",
	"iso-8859-1": "ISO Latin-1",
	"cp850":      "DOS Western European",
	"cp437":      "Original DOS codepage",
	"utf-8":      "Unicode",
}

// handleListEncodings returns the selectable source encodings in probe
// order, with "auto" first.
func (s *Server) handleListEncodings(w http.ResponseWriter, r *http.Request) {
	list := []encodingInfo{{Name: "auto", Description: "Probe candidates against the file"}}
	for _, c := range charset.Candidates() {
		list = append(list, encodingInfo{Name: c.Name(), Description: encodingDescriptions[c.Name()]})
	}
	writeJSON(w, http.StatusOK, list)
}

// sessionInfo is the JSON shape describing an uploaded table.
type sessionInfo struct {
	SessionID   string      `json:"session_id"`
	FileName    string      `json:"file_name"`
	FileSize    int64       `json:"file_size"`
	Version     string      `json:"version"`
	RecordCount int         `json:"record_count"`
	CodePage    byte        `json:"code_page"`
	Fields      []fieldInfo `json:"fields"`
	Companions  []string    `json:"companions,omitempty"`
}

type fieldInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Length   int    `json:"length"`
	Decimals int    `json:"decimals"`
}

// handleUpload accepts a DBF table, optionally together with its
// companion memo and index files, and stores them in a new session.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, r, fmt.Errorf("file too large or invalid form: %w", err), http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		s.respondError(w, r, errors.New("no file provided"), http.StatusBadRequest)
		return
	}

	var table *multipart.FileHeader
	var companions []*multipart.FileHeader
	for _, fh := range files {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		switch {
		case ext == ".dbf":
			if table != nil {
				s.respondError(w, r, errors.New("upload holds more than one dbf table"), http.StatusBadRequest)
				return
			}
			table = fh
		case IsCompanionExt(ext):
			companions = append(companions, fh)
		default:
			s.respondError(w, r, fmt.Errorf("%s is not a dbf file", fh.Filename), http.StatusBadRequest)
			return
		}
	}
	if table == nil {
		s.respondError(w, r, errors.New("no file provided with a .dbf extension"), http.StatusBadRequest)
		return
	}

	src, err := table.Open()
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	defer src.Close()

	sess, err := s.sessions.Create(src, table.Filename)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	for _, fh := range companions {
		cf, err := fh.Open()
		if err == nil {
			err = s.sessions.AddCompanion(sess.ID, cf, fh.Filename)
			cf.Close()
		}
		if err != nil {
			s.sessions.Delete(sess.ID)
			s.respondError(w, r, err, http.StatusInternalServerError)
			return
		}
	}

	info, err := s.describeSession(sess)
	if err != nil {
		// Reject files the DBF parser cannot make sense of right away,
		// rather than keeping a session the user can do nothing with.
		s.sessions.Delete(sess.ID)
		s.respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	logging.FromContext(r.Context()).Info("upload stored",
		"session", sess.ID,
		"file", sess.Name,
		"size", sess.Size,
		"records", info.RecordCount,
	)
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) describeSession(sess *Session) (*sessionInfo, error) {
	t, err := dbf.Open(sess.Path)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	info := &sessionInfo{
		SessionID:   sess.ID,
		FileName:    sess.Name,
		FileSize:    sess.Size,
		Version:     fmt.Sprintf("0x%02X", t.Version()),
		RecordCount: t.RecordCount(),
		CodePage:    t.CodePage(),
	}
	for _, f := range t.FieldSpecs() {
		info.Fields = append(info.Fields, fieldInfo{
			Name:     f.Name,
			Type:     string(f.Type),
			Length:   f.Length,
			Decimals: f.Decimals,
		})
	}
	for _, p := range sess.Companions {
		info.Companions = append(info.Companions, filepath.Base(p))
	}
	return info, nil
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id := chi.URLParam(r, "sessionID")
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// handleSessionInfo re-reads the stored table's header information.
func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	info, err := s.describeSession(sess)
	if err != nil {
		s.respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// previewResponse carries the first records of a table, decoded and
// sanitized the same way the real conversion would.
type previewResponse struct {
	Encoding  string     `json:"encoding"`
	Confident bool       `json:"confident"`
	Fields    []string   `json:"fields"`
	Rows      [][]string `json:"rows"`
	Skipped   int        `json:"skipped"`
}

// handlePreview returns up to n sanitized records (default 10, cap 100).
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			s.respondError(w, r, fmt.Errorf("invalid preview count %q", raw), http.StatusBadRequest)
			return
		}
		n = min(v, 100)
	}

	t, err := dbf.Open(sess.Path)
	if err != nil {
		s.respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	defer t.Close()

	tbl := core.DBFTable(t)
	res, err := core.ResolveEncoding(tbl, r.URL.Query().Get("encoding"))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	resp := previewResponse{
		Encoding:  res.Codec.Name(),
		Confident: res.Confident,
		Fields:    t.Fields(),
		Rows:      [][]string{},
	}

	rows := tbl.Rows(res.Codec, false)
	for len(resp.Rows) < n {
		rec, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			resp.Skipped++
			continue
		}
		row := core.Sanitize(rec)
		ordered := make([]string, len(resp.Fields))
		for i, name := range resp.Fields {
			ordered[i] = row[name]
		}
		resp.Rows = append(resp.Rows, ordered)
	}

	writeJSON(w, http.StatusOK, resp)
}

// convertOptions builds core.Options from request parameters, falling
// back to the configured defaults.
func (s *Server) convertOptions(r *http.Request) (core.Options, error) {
	opts := core.Options{
		Encoding:         s.cfg.Convert.Encoding,
		Delimiter:        s.cfg.Convert.Delimiter[0],
		OutputEncoding:   s.cfg.Convert.OutputEncoding,
		ProgressInterval: s.cfg.Convert.ProgressInterval,
	}

	q := r.URL.Query()
	if enc := q.Get("encoding"); enc != "" {
		opts.Encoding = enc
	}
	if out := q.Get("output_encoding"); out != "" {
		opts.OutputEncoding = out
	}
	if d := q.Get("delimiter"); d != "" {
		if len(d) != 1 {
			return opts, fmt.Errorf("delimiter must be a single printable byte other than quote, CR or LF, got %q", d)
		}
		opts.Delimiter = d[0]
	}
	return opts, nil
}

// handleConvert streams the converted CSV as a file download.
//
// The response body is written incrementally, so errors past the first
// record cannot change the status code anymore; they terminate the body
// and are logged with the request ID.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	release, err := s.acquireConvertSlot()
	if err != nil {
		s.respondError(w, r, err, http.StatusTooManyRequests)
		return
	}
	defer release()

	opts, err := s.convertOptions(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	t, err := dbf.Open(sess.Path)
	if err != nil {
		s.respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	defer t.Close()
	tbl := core.DBFTable(t)

	// Resolve before the first body byte so bad encoding names still get
	// a proper error response.
	if _, err := core.ResolveEncoding(tbl, opts.Encoding); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	name := strings.TrimSuffix(sess.Name, filepath.Ext(sess.Name)) + ".csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

	logger := logging.WithFields(r.Context(), "session", sess.ID, "file", sess.Name)
	stats, err := core.Convert(r.Context(), tbl, w, opts)
	if err != nil {
		logger.Error("conversion aborted mid-stream",
			"records", stats.Records,
			"error", err,
		)
		return
	}

	logger.Info("conversion finished",
		"records", stats.Records,
		"skipped", stats.Skipped,
		"substituted", stats.Substituted,
		"encoding", stats.Encoding,
		"confident", stats.Confident,
		"duration_ms", stats.Duration.Milliseconds(),
	)
}

// validateResponse pairs run statistics with the data-quality report.
type validateResponse struct {
	Stats  validateStats          `json:"stats"`
	Report *core.ValidationReport `json:"report"`
}

type validateStats struct {
	Records     int    `json:"records"`
	Skipped     int    `json:"skipped"`
	Substituted int    `json:"substituted"`
	Encoding    string `json:"encoding"`
	Confident   bool   `json:"confident"`
	DurationMS  int64  `json:"duration_ms"`
}

// handleValidate performs a dry-run conversion and returns the
// data-quality report instead of CSV.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	release, err := s.acquireConvertSlot()
	if err != nil {
		s.respondError(w, r, err, http.StatusTooManyRequests)
		return
	}
	defer release()

	opts, err := s.convertOptions(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	t, err := dbf.Open(sess.Path)
	if err != nil {
		s.respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	defer t.Close()
	tbl := core.DBFTable(t)

	opts.Validator = core.NewValidator(t.Fields())
	stats, err := core.Convert(r.Context(), tbl, io.Discard, opts)
	if err != nil {
		s.respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Stats: validateStats{
			Records:     stats.Records,
			Skipped:     stats.Skipped,
			Substituted: stats.Substituted,
			Encoding:    stats.Encoding,
			Confident:   stats.Confident,
			DurationMS:  stats.Duration.Milliseconds(),
		},
		Report: opts.Validator.Report(stats),
	})
}

// handleDeleteSession removes an uploaded file before its TTL expires.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.sessions.Delete(id); err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
