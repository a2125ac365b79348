package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"example.com/xmpgate/internal/common"
	"example.com/xmpgate/internal/convert"
	"example.com/xmpgate/internal/report"
	"example.com/xmpgate/internal/store"
)

// Server coordinates HTTP handlers and manages the artifacts produced by
// conversion requests.
type Server struct {
	artifacts   *ArtifactStore
	workDir     string
	uploadsDir  string
	service     convert.Service
	jobs        *store.Store
	metrics     *common.Metrics
	concurrency int
}

// Artifact represents a file generated or stored by the daemon.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// ArtifactStore keeps track of artifacts for later download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	engine, err := loadRulePack(opts)
	if err != nil {
		return nil, err
	}
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(storageDir, "xmpd-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	s := &Server{
		artifacts:   &ArtifactStore{entries: make(map[string]Artifact)},
		workDir:     workDir,
		uploadsDir:  uploadsDir,
		service:     convert.Service{Engine: engine, Backup: opts.Backup},
		jobs:        opts.Store,
		metrics:     common.NewMetrics(),
		concurrency: concurrency,
	}
	if opts.AuditLog != "" {
		s.service.Audit = common.NewPatchLog(opts.AuditLog)
	}
	s.metrics.Start()
	return s, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

func (s *Server) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.workDir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	return name, nil
}

func (s *Server) addArtifact(path, displayName, contentType, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	art := Artifact{
		ID:          randomID(),
		Path:        path,
		Name:        displayName,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
	}
	if art.Name == "" {
		art.Name = filepath.Base(path)
	}
	if art.ContentType == "" {
		art.ContentType = guessContentType(art.Name)
	}
	s.artifacts.mu.Lock()
	s.artifacts.entries[art.ID] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	s.artifacts.mu.RLock()
	art, ok := s.artifacts.entries[id]
	s.artifacts.mu.RUnlock()
	return art, ok
}

// resolvePath accepts an artifact id or a path on the daemon's host.
func (s *Server) resolvePath(token string) (string, *Artifact, error) {
	if token == "" {
		return "", nil, errors.New("empty input path")
	}
	if art, ok := s.getArtifact(token); ok {
		return art.Path, &art, nil
	}
	abs, err := filepath.Abs(token)
	if err != nil {
		return "", nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", nil, err
	}
	return abs, nil, nil
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	path, _, err := s.resolvePath(req.Input)
	if err != nil {
		http.Error(w, fmt.Sprintf("input resolve: %v", err), http.StatusBadRequest)
		return
	}
	ins, err := s.service.Inspect(r.Context(), path)
	if err != nil {
		http.Error(w, fmt.Sprintf("inspect: %v", err), http.StatusUnprocessableEntity)
		return
	}
	s.recordJob(r.Context(), store.Job{ID: randomID(), Kind: "inspect", Files: 1, Complete: 1, Status: "done"})
	writeJSON(w, http.StatusOK, ins)
}

type fileEvent struct {
	Type string `json:"type"`
	report.FileResult
	Artifact *ArtifactRef `json:"artifact,omitempty"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	stream := r.URL.Query().Get("stream") == "true"
	var req struct {
		Inputs []string `json:"inputs"`
		DryRun bool     `json:"dryRun"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Inputs) == 0 {
		http.Error(w, "inputs required", http.StatusBadRequest)
		return
	}
	var paths []string
	uploaded := make(map[string]*Artifact)
	for _, in := range req.Inputs {
		path, art, err := s.resolvePath(in)
		if err != nil {
			http.Error(w, fmt.Sprintf("resolve %s: %v", in, err), http.StatusBadRequest)
			return
		}
		paths = append(paths, path)
		if art != nil {
			uploaded[path] = art
		}
	}
	files, errs := convert.Collect(paths)
	for _, err := range errs {
		common.Logf("convert: %v", err)
	}

	job := store.Job{ID: randomID(), Kind: "convert", RulePack: s.service.RulePackRef(), Created: time.Now(), Files: len(files), Status: "running"}
	if req.DryRun {
		job.Kind = "check"
	}
	s.recordJob(r.Context(), job)

	svc := s.service
	var events *eventStream
	if stream {
		events = newEventStream(w)
		svc.Progress = func(_ int, f convert.File) {
			ev := fileEvent{Type: "file", FileResult: report.FromFile(f)}
			if ref, ok := s.convertedArtifact(f, uploaded); ok {
				ev.Artifact = &ref
			}
			_ = events.send(ev)
		}
	}
	step := svc.Apply
	if req.DryRun {
		step = svc.Check
	}
	results, runErr := svc.Run(r.Context(), files, s.concurrency, step)
	for _, f := range results {
		s.metrics.AddFile(f.State.String(), f.Size)
	}

	rep := report.New(svc.RulePackRef(), time.Now(), results)
	arts, err := s.saveReport(rep)
	job.Finished = time.Now()
	job.Complete = rep.Summary.Complete + rep.Summary.Ready
	job.Failed = rep.Summary.Failed
	job.Status = "done"
	switch {
	case runErr != nil:
		job.Status = "cancelled"
	case err != nil:
		job.Status = "failed"
	}
	if len(arts) > 0 {
		job.Artifact = arts[0].ID
	}
	s.recordJob(context.Background(), job)

	if stream {
		if err != nil {
			events.fail(err)
			return
		}
		_ = events.send(struct {
			Type      string             `json:"type"`
			Job       string             `json:"job"`
			Report    report.BatchReport `json:"report"`
			Artifacts []ArtifactRef      `json:"artifacts"`
		}{Type: "report", Job: job.ID, Report: rep, Artifacts: arts})
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("write report: %v", err), http.StatusInternalServerError)
		return
	}
	var converted []ArtifactRef
	for _, f := range results {
		if ref, ok := s.convertedArtifact(f, uploaded); ok {
			converted = append(converted, ref)
		}
	}
	writeJSON(w, http.StatusOK, struct {
		Job       string             `json:"job"`
		Report    report.BatchReport `json:"report"`
		Artifacts []ArtifactRef      `json:"artifacts"`
		Converted []ArtifactRef      `json:"converted,omitempty"`
	}{Job: job.ID, Report: rep, Artifacts: arts, Converted: converted})
}

// convertedArtifact exposes an uploaded file once it has been rewritten.
func (s *Server) convertedArtifact(f convert.File, uploaded map[string]*Artifact) (ArtifactRef, bool) {
	src, ok := uploaded[f.Path]
	if !ok || f.State != convert.Complete {
		return ArtifactRef{}, false
	}
	art, err := s.addArtifact(f.Path, src.Name, src.ContentType, "converted")
	if err != nil {
		return ArtifactRef{}, false
	}
	return toRef(art), true
}

func (s *Server) saveReport(rep report.BatchReport) ([]ArtifactRef, error) {
	jsonPath, err := s.tempPath("report-*.json")
	if err != nil {
		return nil, err
	}
	if err := report.SaveJSON(rep, jsonPath); err != nil {
		return nil, err
	}
	pdfPath, err := s.tempPath("report-*.pdf")
	if err != nil {
		return nil, err
	}
	if err := report.SavePDF(rep, pdfPath); err != nil {
		return nil, err
	}
	jsonArt, err := s.addArtifact(jsonPath, "report.json", "application/json", "report")
	if err != nil {
		return nil, err
	}
	pdfArt, err := s.addArtifact(pdfPath, "report.pdf", "application/pdf", "report")
	if err != nil {
		return nil, err
	}
	return []ArtifactRef{toRef(jsonArt), toRef(pdfArt)}, nil
}

// handleReport renders a posted batch report as PDF.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var rep report.BatchReport
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if rep.Digest != "" && !report.Verify(rep) {
		http.Error(w, "report digest does not match its files", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
	if err := report.WritePDF(rep, w); err != nil {
		common.Logf("render report: %v", err)
	}
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeJSON(w, http.StatusOK, []store.Job{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	jobs, err := s.jobs.List(r.Context(), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("list jobs: %v", err), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []store.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Snapshot()
	writeJSON(w, http.StatusOK, struct {
		common.MetricsSnapshot
		FilesPerSecond float64 `json:"filesPerSecond"`
		Artifacts      int     `json:"artifacts"`
		RulePack       string  `json:"rulePack"`
	}{
		MetricsSnapshot: snap,
		FilesPerSecond:  snap.FilesPerSecond(),
		Artifacts:       len(s.listArtifacts()),
		RulePack:        s.service.RulePackRef(),
	})
}

func (s *Server) handleRulePack(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Engine.RulePack())
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	art, ok := s.getArtifact(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat artifact: %v", err), http.StatusInternalServerError)
		return
	}
	if art.ContentType != "" {
		w.Header().Set("Content-Type", art.ContentType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	io.Copy(w, f)
}

func (s *Server) recordJob(ctx context.Context, job store.Job) {
	if s.jobs == nil {
		return
	}
	if err := s.jobs.Record(ctx, job); err != nil {
		common.Logf("record job %s: %v", job.ID, err)
	}
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func guessContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".ndjson":
		return "application/x-ndjson"
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".xmp", ".xpacket":
		return "application/rdf+xml"
	default:
		return "application/octet-stream"
	}
}

func randomID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		now := time.Now().UTC()
		return fmt.Sprintf("%d%06d", now.UnixNano(), os.Getpid())
	}
	return hex.EncodeToString(b[:])
}

func (s *Server) listArtifacts() []ArtifactRef {
	s.artifacts.mu.RLock()
	refs := make([]ArtifactRef, 0, len(s.artifacts.entries))
	for _, art := range s.artifacts.entries {
		refs = append(refs, toRef(art))
	}
	s.artifacts.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}
