// Package fim matches benchmark flood maps from the catalog, downloads them
// into per-event folders and ensures the matching model output raster.
package fim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"github.com/couchcryptid/fimserve-service/internal/workspace"
	"github.com/jonboulle/clockwork"
)

// Query and process statuses.
const (
	StatusOK       = "ok"
	StatusInfo     = "info"
	StatusNotFound = "not_found"
	StatusAssumed  = "assumed"
)

// CatalogSource returns the current benchmark catalog.
type CatalogSource interface {
	Records(ctx context.Context) ([]domain.Record, error)
}

// ArtifactEnsurer places a model output raster into a folder.
type ArtifactEnsurer interface {
	Ensure(ctx context.Context, huc string, d domain.DateSpec, destDir string, generate bool) (string, error)
}

// QueryResult is the outcome of a catalog query.
type QueryResult struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Matches   []domain.Record `json:"matches"`
	Printable string          `json:"printable"`
}

// ProcessRequest selects the benchmarks to download. EnsureArtifact and
// GenerateMissing only apply when Date is set.
type ProcessRequest struct {
	HUC             string
	Date            string
	FileName        string
	OutDir          string
	EnsureArtifact  bool
	GenerateMissing bool
}

// RecordDownloads pairs a record with the files fetched for it.
type RecordDownloads struct {
	Record    domain.Record `json:"record"`
	Downloads Downloads     `json:"downloads"`
}

// Folder is one per-event benchmark folder.
type Folder struct {
	Label        string            `json:"label"`
	Path         string            `json:"folder"`
	Records      []domain.Record   `json:"records"`
	Downloads    []RecordDownloads `json:"downloads"`
	ArtifactPath string            `json:"owp_path,omitempty"`
}

// ProcessResult is the outcome of a process request.
type ProcessResult struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Folders []Folder        `json:"folders"`
	Matches []domain.Record `json:"matches"`
}

// LookupRequest is a query that optionally runs processing instead of
// listing.
type LookupRequest struct {
	domain.Query
	Run    bool
	OutDir string
}

// Service answers benchmark queries and prepares evaluation folders.
type Service struct {
	catalog CatalogSource
	assets  AssetStore
	ensurer ArtifactEnsurer
	events  EventSink
	workDir string
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
	ready   atomic.Bool
}

// NewService creates a Service. Benchmark folders default to workDir when a
// request names no output directory. events may be nil.
func NewService(catalog CatalogSource, assets AssetStore, ensurer ArtifactEnsurer, events EventSink, workDir string, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{
		catalog: catalog,
		assets:  assets,
		ensurer: ensurer,
		events:  events,
		workDir: workDir,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// CheckReadiness returns nil once the catalog has been read successfully.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("benchmark catalog has not been loaded yet")
	}
	return nil
}

func (s *Service) records(ctx context.Context) ([]domain.Record, error) {
	recs, err := s.catalog.Records(ctx)
	if err != nil {
		s.metrics.CatalogQueries.WithLabelValues("error").Inc()
		return nil, err
	}
	s.ready.Store(true)
	return recs, nil
}

// LoadCatalog reads the catalog once, marking the service ready on success.
func (s *Service) LoadCatalog(ctx context.Context) error {
	_, err := s.records(ctx)
	return err
}

// Availability summarizes the benchmark dates of huc.
func (s *Service) Availability(ctx context.Context, huc string) (string, error) {
	recs, err := s.records(ctx)
	if err != nil {
		return "", err
	}
	return domain.SummarizeAvailability(recs, huc), nil
}

// Query matches q strictly for the result set and relaxed for the printable
// listing. A bad date is returned as an error wrapping domain.ErrBadDate.
func (s *Service) Query(ctx context.Context, q domain.Query) (QueryResult, error) {
	q.HUC = strings.TrimSpace(q.HUC)
	recs, err := s.records(ctx)
	if err != nil {
		return QueryResult{}, err
	}
	strict, err := domain.MatchStrict(recs, q)
	if err != nil {
		return QueryResult{}, err
	}
	relaxed, err := domain.MatchRelaxed(recs, q)
	if err != nil {
		return QueryResult{}, err
	}

	status := StatusOK
	if len(strict) == 0 {
		status = StatusNotFound
		if !q.HasFilters() {
			status = StatusInfo
		}
	}

	var msg string
	if len(strict) > 0 {
		msg = fmt.Sprintf("Found %d record(s) for HUC %s", len(strict), q.HUC)
	} else {
		msg = "No match for HUC " + q.HUC
	}
	msg += querySuffix(q)

	s.metrics.CatalogQueries.WithLabelValues(status).Inc()
	s.logger.Debug("catalog query", "huc", q.HUC, "date", q.Date, "file", q.FileName,
		"strict", len(strict), "relaxed", len(relaxed), "status", status)

	if strict == nil {
		strict = []domain.Record{}
	}
	return QueryResult{
		Status:    status,
		Message:   msg + "\n" + domain.SummarizeAvailability(recs, q.HUC),
		Matches:   strict,
		Printable: domain.FormatRecords(relaxed, ""),
	}, nil
}

func querySuffix(q domain.Query) string {
	var b strings.Builder
	if q.Date != "" {
		fmt.Fprintf(&b, " and '%s'", q.Date)
	}
	if q.FileName != "" {
		fmt.Fprintf(&b, " and file '%s'", q.FileName)
	}
	if q.Start != "" || q.End != "" {
		b.WriteString(" in range " + q.Range())
	}
	return b.String()
}

// Process downloads the strictly matched benchmarks of req into
// FIM_evaluation/FIM_inputs folders and, when a date is given, ensures the
// model output raster next to them. A missing raster is reported in the
// message only.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (ProcessResult, error) {
	req.HUC = strings.TrimSpace(req.HUC)
	recs, err := s.records(ctx)
	if err != nil {
		return ProcessResult{}, err
	}

	var userDate domain.DateSpec
	if req.Date != "" {
		if userDate, err = domain.ParseDateSpec(req.Date); err != nil {
			return ProcessResult{}, err
		}
	}

	strict, err := domain.MatchStrict(recs, domain.Query{HUC: req.HUC, Date: req.Date, FileName: req.FileName})
	if err != nil {
		return ProcessResult{}, err
	}

	root := req.OutDir
	if root == "" {
		root = s.workDir
	}

	var res ProcessResult
	if len(strict) == 0 {
		res = s.processFallback(ctx, recs, req, userDate, root)
	} else {
		res = s.processMatches(ctx, strict, req, userDate, root)
	}
	s.metrics.CatalogQueries.WithLabelValues(res.Status).Inc()
	return res, nil
}

func (s *Service) processFallback(ctx context.Context, recs []domain.Record, req ProcessRequest, userDate domain.DateSpec, root string) ProcessResult {
	dateSuffix := ""
	if req.Date != "" {
		dateSuffix = fmt.Sprintf(" and '%s'", req.Date)
	}
	if req.FileName == "" {
		return ProcessResult{
			Status:  StatusNotFound,
			Message: fmt.Sprintf("No strict benchmark match for HUC %s%s", req.HUC, dateSuffix),
			Folders: []Folder{},
			Matches: []domain.Record{},
		}
	}

	rec, ok := domain.FindByFileName(recs, req.HUC, req.FileName)
	if !ok {
		return ProcessResult{
			Status:  StatusNotFound,
			Message: fmt.Sprintf("No strict benchmark match for HUC %s%s, and file '%s' not found in catalog.", req.HUC, dateSuffix, req.FileName),
			Folders: []Folder{},
			Matches: []domain.Record{},
		}
	}

	label := rec.FolderLabel()
	if req.Date != "" {
		label = "flood" + userDate.Label()
	}
	folder := s.fillFolder(ctx, req.HUC, label, root, []domain.Record{rec})

	msg := fmt.Sprintf("Used user-specified file '%s' as benchmark reference. Downloaded into '%s'.", req.FileName, folder.Path)
	if req.EnsureArtifact && req.Date != "" {
		folder.ArtifactPath = s.ensure(ctx, req, userDate, folder.Path)
		if folder.ArtifactPath != "" {
			msg += " OWP HAND FIM ensured (copied/generated)."
		} else {
			msg += " OWP HAND FIM not found and not generated."
		}
	}

	return ProcessResult{
		Status:  StatusAssumed,
		Message: msg,
		Folders: []Folder{folder},
		Matches: []domain.Record{rec},
	}
}

func (s *Service) processMatches(ctx context.Context, strict []domain.Record, req ProcessRequest, userDate domain.DateSpec, root string) ProcessResult {
	var folders []Folder
	if req.Date != "" {
		folder := s.fillFolder(ctx, req.HUC, "flood"+userDate.Label(), root, strict)
		if req.EnsureArtifact {
			folder.ArtifactPath = s.ensure(ctx, req, userDate, folder.Path)
		}
		folders = append(folders, folder)
	} else {
		groups := make(map[string][]domain.Record)
		for _, r := range strict {
			groups[r.FolderLabel()] = append(groups[r.FolderLabel()], r)
		}
		labels := make([]string, 0, len(groups))
		for l := range groups {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		for _, l := range labels {
			folders = append(folders, s.fillFolder(ctx, req.HUC, l, root, groups[l]))
		}
	}

	downloaded := 0
	for _, f := range folders {
		for _, d := range f.Downloads {
			if d.Downloads.Any() {
				downloaded++
			}
		}
	}

	bits := []string{fmt.Sprintf("Downloaded %d benchmark item(s) into '%s'.", downloaded, workspace.BenchmarkDir(root, ""))}
	if req.EnsureArtifact && req.Date != "" {
		if folders[0].ArtifactPath != "" {
			bits = append(bits, fmt.Sprintf("OWP HAND FIM ensured for '%s' (copied/generated).", req.Date))
		} else {
			bits = append(bits, fmt.Sprintf("OWP HAND FIM not found for '%s' and was not generated.", req.Date))
		}
	}

	return ProcessResult{
		Status:  StatusOK,
		Message: strings.Join(bits, " "),
		Folders: folders,
		Matches: strict,
	}
}

// fillFolder downloads the assets of recs into HUC<huc>_<label>. A record
// whose download fails is logged and reported with no files.
func (s *Service) fillFolder(ctx context.Context, huc, label, root string, recs []domain.Record) Folder {
	folder := Folder{
		Label:     label,
		Path:      workspace.BenchmarkDir(root, domain.BenchmarkFolderName(huc, label)),
		Records:   recs,
		Downloads: make([]RecordDownloads, 0, len(recs)),
	}
	for _, rec := range recs {
		dl, err := downloadAssets(ctx, s.assets, rec, folder.Path)
		if err != nil {
			s.logger.Error("download benchmark assets", "huc", huc, "file", rec.FileName, "path", folder.Path, "error", err)
		}
		if dl.Any() {
			s.publish(ctx, domain.NewEvent(domain.EventBenchmarkDownloaded, huc, rec.RawDate(), folder.Path, s.clock.Now()))
		}
		folder.Downloads = append(folder.Downloads, RecordDownloads{Record: rec, Downloads: dl})
	}
	return folder
}

func (s *Service) ensure(ctx context.Context, req ProcessRequest, d domain.DateSpec, dest string) string {
	path, err := s.ensurer.Ensure(ctx, req.HUC, d, dest, req.GenerateMissing)
	if err != nil {
		s.logger.Error("ensure model output", "huc", req.HUC, "date", d.Stamp(), "error", err)
		return ""
	}
	return path
}

func (s *Service) publish(ctx context.Context, ev domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish lifecycle event", "type", ev.Type, "huc", ev.HUC, "error", err)
	}
}

// Lookup lists the benchmarks matching req, or processes them with artifact
// generation enabled when req.Run is set, returning the operational message.
func (s *Service) Lookup(ctx context.Context, req LookupRequest) (string, error) {
	if req.Run {
		res, err := s.Process(ctx, ProcessRequest{
			HUC:             req.HUC,
			Date:            req.Date,
			FileName:        req.FileName,
			OutDir:          req.OutDir,
			EnsureArtifact:  true,
			GenerateMissing: true,
		})
		if err != nil {
			return "", err
		}
		return res.Message, nil
	}

	res, err := s.Query(ctx, req.Query)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(res.Printable) == "" {
		var b strings.Builder
		b.WriteString("No benchmark FIMs were matched with the information you provided.\n")
		fmt.Fprintf(&b, "(HUC=%s", req.HUC)
		if req.Date != "" {
			b.WriteString(", date=" + req.Date)
		}
		if req.FileName != "" {
			b.WriteString(", file_name=" + req.FileName)
		}
		if req.Start != "" || req.End != "" {
			fmt.Fprintf(&b, ", range=[%s , %s]", req.Start, req.End)
		}
		b.WriteString(")")
		return b.String(), nil
	}
	return fmt.Sprintf("Following are the available benchmark data for %s:\n%s", req.Query.Context(), res.Printable), nil
}
