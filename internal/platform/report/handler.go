package report

import (
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/ehr/coderecon/internal/domain/frequency"
	"github.com/ehr/coderecon/internal/domain/synonym"
	"github.com/ehr/coderecon/internal/platform/pipeline"
	"github.com/ehr/coderecon/pkg/pagination"
)

// CanonicalResponse describes one code and its cluster.
type CanonicalResponse struct {
	Code      string   `json:"code"`
	Canonical string   `json:"canonical"`
	Frequency int      `json:"frequency"`
	Members   []string `json:"members"`
}

// CountsResponse holds one page of the tallies of a category. Occurrences
// is the sum over every code, not just the page.
type CountsResponse struct {
	Category    string                                `json:"category"`
	Occurrences int                                   `json:"occurrences"`
	Page        *pagination.Response[frequency.Count] `json:"page"`
}

// Handler serves the results of the most recent run.
type Handler struct {
	mu     sync.RWMutex
	result *pipeline.Result
}

// NewHandler creates a report handler. res may be nil until a run finishes.
func NewHandler(res *pipeline.Result) *Handler {
	return &Handler{result: res}
}

// Set replaces the served result.
func (h *Handler) Set(res *pipeline.Result) {
	h.mu.Lock()
	h.result = res
	h.mu.Unlock()
}

// RunID returns the id of the served run, or "" before the first one.
func (h *Handler) RunID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.result == nil {
		return ""
	}
	return h.result.RunID.String()
}

// RegisterRoutes registers the report API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/summary", h.GetSummary)
	api.GET("/clusters", h.ListClusters)
	api.GET("/canonical/:code", h.GetCanonical)
	api.GET("/categories", h.ListCategoryCounts)
	api.GET("/frequencies", h.ListCategories)
	api.GET("/frequencies/:category", h.GetFrequencies)
	api.GET("/systems/unknown", h.ListUnknownSystems)
	api.GET("/systems/:category", h.GetSystems)
	api.GET("/concepts/missing", h.ListMissingConcepts)
}

func (h *Handler) current() (*pipeline.Result, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.result == nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "no completed run")
	}
	return h.result, nil
}

// GetSummary returns the run summary.
func (h *Handler) GetSummary(c echo.Context) error {
	res, err := h.current()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewSummary(res))
}

// ListClusters returns one page of clusters, largest first. min_size
// filters out smaller clusters.
func (h *Handler) ListClusters(c echo.Context) error {
	res, err := h.current()
	if err != nil {
		return err
	}
	minSize, err := intParam(c, "min_size", 0)
	if err != nil {
		return err
	}

	var out []synonym.Cluster
	for _, cl := range res.Partition.Clusters() {
		if len(cl.Members) >= minSize {
			out = append(out, cl)
		}
	}
	return c.JSON(http.StatusOK, pagination.Page(out, pagination.FromContext(c), c.Path()))
}

// GetCanonical resolves a code identifier to its cluster representative.
func (h *Handler) GetCanonical(c echo.Context) error {
	res, err := h.current()
	if err != nil {
		return err
	}
	code := c.Param("code")
	if unescaped, err := url.PathUnescape(code); err == nil {
		code = unescaped
	}

	p := res.Partition
	freq := p.Frequency(code)
	if freq == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "code not observed")
	}
	members, ok := p.Members(code)
	if !ok {
		members = []string{code}
	}
	return c.JSON(http.StatusOK, CanonicalResponse{
		Code:      code,
		Canonical: p.Canonical(code),
		Frequency: freq,
		Members:   members,
	})
}

// ListCategories returns the aggregated categories.
func (h *Handler) ListCategories(c echo.Context) error {
	res, err := h.current()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res.Aggregate.Categories())
}

// ListCategoryCounts returns how the records of each category spread over
// people.
func (h *Handler) ListCategoryCounts(c echo.Context) error {
	res, err := h.current()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CategoryLines(res.PerPerson))
}

// GetFrequencies returns one page of the canonical tallies of a category.
func (h *Handler) GetFrequencies(c echo.Context) error {
	res, err := h.current()
	if err != nil {
		return err
	}
	category := c.Param("category")
	counts := res.Aggregate.Counts(category)
	if len(counts) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "category not found")
	}
	page := pagination.Page(counts, pagination.FromContext(c), "")
	return c.JSON(http.StatusOK, CountsResponse{
		Category:    category,
		Occurrences: res.Aggregate.Total(category),
		Page:        page,
	})
}

// GetSystems returns the coding system tallies of a category.
func (h *Handler) GetSystems(c echo.Context) error {
	res, err := h.current()
	if err != nil {
		return err
	}
	category := c.Param("category")
	counts := res.Systems.For(category)
	if len(counts) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "category not found")
	}
	total := 0
	for _, n := range counts {
		total += n.Count
	}
	return c.JSON(http.StatusOK, CountsResponse{
		Category:    category,
		Occurrences: total,
		Page:        pagination.Page(counts, pagination.FromContext(c), ""),
	})
}

// ListUnknownSystems returns the coding systems the normalizer did not
// recognize, with how often each was seen.
func (h *Handler) ListUnknownSystems(c echo.Context) error {
	res, err := h.current()
	if err != nil {
		return err
	}
	uses := res.UnknownUses
	if uses == nil {
		uses = []frequency.Count{}
	}
	return c.JSON(http.StatusOK, uses)
}

// ListMissingConcepts returns concept ids absent from every concept table.
func (h *Handler) ListMissingConcepts(c echo.Context) error {
	res, err := h.current()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(res.Missing))
}

func intParam(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
