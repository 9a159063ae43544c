package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/heartmarshall/curation-backend/internal/domain"
	"github.com/heartmarshall/curation-backend/pkg/ctxutil"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	maxBodyBytes    = 1 << 20
)

type assigner interface {
	SelfAssign(ctx context.Context, userID string, limit int) (domain.SelfAssignResult, error)
	AssignSingle(ctx context.Context, userID string, ref domain.ItemRef, force bool) (domain.WorkItem, error)
	Release(ctx context.Context, userID string, ref domain.ItemRef, privileged bool) (domain.WorkItem, error)
}

type updater interface {
	Update(ctx context.Context, req domain.UpdateRequest) (domain.WorkItem, error)
}

type assignmentLister interface {
	ListByUser(ctx context.Context, userID string) ([]domain.WorkItem, error)
}

type itemStore interface {
	Read(ctx context.Context, ref domain.ItemRef) (domain.WorkItem, error)
	Iterate(ctx context.Context, filter domain.ItemFilter, limit int, cursor string) (domain.ItemPage, error)
}

// ItemHandler serves the curation endpoints.
type ItemHandler struct {
	assign   assigner
	workflow updater
	index    assignmentLister
	items    itemStore
	policy   domain.Policy
	log      *slog.Logger
}

// NewItemHandler creates an ItemHandler.
func NewItemHandler(
	logger *slog.Logger,
	assign assigner,
	workflow updater,
	index assignmentLister,
	items itemStore,
	policy domain.Policy,
) *ItemHandler {
	return &ItemHandler{
		assign:   assign,
		workflow: workflow,
		index:    index,
		items:    items,
		policy:   policy,
		log:      logger.With("handler", "items"),
	}
}

type selfAssignRequest struct {
	Limit int `json:"limit"`
}

type selfAssignResponse struct {
	Assigned      []itemResponse `json:"assigned"`
	Requested     int            `json:"requested"`
	AssignedCount int            `json:"assigned_count"`
}

type assignRequest struct {
	Force bool `json:"force"`
}

type updateRequest struct {
	Status          *domain.Status      `json:"status"`
	Text            *string             `json:"text"`
	Labels          *[]string           `json:"labels"`
	References      *[]domain.Reference `json:"references"`
	Notes           *string             `json:"notes"`
	Restore         bool                `json:"restore"`
	ExpectedVersion string              `json:"expected_version"`
}

type listResponse struct {
	Items      []itemResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// SelfAssign handles POST /api/v1/assignments.
func (h *ItemHandler) SelfAssign(w http.ResponseWriter, r *http.Request) {
	userID, _ := ctxutil.UserIDFromCtx(r.Context())

	var req selfAssignRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.assign.SelfAssign(r.Context(), userID, req.Limit)
	if err != nil {
		respondError(h.log, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, selfAssignResponse{
		Assigned:      toItemResponses(res.Assigned),
		Requested:     res.Requested,
		AssignedCount: res.AssignedCount,
	})
}

// Mine handles GET /api/v1/assignments.
func (h *ItemHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, _ := ctxutil.UserIDFromCtx(r.Context())

	items, err := h.index.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(h.log, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Items: toItemResponses(items)})
}

// Assign handles POST /api/v1/items/{group}/{id}/assign.
func (h *ItemHandler) Assign(w http.ResponseWriter, r *http.Request) {
	userID, _ := ctxutil.UserIDFromCtx(r.Context())
	ref, ok := h.itemRef(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Force && !h.policy.CanForce(ctxutil.RolesFromCtx(r.Context())) {
		respondError(h.log, w, r, domain.ErrForbidden)
		return
	}

	item, err := h.assign.AssignSingle(r.Context(), userID, ref, req.Force)
	if err != nil {
		respondError(h.log, w, r, err)
		return
	}

	writeItem(w, http.StatusOK, item)
}

// Release handles POST /api/v1/items/{group}/{id}/release.
func (h *ItemHandler) Release(w http.ResponseWriter, r *http.Request) {
	userID, _ := ctxutil.UserIDFromCtx(r.Context())
	ref, ok := h.itemRef(w, r)
	if !ok {
		return
	}

	item, err := h.assign.Release(r.Context(), userID, ref, ctxutil.IsAdminCtx(r.Context()))
	if err != nil {
		respondError(h.log, w, r, err)
		return
	}

	writeItem(w, http.StatusOK, item)
}

// Update handles PATCH /api/v1/items/{group}/{id}. The expected version
// comes from If-Match, or from the body when the header is absent.
func (h *ItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, _ := ctxutil.UserIDFromCtx(r.Context())
	roles := ctxutil.RolesFromCtx(r.Context())
	ref, ok := h.itemRef(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}

	expected := parseIfMatch(r.Header.Get("If-Match"))
	if expected.IsZero() {
		expected = domain.Version(req.ExpectedVersion)
	}

	item, err := h.workflow.Update(r.Context(), domain.UpdateRequest{
		Item: ref,
		Patch: domain.FieldPatch{
			Status:     req.Status,
			Text:       req.Text,
			Labels:     req.Labels,
			References: req.References,
			Notes:      req.Notes,
			Restore:    req.Restore,
		},
		ExpectedVersion: expected,
		CallerID:        userID,
		Mask:            h.policy.MaskFor(roles),
		Options: domain.UpdateOptions{
			EnforceOwnership: h.policy.EnforceOwnership(roles),
			AllowRestore:     h.policy.CanRestore(roles),
		},
	})
	if err != nil {
		respondError(h.log, w, r, err)
		return
	}

	writeItem(w, http.StatusOK, item)
}

// Get handles GET /api/v1/items/{group}/{id}.
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.itemRef(w, r)
	if !ok {
		return
	}
	if err := ref.Validate(); err != nil {
		respondError(h.log, w, r, err)
		return
	}

	item, err := h.items.Read(r.Context(), ref)
	if err != nil {
		respondError(h.log, w, r, err)
		return
	}

	writeItem(w, http.StatusOK, item)
}

// List handles GET /api/v1/items?group=&status=&assigned_to=&unassigned=&limit=&cursor=.
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter domain.ItemFilter
	if v := q.Get("group"); v != "" {
		filter.GroupKey = &v
	}
	if v := q.Get("status"); v != "" {
		s := domain.Status(v)
		if !s.IsValid() {
			respondError(h.log, w, r, domain.NewValidationError("status", "unknown status"))
			return
		}
		filter.Status = &s
	}
	if v := q.Get("assigned_to"); v != "" {
		filter.AssignedTo = &v
	}
	if v := q.Get("unassigned"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(h.log, w, r, domain.NewValidationError("unassigned", "must be a boolean"))
			return
		}
		filter.Unassigned = b
	}

	limit := defaultPageSize
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			respondError(h.log, w, r, domain.NewValidationError("limit", "must be between 1 and "+strconv.Itoa(maxPageSize)))
			return
		}
		limit = n
	}

	page, err := h.items.Iterate(r.Context(), filter, limit, q.Get("cursor"))
	if err != nil {
		respondError(h.log, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Items:      toItemResponses(page.Items),
		NextCursor: page.NextCursor,
	})
}

// decode reads an optional JSON body. An empty body leaves dst untouched.
func (h *ItemHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeProblem(w, r, http.StatusBadRequest, errorResponse{Code: "VALIDATION", Message: "invalid request body"})
		return false
	}
	return true
}

// itemRef reads the item identity from the path. Group keys may contain a
// slash, which clients send as %2F; chi matches on the escaped path in that
// case and hands back escaped segments.
func (h *ItemHandler) itemRef(w http.ResponseWriter, r *http.Request) (domain.ItemRef, bool) {
	group, id := chi.URLParam(r, "group"), chi.URLParam(r, "id")
	if r.URL.RawPath != "" {
		var gerr, ierr error
		group, gerr = url.PathUnescape(group)
		id, ierr = url.PathUnescape(id)
		if gerr != nil || ierr != nil {
			writeProblem(w, r, http.StatusBadRequest, errorResponse{Code: "VALIDATION", Message: "invalid item path"})
			return domain.ItemRef{}, false
		}
	}
	return domain.ItemRef{GroupKey: group, ID: id}, true
}
