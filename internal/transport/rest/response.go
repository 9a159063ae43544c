package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type fieldErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type itemResponse struct {
	GroupKey       string             `json:"group_key"`
	ID             string             `json:"id"`
	Status         domain.Status      `json:"status"`
	AssignedTo     *string            `json:"assigned_to"`
	AssignedAt     *time.Time         `json:"assigned_at"`
	Version        string             `json:"version"`
	Text           string             `json:"text"`
	Labels         []string           `json:"labels"`
	References     []domain.Reference `json:"references"`
	Notes          *string            `json:"notes"`
	ReferenceCount int                `json:"reference_count"`
	LabelCount     int                `json:"label_count"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	UpdatedBy      *string            `json:"updated_by,omitempty"`
}

func toItemResponse(w domain.WorkItem) itemResponse {
	labels := w.Labels
	if labels == nil {
		labels = []string{}
	}
	refs := w.References
	if refs == nil {
		refs = []domain.Reference{}
	}
	return itemResponse{
		GroupKey:       w.GroupKey,
		ID:             w.ID,
		Status:         w.Status,
		AssignedTo:     w.AssignedTo,
		AssignedAt:     w.AssignedAt,
		Version:        w.Version.String(),
		Text:           w.Text,
		Labels:         labels,
		References:     refs,
		Notes:          w.Notes,
		ReferenceCount: w.ReferenceCount,
		LabelCount:     w.LabelCount,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
		UpdatedBy:      w.UpdatedBy,
	}
}

func toItemResponses(items []domain.WorkItem) []itemResponse {
	out := make([]itemResponse, len(items))
	for i, it := range items {
		out[i] = toItemResponse(it)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeItem answers with the item and its version as a strong ETag.
func writeItem(w http.ResponseWriter, status int, item domain.WorkItem) {
	w.Header().Set("ETag", strconv.Quote(item.Version.String()))
	writeJSON(w, status, toItemResponse(item))
}

// parseIfMatch accepts `"3"`, `W/"3"` and bare `3`. `*` means no precondition.
func parseIfMatch(h string) domain.Version {
	h = strings.TrimSpace(h)
	if h == "" || h == "*" {
		return ""
	}
	h = strings.TrimPrefix(h, "W/")
	if unq, err := strconv.Unquote(h); err == nil {
		return domain.Version(unq)
	}
	return domain.Version(h)
}
