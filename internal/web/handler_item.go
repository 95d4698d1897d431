package web

import (
	"fmt"
	"net/http"

	"github.com/vbonduro/lostfound/internal/domain"
	"github.com/vbonduro/lostfound/internal/query"
	"github.com/vbonduro/lostfound/internal/service"
)

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		s.writeError(w, err, "failed to list items")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, err, "failed to list items")
		return
	}
	includeArchived, err := queryBool(r, "includeArchived")
	if err != nil {
		s.writeError(w, err, "failed to list items")
		return
	}

	q := r.URL.Query()
	result, err := s.items.List(r.Context(), service.ListRequest{
		Type:            q.Get("type"),
		Location:        q.Get("location"),
		Campus:          q.Get("campus"),
		Status:          q.Get("status"),
		IncludeArchived: includeArchived,
		Order:           query.ParseOrder(q.Get("sort")),
		Page:            page,
		Limit:           limit,
	})
	if err != nil {
		s.writeError(w, err, "failed to list items")
		return
	}
	writePage(w, result)
}

func (s *Server) handleListArchived(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		s.writeError(w, err, "failed to fetch archived items")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, err, "failed to fetch archived items")
		return
	}

	result, err := s.items.ListArchived(r.Context(), r.URL.Query().Get("campus"), page, limit)
	if err != nil {
		s.writeError(w, err, "failed to fetch archived items")
		return
	}
	writePage(w, result)
}

func writePage(w http.ResponseWriter, p *service.Page) {
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    toItemsJSON(p.Items),
		Pagination: &pagination{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      p.Total,
			TotalPages: p.TotalPages,
		},
	})
}

func (s *Server) handleCampuses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: domain.Campuses()})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		badRequest(w, "invalid item id")
		return
	}

	item, err := s.items.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err, "failed to fetch item")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toItemJSON(item)})
}

type createItemRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Campus      string `json:"campus"`
	Type        string `json:"type"`
	ContactInfo string `json:"contactInfo"`
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	item, err := s.items.Create(r.Context(), domain.NewItem{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Campus:      req.Campus,
		Type:        req.Type,
		ContactInfo: req.ContactInfo,
	})
	if err != nil {
		s.writeError(w, err, "failed to create item")
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: toItemJSON(item)})
}

type updateItemRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
	Campus      *string `json:"campus"`
	Type        *string `json:"type"`
	ContactInfo *string `json:"contactInfo"`
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		badRequest(w, "invalid item id")
		return
	}
	var req updateItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	item, err := s.items.Update(r.Context(), id, service.UpdateItem{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Campus:      req.Campus,
		Type:        req.Type,
		ContactInfo: req.ContactInfo,
	})
	if err != nil {
		s.writeError(w, err, "failed to update item")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toItemJSON(item)})
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		badRequest(w, "invalid item id")
		return
	}

	if err := s.items.Delete(r.Context(), id); err != nil {
		s.writeError(w, err, "failed to delete item")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Item deleted successfully"})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		badRequest(w, "invalid item id")
		return
	}

	item, err := s.lifecycle.Resolve(r.Context(), id)
	if err != nil {
		s.writeError(w, err, "failed to resolve item")
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Item marked as found/resolved successfully",
		Data:    toItemJSON(item),
	})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		badRequest(w, "invalid item id")
		return
	}

	item, err := s.lifecycle.Archive(r.Context(), id)
	if err != nil {
		s.writeError(w, err, "failed to archive item")
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Item archived successfully",
		Data:    toItemJSON(item),
	})
}

type archivedRefJSON struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

func (s *Server) handleAutoArchive(w http.ResponseWriter, r *http.Request) {
	refs, err := s.lifecycle.SweepExpired(r.Context(), 0)
	if err != nil {
		s.writeError(w, err, "failed to auto-archive items")
		return
	}

	out := make([]archivedRefJSON, 0, len(refs))
	for _, ref := range refs {
		out = append(out, archivedRefJSON{ID: ref.ID, Title: ref.Title})
	}
	days := int(s.lifecycle.Retention().Hours() / 24)
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: fmt.Sprintf("Auto-archived %d items older than %d days", len(refs), days),
		Data:    out,
	})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		badRequest(w, "invalid item id")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, err, "failed to find similar items")
		return
	}

	hits, err := s.engine.Similar(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, err, "failed to find similar items")
		return
	}
	data := hitsJSON(hits)
	total := len(data)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Total: &total})
}
