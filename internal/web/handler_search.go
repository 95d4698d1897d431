package web

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/vbonduro/lostfound/internal/imaging"
	"github.com/vbonduro/lostfound/internal/search"
)

// maxSearchBody admits a base64 image of the largest accepted upload, data:
// URL prefix and filter fields included.
var maxSearchBody = int64(base64.StdEncoding.EncodedLen(imaging.MaxUploadBytes)) + 1<<16

type searchKind int

const (
	searchText searchKind = iota
	searchImage
	searchHybrid
)

type searchRequest struct {
	Query           string   `json:"query"`
	ImageData       string   `json:"imageData"`
	Limit           int      `json:"limit"`
	Type            string   `json:"type"`
	Location        string   `json:"location"`
	Campus          string   `json:"campus"`
	IncludeArchived bool     `json:"includeArchived"`
	MinSimilarity   *float64 `json:"minSimilarity"`
	TextWeight      *float64 `json:"textWeight"`
}

var errBadImageData = errors.New("imageData must be base64 encoded")

// decodeImageData accepts raw base64 or a data: URL.
func decodeImageData(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		_, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, errBadImageData
		}
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errBadImageData
	}
	return data, nil
}

// handleSearch serves one search route. The text and image routes use only
// their own input; hybrid takes either or both.
func (s *Server) handleSearch(kind searchKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := decodeJSONLimit(w, r, &req, maxSearchBody); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, envelope{Error: "image exceeds the 10MB limit"})
				return
			}
			badRequest(w, err.Error())
			return
		}

		sr := search.Request{
			Type:            req.Type,
			Location:        req.Location,
			Campus:          req.Campus,
			IncludeArchived: req.IncludeArchived,
			MinSimilarity:   req.MinSimilarity,
			Limit:           req.Limit,
			TextWeight:      req.TextWeight,
		}
		if kind != searchImage {
			sr.Text = req.Query
		}
		if kind != searchText {
			img, err := decodeImageData(req.ImageData)
			if err != nil {
				badRequest(w, err.Error())
				return
			}
			sr.Image = img
		}

		switch {
		case kind == searchText && strings.TrimSpace(sr.Text) == "":
			badRequest(w, "Search query is required")
			return
		case kind == searchImage && len(sr.Image) == 0:
			badRequest(w, "Image data is required")
			return
		}

		results, err := s.engine.Search(r.Context(), sr)
		if err != nil {
			s.writeError(w, err, "search failed")
			return
		}

		data := hitsJSON(results.Hits)
		total := len(data)
		writeJSON(w, http.StatusOK, envelope{
			Success:  true,
			Data:     data,
			Total:    &total,
			Mode:     string(results.Mode),
			Degraded: results.Degraded,
		})
	}
}

func hitsJSON(hits []search.Hit) []itemJSON {
	out := make([]itemJSON, 0, len(hits))
	for _, h := range hits {
		item := toItemJSON(h.Item)
		score := h.Score
		item.SimilarityScore = &score
		out = append(out, item)
	}
	return out
}
