package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/vbonduro/lostfound/internal/domain"
	"github.com/vbonduro/lostfound/internal/imaging"
	"github.com/vbonduro/lostfound/internal/service"
)

// maxUploadBody leaves room for the form fields around the image.
const maxUploadBody = imaging.MaxUploadBytes + 1<<20

// maxMultiUploadBody admits a full set of maximum-size images.
const maxMultiUploadBody = service.MaxImagesPerItem*imaging.MaxUploadBytes + 1<<20

// maxFormMemory bounds the part of a multipart form held in memory; larger
// files are spooled to disk.
const maxFormMemory = 32 << 20

// parseUploadForm parses a multipart body of at most limit bytes. It writes
// the error response and returns false on failure.
func (s *Server) parseUploadForm(w http.ResponseWriter, r *http.Request, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(min(limit, maxFormMemory)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, envelope{Error: "image exceeds the 10MB limit"})
			return false
		}
		badRequest(w, "failed to parse form")
		return false
	}
	return true
}

func newItemFromForm(r *http.Request) domain.NewItem {
	return domain.NewItem{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Location:    r.FormValue("location"),
		Campus:      r.FormValue("campus"),
		Type:        r.FormValue("type"),
		ContactInfo: r.FormValue("contactInfo"),
	}
}

func (s *Server) readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer closeWithLog(f, "upload file", s.logger)
	return io.ReadAll(f)
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	if !s.parseUploadForm(w, r, maxUploadBody) {
		return
	}

	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		badRequest(w, "No image file provided")
		return
	}
	imageData, err := s.readFormFile(files[0])
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, envelope{Error: "failed to read file"})
		s.logger.Error("read upload failed", "error", err)
		return
	}

	item, err := s.items.CreateWithImage(r.Context(), newItemFromForm(r), imageData)
	if err != nil {
		s.writeError(w, err, "Failed to upload item")
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Item uploaded successfully",
		Data:    toItemJSON(item),
	})
}

// handleUploadImages stores an item with several photos. The first photo is
// the one used for search.
func (s *Server) handleUploadImages(w http.ResponseWriter, r *http.Request) {
	if !s.parseUploadForm(w, r, maxMultiUploadBody) {
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		badRequest(w, "No image files provided")
		return
	}
	if len(files) > service.MaxImagesPerItem {
		badRequest(w, fmt.Sprintf("At most %d images can be uploaded", service.MaxImagesPerItem))
		return
	}

	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		if fh.Size > imaging.MaxUploadBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, envelope{Error: "image exceeds the 10MB limit"})
			return
		}
		data, err := s.readFormFile(fh)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, envelope{Error: "failed to read file"})
			s.logger.Error("read upload failed", "file", fh.Filename, "error", err)
			return
		}
		images = append(images, data)
	}

	item, err := s.items.CreateWithImages(r.Context(), newItemFromForm(r), images)
	if err != nil {
		s.writeError(w, err, "Failed to upload images")
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Items uploaded successfully",
		Data:    toItemJSON(item),
	})
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	photo, err := s.items.Photo(r.Context(), r.PathValue("key"))
	if err != nil {
		if statusFor(err) == http.StatusNotFound {
			writeJSON(w, http.StatusNotFound, envelope{Error: "image not found"})
			return
		}
		s.logger.Warn("failed to open photo", "image_key", r.PathValue("key"), "error", err)
		writeJSON(w, http.StatusBadRequest, envelope{Error: "invalid image key"})
		return
	}
	defer closeWithLog(photo.Body, "photo reader", s.logger)

	w.Header().Set("Content-Type", photo.MIME)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, photo.Body); err != nil {
		s.logger.Error("write photo failed", "error", err)
	}
}
