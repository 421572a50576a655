package handlers

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"github.com/ignatzorin/homemaster-backend/internal/http/handlers/common"
	"github.com/ignatzorin/homemaster-backend/internal/repository"
	"github.com/ignatzorin/homemaster-backend/internal/storage"
)

// допустимые форматы фотографий заявок
var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/heif": {},
}

// MediaHandler загрузка фотографий к заявке (до/после работ).
type MediaHandler struct {
	jobs    *repository.JobRepository
	storage *storage.PhotoStorage
}

func NewMediaHandler(jobs *repository.JobRepository, storage *storage.PhotoStorage) *MediaHandler {
	return &MediaHandler{jobs: jobs, storage: storage}
}

// Upload POST /api/jobs/:id/media — multipart-поле "file". Тип файла
// определяется по magic-байтам, расширению имени не доверяем.
func (h *MediaHandler) Upload(c *gin.Context) {
	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		common.RespondBadRequest(c, "файл обязателен (поле file)")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		common.RespondBadRequest(c, "не удалось прочитать файл")
		return
	}
	defer file.Close()

	head := make([]byte, 261)
	n, _ := file.Read(head)
	kind, err := filetype.Match(head[:n])
	if err != nil || kind == filetype.Unknown {
		common.RespondBadRequest(c, "не удалось определить тип файла")
		return
	}
	if _, ok := allowedImageTypes[kind.MIME.Value]; !ok {
		common.RespondBadRequest(c, "допустимы только изображения: "+kind.MIME.Value)
		return
	}
	if _, err := file.Seek(0, 0); err != nil {
		c.Error(err)
		return
	}

	mediaID := uuid.New()
	path, size, err := h.storage.Save(c.Request.Context(), jobID, mediaID.String()+"."+kind.Extension, file)
	if err != nil {
		if errors.Is(err, storage.ErrFileTooLarge) {
			common.RespondBadRequest(c, err.Error())
			return
		}
		c.Error(err)
		return
	}

	if err := h.jobs.AttachMedia(c.Request.Context(), jobID, mediaID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"media_id": mediaID,
		"url":      "/media/" + jobID.String() + "/" + filepath.Base(path),
		"size":     size,
	})
}
