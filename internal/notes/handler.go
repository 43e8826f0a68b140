package notes

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"readingnotes/internal"
	"readingnotes/internal/logger"
	"readingnotes/internal/resolver"
	"readingnotes/internal/storage"
)

type Handler struct {
	svc *Service
	log *logger.Logger
}

func NewHandler(svc *Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/notes", h.create)
	rg.GET("/notes", h.list)
	rg.GET("/notes/:id", h.getOne)
	rg.PATCH("/notes/:id", h.update)
	rg.POST("/notes/:id/link", h.link)
	rg.POST("/notes/:id/unlink", h.unlink)
	rg.GET("/books/candidates", h.candidates)
}

type updateReq struct {
	Sentence  *string `json:"sentence"`
	Comment   *string `json:"comment"`
	RawTitle  *string `json:"rawTitle"`
	RawAuthor *string `json:"rawAuthor"`
}

// linkReq takes the date as text; a blank or unreadable date drops to nil
// instead of rejecting the pick.
type linkReq struct {
	Source        string  `json:"source"`
	ExternalID    string  `json:"externalId"`
	Title         string  `json:"title"`
	Author        *string `json:"author"`
	ISBN10        *string `json:"isbn10"`
	ISBN13        *string `json:"isbn13"`
	Publisher     *string `json:"publisher"`
	PublishedDate string  `json:"publishedDate"`
	ThumbnailURL  *string `json:"thumbnailUrl"`
}

func (r linkReq) candidate() internal.Candidate {
	return internal.Candidate{
		Source:        r.Source,
		ExternalID:    r.ExternalID,
		Title:         r.Title,
		Author:        r.Author,
		ISBN10:        r.ISBN10,
		ISBN13:        r.ISBN13,
		Publisher:     r.Publisher,
		PublishedDate: internal.ParsePublishedDate(r.PublishedDate),
		ThumbnailURL:  r.ThumbnailURL,
	}
}

func (h *Handler) create(c *gin.Context) {
	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	note, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (h *Handler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	items, err := h.svc.List(c.Request.Context(), c.Query("status"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if items == nil {
		items = []internal.Note{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) getOne(c *gin.Context) {
	id, ok := noteID(c)
	if !ok {
		return
	}
	note, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if note == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *Handler) update(c *gin.Context) {
	id, ok := noteID(c)
	if !ok {
		return
	}
	var req updateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	note, err := h.svc.Update(c.Request.Context(), id, storage.NoteUpdate(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *Handler) link(c *gin.Context) {
	id, ok := noteID(c)
	if !ok {
		return
	}
	var req linkReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	note, err := h.svc.Link(c.Request.Context(), id, req.candidate())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *Handler) unlink(c *gin.Context) {
	id, ok := noteID(c)
	if !ok {
		return
	}
	note, err := h.svc.Unlink(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *Handler) candidates(c *gin.Context) {
	title := strings.TrimSpace(c.Query("title"))
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	items := h.svc.Candidates(c.Request.Context(), title, strings.TrimSpace(c.Query("author")), limit)
	if items == nil {
		items = []internal.Candidate{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrEmptySentence), errors.Is(err, resolver.ErrInvalidCandidate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, resolver.ErrNoteNotFound), errors.Is(err, resolver.ErrBookNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func noteID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid note id"})
		return 0, false
	}
	return id, true
}
