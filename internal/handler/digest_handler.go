package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const noContentPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Digest preview</title></head>
<body><p>No content for the digest.</p></body></html>
`

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		badID(c)
		return 0, false
	}
	return uint(id), true
}

// GetDigests returns all digests, newest first
func (h *Handlers) GetDigests(c *gin.Context) {
	digests, err := h.controller.GetDigests(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	responses := make([]*DigestResponse, 0, len(digests))
	for i := range digests {
		responses = append(responses, toDigestResponse(&digests[i]))
	}

	c.JSON(http.StatusOK, gin.H{"digests": responses})
}

// GetDigest returns a specific digest
func (h *Handlers) GetDigest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	d, err := h.controller.GetDigest(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toDigestResponse(d))
}

// ViewDigest renders a digest as a web page
func (h *Handlers) ViewDigest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	rd, err := h.controller.ViewDigest(c.Request.Context(), h.settings.Settings(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(rd.HTML))
}

// PreviewDigest renders what the next digest would contain
func (h *Handlers) PreviewDigest(c *gin.Context) {
	rd, ok, err := h.controller.PreviewDigest(c.Request.Context(), h.settings.Settings())
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(noContentPage))
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(rd.HTML))
}

// NextDigest reports whether there is content for a new digest
func (h *Handlers) NextDigest(c *gin.Context) {
	ok, err := h.controller.HasNextDigestContent(c.Request.Context(), h.settings.Settings())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"has_content": ok})
}

// PrepareDigest creates a new digest from the current candidates
func (h *Handlers) PrepareDigest(c *gin.Context) {
	res, err := h.controller.PrepareDigest(c.Request.Context(), h.settings.Settings())
	if err != nil {
		writeError(c, err)
		return
	}

	if res.Empty {
		c.JSON(http.StatusOK, PrepareResponse{Empty: true})
		return
	}

	c.JSON(http.StatusCreated, PrepareResponse{Digest: toDigestResponse(res.Digest)})
}

// NotifyValidators renders a digest and sends it to the validators
func (h *Handlers) NotifyValidators(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	d, err := h.controller.NotifyValidators(c.Request.Context(), h.settings.Settings(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toDigestResponse(d))
}

// SendTestDigest sends a prepared digest to the test groups
func (h *Handlers) SendTestDigest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.controller.SendTestDigest(c.Request.Context(), h.settings.Settings(), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Test digest sent successfully",
	})
}

// SendDigest sends a prepared digest to its audience
func (h *Handlers) SendDigest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	d, err := h.controller.SendDigest(c.Request.Context(), h.settings.Settings(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toDigestResponse(d))
}
