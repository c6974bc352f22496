package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mail-digest-go/internal/model"
)

// GetMailings returns the mailing log with pagination
func (h *Handlers) GetMailings(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	offset := (page - 1) * limit

	contentID := c.Query("content_id")
	filter := func(tx *gorm.DB) *gorm.DB {
		if contentID != "" {
			return tx.Where("content_id = ?", contentID)
		}
		return tx
	}
	ctx := c.Request.Context()

	var total int64
	if err := h.db.WithContext(ctx).Model(&model.MailingRecord{}).Scopes(filter).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to count mailings",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	var records []model.MailingRecord
	if err := h.db.WithContext(ctx).Scopes(filter).Order("sent_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&records).Error; err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch mailings",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	responses := make([]MailingResponse, 0, len(records))
	for _, r := range records {
		responses = append(responses, MailingResponse{
			ID:          r.ID,
			MailingID:   r.MailingID,
			ContentID:   r.ContentID,
			ContentType: r.ContentType,
			Language:    r.Language,
			SentAt:      r.SentAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"mailings": responses,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}
