package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/admarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/admarket-backend/internal/service"
)

// ReviewHandler обслуживает отзывы по завершённым контрактам.
type ReviewHandler struct {
	reviews *service.ReviewService
}

// NewReviewHandler создаёт хэндлер.
func NewReviewHandler(reviews *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// Create обрабатывает POST /contracts/:id/reviews.
func (h *ReviewHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	contractID, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Rating  int     `json:"rating" binding:"required"`
		Comment *string `json:"comment"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	review, err := h.reviews.Create(c.Request.Context(), userID, contractID, req.Rating, req.Comment)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, review)
}

// ListForContract обрабатывает GET /contracts/:id/reviews.
func (h *ReviewHandler) ListForContract(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	contractID, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	items, err := h.reviews.ListForContract(c.Request.Context(), actor, contractID)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// ListUserReviews обрабатывает GET /users/:id/reviews.
func (h *ReviewHandler) ListUserReviews(c *gin.Context) {
	userID, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}
	limit, offset := common.GetPagination(c)

	result, err := h.reviews.ListForUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
