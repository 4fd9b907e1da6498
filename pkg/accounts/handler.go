package accounts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"starnotary/pkg/response"
)

type AccountHandler struct {
	service AccountService
}

func NewAccountHandler(service AccountService) *AccountHandler {
	return &AccountHandler{service: service}
}

func (h *AccountHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/accounts", h.register)
	router.GET("/accounts/:uuid", h.getAccount)
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Register account
// @Description  Creates an account. Use its uuid and password as HTTP Basic credentials.
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Param        request body registerRequest true "Registration request"
// @Success      201 {object} response.APIResponse{data=Account}
// @Failure      400 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Failure      500 {object} response.APIResponse
// @Router       /accounts [post]
func (h *AccountHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	a, err := h.service.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			response.SendAPIResponse(c, http.StatusBadRequest, false, "name, email and a password of at least 8 characters are required", nil)
		case errors.Is(err, ErrEmailTaken):
			response.SendAPIResponse(c, http.StatusConflict, false, err.Error(), nil)
		default:
			response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		}
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "account created", a)
}

// @Summary      Get account by UUID
// @Tags         accounts
// @Produce      json
// @Param        uuid path string true "Account UUID"
// @Success      200 {object} response.APIResponse{data=Account}
// @Failure      404 {object} response.APIResponse
// @Router       /accounts/{uuid} [get]
func (h *AccountHandler) getAccount(c *gin.Context) {
	a, err := h.service.GetAccount(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			response.SendAPIResponse(c, http.StatusNotFound, false, "account not found", nil)
			return
		}
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "account fetched", a)
}
