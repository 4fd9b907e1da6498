package stars

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"starnotary/pkg/accounts"
	"starnotary/pkg/response"
)

type StarHandler struct {
	service StarService
}

func NewStarHandler(service StarService) *StarHandler {
	return &StarHandler{service: service}
}

// RegisterRoutes mounts the ledger routes. requireCaller guards every route
// that acts on behalf of an account and must leave the caller id where
// accounts.CallerID finds it.
func (h *StarHandler) RegisterRoutes(router *gin.Engine, requireCaller gin.HandlerFunc) {
	router.GET("/stars", h.listStars)
	router.GET("/stars/:id", h.getStar)
	router.GET("/stars/:id/name", h.lookupName)
	router.GET("/stars/:id/owner", h.ownerOf)
	router.GET("/stars/:id/history", h.history)
	router.GET("/accounts/:uuid/balance", h.balanceOf)

	authed := router.Group("/", requireCaller)
	authed.POST("/stars", h.createStar)
	authed.PUT("/stars/:id/sale", h.putUpForSale)
	authed.POST("/stars/:id/buy", h.buyStar)
	authed.POST("/stars/:id/transfer", h.transferStar)
	authed.POST("/stars/exchange", h.exchangeStars)
	authed.POST("/wallet/deposit", h.deposit)
	authed.POST("/wallet/withdraw", h.withdraw)
}

type createStarRequest struct {
	ID   int64  `json:"id" binding:"required"`
	Name string `json:"name" binding:"required"`
}

type saleRequest struct {
	Price decimal.Decimal `json:"price"`
}

type buyRequest struct {
	Payment decimal.Decimal `json:"payment"`
}

type transferRequest struct {
	To string `json:"to" binding:"required"`
}

type exchangeRequest struct {
	StarA int64 `json:"star_a" binding:"required"`
	StarB int64 `json:"star_b" binding:"required"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type nameResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ownerResponse struct {
	ID    int64  `json:"id"`
	Owner string `json:"owner"`
}

type balanceResponse struct {
	Account string          `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

// @Summary      Create a star
// @Description  Registers a new star owned by the caller
// @Tags         stars
// @Accept       json
// @Produce      json
// @Security     BasicAuth
// @Param        request body createStarRequest true "Star creation request"
// @Success      201  {object}  response.APIResponse{data=Star} "Star created"
// @Failure      400  {object}  response.APIResponse "Invalid request payload"
// @Failure      401  {object}  response.APIResponse "Missing or invalid credentials"
// @Failure      409  {object}  response.APIResponse "Star id already exists"
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /stars [post]
func (h *StarHandler) createStar(c *gin.Context) {
	var req createStarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	if req.ID <= 0 {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "id must be positive", nil)
		return
	}

	star, err := h.service.CreateStar(c.Request.Context(), req.Name, req.ID, accounts.CallerID(c))
	if err != nil {
		sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusCreated, true, "star created", star)
}

// @Summary      Put a star up for sale
// @Description  Lists the caller's star at the given price. Re-listing replaces the price.
// @Tags         stars
// @Accept       json
// @Produce      json
// @Security     BasicAuth
// @Param        id   path      int  true  "Star ID"
// @Param        request body saleRequest true "Asking price"
// @Success      200  {object}  response.APIResponse{data=Star} "Star listed"
// @Failure      400  {object}  response.APIResponse "Invalid star ID or price"
// @Failure      403  {object}  response.APIResponse "Caller does not own the star"
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /stars/{id}/sale [put]
func (h *StarHandler) putUpForSale(c *gin.Context) {
	id, ok := starIDParam(c)
	if !ok {
		return
	}

	var req saleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	star, err := h.service.PutUpForSale(c.Request.Context(), id, req.Price, accounts.CallerID(c))
	if err != nil {
		sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "star listed for sale", star)
}

// @Summary      Buy a star
// @Description  Buys a listed star. Only the asking price leaves the caller's balance; any excess payment is refunded.
// @Tags         stars
// @Accept       json
// @Produce      json
// @Security     BasicAuth
// @Param        id   path      int  true  "Star ID"
// @Param        request body buyRequest true "Tendered payment"
// @Success      200  {object}  response.APIResponse{data=Receipt} "Star bought"
// @Failure      400  {object}  response.APIResponse "Invalid star ID"
// @Failure      402  {object}  response.APIResponse "Payment or balance too low"
// @Failure      409  {object}  response.APIResponse "Star is not for sale"
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /stars/{id}/buy [post]
func (h *StarHandler) buyStar(c *gin.Context) {
	id, ok := starIDParam(c)
	if !ok {
		return
	}

	var req buyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	receipt, err := h.service.BuyStar(c.Request.Context(), id, accounts.CallerID(c), req.Payment)
	if err != nil {
		sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "star bought", receipt)
}

// @Summary      Transfer a star
// @Description  Gives the caller's star to another account without payment
// @Tags         stars
// @Accept       json
// @Produce      json
// @Security     BasicAuth
// @Param        id   path      int  true  "Star ID"
// @Param        request body transferRequest true "Recipient"
// @Success      200  {object}  response.APIResponse{data=Star} "Star transferred"
// @Failure      400  {object}  response.APIResponse "Invalid request"
// @Failure      403  {object}  response.APIResponse "Caller does not own the star"
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /stars/{id}/transfer [post]
func (h *StarHandler) transferStar(c *gin.Context) {
	id, ok := starIDParam(c)
	if !ok {
		return
	}

	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	star, err := h.service.TransferStar(c.Request.Context(), req.To, id, accounts.CallerID(c))
	if err != nil {
		sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "star transferred", star)
}

// @Summary      Exchange two stars
// @Description  Swaps the owners of star_a (owned by the caller) and star_b
// @Tags         stars
// @Accept       json
// @Produce      json
// @Security     BasicAuth
// @Param        request body exchangeRequest true "Stars to swap"
// @Success      200  {object}  response.APIResponse "Stars exchanged"
// @Failure      400  {object}  response.APIResponse "Invalid request"
// @Failure      403  {object}  response.APIResponse "Caller does not own star_a"
// @Failure      404  {object}  response.APIResponse "star_b not found"
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /stars/exchange [post]
func (h *StarHandler) exchangeStars(c *gin.Context) {
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	if req.StarA <= 0 || req.StarB <= 0 {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "star ids must be positive", nil)
		return
	}

	if err := h.service.ExchangeStars(c.Request.Context(), req.StarA, req.StarB, accounts.CallerID(c)); err != nil {
		sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "stars exchanged", nil)
}

// @Summary      Get star by ID
// @Description  Retrieves a star, including its asking price while it is for sale
// @Tags         stars
// @Produce      json
// @Param        id   path      int  true  "Star ID"
// @Success      200  {object}  response.APIResponse{data=Star} "Star retrieved"
// @Failure      400  {object}  response.APIResponse "Invalid star ID"
// @Failure      404  {object}  response.APIResponse "Star not found"
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /stars/{id} [get]
func (h *StarHandler) getStar(c *gin.Context) {
	id, ok := starIDParam(c)
	if !ok {
		return
	}

	star, err := h.service.GetStar(c.Request.Context(), id)
	if err != nil {
		sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "star fetched", star)
}

// @Summary      Look up a star's name
// @Tags         stars
// @Produce      json
// @Param        id   path      int  true  "Star ID"
// @Success      200  {object}  response.APIResponse{data=nameResponse}
// @Failure      404  {object}  response.APIResponse "Star not found"
// @Router       /stars/{id}/name [get]
func (h *StarHandler) lookupName(c *gin.Context) {
	id, ok := starIDParam(c)
	if !ok {
		return
	}

	name, err := h.service.LookupName(c.Request.Context(), id)
	if err != nil {
		sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "star name fetched", nameResponse{ID: id, Name: name})
}

// @Summary      Look up a star's owner
// @Tags         stars
// @Produce      json
// @Param        id   path      int  true  "Star ID"
// @Success      200  {object}  response.APIResponse{data=ownerResponse}
// @Failure      404  {object}  response.APIResponse "Star not found"
// @Router       /stars/{id}/owner [get]
func (h *StarHandler) ownerOf(c *gin.Context) {
	id, ok := starIDParam(c)
	if !ok {
		return
	}

	owner, err := h.service.OwnerOf(c.Request.Context(), id)
	if err != nil {
		sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "star owner fetched", ownerResponse{ID: id, Owner: owner})
}

// @Summary      Star history
// @Description  Lists every committed change to the star, oldest first
// @Tags         stars
// @Produce      json
// @Param        id   path      int  true  "Star ID"
// @Success      200  {object}  response.APIResponse{data=[]Event}
// @Failure      404  {object}  response.APIResponse "Star not found"
// @Router       /stars/{id}/history [get]
func (h *StarHandler) history(c *gin.Context) {
	id, ok := starIDParam(c)
	if !ok {
		return
	}

	events, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "star history fetched", events)
}

// @Summary      List stars
// @Description  Retrieves a paginated list of stars with optional filters
// @Tags         stars
// @Produce      json
// @Param        page      query     int     false  "Page number" default(1)
// @Param        limit     query     int     false  "Items per page" default(10)
// @Param        owner     query     string  false  "Filter by owner"
// @Param        for_sale  query     bool    false  "Filter by sale status"
// @Success      200  {object}  response.APIResponse{data=StarList} "Stars retrieved"
// @Failure      400  {object}  response.APIResponse "Page out of range"
// @Failure      500  {object}  response.APIResponse "Internal server error"
// @Router       /stars [get]
func (h *StarHandler) listStars(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	filters := StarFilters{}

	if owner := c.Query("owner"); owner != "" {
		filters.Owner = &owner
	}

	if forSaleStr := c.Query("for_sale"); forSaleStr != "" {
		forSale, err := strconv.ParseBool(forSaleStr)
		if err == nil {
			filters.ForSale = &forSale
		}
	}

	starsList, total, err := h.service.ListStars(c.Request.Context(), filters, page, limit)
	if err != nil {
		sendError(c, err)
		return
	}

	data := StarList{Items: starsList, Total: total, Page: page, Limit: limit}
	response.SendAPIResponse(c, http.StatusOK, true, "stars listed", data)
}

// @Summary      Account balance
// @Tags         wallet
// @Produce      json
// @Param        uuid   path      string  true  "Account UUID"
// @Success      200  {object}  response.APIResponse{data=balanceResponse}
// @Router       /accounts/{uuid}/balance [get]
func (h *StarHandler) balanceOf(c *gin.Context) {
	account := c.Param("uuid")

	balance, err := h.service.BalanceOf(c.Request.Context(), account)
	if err != nil {
		sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "balance fetched", balanceResponse{Account: account, Balance: balance})
}

// @Summary      Deposit funds
// @Description  Adds funds to the caller's balance
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Security     BasicAuth
// @Param        request body amountRequest true "Amount"
// @Success      200  {object}  response.APIResponse{data=balanceResponse}
// @Failure      400  {object}  response.APIResponse "Invalid amount"
// @Router       /wallet/deposit [post]
func (h *StarHandler) deposit(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	caller := accounts.CallerID(c)
	balance, err := h.service.Deposit(c.Request.Context(), caller, req.Amount)
	if err != nil {
		sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "funds deposited", balanceResponse{Account: caller, Balance: balance})
}

// @Summary      Withdraw funds
// @Description  Removes funds from the caller's balance
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Security     BasicAuth
// @Param        request body amountRequest true "Amount"
// @Success      200  {object}  response.APIResponse{data=balanceResponse}
// @Failure      400  {object}  response.APIResponse "Invalid amount"
// @Failure      402  {object}  response.APIResponse "Balance too low"
// @Router       /wallet/withdraw [post]
func (h *StarHandler) withdraw(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	caller := accounts.CallerID(c)
	balance, err := h.service.Withdraw(c.Request.Context(), caller, req.Amount)
	if err != nil {
		sendError(c, err)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "funds withdrawn", balanceResponse{Account: caller, Balance: balance})
}

func starIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid star id", nil)
		return 0, false
	}
	return id, true
}

func sendError(c *gin.Context, err error) {
	response.SendAPIResponse(c, statusFor(err), false, err.Error(), nil)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidAccount),
		errors.Is(err, ErrPageOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientPayment),
		errors.Is(err, ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrUnknownID):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateID),
		errors.Is(err, ErrNotListed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
