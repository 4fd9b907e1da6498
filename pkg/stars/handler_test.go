package stars

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"starnotary/pkg/accounts"
	"starnotary/pkg/response"
)

type mockStarService struct {
	mock.Mock
}

func (m *mockStarService) CreateStar(ctx context.Context, name string, id int64, creator string) (Star, error) {
	args := m.Called(ctx, name, id, creator)
	star, _ := args.Get(0).(Star)
	return star, args.Error(1)
}

func (m *mockStarService) PutUpForSale(ctx context.Context, id int64, price decimal.Decimal, caller string) (Star, error) {
	args := m.Called(ctx, id, price.String(), caller)
	star, _ := args.Get(0).(Star)
	return star, args.Error(1)
}

func (m *mockStarService) BuyStar(ctx context.Context, id int64, caller string, payment decimal.Decimal) (Receipt, error) {
	args := m.Called(ctx, id, caller, payment.String())
	receipt, _ := args.Get(0).(Receipt)
	return receipt, args.Error(1)
}

func (m *mockStarService) ExchangeStars(ctx context.Context, idA, idB int64, caller string) error {
	args := m.Called(ctx, idA, idB, caller)
	return args.Error(0)
}

func (m *mockStarService) TransferStar(ctx context.Context, to string, id int64, caller string) (Star, error) {
	args := m.Called(ctx, to, id, caller)
	star, _ := args.Get(0).(Star)
	return star, args.Error(1)
}

func (m *mockStarService) LookupName(ctx context.Context, id int64) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *mockStarService) OwnerOf(ctx context.Context, id int64) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *mockStarService) GetStar(ctx context.Context, id int64) (Star, error) {
	args := m.Called(ctx, id)
	star, _ := args.Get(0).(Star)
	return star, args.Error(1)
}

func (m *mockStarService) ListStars(ctx context.Context, filters StarFilters, page, limit int) ([]Star, int64, error) {
	args := m.Called(ctx, filters, page, limit)
	stars, _ := args.Get(0).([]Star)
	return stars, args.Get(1).(int64), args.Error(2)
}

func (m *mockStarService) History(ctx context.Context, id int64) ([]Event, error) {
	args := m.Called(ctx, id)
	events, _ := args.Get(0).([]Event)
	return events, args.Error(1)
}

func (m *mockStarService) Deposit(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, account, amount.String())
	balance, _ := args.Get(0).(decimal.Decimal)
	return balance, args.Error(1)
}

func (m *mockStarService) Withdraw(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, account, amount.String())
	balance, _ := args.Get(0).(decimal.Decimal)
	return balance, args.Error(1)
}

func (m *mockStarService) BalanceOf(ctx context.Context, account string) (decimal.Decimal, error) {
	args := m.Called(ctx, account)
	balance, _ := args.Get(0).(decimal.Decimal)
	return balance, args.Error(1)
}

// asCaller stands in for accounts.RequireCaller; requests without an
// X-Caller header are rejected.
func asCaller(c *gin.Context) {
	caller := c.GetHeader("X-Caller")
	if caller == "" {
		response.Abort(c, http.StatusUnauthorized, "missing credentials")
		return
	}
	accounts.SetCaller(c, caller)
	c.Next()
}

func setupRouter(svc StarService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewStarHandler(svc).RegisterRoutes(r, asCaller)
	return r
}

func doRequest(router *gin.Engine, method, path, caller, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if caller != "" {
		req.Header.Set("X-Caller", caller)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateStarHandler(t *testing.T) {
	svc := new(mockStarService)
	router := setupRouter(svc)

	svc.On("CreateStar", mock.Anything, "Awesome Star!", int64(1), "alice").
		Return(Star{ID: 1, Name: "Awesome Star!", Owner: "alice"}, nil)

	w := doRequest(router, http.MethodPost, "/stars", "alice", `{"id":1,"name":"Awesome Star!"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.True(t, decodeResponse(t, w).Success)
	svc.AssertExpectations(t)
}

func TestCreateStarHandler_Rejections(t *testing.T) {
	svc := new(mockStarService)
	router := setupRouter(svc)

	svc.On("CreateStar", mock.Anything, "Dup", int64(2), "alice").Return(nil, ErrDuplicateID)

	w := doRequest(router, http.MethodPost, "/stars", "", `{"id":1,"name":"x"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodPost, "/stars", "alice", `{"name":"no id"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/stars", "alice", `{"id":-4,"name":"negative"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodPost, "/stars", "alice", `{"id":2,"name":"Dup"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, ErrDuplicateID.Error(), decodeResponse(t, w).Message)
}

func TestPutUpForSaleHandler(t *testing.T) {
	svc := new(mockStarService)
	router := setupRouter(svc)

	svc.On("PutUpForSale", mock.Anything, int64(2), "0.01", "alice").
		Return(Star{ID: 2, Owner: "alice", ForSale: true, Price: decimal.RequireFromString("0.01")}, nil)
	svc.On("PutUpForSale", mock.Anything, int64(2), "0.01", "bob").Return(nil, ErrNotOwner)

	w := doRequest(router, http.MethodPut, "/stars/2/sale", "alice", `{"price":"0.01"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPut, "/stars/2/sale", "bob", `{"price":0.01}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, http.MethodPut, "/stars/abc/sale", "alice", `{"price":"1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestBuyStarHandler(t *testing.T) {
	svc := new(mockStarService)
	router := setupRouter(svc)

	receipt := Receipt{
		StarID:   3,
		Seller:   "alice",
		Buyer:    "bob",
		Price:    decimal.RequireFromString("0.01"),
		Tendered: decimal.RequireFromString("0.05"),
		Refund:   decimal.RequireFromString("0.04"),
	}
	svc.On("BuyStar", mock.Anything, int64(3), "bob", "0.05").Return(receipt, nil)
	svc.On("BuyStar", mock.Anything, int64(3), "carol", "0.001").Return(nil, ErrInsufficientPayment)
	svc.On("BuyStar", mock.Anything, int64(4), "bob", "1").Return(nil, ErrNotListed)

	w := doRequest(router, http.MethodPost, "/stars/3/buy", "bob", `{"payment":"0.05"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data Receipt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Data.Refund.Equal(receipt.Refund))

	w = doRequest(router, http.MethodPost, "/stars/3/buy", "carol", `{"payment":"0.001"}`)
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	w = doRequest(router, http.MethodPost, "/stars/4/buy", "bob", `{"payment":"1"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	svc.AssertExpectations(t)
}

func TestExchangeAndTransferHandlers(t *testing.T) {
	svc := new(mockStarService)
	router := setupRouter(svc)

	svc.On("ExchangeStars", mock.Anything, int64(11), int64(22), "alice").Return(nil)
	svc.On("ExchangeStars", mock.Anything, int64(11), int64(99), "alice").Return(ErrUnknownID)
	svc.On("TransferStar", mock.Anything, "bob", int64(33), "alice").Return(Star{ID: 33, Owner: "bob"}, nil)

	w := doRequest(router, http.MethodPost, "/stars/exchange", "alice", `{"star_a":11,"star_b":22}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/stars/exchange", "alice", `{"star_a":11,"star_b":99}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, http.MethodPost, "/stars/33/transfer", "alice", `{"to":"bob"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/stars/33/transfer", "alice", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestReadHandlers(t *testing.T) {
	svc := new(mockStarService)
	router := setupRouter(svc)

	svc.On("GetStar", mock.Anything, int64(1)).Return(Star{ID: 1, Name: "Polaris", Owner: "alice"}, nil)
	svc.On("LookupName", mock.Anything, int64(1)).Return("Polaris", nil)
	svc.On("OwnerOf", mock.Anything, int64(1)).Return("alice", nil)
	svc.On("OwnerOf", mock.Anything, int64(404)).Return("", ErrUnknownID)
	svc.On("History", mock.Anything, int64(1)).Return([]Event{{StarID: 1, Kind: EventCreated}}, nil)

	for _, path := range []string{"/stars/1", "/stars/1/name", "/stars/1/owner", "/stars/1/history"} {
		w := doRequest(router, http.MethodGet, path, "", "")
		require.Equal(t, http.StatusOK, w.Code, path)
	}

	w := doRequest(router, http.MethodGet, "/stars/1/owner", "", "")
	var owner struct {
		Data ownerResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &owner))
	require.Equal(t, "alice", owner.Data.Owner)

	w = doRequest(router, http.MethodGet, "/stars/404/owner", "", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	svc.AssertExpectations(t)
}

func TestListStarsHandler(t *testing.T) {
	svc := new(mockStarService)
	router := setupRouter(svc)

	owner := "alice"
	forSale := true
	svc.On("ListStars", mock.Anything, StarFilters{Owner: &owner, ForSale: &forSale}, 2, 100).
		Return([]Star{{ID: 5}}, int64(6), nil)

	w := doRequest(router, http.MethodGet, "/stars?page=2&limit=500&owner=alice&for_sale=true", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data StarList `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, int64(6), body.Data.Total)
	require.Equal(t, 100, body.Data.Limit)
	svc.AssertExpectations(t)
}

func TestListStarsHandler_PageOutOfRange(t *testing.T) {
	svc := new(mockStarService)
	router := setupRouter(svc)

	svc.On("ListStars", mock.Anything, StarFilters{}, 4611686018427387905, 3).
		Return(nil, int64(0), ErrPageOutOfRange)

	w := doRequest(router, http.MethodGet, "/stars?page=4611686018427387905&limit=3", "", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeResponse(t, w)
	require.False(t, body.Success)
	require.Equal(t, ErrPageOutOfRange.Error(), body.Message)
	svc.AssertExpectations(t)
}

func TestWalletHandlers(t *testing.T) {
	svc := new(mockStarService)
	router := setupRouter(svc)

	svc.On("Deposit", mock.Anything, "alice", "2.5").Return(decimal.RequireFromString("2.5"), nil)
	svc.On("Withdraw", mock.Anything, "alice", "9").Return(nil, ErrInsufficientFunds)
	svc.On("Withdraw", mock.Anything, "alice", "0").Return(nil, ErrInvalidAmount)
	svc.On("BalanceOf", mock.Anything, "alice").Return(decimal.RequireFromString("2.5"), nil)

	w := doRequest(router, http.MethodPost, "/wallet/deposit", "alice", `{"amount":"2.5"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/wallet/withdraw", "alice", `{"amount":"9"}`)
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	w = doRequest(router, http.MethodPost, "/wallet/withdraw", "alice", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/accounts/alice/balance", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data balanceResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Data.Balance.Equal(decimal.RequireFromString("2.5")))
	svc.AssertExpectations(t)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusNotFound, statusFor(ErrUnknownID))
	require.Equal(t, http.StatusBadRequest, statusFor(ErrPageOutOfRange))
	require.Equal(t, http.StatusConflict, statusFor(errors.Join(errors.New("ctx"), ErrNotListed)))
	require.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
