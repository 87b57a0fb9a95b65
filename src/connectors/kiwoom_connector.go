// REST API CLIENT FOR THE KIWOOM DOMESTIC-STOCK TRADING SERVICE
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"autotrader/src/model"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 4 * time.Second

	// TR ids carried in the api-id header
	trOrderBuy        = "kt10000"
	trOrderSell       = "kt10001"
	trOrderCancel     = "kt10003"
	trOrderStatus     = "kt10004"
	trOpenOrders      = "ka10075"
	trQuote           = "ka10001"
	trDailyChart      = "ka10081"
	trAccountDeposit  = "kt00001"
	trAccountHoldings = "kt00018"

	tokenLifetime = 24 * time.Hour
)

// OrderResponse is the decoded shape of the order submit/cancel/status
// endpoints. The upstream API is not a single stable contract: success may
// arrive as return_code 0, rt_cd "0", a bare ord_no, or an order number
// buried in output. The mapper package decides which shape wins.
type OrderResponse struct {
	ReturnCode *int         `json:"return_code,omitempty"`
	ReturnMsg  string       `json:"return_msg,omitempty"`
	RtCd       string       `json:"rt_cd,omitempty"`
	Msg1       string       `json:"msg1,omitempty"`
	OrderNo    string       `json:"ord_no,omitempty"`
	Output     *OrderOutput `json:"output,omitempty"`
}

type OrderOutput struct {
	OrderNo         string `json:"ord_no,omitempty"`
	ExchangeOrderNo string `json:"KRX_FWDG_ORD_ORGNO,omitempty"`
	StatusCode      string `json:"ord_sts_cd,omitempty"`
	ExecQty         string `json:"exec_qty,omitempty"`
	ExecAvgPrice    string `json:"exec_avg_prc,omitempty"`
}

// OpenOrdersResponse is the decoded ka10075 open-order listing.
type OpenOrdersResponse struct {
	ReturnCode *int             `json:"return_code,omitempty"`
	ReturnMsg  string           `json:"return_msg,omitempty"`
	RtCd       string           `json:"rt_cd,omitempty"`
	Orders     []OpenOrderEntry `json:"oso"`
}

type OpenOrderEntry struct {
	OrderNo     string `json:"ord_no"`
	Symbol      string `json:"stk_cd"`
	SymbolName  string `json:"stk_nm"`
	SideName    string `json:"io_tp_nm"`
	Quantity    string `json:"ord_qty"`
	Price       string `json:"ord_pric"`
	Status      string `json:"ord_stt"`
	FilledQty   string `json:"cntr_qty"`
	FilledPrice string `json:"cntr_pric"`
	Time        string `json:"tm"`
}

type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	ExpiresDt   string `json:"expires_dt"`
}

// Client is the authenticated Kiwoom REST client. It issues and refreshes
// the bearer token on demand; every call carries the request timeout from
// config so a hung broker cannot stall the scan loop.
type Client struct {
	appKey    string
	appSecret string
	baseURL   string
	http      *resty.Client
	// httpMutate carries no retry policy. An order submit or cancel that
	// times out after reaching the broker must not be resent; reconciliation
	// discovers the true outcome instead.
	httpMutate *resty.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	now func() time.Time
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewClient(appKey, appSecret, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://mockapi.kiwoom.com"
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	mutateClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)

	return &Client{
		appKey:     appKey,
		appSecret:  appSecret,
		baseURL:    baseURL,
		http:       httpClient,
		httpMutate: mutateClient,
		now:        time.Now,
	}
}

// AccessToken returns a valid bearer token, issuing a fresh one when the
// cached token is absent or expired.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json;charset=UTF-8").
		SetBody(map[string]string{
			"grant_type": "client_credentials",
			"appkey":     c.appKey,
			"secretkey":  c.appSecret,
		}).
		Post("/oauth2/token")
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("token HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var tok tokenResponse
	if err := json.Unmarshal(resp.Body(), &tok); err != nil {
		return "", fmt.Errorf("token decode failed: %w", err)
	}

	token := tok.Token
	if token == "" {
		token = tok.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("token response carried no token")
	}

	c.accessToken = token
	c.tokenExpiry = c.parseExpiry(tok.ExpiresDt)

	logger.WithField("expires_at", c.tokenExpiry).Info("access token issued")
	return token, nil
}

func (c *Client) parseExpiry(expiresDt string) time.Time {
	if expiresDt != "" {
		if t, err := time.ParseInLocation("20060102150405", expiresDt, time.Local); err == nil {
			return t
		}
	}
	return c.now().Add(tokenLifetime)
}

func (c *Client) doRequest(ctx context.Context, apiID, path string, body interface{}, out interface{}) error {
	return c.do(ctx, c.http, apiID, path, body, out)
}

// doOrderRequest sends through the non-retrying client. Used for the order
// mutation TRs only.
func (c *Client) doOrderRequest(ctx context.Context, apiID, path string, body interface{}, out interface{}) error {
	return c.do(ctx, c.httpMutate, apiID, path, body, out)
}

func (c *Client) do(ctx context.Context, httpc *resty.Client, apiID, path string, body interface{}, out interface{}) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	resp, err := httpc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json;charset=UTF-8").
		SetHeader("authorization", "Bearer "+token).
		SetHeader("api-id", apiID).
		SetBody(body).
		Post(path)
	if err != nil {
		return err
	}

	if resp.StatusCode() == 401 {
		// stale token, drop it so the next call re-issues
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		return fmt.Errorf("HTTP 401: %s", string(resp.Body()))
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode %s response: %w", apiID, err)
		}
	}
	return nil
}

// NormalizeSymbol strips the exchange "A" prefix the upstream feeds carry.
func NormalizeSymbol(symbol string) string {
	return strings.TrimPrefix(strings.TrimSpace(symbol), "A")
}

// priceTypeToTradeType maps order price-type codes to the trde_tp field.
var priceTypeToTradeType = map[string]string{
	model.PriceTypeLimit:       "0",
	model.PriceTypeMarket:      "3",
	model.PriceTypeConditional: "5",
	model.PriceTypeBestLimit:   "6",
	model.PriceTypeFirstLimit:  "7",
}

// PlaceOrder submits a buy or sell order and returns the decoded response.
// Transport and non-200 failures come back as errors; business rejection is
// visible in the decoded payload.
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (*OrderResponse, error) {
	apiID := trOrderBuy
	if req.Side == model.OrderSideSell {
		apiID = trOrderSell
	}

	tradeType, ok := priceTypeToTradeType[req.PriceType]
	if !ok {
		tradeType = "0"
	}

	orderPrice := strconv.Itoa(int(req.Price))
	if req.PriceType == model.PriceTypeMarket {
		orderPrice = ""
	}

	body := map[string]string{
		"dmst_stex_tp": "KRX",
		"stk_cd":       NormalizeSymbol(req.Symbol),
		"ord_qty":      strconv.Itoa(req.Quantity),
		"ord_uv":       orderPrice,
		"trde_tp":      tradeType,
		"cond_uv":      "",
	}

	logger.WithFields(map[string]interface{}{
		"symbol":  req.Symbol,
		"side":    req.Side,
		"qty":     req.Quantity,
		"price":   req.Price,
		"trde_tp": tradeType,
		"api_id":  apiID,
	}).Info("placing order")

	var decoded OrderResponse
	if err := c.doOrderRequest(ctx, apiID, "/api/dostk/ordr", body, &decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

// CancelOrder requests cancellation of an open order.
func (c *Client) CancelOrder(ctx context.Context, orderNo, symbol string, quantity int) (*OrderResponse, error) {
	body := map[string]string{
		"dmst_stex_tp": "KRX",
		"orig_ord_no":  orderNo,
		"stk_cd":       NormalizeSymbol(symbol),
		"cncl_qty":     strconv.Itoa(quantity),
	}

	logger.WithFields(map[string]interface{}{
		"order_no": orderNo,
		"symbol":   symbol,
		"qty":      quantity,
	}).Info("cancelling order")

	var decoded OrderResponse
	if err := c.doOrderRequest(ctx, trOrderCancel, "/api/dostk/ordr", body, &decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

// OrderStatus polls the broker for one order's current state.
func (c *Client) OrderStatus(ctx context.Context, orderNo string) (*OrderResponse, error) {
	body := map[string]string{
		"ord_no": orderNo,
	}

	var decoded OrderResponse
	if err := c.doRequest(ctx, trOrderStatus, "/api/dostk/ordr", body, &decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

// OpenOrders lists the broker-side unfilled orders.
func (c *Client) OpenOrders(ctx context.Context) (*OpenOrdersResponse, error) {
	body := map[string]string{
		"all_stk_tp": "0",
		"trde_tp":    "0",
		"stex_tp":    "0",
	}

	var decoded OpenOrdersResponse
	if err := c.doRequest(ctx, trOpenOrders, "/api/dostk/acnt", body, &decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

type quoteResponse struct {
	ReturnCode *int            `json:"return_code,omitempty"`
	RtCd       string          `json:"rt_cd,omitempty"`
	Output     json.RawMessage `json:"output"`
}

type quoteOutput struct {
	CurrentPrice string `json:"prpr"`
}

// Quote returns the current price for a symbol. A zero or missing price is
// an error: the scan loop must never trade on a dummy quote.
func (c *Client) Quote(ctx context.Context, symbol string) (float64, error) {
	body := map[string]string{
		"stk_cd": NormalizeSymbol(symbol),
	}

	var decoded quoteResponse
	if err := c.doRequest(ctx, trQuote, "/api/dostk/stkinfo", body, &decoded); err != nil {
		return 0, err
	}

	output, err := firstQuoteOutput(decoded.Output)
	if err != nil {
		return 0, fmt.Errorf("quote for %s: %w", symbol, err)
	}

	// prices arrive signed ("-71000" marks a down day)
	raw := strings.TrimPrefix(strings.TrimPrefix(output.CurrentPrice, "-"), "+")
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("invalid price %q for %s", output.CurrentPrice, symbol)
	}
	return price, nil
}

// firstQuoteOutput tolerates the two shapes the quote endpoint answers with:
// a single output object or a one-element list.
func firstQuoteOutput(raw json.RawMessage) (*quoteOutput, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty output")
	}

	var single quoteOutput
	if err := json.Unmarshal(raw, &single); err == nil && single.CurrentPrice != "" {
		return &single, nil
	}

	var list []quoteOutput
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return &list[0], nil
	}

	return nil, fmt.Errorf("unrecognized output shape")
}

type balanceResponse struct {
	AvailableCash string `json:"prsm_dpst_aset_amt"`
}

// AvailableCash returns the estimated deposit available for new buys.
func (c *Client) AvailableCash(ctx context.Context) (float64, error) {
	var decoded balanceResponse
	if err := c.doRequest(ctx, trAccountDeposit, "/api/dostk/acnt", map[string]string{}, &decoded); err != nil {
		return 0, err
	}

	if decoded.AvailableCash == "" {
		return 0, nil
	}

	cash, err := strconv.ParseFloat(decoded.AvailableCash, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid deposit amount %q", decoded.AvailableCash)
	}
	return cash, nil
}

type holdingsResponse struct {
	Output []struct {
		Symbol   string `json:"stk_cd"`
		Quantity string `json:"hldg_qty"`
	} `json:"output"`
}

// HoldingQuantity returns how many shares of symbol the account holds.
func (c *Client) HoldingQuantity(ctx context.Context, symbol string) (int, error) {
	var decoded holdingsResponse
	if err := c.doRequest(ctx, trAccountHoldings, "/api/dostk/acnt", map[string]string{}, &decoded); err != nil {
		return 0, err
	}

	want := NormalizeSymbol(symbol)
	for _, holding := range decoded.Output {
		if NormalizeSymbol(holding.Symbol) != want {
			continue
		}
		qty, err := strconv.Atoi(holding.Quantity)
		if err != nil {
			return 0, fmt.Errorf("invalid holding quantity %q for %s", holding.Quantity, symbol)
		}
		return qty, nil
	}
	return 0, nil
}

type chartResponse struct {
	Output []struct {
		ClosePrice string `json:"cur_prc"`
	} `json:"stk_dt_pole_chart_qry"`
}

// DailyClosePrices returns up to count daily closes, oldest first.
func (c *Client) DailyClosePrices(ctx context.Context, symbol string, count int) ([]float64, error) {
	body := map[string]string{
		"stk_cd":       NormalizeSymbol(symbol),
		"base_dt":      c.now().Format("20060102"),
		"upd_stkpc_tp": "1",
	}

	var decoded chartResponse
	if err := c.doRequest(ctx, trDailyChart, "/api/dostk/chart", body, &decoded); err != nil {
		return nil, err
	}

	// the endpoint answers newest first
	var closes []float64
	for i := len(decoded.Output) - 1; i >= 0; i-- {
		raw := strings.TrimPrefix(strings.TrimPrefix(decoded.Output[i].ClosePrice, "-"), "+")
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil || price <= 0 {
			continue
		}
		closes = append(closes, price)
	}

	if count > 0 && len(closes) > count {
		closes = closes[len(closes)-count:]
	}
	return closes, nil
}
