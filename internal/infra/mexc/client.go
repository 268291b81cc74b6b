package mexc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"autobay/internal/domain"
	"autobay/internal/infra"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Client is the MEXC spot v3 REST API Client (Boundary Layer)
type Client struct {
	baseURL         string
	httpClient      *http.Client
	signer          *Signer
	limiter         *rate.Limiter
	amountPrecision int32
	pricePrecision  int32
	fillPollDelay   time.Duration
	logger          *slog.Logger
}

// NewClient creates a new MEXC API client.
func NewClient(cfg *infra.Config) *Client {
	baseURL := cfg.Exchange.RestURL
	if baseURL == "" {
		baseURL = BaseURL
	}

	rps := cfg.Exchange.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	timeout := cfg.Exchange.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer:          NewSigner(cfg.Exchange.APIKey, cfg.Exchange.Secret, cfg.Exchange.RecvWindowMS),
		limiter:         rate.NewLimiter(rate.Limit(rps), 1),
		amountPrecision: cfg.Exchange.AmountPrecision,
		pricePrecision:  cfg.Exchange.PricePrecision,
		fillPollDelay:   fillPollDelay,
		logger:          slog.Default().With("module", "mexc_client"),
	}
}

// TickerPrice returns the last traded price of symbol ("BASE/QUOTE").
func (c *Client) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	market, err := domain.ParseMarket(symbol)
	if err != nil {
		return decimal.Zero, err
	}

	params := url.Values{}
	params.Set("symbol", market.Pair())

	var resp tickerPriceResponse
	if err := c.call(ctx, "ticker", http.MethodGet, pathTicker, params, false, &resp); err != nil {
		return decimal.Zero, err
	}

	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("mexc ticker: bad price %q: %w", resp.Price, err)
	}
	return price, nil
}

// AvailableBalance returns the free balance of asset. Unknown assets are zero.
func (c *Client) AvailableBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	var resp accountResponse
	if err := c.call(ctx, "account", http.MethodGet, pathAccount, url.Values{}, true, &resp); err != nil {
		return decimal.Zero, err
	}

	for _, b := range resp.Balances {
		if strings.EqualFold(b.Asset, asset) {
			free, err := decimal.NewFromString(b.Free)
			if err != nil {
				return decimal.Zero, fmt.Errorf("mexc account: bad free balance %q: %w", b.Free, err)
			}
			return free, nil
		}
	}
	return decimal.Zero, nil
}

// MarketBuy buys amount of the base asset at market and resolves the actual fill.
func (c *Client) MarketBuy(ctx context.Context, symbol string, amount decimal.Decimal, clientID string) (domain.BuyFill, error) {
	market, err := domain.ParseMarket(symbol)
	if err != nil {
		return domain.BuyFill{}, err
	}

	// 1. Boundary Conversion: Decimal -> String
	params := url.Values{}
	params.Set("symbol", market.Pair())
	params.Set("side", "BUY")
	params.Set("type", "MARKET")
	params.Set("quantity", amount.Truncate(c.amountPrecision).String())
	if clientID != "" {
		params.Set("newClientOrderId", clientID)
	}

	// 2. Send Request
	orderID, err := c.placeOrder(ctx, "market_buy", market, params, clientID)
	if err != nil {
		return domain.BuyFill{}, err
	}
	c.logger.Info("Market buy placed", "oid", orderID, "symbol", market.Pair())

	// 3. Resolve fill (market orders fill immediately but the report may lag)
	for i := 0; i < fillPolls; i++ {
		order, err := c.queryOrder(ctx, market, "orderId", orderID)
		if err == nil {
			executed, _ := decimal.NewFromString(order.ExecutedQty)
			quote, _ := decimal.NewFromString(order.CummulativeQuoteQty)
			if executed.IsPositive() && quote.IsPositive() {
				return domain.BuyFill{
					ID:           orderID,
					FilledAmount: executed,
					AvgPrice:     quote.Div(executed),
				}, nil
			}
		} else if !domain.IsTransient(err) && domain.KindOf(err) != domain.KindOrderNotFound {
			return domain.BuyFill{}, err
		}

		if err := infra.Sleep(ctx, c.fillPollDelay); err != nil {
			return domain.BuyFill{}, err
		}
	}

	return domain.BuyFill{}, domain.NewExchangeError("market_buy", domain.KindUnknown, "",
		fmt.Errorf("order %s not filled after %d checks", orderID, fillPolls))
}

// LimitSell places a limit sell for amount at price.
func (c *Client) LimitSell(ctx context.Context, symbol string, amount, price decimal.Decimal, clientID string) (domain.PlacedOrder, error) {
	market, err := domain.ParseMarket(symbol)
	if err != nil {
		return domain.PlacedOrder{}, err
	}

	params := url.Values{}
	params.Set("symbol", market.Pair())
	params.Set("side", "SELL")
	params.Set("type", "LIMIT")
	params.Set("quantity", amount.Truncate(c.amountPrecision).String())
	params.Set("price", price.Truncate(c.pricePrecision).String())
	if clientID != "" {
		params.Set("newClientOrderId", clientID)
	}

	orderID, err := c.placeOrder(ctx, "limit_sell", market, params, clientID)
	if err != nil {
		return domain.PlacedOrder{}, err
	}

	c.logger.Info("Limit sell placed", "oid", orderID, "symbol", market.Pair())
	return domain.PlacedOrder{ID: orderID}, nil
}

// OrderStatus returns the remote status of order id.
func (c *Client) OrderStatus(ctx context.Context, id, symbol string) (domain.OrderStatus, error) {
	market, err := domain.ParseMarket(symbol)
	if err != nil {
		return "", err
	}
	order, err := c.queryOrder(ctx, market, "orderId", id)
	if err != nil {
		return "", err
	}
	return mapStatus(order.Status), nil
}

// placeOrder submits an order and returns its venue id.
// A resubmission after a lost response is rejected because the client id is
// already taken; the order it refers to is then looked up and returned.
func (c *Client) placeOrder(ctx context.Context, op string, market domain.Market, params url.Values, clientID string) (string, error) {
	var placed placeOrderResponse
	err := c.call(ctx, op, http.MethodPost, pathOrder, params, true, &placed)
	if err == nil {
		return placed.OrderID, nil
	}
	if clientID == "" || domain.KindOf(err) != domain.KindUnknown {
		return "", err
	}

	existing, qerr := c.queryOrder(ctx, market, "origClientOrderId", clientID)
	if qerr != nil || existing.OrderID == "" {
		return "", err
	}
	c.logger.Warn("Order already placed under client id, resuming",
		slog.String("op", op),
		slog.String("client_id", clientID),
		slog.String("oid", existing.OrderID),
		slog.Any("rejection", err),
	)
	return existing.OrderID, nil
}

func (c *Client) queryOrder(ctx context.Context, market domain.Market, key, value string) (queryOrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", market.Pair())
	params.Set(key, value)

	var order queryOrderResponse
	err := c.call(ctx, "order_status", http.MethodGet, pathOrder, params, true, &order)
	return order, err
}

// call performs a request and decodes a successful body into out.
func (c *Client) call(ctx context.Context, op, method, path string, params url.Values, signed bool, out any) error {
	body, err := c.doRequest(ctx, op, method, path, params, signed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewExchangeError(op, domain.KindUnknown, "", fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

// doRequest handles pacing, auth and error classification
func (c *Client) doRequest(ctx context.Context, op, method, path string, params url.Values, signed bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := params.Encode()
	if signed {
		query = c.signer.Sign(params)
	}

	reqURL := c.baseURL + path
	if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, domain.NewFatalNetworkError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if signed {
		req.Header.Set("X-MEXC-APIKEY", c.signer.APIKey())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError(op, err)
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}
	return nil, classifyResponse(op, resp.StatusCode, body)
}

// classifyResponse turns a non-200 response into a domain error.
func classifyResponse(op string, status int, body []byte) error {
	if status == http.StatusTooManyRequests || status == http.StatusTeapot {
		return domain.NewExchangeError(op, domain.KindRateLimit, "", nil)
	}
	if status >= http.StatusInternalServerError {
		return domain.NewNetworkError(op, fmt.Errorf("status=%d body=%s", status, string(body)))
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Code == 0 {
		return domain.NewExchangeError(op, domain.KindUnknown, "",
			fmt.Errorf("mexc api error: status=%d body=%s", status, string(body)))
	}

	kind := classifyCode(apiErr.Code)
	var cause error
	if kind == domain.KindUnknown {
		cause = errors.New(apiErr.Msg)
	}
	return domain.NewExchangeError(op, kind, apiErr.codeString(), cause)
}
