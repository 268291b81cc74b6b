package mexc

import (
	"strconv"
	"time"

	"autobay/internal/domain"
)

// MEXC spot v3 constants
const (
	BaseURL = "https://api.mexc.com"

	pathTicker  = "/api/v3/ticker/price"
	pathAccount = "/api/v3/account"
	pathOrder   = "/api/v3/order"

	fillPolls     = 5
	fillPollDelay = 200 * time.Millisecond
)

// Venue error codes mapped onto the domain taxonomy.
const (
	codeInsufficientBalance  = 10101
	codeInsufficientPosition = 30004
	codeOversold             = 30005
	codeOrderNotExist        = -2013
	codeTooManyRequests      = 429
)

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

type placeOrderResponse struct {
	Symbol       string `json:"symbol"`
	OrderID      string `json:"orderId"`
	Price        string `json:"price"`
	OrigQty      string `json:"origQty"`
	Type         string `json:"type"`
	Side         string `json:"side"`
	TransactTime int64  `json:"transactTime"`
}

type queryOrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             string `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	Price               string `json:"price"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	Type                string `json:"type"`
	Side                string `json:"side"`
}

// mapStatus converts a venue order status to the domain status.
func mapStatus(status string) domain.OrderStatus {
	switch status {
	case "FILLED":
		return domain.OrderStatusClosed
	case "CANCELED", "PARTIALLY_CANCELED":
		return domain.OrderStatusCanceled
	default: // NEW, PARTIALLY_FILLED
		return domain.OrderStatusOpen
	}
}

// classifyCode maps a venue error code to a domain error kind.
func classifyCode(code int) domain.ErrorKind {
	switch code {
	case codeInsufficientBalance, codeInsufficientPosition, codeOversold:
		return domain.KindInsufficientFunds
	case codeOrderNotExist:
		return domain.KindOrderNotFound
	case codeTooManyRequests:
		return domain.KindRateLimit
	default:
		return domain.KindUnknown
	}
}

func (e apiError) codeString() string {
	return strconv.Itoa(e.Code)
}
