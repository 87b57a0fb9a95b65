package mapper

import (
	"strconv"
	"strings"

	logger "github.com/sirupsen/logrus"

	"autotrader/src/connectors"
	"autotrader/src/model"
)

// OrderAck is the canonical verdict extracted from an order submit or cancel
// response.
type OrderAck struct {
	Accepted bool
	OrderNo  string
	Message  string
}

// successPredicate inspects one shape the brokerage uses to signal success.
// Each predicate is definitive when it matches; they are evaluated in the
// fixed order of successPredicates.
type successPredicate struct {
	name  string
	match func(resp *connectors.OrderResponse) (string, bool)
}

// successPredicates is the precedence order for success detection: explicit
// success codes first, then the presence of an order number anywhere the API
// is known to put one, then a recognized success phrase. If none match, the
// response is a rejection.
var successPredicates = []successPredicate{
	{
		name: "return_code zero",
		match: func(resp *connectors.OrderResponse) (string, bool) {
			if resp.ReturnCode != nil && *resp.ReturnCode == 0 {
				return orderNoFrom(resp), true
			}
			return "", false
		},
	},
	{
		name: "rt_cd zero",
		match: func(resp *connectors.OrderResponse) (string, bool) {
			if resp.RtCd == "0" {
				return orderNoFrom(resp), true
			}
			return "", false
		},
	},
	{
		name: "top-level order number",
		match: func(resp *connectors.OrderResponse) (string, bool) {
			if resp.OrderNo != "" {
				return resp.OrderNo, true
			}
			return "", false
		},
	},
	{
		name: "nested order number",
		match: func(resp *connectors.OrderResponse) (string, bool) {
			if resp.Output != nil {
				if resp.Output.OrderNo != "" {
					return resp.Output.OrderNo, true
				}
				if resp.Output.ExchangeOrderNo != "" {
					return resp.Output.ExchangeOrderNo, true
				}
			}
			return "", false
		},
	},
	{
		name: "success phrase",
		match: func(resp *connectors.OrderResponse) (string, bool) {
			for _, phrase := range []string{"완료", "성공", "success"} {
				if strings.Contains(resp.ReturnMsg, phrase) {
					return orderNoFrom(resp), true
				}
			}
			return "", false
		},
	},
}

func orderNoFrom(resp *connectors.OrderResponse) string {
	if resp.OrderNo != "" {
		return resp.OrderNo
	}
	if resp.Output != nil {
		if resp.Output.OrderNo != "" {
			return resp.Output.OrderNo
		}
		if resp.Output.ExchangeOrderNo != "" {
			return resp.Output.ExchangeOrderNo
		}
	}
	return ""
}

// AckFromOrderResponse runs the success predicates in precedence order and
// returns the canonical verdict. A nil response is a rejection, not an error:
// transport failures never reach this point.
func AckFromOrderResponse(resp *connectors.OrderResponse) OrderAck {
	if resp == nil {
		return OrderAck{Accepted: false, Message: "empty broker response"}
	}

	for _, predicate := range successPredicates {
		if orderNo, ok := predicate.match(resp); ok {
			logger.WithFields(map[string]interface{}{
				"mapper":    "AckFromOrderResponse",
				"predicate": predicate.name,
				"order_no":  orderNo,
			}).Debug("broker response accepted")
			return OrderAck{Accepted: true, OrderNo: orderNo, Message: resp.ReturnMsg}
		}
	}

	return OrderAck{Accepted: false, Message: rejectionMessage(resp)}
}

func rejectionMessage(resp *connectors.OrderResponse) string {
	for _, msg := range []string{resp.Msg1, resp.ReturnMsg} {
		if msg != "" {
			return msg
		}
	}
	return "unknown broker error"
}

// statusByCode maps the numeric broker status codes returned by the order
// status endpoint.
var statusByCode = map[string]model.OrderStatus{
	"01": model.OrderStatusAccepted,
	"02": model.OrderStatusPartialFilled,
	"03": model.OrderStatusFilled,
	"04": model.OrderStatusCancelled,
	"05": model.OrderStatusRejected,
	"06": model.OrderStatusPending,
	"07": model.OrderStatusExpired,
}

// statusByText maps the textual states the ka10075 listing uses.
var statusByText = map[string]model.OrderStatus{
	"접수":   model.OrderStatusAccepted,
	"부분체결": model.OrderStatusPartialFilled,
	"전체체결": model.OrderStatusFilled,
	"체결":   model.OrderStatusFilled,
	"취소":   model.OrderStatusCancelled,
	"거부":   model.OrderStatusRejected,
}

// StatusFromCode maps a broker status code to the local lifecycle state.
// Unknown codes stay ACCEPTED: the order is broker-side and not terminal.
func StatusFromCode(code string) model.OrderStatus {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return model.OrderStatusAccepted
}

// StatusFromText maps a broker status label to the local lifecycle state.
func StatusFromText(text string) model.OrderStatus {
	if status, ok := statusByText[strings.TrimSpace(text)]; ok {
		return status
	}
	return model.OrderStatusAccepted
}

// SideFromBrokerLabel reads the buy/sell direction out of the io_tp_nm label
// ("+매수" / "-매도"). Buy is the safe default for unrecognized labels.
func SideFromBrokerLabel(label string) string {
	if strings.HasPrefix(label, "-") || strings.Contains(label, "매도") {
		return model.OrderSideSell
	}
	return model.OrderSideBuy
}

// ResultFromOpenOrder converts one ka10075 listing entry into the canonical
// order shape, tagged as broker-sourced.
func ResultFromOpenOrder(entry connectors.OpenOrderEntry) model.OrderResult {
	return model.OrderResult{
		OrderID:     entry.OrderNo,
		Symbol:      connectors.NormalizeSymbol(entry.Symbol),
		SymbolName:  entry.SymbolName,
		Side:        SideFromBrokerLabel(entry.SideName),
		Quantity:    parseIntSafe("ord_qty", entry.Quantity),
		Price:       parseFloatSafe("ord_pric", entry.Price),
		Status:      StatusFromText(entry.Status),
		FilledQty:   parseIntSafe("cntr_qty", entry.FilledQty),
		FilledPrice: parseFloatSafe("cntr_pric", entry.FilledPrice),
		Message:     entry.SymbolName,
		Source:      "broker",
	}
}

// FillFromOutput reads the executed quantity and average price out of an
// order status payload. Absent fields come back as zero.
func FillFromOutput(out *connectors.OrderOutput) (qty int, price float64) {
	if out == nil {
		return 0, 0
	}
	return parseIntSafe("exec_qty", out.ExecQty), parseFloatSafe("exec_avg_prc", out.ExecAvgPrice)
}

func parseIntSafe(field, v string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"field": field,
			"value": v,
		}).WithError(err).Error("Failed to parse int from broker response field; defaulting to 0")
		return 0
	}
	return n
}

func parseFloatSafe(field, v string) float64 {
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"field": field,
			"value": v,
		}).WithError(err).Error("Failed to parse float from broker response field; defaulting to 0")
		return 0
	}
	return f
}
