package mapper

import (
	"testing"

	"autotrader/src/connectors"
	"autotrader/src/model"
)

func intPtr(v int) *int { return &v }

func TestAckFromOrderResponsePrecedence(t *testing.T) {
	cases := []struct {
		name        string
		resp        *connectors.OrderResponse
		wantAccept  bool
		wantOrderNo string
	}{
		{
			name:        "return_code zero wins even without order number",
			resp:        &connectors.OrderResponse{ReturnCode: intPtr(0), ReturnMsg: "정상처리"},
			wantAccept:  true,
			wantOrderNo: "",
		},
		{
			name:       "nonzero return_code falls through to rt_cd",
			resp:       &connectors.OrderResponse{ReturnCode: intPtr(1), RtCd: "0", Msg1: "주문가능금액 부족"},
			wantAccept: true,
		},
		{
			name:        "rt_cd zero",
			resp:        &connectors.OrderResponse{RtCd: "0", OrderNo: "0000138621"},
			wantAccept:  true,
			wantOrderNo: "0000138621",
		},
		{
			name:        "top-level order number alone",
			resp:        &connectors.OrderResponse{OrderNo: "0000138622"},
			wantAccept:  true,
			wantOrderNo: "0000138622",
		},
		{
			name: "nested order number alone",
			resp: &connectors.OrderResponse{
				Output: &connectors.OrderOutput{OrderNo: "0000138623"},
			},
			wantAccept:  true,
			wantOrderNo: "0000138623",
		},
		{
			name: "nested exchange order number fallback",
			resp: &connectors.OrderResponse{
				Output: &connectors.OrderOutput{ExchangeOrderNo: "KRX-77"},
			},
			wantAccept:  true,
			wantOrderNo: "KRX-77",
		},
		{
			name:       "success phrase in return_msg",
			resp:       &connectors.OrderResponse{ReturnMsg: "매수주문이 완료되었습니다"},
			wantAccept: true,
		},
		{
			name:       "nothing matches",
			resp:       &connectors.OrderResponse{ReturnMsg: "시스템 오류"},
			wantAccept: false,
		},
		{
			name:       "nil response",
			resp:       nil,
			wantAccept: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ack := AckFromOrderResponse(tc.resp)
			if ack.Accepted != tc.wantAccept {
				t.Fatalf("accepted = %v, want %v (%+v)", ack.Accepted, tc.wantAccept, ack)
			}
			if tc.wantOrderNo != "" && ack.OrderNo != tc.wantOrderNo {
				t.Fatalf("order no = %q, want %q", ack.OrderNo, tc.wantOrderNo)
			}
		})
	}
}

func TestAckRejectionMessagePrefersMsg1(t *testing.T) {
	ack := AckFromOrderResponse(&connectors.OrderResponse{
		Msg1:      "주문수량 오류",
		ReturnMsg: "오류",
	})
	if ack.Accepted {
		t.Fatalf("expected rejection, got %+v", ack)
	}
	if ack.Message != "주문수량 오류" {
		t.Fatalf("message = %q, want msg1 content", ack.Message)
	}

	ack = AckFromOrderResponse(&connectors.OrderResponse{})
	if ack.Message != "unknown broker error" {
		t.Fatalf("message = %q, want fallback", ack.Message)
	}
}

func TestStatusFromCode(t *testing.T) {
	cases := map[string]model.OrderStatus{
		"01":  model.OrderStatusAccepted,
		"02":  model.OrderStatusPartialFilled,
		"03":  model.OrderStatusFilled,
		"04":  model.OrderStatusCancelled,
		"05":  model.OrderStatusRejected,
		"99":  model.OrderStatusAccepted,
		"":    model.OrderStatusAccepted,
		"abc": model.OrderStatusAccepted,
	}
	for code, want := range cases {
		if got := StatusFromCode(code); got != want {
			t.Errorf("StatusFromCode(%q) = %s, want %s", code, got, want)
		}
	}
}

func TestStatusFromText(t *testing.T) {
	cases := map[string]model.OrderStatus{
		"접수":     model.OrderStatusAccepted,
		"부분체결":   model.OrderStatusPartialFilled,
		"전체체결":   model.OrderStatusFilled,
		"체결":     model.OrderStatusFilled,
		"취소":     model.OrderStatusCancelled,
		"거부":     model.OrderStatusRejected,
		" 접수 ":   model.OrderStatusAccepted,
		"알수없는상태": model.OrderStatusAccepted,
	}
	for text, want := range cases {
		if got := StatusFromText(text); got != want {
			t.Errorf("StatusFromText(%q) = %s, want %s", text, got, want)
		}
	}
}

func TestSideFromBrokerLabel(t *testing.T) {
	cases := map[string]string{
		"+매수":  model.OrderSideBuy,
		"-매도":  model.OrderSideSell,
		"매수":   model.OrderSideBuy,
		"매도":   model.OrderSideSell,
		"-123": model.OrderSideSell,
		"":     model.OrderSideBuy,
	}
	for label, want := range cases {
		if got := SideFromBrokerLabel(label); got != want {
			t.Errorf("SideFromBrokerLabel(%q) = %s, want %s", label, got, want)
		}
	}
}

func TestResultFromOpenOrder(t *testing.T) {
	entry := connectors.OpenOrderEntry{
		OrderNo:     "0000138700",
		Symbol:      "A005930",
		SymbolName:  "삼성전자",
		SideName:    "+매수",
		Quantity:    "10",
		Price:       "71000",
		Status:      "부분체결",
		FilledQty:   "4",
		FilledPrice: "70900",
	}

	result := ResultFromOpenOrder(entry)

	if result.OrderID != "0000138700" {
		t.Fatalf("order id = %q", result.OrderID)
	}
	if result.Symbol != "005930" {
		t.Fatalf("symbol = %q, want normalized form", result.Symbol)
	}
	if result.Side != model.OrderSideBuy {
		t.Fatalf("side = %q", result.Side)
	}
	if result.Quantity != 10 || result.FilledQty != 4 {
		t.Fatalf("quantities = %d/%d", result.Quantity, result.FilledQty)
	}
	if result.Price != 71000 || result.FilledPrice != 70900 {
		t.Fatalf("prices = %v/%v", result.Price, result.FilledPrice)
	}
	if result.Status != model.OrderStatusPartialFilled {
		t.Fatalf("status = %s", result.Status)
	}
	if result.Source != "broker" {
		t.Fatalf("source = %q", result.Source)
	}
}

func TestParseSafeHelpersDefaultToZero(t *testing.T) {
	if got := parseIntSafe("ord_qty", "not-a-number"); got != 0 {
		t.Fatalf("parseIntSafe = %d, want 0", got)
	}
	if got := parseFloatSafe("ord_pric", ""); got != 0 {
		t.Fatalf("parseFloatSafe = %v, want 0", got)
	}
}
