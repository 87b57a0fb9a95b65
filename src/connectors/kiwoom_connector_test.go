package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"autotrader/src/model"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-key", "test-secret", server.URL, 5*time.Second)
}

func tokenAwareMux(t *testing.T) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"tok-123","expires_dt":"20991231235959"}`))
	})
	return mux
}

func TestAccessTokenIssuedOnceWhileValid(t *testing.T) {
	issued := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		issued++
		_, _ = w.Write([]byte(`{"access_token":"tok-456"}`))
	})

	client := newTestClient(t, mux)

	for i := 0; i < 3; i++ {
		token, err := client.AccessToken(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token != "tok-456" {
			t.Fatalf("expected tok-456, got %s", token)
		}
	}

	if issued != 1 {
		t.Fatalf("expected a single token issuance, got %d", issued)
	}
}

func TestPlaceOrderSendsTRHeaderAndBody(t *testing.T) {
	mux := tokenAwareMux(t)

	var gotAPIID, gotAuth string
	mux.HandleFunc("/api/dostk/ordr", func(w http.ResponseWriter, r *http.Request) {
		gotAPIID = r.Header.Get("api-id")
		gotAuth = r.Header.Get("authorization")
		_, _ = w.Write([]byte(`{"return_code":0,"ord_no":"0000138"}`))
	})

	client := newTestClient(t, mux)

	resp, err := client.PlaceOrder(context.Background(), model.OrderRequest{
		Symbol:    "A005930",
		Side:      model.OrderSideBuy,
		Quantity:  2,
		Price:     50000,
		PriceType: model.PriceTypeMarket,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotAPIID != "kt10000" {
		t.Fatalf("expected buy TR kt10000, got %s", gotAPIID)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
	if resp.OrderNo != "0000138" {
		t.Fatalf("expected order number in response, got %+v", resp)
	}
}

func TestPlaceOrderSellUsesSellTR(t *testing.T) {
	mux := tokenAwareMux(t)

	var gotAPIID string
	mux.HandleFunc("/api/dostk/ordr", func(w http.ResponseWriter, r *http.Request) {
		gotAPIID = r.Header.Get("api-id")
		_, _ = w.Write([]byte(`{"rt_cd":"0","output":{"ord_no":"0000139"}}`))
	})

	client := newTestClient(t, mux)

	resp, err := client.PlaceOrder(context.Background(), model.OrderRequest{
		Symbol:    "005930",
		Side:      model.OrderSideSell,
		Quantity:  1,
		Price:     52000,
		PriceType: model.PriceTypeLimit,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotAPIID != "kt10001" {
		t.Fatalf("expected sell TR kt10001, got %s", gotAPIID)
	}
	if resp.Output == nil || resp.Output.OrderNo != "0000139" {
		t.Fatalf("expected nested order number, got %+v", resp)
	}
}

func TestQuoteParsesSignedPrice(t *testing.T) {
	mux := tokenAwareMux(t)
	mux.HandleFunc("/api/dostk/stkinfo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"return_code":0,"output":[{"prpr":"-71000"}]}`))
	})

	client := newTestClient(t, mux)

	price, err := client.Quote(context.Background(), "005930")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if price != 71000 {
		t.Fatalf("expected price 71000, got %f", price)
	}
}

func TestQuoteRejectsZeroPrice(t *testing.T) {
	mux := tokenAwareMux(t)
	mux.HandleFunc("/api/dostk/stkinfo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"return_code":0,"output":{"prpr":"0"}}`))
	})

	client := newTestClient(t, mux)

	if _, err := client.Quote(context.Background(), "005930"); err == nil {
		t.Fatalf("expected error for zero price")
	}
}

func TestOpenOrdersDecodesEntries(t *testing.T) {
	mux := tokenAwareMux(t)
	mux.HandleFunc("/api/dostk/acnt", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-id") != "ka10075" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"return_code":0,"oso":[{"ord_no":"0000140","stk_cd":"005930","stk_nm":"Samsung","io_tp_nm":"+매수","ord_qty":"2","ord_pric":"50000","ord_stt":"접수","cntr_qty":"0","cntr_pric":"0"}]}`))
	})

	client := newTestClient(t, mux)

	resp, err := client.OpenOrders(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(resp.Orders) != 1 {
		t.Fatalf("expected 1 open order, got %d", len(resp.Orders))
	}
	if resp.Orders[0].OrderNo != "0000140" || resp.Orders[0].Symbol != "005930" {
		t.Fatalf("unexpected open order: %+v", resp.Orders[0])
	}
}

func TestHoldingQuantityFindsSymbol(t *testing.T) {
	mux := tokenAwareMux(t)
	mux.HandleFunc("/api/dostk/acnt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":[{"stk_cd":"A005930","hldg_qty":"7"},{"stk_cd":"035720","hldg_qty":"3"}]}`))
	})

	client := newTestClient(t, mux)

	qty, err := client.HoldingQuantity(context.Background(), "005930")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if qty != 7 {
		t.Fatalf("expected holding 7, got %d", qty)
	}

	qty, err = client.HoldingQuantity(context.Background(), "068270")
	if err != nil {
		t.Fatalf("expected no error for absent symbol, got %v", err)
	}
	if qty != 0 {
		t.Fatalf("expected zero holding for absent symbol, got %d", qty)
	}
}

func TestRSIBounds(t *testing.T) {
	if _, ok := RSI([]float64{1, 2, 3}, 14); ok {
		t.Fatalf("expected RSI to report insufficient data")
	}

	rising := make([]float64, 0, 30)
	for i := 0; i < 30; i++ {
		rising = append(rising, 100+float64(i))
	}
	rsi, ok := RSI(rising, 14)
	if !ok {
		t.Fatalf("expected RSI for rising series")
	}
	if rsi != 100 {
		t.Fatalf("expected RSI 100 for monotonically rising closes, got %f", rsi)
	}

	falling := make([]float64, 0, 30)
	for i := 0; i < 30; i++ {
		falling = append(falling, 200-float64(i))
	}
	rsi, ok = RSI(falling, 14)
	if !ok {
		t.Fatalf("expected RSI for falling series")
	}
	if rsi != 0 {
		t.Fatalf("expected RSI 0 for monotonically falling closes, got %f", rsi)
	}
}

func TestPlaceOrderNeverRetries(t *testing.T) {
	mux := tokenAwareMux(t)

	hits := 0
	mux.HandleFunc("/api/dostk/ordr", func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := newTestClient(t, mux)

	if _, err := client.PlaceOrder(context.Background(), model.OrderRequest{
		Symbol:    "005930",
		Side:      model.OrderSideBuy,
		Quantity:  1,
		Price:     50000,
		PriceType: model.PriceTypeLimit,
	}); err == nil {
		t.Fatalf("expected error on HTTP 500")
	}

	if hits != 1 {
		t.Fatalf("expected a single submit attempt, got %d", hits)
	}
}

func TestCancelOrderNeverRetries(t *testing.T) {
	mux := tokenAwareMux(t)

	hits := 0
	mux.HandleFunc("/api/dostk/ordr", func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := newTestClient(t, mux)

	if _, err := client.CancelOrder(context.Background(), "0000138", "005930", 1); err == nil {
		t.Fatalf("expected error on HTTP 500")
	}

	if hits != 1 {
		t.Fatalf("expected a single cancel attempt, got %d", hits)
	}
}

func TestQuoteRetriesTransientFailure(t *testing.T) {
	mux := tokenAwareMux(t)

	hits := 0
	mux.HandleFunc("/api/dostk/stkinfo", func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"return_code":0,"output":[{"prpr":"71000"}]}`))
	})

	client := newTestClient(t, mux)

	price, err := client.Quote(context.Background(), "005930")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if price != 71000 {
		t.Fatalf("expected price 71000, got %f", price)
	}
	if hits != 2 {
		t.Fatalf("expected two attempts, got %d", hits)
	}
}
