package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSend_TalliesTickets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msgs []pushMessage
		if err := json.NewDecoder(r.Body).Decode(&msgs); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if len(msgs) != 3 {
			t.Errorf("messages: %d", len(msgs))
		}
		_ = json.NewEncoder(w).Encode(pushResponse{Data: []pushTicket{
			{Status: "ok"},
			{Status: "error", Message: "DeviceNotRegistered"},
			{Status: "ok"},
		}})
	}))
	defer srv.Close()

	c := NewPushClient(srv.URL, 5*time.Second, zap.NewNop())
	res, err := c.Send(context.Background(), []string{"t1", "t2", "t3"}, "title", "body")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Delivered != 2 || res.Failed != 1 {
		t.Fatalf("tally: %+v", res)
	}
}

func TestSend_NoTokensIsNoop(t *testing.T) {
	c := NewPushClient("http://127.0.0.1:0", time.Second, zap.NewNop())
	res, err := c.Send(context.Background(), nil, "title", "body")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Delivered != 0 || res.Failed != 0 {
		t.Fatalf("tally: %+v", res)
	}
}

func TestSend_GatewayErrorCountsAllFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewPushClient(srv.URL, 5*time.Second, zap.NewNop())
	res, err := c.Send(context.Background(), []string{"t1", "t2"}, "title", "body")
	if err == nil {
		t.Fatal("expected error from gateway failure")
	}
	if res.Failed != 2 {
		t.Fatalf("tally: %+v", res)
	}
}
