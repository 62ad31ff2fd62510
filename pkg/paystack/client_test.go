package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestClient_InitializeTransaction(t *testing.T) {
	var got InitializeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			t.Fatalf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"ref-1"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "sk_test", "GHS", time.Second)
	resp, err := client.InitializeTransaction(context.Background(), InitializeRequest{
		Email:     "ama@example.com",
		Amount:    ToMinorUnits(decimal.RequireFromString("12.50")),
		Reference: "ref-1",
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if resp.AuthorizationURL != "https://checkout.paystack.com/abc" || resp.Reference != "ref-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.Amount != 1250 || got.Currency != "GHS" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestClient_VerifyTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/ref-9" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"reference":"ref-9","status":"success","amount":5000,"currency":"GHS"}}`))
	}))
	defer srv.Close()

	tx, err := NewClient(srv.URL, "sk", "GHS", time.Second).VerifyTransaction(context.Background(), "ref-9")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if tx.Status != "success" || !FromMinorUnits(tx.Amount).Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected transaction %+v", tx)
	}
}

func TestClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "non-2xx with message", status: http.StatusBadRequest, body: `{"status":false,"message":"Invalid key"}`, want: "Invalid key"},
		{name: "non-2xx unparsable", status: http.StatusBadGateway, body: `<html>`, want: ""},
		{name: "2xx with status false", status: http.StatusOK, body: `{"status":false,"message":"Transfer not found"}`, want: "Transfer not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "sk", "GHS", time.Second).VerifyTransfer(context.Background(), "x")
			var apiErr *ErrorResponse
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected ErrorResponse, got %v", err)
			}
			if apiErr.Message != tt.want || apiErr.StatusCode != tt.status {
				t.Fatalf("unexpected error %+v", apiErr)
			}
		})
	}
}

func TestClient_TimeoutIsDetected(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, "sk", "GHS", 20*time.Millisecond).VerifyTransaction(context.Background(), "slow")
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if IsTimeout(errors.New("boom")) {
		t.Fatal("plain errors are not timeouts")
	}
}

func TestClient_TransferFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/transferrecipient", func(w http.ResponseWriter, r *http.Request) {
		var req recipientRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Type != "mobile_money" || req.BankCode != "MTN" || req.AccountNumber != "0241234567" {
			t.Fatalf("unexpected recipient payload %+v", req)
		}
		_, _ = w.Write([]byte(`{"status":true,"data":{"recipient_code":"RCP_1"}}`))
	})
	mux.HandleFunc("/transfer", func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Source != "balance" || req.Recipient != "RCP_1" || req.Amount != 2000 {
			t.Fatalf("unexpected transfer payload %+v", req)
		}
		_, _ = w.Write([]byte(`{"status":true,"data":{"reference":"wd-1","transfer_code":"TRF_1","status":"pending","amount":2000}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL, "sk", "GHS", time.Second)
	recipient, err := client.CreateMobileMoneyRecipient(context.Background(), "Ama", "0241234567", "MTN")
	if err != nil {
		t.Fatalf("recipient: %v", err)
	}
	transfer, err := client.InitiateTransfer(context.Background(), recipient.RecipientCode, "wd-1", "Withdrawal to 0241234567", 2000)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if transfer.Status != "pending" || transfer.TransferCode != "TRF_1" {
		t.Fatalf("unexpected transfer %+v", transfer)
	}
}

func TestSigner_Verify(t *testing.T) {
	signer := NewSigner("sk_test")
	body := []byte(`{"event":"charge.success","data":{"reference":"ref-1"}}`)
	sig := signer.Sign(body)

	if err := signer.Verify(body, sig); err != nil {
		t.Fatalf("expected valid signature: %v", err)
	}
	if err := signer.Verify(body, " "+sig+" "); err != nil {
		t.Fatalf("expected whitespace to be tolerated: %v", err)
	}
	if err := signer.Verify([]byte(`{"event":"charge.success"}`), sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for tampered body, got %v", err)
	}
	if err := NewSigner("").Verify(body, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected empty secret to reject, got %v", err)
	}
}
