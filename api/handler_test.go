package api_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bidvault/api"
	"bidvault/escrow"
	"bidvault/ledger"
	"bidvault/store/memstore"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/go-kit/log"
	"github.com/google/go-cmp/cmp"
)

var now = time.Date(2023, 3, 14, 15, 9, 26, 0, time.UTC)

type client struct {
	t   *testing.T
	url string
}

func newTestServer(t *testing.T, service escrow.Service) *client {
	t.Helper()

	server := httptest.NewServer(api.NewHandler(service, log.NewNopLogger()))
	t.Cleanup(server.Close)

	return &client{t: t, url: server.URL}
}

func (c *client) do(method, path, sender, body string, response any) int {
	c.t.Helper()

	req, err := http.NewRequest(method, c.url+path, strings.NewReader(body))
	if err != nil {
		c.t.Fatal(err)
	}
	req.Header.Set("content-type", "application/json")
	if sender != "" {
		req.Header.Set(api.SenderHeaderKey, sender)
	}

	return c.send(req, response)
}

func (c *client) send(req *http.Request, response any) int {
	c.t.Helper()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatal(err)
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatal(err)
	}

	if response != nil && resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(buf, response); err != nil {
			c.t.Fatalf("%s %s: decode %q: %v", req.Method, req.URL.Path, buf, err)
		}
	}

	return resp.StatusCode
}

type attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type transfer struct {
	Kind      string `json:"kind"`
	Recipient string `json:"recipient"`
	Denom     string `json:"denom"`
	Amount    string `json:"amount"`
}

type commandResponse struct {
	Attributes   []attribute `json:"attributes"`
	Transfers    []transfer  `json:"transfers"`
	Address      string      `json:"address"`
	AmountPaid   string      `json:"amount_paid"`
	NewTotal     string      `json:"new_total"`
	SettlementID string      `json:"settlement_id"`
	Withdrawn    string      `json:"withdrawn"`
}

type bidJSON struct {
	Bidder string `json:"bidder"`
	Amount string `json:"amount"`
}

func TestHandlerAuctionFlow(t *testing.T) {
	t.Parallel()

	var (
		l       = ledger.NewTestLedger(ledger.PlainLedger{}, now)
		service = escrow.NewCoreService(l, memstore.NewStore())
		c       = newTestServer(t, service)
	)

	var initResp commandResponse
	if code := c.do("POST", "/v1/initialize", "", `{"admins":["admin"]}`, &initResp); code != http.StatusOK {
		t.Fatalf("initialize: HTTP %d", code)
	}

	var info struct {
		Admins           []string `json:"admins"`
		MinimumBidPolicy string   `json:"minimum_bid_policy"`
	}
	if code := c.do("GET", "/v1/info", "", "", &info); code != http.StatusOK {
		t.Fatalf("info: HTTP %d", code)
	}
	if diff := cmp.Diff([]string{"admin"}, info.Admins); diff != "" {
		t.Errorf("info admins: %s", diff)
	}
	if want, have := "payment", info.MinimumBidPolicy; want != have {
		t.Errorf("minimum bid policy: want %q, have %q", want, have)
	}

	start := fmt.Sprintf(`{
		"name": "round-1",
		"expires_at": %q,
		"minimum_bid": "500",
		"accepted_bidders": 1,
		"denom": "X"
	}`, now.Add(time.Hour).Format(time.RFC3339))

	if want, have := http.StatusBadRequest, c.do("POST", "/v1/bidding/start", "", start, nil); want != have {
		t.Errorf("start without sender: want HTTP %d, have %d", want, have)
	}

	if want, have := http.StatusUnauthorized, c.do("POST", "/v1/bidding/start", "alice", start, nil); want != have {
		t.Errorf("start as alice: want HTTP %d, have %d", want, have)
	}

	var startResp commandResponse
	if code := c.do("POST", "/v1/bidding/start", "admin", start, &startResp); code != http.StatusOK {
		t.Fatalf("start: HTTP %d", code)
	}
	if want, have := "start_bidding", startResp.Attributes[0].Value; want != have {
		t.Errorf("method attribute: want %q, have %q", want, have)
	}
	if startResp.Transfers == nil || len(startResp.Transfers) != 0 {
		t.Errorf("transfers: want empty list, have %v", startResp.Transfers)
	}

	if want, have := http.StatusConflict, c.do("POST", "/v1/bidding/start", "admin", start, nil); want != have {
		t.Errorf("second start: want HTTP %d, have %d", want, have)
	}

	for _, tc := range []struct {
		sender, body, newTotal string
	}{
		{"alice", `{"funds":[{"denom":"X","amount":"1000"}]}`, "1000"},
		{"bob", `{"funds":[{"denom":"X","amount":"500"}]}`, "500"},
	} {
		var resp commandResponse
		if code := c.do("POST", "/v1/bids", tc.sender, tc.body, &resp); code != http.StatusOK {
			t.Fatalf("bid from %s: HTTP %d", tc.sender, code)
		}
		if want, have := tc.newTotal, resp.NewTotal; want != have {
			t.Errorf("bid from %s: new total: want %s, have %s", tc.sender, want, have)
		}
	}

	if want, have := http.StatusBadRequest, c.do("POST", "/v1/bids", "carol", `{"funds":[{"denom":"X","amount":"499"}]}`, nil); want != have {
		t.Errorf("bid below minimum: want HTTP %d, have %d", want, have)
	}

	var bids struct {
		Bids []bidJSON `json:"bids"`
	}
	if code := c.do("GET", "/v1/bids", "", "", &bids); code != http.StatusOK {
		t.Fatalf("bids: HTTP %d", code)
	}
	if diff := cmp.Diff([]bidJSON{{"bob", "500"}, {"alice", "1000"}}, bids.Bids); diff != "" {
		t.Errorf("bids: %s", diff)
	}

	var one struct {
		Bid *bidJSON `json:"bid"`
	}
	if code := c.do("GET", "/v1/bids/nobody", "", "", &one); code != http.StatusOK || one.Bid != nil {
		t.Errorf("missing bid: HTTP %d, found=%t", code, one.Bid != nil)
	}

	if want, have := http.StatusNotFound, c.do("POST", "/v1/bidding/end", "admin", `{"accepted_bids":["carol"]}`, nil); want != have {
		t.Errorf("end with unknown bid: want HTTP %d, have %d", want, have)
	}

	var end commandResponse
	if code := c.do("POST", "/v1/bidding/end", "admin", `{"accepted_bids":["alice"]}`, &end); code != http.StatusOK {
		t.Fatalf("end: HTTP %d", code)
	}

	wantTransfers := []transfer{
		{Kind: "refund", Recipient: "bob", Denom: "X", Amount: "500"},
		{Kind: "proceeds", Recipient: "admin", Denom: "X", Amount: "1000"},
	}
	if diff := cmp.Diff(wantTransfers, end.Transfers); diff != "" {
		t.Errorf("transfers: %s", diff)
	}
	if want, have := "1000", end.Withdrawn; want != have {
		t.Errorf("withdrawn: want %s, have %s", want, have)
	}

	if code := c.do("GET", "/v1/bids", "", "", &bids); code != http.StatusOK || len(bids.Bids) != 0 {
		t.Errorf("bids after settlement: HTTP %d, %v", code, bids.Bids)
	}

	var period struct {
		BiddingPeriod *json.RawMessage `json:"bidding_period"`
	}
	if code := c.do("GET", "/v1/bidding", "", "", &period); code != http.StatusOK || period.BiddingPeriod != nil {
		t.Errorf("period after settlement: HTTP %d, open=%t", code, period.BiddingPeriod != nil)
	}

	var settlements struct {
		Settlements []struct {
			ID        string     `json:"id"`
			Transfers []transfer `json:"transfers"`
		} `json:"settlements"`
	}
	if code := c.do("GET", "/v1/settlements", "", "", &settlements); code != http.StatusOK {
		t.Fatalf("settlements: HTTP %d", code)
	}
	if len(settlements.Settlements) != 1 {
		t.Fatalf("settlements: want 1, have %d", len(settlements.Settlements))
	}
	if want, have := end.SettlementID, settlements.Settlements[0].ID; want != have {
		t.Errorf("settlement ID: want %s, have %s", want, have)
	}
}

func TestHandlerErrorCodes(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		err  error
		want int
	}{
		{escrow.ErrUnauthorized, http.StatusUnauthorized},
		{escrow.ErrConfigurationMissing, http.StatusPreconditionFailed},
		{escrow.ErrAlreadyInitialized, http.StatusConflict},
		{escrow.ErrBiddingPeriodActive, http.StatusConflict},
		{escrow.ErrNoActivePeriod, http.StatusConflict},
		{escrow.ErrBiddingPeriodExpired, http.StatusGone},
		{escrow.ErrBelowMinimumBid, http.StatusBadRequest},
		{escrow.ErrInvalidTerms, http.StatusBadRequest},
		{escrow.ErrTooManyAccepted, http.StatusBadRequest},
		{fmt.Errorf("bidder: %w", ledger.ErrInvalidAddress), http.StatusBadRequest},
		{escrow.ErrBidNotFound, http.StatusNotFound},
		{errors.New("database on fire"), http.StatusInternalServerError},
	} {
		tc := tc
		t.Run(tc.err.Error(), func(t *testing.T) {
			t.Parallel()

			c := newTestServer(t, escrow.NewMockServiceErr(tc.err))

			if want, have := tc.want, c.do("POST", "/v1/bids", "alice", `{"funds":[{"denom":"X","amount":"1"}]}`, nil); want != have {
				t.Errorf("POST /v1/bids: want HTTP %d, have %d", want, have)
			}

			if want, have := tc.want, c.do("GET", "/v1/settlements", "", "", nil); want != have {
				t.Errorf("GET /v1/settlements: want HTTP %d, have %d", want, have)
			}
		})
	}
}

func TestHandlerRequestValidation(t *testing.T) {
	t.Parallel()

	var called bool
	mock := escrow.NewMockServiceErr(errors.New("should not be called"))
	mock.PlaceBidFunc = func(ctx context.Context, sender string, funds sdk.Coins, beneficiary *string) (*escrow.BidReceipt, error) {
		called = true
		return nil, errors.New("should not be called")
	}

	c := newTestServer(t, mock)

	for name, body := range map[string]string{
		"not JSON":      `funds=1000X`,
		"no funds":      `{}`,
		"no amount":     `{"funds":[{"denom":"X"}]}`,
		"unknown field": `{"funds":[{"denom":"X","amount":"1"}],"bidder":"bob"}`,
		"empty address": `{"funds":[{"denom":"X","amount":"1"}],"address":""}`,
	} {
		if want, have := http.StatusBadRequest, c.do("POST", "/v1/bids", "alice", body, nil); want != have {
			t.Errorf("%s: want HTTP %d, have %d", name, want, have)
		}
	}

	if called {
		t.Errorf("service was called with an invalid request")
	}
}

func TestHandlerGzip(t *testing.T) {
	t.Parallel()

	var (
		l       = ledger.NewTestLedger(ledger.PlainLedger{}, now)
		service = escrow.NewCoreService(l, memstore.NewStore())
		c       = newTestServer(t, service)
	)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(`{"admins":["admin"]}`)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest("POST", c.url+"/v1/initialize", &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("content-encoding", "gzip")

	if want, have := http.StatusOK, c.send(req, nil); want != have {
		t.Fatalf("gzipped initialize: want HTTP %d, have %d", want, have)
	}

	if _, err := service.Info(context.Background()); err != nil {
		t.Errorf("Info after gzipped initialize: %v", err)
	}
}

func TestHandlerPanicRecovery(t *testing.T) {
	t.Parallel()

	c := newTestServer(t, escrow.NewMockServiceErr(nil))

	if want, have := 599, c.do("GET", "/-/panic", "", "", nil); want != have {
		t.Errorf("want HTTP %d, have %d", want, have)
	}
}

func TestHandlerPing(t *testing.T) {
	t.Parallel()

	if want, have := http.StatusOK, newTestServer(t, escrow.NewMockServiceErr(nil)).do("GET", "/-/ping", "", "", nil); want != have {
		t.Errorf("healthy: want HTTP %d, have %d", want, have)
	}

	if want, have := http.StatusInternalServerError, newTestServer(t, escrow.NewMockServiceErr(errors.New("down"))).do("GET", "/-/ping", "", "", nil); want != have {
		t.Errorf("unhealthy: want HTTP %d, have %d", want, have)
	}
}
