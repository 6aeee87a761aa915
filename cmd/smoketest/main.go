package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// This program runs a complete bidding round against a live bidvault
// instance. The instance must have been started with -admin set to the
// same identity passed here, and must not have an open bidding period.
//
// Bidders are named bidder-0, bidder-1, ... which only works against an
// instance without -bech32-prefix. Otherwise pass real addresses with
// -bidder.

const senderHeader = "X-Bidvault-Sender"

type params struct {
	url      string
	admin    string
	denom    string
	minimum  int64
	accepted int
	bidders  []string
	timeout  time.Duration
}

func main() {
	log.SetFlags(0)
	log.SetOutput(os.Stdout)

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	fs := flag.NewFlagSet("smoketest", flag.ContinueOnError)
	var (
		url      = fs.String("bidvault-url", "http://localhost:4415", "URL for the bidvault API")
		admin    = fs.String("admin", "admin", "admin identity, must be in the instance's admin set")
		denom    = fs.String("denom", "ujuno", "bidding denomination")
		minimum  = fs.Int64("minimum-bid", 1000, "minimum bid")
		accepted = fs.Int("accepted", 2, "number of bids to accept")
		count    = fs.Int("bidders", 5, "number of generated bidders, ignored if -bidder is given")
		timeout  = fs.Duration("timeout", 10*time.Second, "per-request timeout")
		bidders  stringList
	)
	fs.Var(&bidders, "bidder", "bidder address (optional, repeatable)")
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("SMOKETEST")); err != nil {
		return fmt.Errorf("parse flags: %v", err)
	}

	if len(bidders) == 0 {
		for i := 0; i < *count; i++ {
			bidders = append(bidders, fmt.Sprintf("bidder-%d", i))
		}
	}

	if *accepted > len(bidders) {
		return fmt.Errorf("accepted (%d) exceeds bidder count (%d)", *accepted, len(bidders))
	}

	return runBasicFlow(context.Background(), params{
		url:      strings.TrimSuffix(*url, "/"),
		admin:    *admin,
		denom:    *denom,
		minimum:  *minimum,
		accepted: *accepted,
		bidders:  bidders,
		timeout:  *timeout,
	})
}

func runBasicFlow(ctx context.Context, params params) error {
	log := log.New(log.Writer(), "runBasicFlow: ", log.Flags())
	c := &client{baseURL: params.url, http: &http.Client{Timeout: params.timeout}}

	{
		var info struct {
			Admins  []string `json:"admins"`
			Version string   `json:"version"`
		}
		if err := c.call(ctx, "GET", "/v1/info", "", nil, &info); err != nil {
			return fmt.Errorf("get info: %w", err)
		}
		if !slices.Contains(info.Admins, params.admin) {
			return fmt.Errorf("admin %s not in admin set %v", params.admin, info.Admins)
		}
		log.Printf("bidvault version %s, %d admin(s)", info.Version, len(info.Admins))
	}

	name := fmt.Sprintf("smoketest-%d", time.Now().Unix())
	{
		req := map[string]any{
			"name":             name,
			"expires_at":       time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
			"minimum_bid":      strconv.FormatInt(params.minimum, 10),
			"accepted_bidders": params.accepted,
			"denom":            params.denom,
		}
		if err := c.call(ctx, "POST", "/v1/bidding/start", params.admin, req, nil); err != nil {
			return fmt.Errorf("start bidding: %w", err)
		}
		log.Printf("started bidding period %s", name)
	}

	// Every bidder pays twice, concurrently, so totals exercise the
	// read-modify-write path in the store.
	want := map[string]int64{}
	{
		t0 := time.Now()
		amounts := map[string][2]int64{}
		for _, b := range params.bidders {
			a := [2]int64{params.minimum + rand.Int63n(1000), params.minimum + rand.Int63n(1000)}
			amounts[b] = a
			want[b] = a[0] + a[1]
		}

		g, ctx := errgroup.WithContext(ctx)
		for _, b := range params.bidders {
			for _, amount := range amounts[b] {
				b, amount := b, amount
				g.Go(func() error {
					req := map[string]any{
						"funds": []map[string]string{{"denom": params.denom, "amount": strconv.FormatInt(amount, 10)}},
					}
					if err := c.call(ctx, "POST", "/v1/bids", b, req, nil); err != nil {
						return fmt.Errorf("bid %d from %s: %w", amount, b, err)
					}
					return nil
				})
			}
		}
		if err := g.Wait(); err != nil {
			return err
		}
		log.Printf("placed %d bids in %s", 2*len(params.bidders), time.Since(t0))
	}

	type bid struct {
		Bidder string `json:"bidder"`
		Amount string `json:"amount"`
	}

	var bids []bid
	{
		var resp struct {
			Bids []bid `json:"bids"`
		}
		if err := c.call(ctx, "GET", "/v1/bids", "", nil, &resp); err != nil {
			return fmt.Errorf("list bids: %w", err)
		}
		bids = resp.Bids

		if len(bids) != len(want) {
			return fmt.Errorf("bid count: want %d, have %d", len(want), len(bids))
		}
		for _, b := range bids {
			if have := b.Amount; have != strconv.FormatInt(want[b.Bidder], 10) {
				return fmt.Errorf("bid from %s: want %d, have %s", b.Bidder, want[b.Bidder], have)
			}
		}
		log.Printf("bid totals matched")
	}

	var accepted, refunded []string
	{
		sort.Slice(bids, func(i, j int) bool {
			return want[bids[i].Bidder] > want[bids[j].Bidder]
		})
		for i, b := range bids {
			if i < params.accepted {
				accepted = append(accepted, b.Bidder)
			} else {
				refunded = append(refunded, b.Bidder)
			}
		}
		sort.Strings(refunded)
	}

	{
		var resp struct {
			Transfers []struct {
				Kind      string `json:"kind"`
				Recipient string `json:"recipient"`
				Amount    string `json:"amount"`
			} `json:"transfers"`
			Withdrawn string `json:"withdrawn"`
		}
		req := map[string]any{"accepted_bids": accepted}
		if err := c.call(ctx, "POST", "/v1/bidding/end", params.admin, req, &resp); err != nil {
			return fmt.Errorf("end bidding: %w", err)
		}

		var (
			haveRefunded []string
			proceeds     string
			withdrawn    int64
		)
		for _, t := range resp.Transfers {
			switch t.Kind {
			case "refund":
				haveRefunded = append(haveRefunded, t.Recipient)
			case "proceeds":
				if t.Recipient != params.admin {
					return fmt.Errorf("proceeds went to %s, want %s", t.Recipient, params.admin)
				}
				proceeds = t.Amount
			}
		}
		for _, b := range accepted {
			withdrawn += want[b]
		}

		if !slices.Equal(refunded, haveRefunded) {
			log.Printf("want refunds:\n\t%s", strings.Join(refunded, "\n\t"))
			log.Printf("have refunds:\n\t%s", strings.Join(haveRefunded, "\n\t"))
			return fmt.Errorf("refunds didn't match expectation")
		}

		if want := strconv.FormatInt(withdrawn, 10); proceeds != want || resp.Withdrawn != want {
			return fmt.Errorf("proceeds: want %s, have %s (withdrawn %s)", want, proceeds, resp.Withdrawn)
		}

		log.Printf("settlement matched, withdrew %d%s", withdrawn, params.denom)
	}

	{
		var resp struct {
			BiddingPeriod *json.RawMessage `json:"bidding_period"`
		}
		if err := c.call(ctx, "GET", "/v1/bidding", "", nil, &resp); err != nil {
			return fmt.Errorf("get bidding period: %w", err)
		}
		if resp.BiddingPeriod != nil {
			return fmt.Errorf("bidding period still open after settlement")
		}
	}

	return nil
}

type client struct {
	baseURL string
	http    *http.Client
}

func (c *client) call(ctx context.Context, method, path, sender string, request, response any) error {
	var body io.Reader
	if request != nil {
		buf, err := json.Marshal(request)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	if sender != "" {
		req.Header.Set(senderHeader, sender)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		buf, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(buf)))
	}

	if response == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}

	return nil
}

type stringList []string

func (l *stringList) Set(s string) error { *l = append(*l, s); return nil }
func (l *stringList) String() string { return strings.Join(*l, ", ") }
