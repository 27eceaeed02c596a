package ui

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/vkoval/allowctl/internal/session"
	"github.com/vkoval/allowctl/internal/testutil/testlog"
	"github.com/vkoval/allowctl/internal/wallet"
)

// Well-known throwaway development key, never funded on a real network.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const testChainID = uint64(11155111)

type fakeBackend struct {
	chainID *big.Int
}

func (f *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, errors.New("fake backend: unexpected CallContract")
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

type fakeList struct {
	member bool
	count  uint64
}

func (f *fakeList) IsWhitelisted(ctx context.Context, addr common.Address) (bool, error) {
	return f.member, nil
}

func (f *fakeList) Count(ctx context.Context) (uint64, error) {
	return f.count, nil
}

func (f *fakeList) SubmitJoin(ctx context.Context, signer *wallet.Signer, chainID *big.Int) (common.Hash, error) {
	f.member = true
	f.count++
	return common.HexToHash("0x01"), nil
}

type serverOptions struct {
	chainID   uint64
	list      *fakeList
	authToken string
	noSigner  bool
}

func newTestServer(t *testing.T, opts serverOptions) (*Server, *session.Controller) {
	t.Helper()
	testlog.Start(t)

	if opts.chainID == 0 {
		opts.chainID = testChainID
	}
	if opts.list == nil {
		opts.list = &fakeList{}
	}

	var signer *wallet.Signer
	if !opts.noSigner {
		var err error
		signer, err = wallet.NewSigner(testKeyHex)
		if err != nil {
			t.Fatalf("test signer: %v", err)
		}
	}

	bridge := wallet.NewBridge(&fakeBackend{chainID: new(big.Int).SetUint64(opts.chainID)}, signer)
	ctrl := session.New("allowctl-test", session.Config{
		ExpectedChainID:    testChainID,
		ReceiptMaxAttempts: 5,
		ReceiptBackoff: session.BackoffConfig{
			InitialDelay: time.Millisecond,
			Multiplier:   1.0,
			MaxDelay:     time.Millisecond,
		},
	}, bridge, opts.list, zerolog.Nop())

	srv, err := New(Config{
		App:       "allowctl-test",
		AuthToken: opts.authToken,
	}, ctrl, zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, ctrl
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func post(t *testing.T, srv *Server, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func parsePage(t *testing.T, rr *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	doc, err := goquery.NewDocumentFromReader(rr.Body)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	return doc
}

func TestPageShowsConnectButton(t *testing.T) {
	srv, _ := newTestServer(t, serverOptions{})

	doc := parsePage(t, get(t, srv, "/"))
	btn := doc.Find("#action")
	if btn.Length() != 1 {
		t.Fatalf("expected one action button, got %d", btn.Length())
	}
	if action, _ := btn.Attr("data-action"); action != "connect" {
		t.Fatalf("unexpected action: %q", action)
	}
	if text := strings.TrimSpace(btn.Text()); text != "Connect your wallet" {
		t.Fatalf("unexpected button label: %q", text)
	}
	if doc.Find(".count").Length() != 0 {
		t.Fatalf("count line must be hidden while disconnected")
	}
}

func TestPageAfterConnectShowsJoinAndCount(t *testing.T) {
	srv, _ := newTestServer(t, serverOptions{list: &fakeList{member: false, count: 42}})

	if rr := post(t, srv, "/session/connect", nil); rr.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	doc := parsePage(t, get(t, srv, "/"))
	if action, _ := doc.Find("#action").Attr("data-action"); action != "join" {
		t.Fatalf("unexpected action: %q", action)
	}
	if count := strings.TrimSpace(doc.Find(".count").Text()); count != "42 devs joined" {
		t.Fatalf("unexpected count line: %q", count)
	}
}

func TestPageMemberView(t *testing.T) {
	srv, _ := newTestServer(t, serverOptions{list: &fakeList{member: true, count: 7}})

	if rr := post(t, srv, "/session/connect", nil); rr.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d", rr.Code)
	}

	doc := parsePage(t, get(t, srv, "/"))
	if doc.Find("#action").Length() != 0 {
		t.Fatalf("member view must not render a button")
	}
	if msg := strings.TrimSpace(doc.Find(".message").Text()); msg != "Thanks for joining the Allowlist!" {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestConnectWrongNetwork(t *testing.T) {
	srv, _ := newTestServer(t, serverOptions{chainID: 1})

	rr := post(t, srv, "/session/connect", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}

	doc := parsePage(t, get(t, srv, "/"))
	if doc.Find(".notice").Length() != 1 {
		t.Fatalf("expected blocking wrong-network notice")
	}
}

func TestJoinFlowThroughRoutes(t *testing.T) {
	srv, ctrl := newTestServer(t, serverOptions{list: &fakeList{member: false, count: 5}})

	if rr := post(t, srv, "/session/connect", nil); rr.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d", rr.Code)
	}
	if rr := post(t, srv, "/session/join", nil); rr.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	snap := ctrl.Snapshot()
	if !snap.Joined || snap.Count != 6 {
		t.Fatalf("unexpected post-join snapshot: %+v", snap)
	}

	doc := parsePage(t, get(t, srv, "/"))
	if count := strings.TrimSpace(doc.Find(".count").Text()); count != "6 devs joined" {
		t.Fatalf("unexpected count line: %q", count)
	}
}

func TestJoinRequiresConnection(t *testing.T) {
	srv, _ := newTestServer(t, serverOptions{})

	rr := post(t, srv, "/session/join", nil)
	if rr.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestJoinProviderOnlyForbidden(t *testing.T) {
	srv, _ := newTestServer(t, serverOptions{noSigner: true})

	rr := post(t, srv, "/session/join", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestJoinAuthGuard(t *testing.T) {
	srv, _ := newTestServer(t, serverOptions{authToken: "secret"})

	if rr := post(t, srv, "/session/join", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := post(t, srv, "/session/join", map[string]string{"Authorization": "Bearer wrong"}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rr.Code)
	}
	// Correct token clears the guard; the controller then rejects the
	// disconnected session.
	if rr := post(t, srv, "/session/join", map[string]string{"Authorization": "Bearer secret"}); rr.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412 with valid token, got %d", rr.Code)
	}
}

func TestStateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, serverOptions{list: &fakeList{member: true, count: 3}})

	if rr := post(t, srv, "/session/connect", nil); rr.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d", rr.Code)
	}

	rr := get(t, srv, "/session/state")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var snap session.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if !snap.Connected || !snap.Joined || snap.Count != 3 {
		t.Fatalf("unexpected state: %+v", snap)
	}
	if snap.Phase != session.PhaseMember {
		t.Fatalf("unexpected phase: %q", snap.Phase)
	}
}

func TestJournalRoute(t *testing.T) {
	srv, _ := newTestServer(t, serverOptions{list: &fakeList{member: false, count: 0}})

	if rr := post(t, srv, "/session/connect", nil); rr.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d", rr.Code)
	}
	if rr := post(t, srv, "/session/join", nil); rr.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", rr.Code)
	}

	rr := get(t, srv, "/session/journal")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Attempts []session.JoinAttempt `json:"attempts"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode journal: %v", err)
	}
	if len(body.Attempts) != 1 || body.Attempts[0].State != session.AttemptConfirmed {
		t.Fatalf("unexpected journal: %+v", body.Attempts)
	}
}

func TestHealthRoute(t *testing.T) {
	srv, _ := newTestServer(t, serverOptions{})

	rr := get(t, srv, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected status: %#v", body["status"])
	}
	if body["service"] != "allowctl-test" {
		t.Fatalf("unexpected service: %#v", body["service"])
	}
}

func TestMetricsRoute(t *testing.T) {
	srv, _ := newTestServer(t, serverOptions{})

	// Generate at least one observation before scraping.
	if rr := get(t, srv, "/health"); rr.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rr.Code)
	}

	rr := get(t, srv, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "allowctl_http_requests_total") {
		t.Fatalf("expected http request counter in metrics output")
	}
}
