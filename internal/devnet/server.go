package devnet

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"healthvault/internal/domain"
	"healthvault/internal/httpx"
	"healthvault/internal/relayer"
)

// Error codes of the sandbox HTTP API.
const (
	CodeReverted      = "REVERTED"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeGrantRejected = "GRANT_REJECTED"
	CodeBadJSON       = "BAD_JSON"
	CodeBadRequest    = "BAD_REQUEST"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeInternal      = "INTERNAL"
)

// NetworkInfo is the answer of GET /v1/network.
type NetworkInfo struct {
	ChainID  string         `json:"chain_id"`
	Ledger   common.Address `json:"ledger"`
	Token    common.Address `json:"token"`
	Verifier common.Address `json:"verifier"`
	VisitFee string         `json:"visit_fee"`
	Head     uint64         `json:"head"`
}

// TxRequest is the body of POST /v1/tx: an RLP-encoded signed transaction
// whose data is a JSON TxCall.
type TxRequest struct {
	Raw hexutil.Bytes `json:"raw"`
}

// TxCall names a state-changing method and its arguments.
type TxCall struct {
	Method  string            `json:"method"`
	Session *domain.SessionID `json:"session,omitempty"`
	Handles []domain.Handle   `json:"handles,omitempty"`
	Proof   hexutil.Bytes     `json:"proof,omitempty"`
	Address *common.Address   `json:"address,omitempty"`
	Amount  string            `json:"amount,omitempty"`
}

// Methods accepted by POST /v1/tx.
const (
	MethodCreateSession    = "createSession"
	MethodSubmitInput      = "submitEncryptedInput"
	MethodSubmitResult     = "submitEncryptedResult"
	MethodWithdrawFees     = "withdrawFees"
	MethodSetBackendOracle = "setBackendOracle"
	MethodApprove          = "approve"
)

// AmountResponse carries a token amount as a decimal string.
type AmountResponse struct {
	Amount string `json:"amount"`
}

// BlockResponse is the answer of GET /v1/blocks/{number}.
type BlockResponse struct {
	Number uint64 `json:"number"`
	Time   int64  `json:"time"`
}

// FaucetRequest is the body of POST /v1/faucet.
type FaucetRequest struct {
	Address common.Address `json:"address"`
	Amount  string         `json:"amount"`
}

// ProcessResponse is the answer of POST /v1/oracle/sessions/{id}/process.
type ProcessResponse struct {
	Tier    uint8          `json:"tier"`
	Receipt domain.Receipt `json:"receipt"`
}

// Server exposes a sandbox over HTTP.
type Server struct {
	d   *Devnet
	log *logrus.Logger

	mu     sync.Mutex
	nonces map[common.Address]uint64
}

// NewServer returns a server for d.
func NewServer(d *Devnet, log *logrus.Logger) *Server {
	if log == nil {
		log = d.log
	}
	return &Server{d: d, log: log, nonces: make(map[common.Address]uint64)}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.WithRequestID)
	r.Use(httpx.AccessLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/v1", func(api chi.Router) {
		api.Get("/network", s.handleNetwork)
		api.Get("/keys", s.handleKeys)
		api.Post("/input-proof", s.handleInputProof)
		api.Post("/user-decrypt", s.handleUserDecrypt)

		api.Get("/ledger", s.handleLedgerInfo)
		api.Get("/ledger/sessions/{id}", s.handleSession)
		api.Get("/ledger/sessions/{id}/events", s.handleSessionEvents)
		api.Get("/blocks/{number}", s.handleBlock)

		api.Get("/token/balances/{owner}", s.handleBalance)
		api.Get("/token/allowances/{owner}/{spender}", s.handleAllowance)

		api.Post("/tx", s.handleTx)
		api.Post("/faucet", s.handleFaucet)
		api.Post("/oracle/sessions/{id}/process", s.handleProcess)
	})
	return r
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	head, err := s.d.Head()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, NetworkInfo{
		ChainID:  s.d.ChainID().String(),
		Ledger:   s.d.ledger,
		Token:    s.d.token,
		Verifier: s.d.verifier,
		VisitFee: s.d.fee.String(),
		Head:     head,
	})
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	pub := s.d.TransportKey()
	httpx.WriteJSON(w, http.StatusOK, relayer.KeysResponse{
		PublicKey: pub.Slice(),
		ChainID:   s.d.ChainID().String(),
		Verifier:  s.d.verifier,
	})
}

func (s *Server) handleInputProof(w http.ResponseWriter, r *http.Request) {
	var req relayer.InputProofRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, CodeBadJSON, err.Error())
		return
	}
	values := make([]domain.EncryptValue, len(req.Values))
	for i, sv := range req.Values {
		v, err := relayer.OpenPlaintext(&s.d.sec.TransportKey, s.d.sec.TransportPub, sv)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("value %d: %v", i, err))
			return
		}
		values[i] = v
	}
	out, err := s.d.Engine().Encrypt(r.Context(), req.Contract, req.Owner, values)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, relayer.InputProofResponse{Handles: out.Handles, Proof: out.Proof})
}

func (s *Server) handleUserDecrypt(w http.ResponseWriter, r *http.Request) {
	var body relayer.UserDecryptRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, CodeBadJSON, err.Error())
		return
	}
	req, err := body.DecryptRequest()
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	sealed, err := s.d.Engine().Reencrypt(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, relayer.UserDecryptResponse{Results: sealed})
}

func (s *Server) handleLedgerInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := s.d.Ledger()
	meta, err := l.readMeta(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	bal, err := l.ContractBalance(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, domain.LedgerInfo{
		Owner:         meta.Owner,
		BackendOracle: meta.Oracle,
		FeeBalance:    bal.String(),
		VisitFee:      s.d.fee.String(),
		NextSessionID: meta.NextID,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	sess, err := s.d.Ledger().Session(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	evs, err := s.d.Ledger().SessionCreatedEvents(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if evs == nil {
		evs = []domain.SessionCreatedEvent{}
	}
	httpx.WriteJSON(w, http.StatusOK, evs)
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(chi.URLParam(r, "number"), 10, 64)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "block number must be a decimal integer")
		return
	}
	t, err := s.d.Ledger().BlockTime(r.Context(), n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, BlockResponse{Number: n, Time: t.Unix()})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.addressParam(w, r, "owner")
	if !ok {
		return
	}
	bal, err := s.d.Token().BalanceOf(r.Context(), owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, AmountResponse{Amount: bal.String()})
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.addressParam(w, r, "owner")
	if !ok {
		return
	}
	spender, ok := s.addressParam(w, r, "spender")
	if !ok {
		return
	}
	amt, err := s.d.Token().Allowance(r.Context(), owner, spender)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, AmountResponse{Amount: amt.String()})
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, CodeBadJSON, err.Error())
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		httpx.WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "amount must be a decimal integer")
		return
	}
	rcpt, err := s.d.Token().Mint(r.Context(), req.Address, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rcpt)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	tier, rcpt, err := s.d.Oracle().Process(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ProcessResponse{Tier: tier, Receipt: rcpt})
}

// handleTx verifies a signed transaction and applies the call it carries on
// behalf of the recovered sender.
func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	var req TxRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, CodeBadJSON, err.Error())
		return
	}
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(req.Raw); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "decode transaction: "+err.Error())
		return
	}
	if tx.ChainId().Cmp(s.d.chainID) != 0 {
		httpx.WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized,
			fmt.Sprintf("transaction signed for chain %s", tx.ChainId()))
		return
	}
	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(s.d.chainID), tx)
	if err != nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, "recover sender: "+err.Error())
		return
	}
	if tx.To() == nil {
		httpx.WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "transaction has no recipient")
		return
	}
	var call TxCall
	if err := json.Unmarshal(tx.Data(), &call); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, CodeBadJSON, "decode call: "+err.Error())
		return
	}
	if !s.useNonce(sender, tx.Nonce()) {
		httpx.WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, "nonce already used")
		return
	}

	from := domain.Caller{Address: sender, Signer: recoveredSigner(sender)}
	out, err := s.dispatch(r, *tx.To(), from, call)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) dispatch(r *http.Request, to common.Address, from domain.Caller, call TxCall) (domain.CreateReceipt, error) {
	ctx := r.Context()
	l := s.d.Ledger()
	wrap := func(rcpt domain.Receipt, err error) (domain.CreateReceipt, error) {
		return domain.CreateReceipt{Receipt: rcpt}, err
	}

	if to == s.d.token {
		if call.Method != MethodApprove {
			return domain.CreateReceipt{}, badCall("token has no method %q", call.Method)
		}
		if call.Address == nil {
			return domain.CreateReceipt{}, badCall("approve needs a spender")
		}
		amount, ok := new(big.Int).SetString(call.Amount, 10)
		if !ok {
			return domain.CreateReceipt{}, badCall("approve amount must be a decimal integer")
		}
		return wrap(s.d.Token().Approve(ctx, from, *call.Address, amount))
	}
	if to != s.d.ledger {
		return domain.CreateReceipt{}, badCall("no contract at %s", to.Hex())
	}

	switch call.Method {
	case MethodCreateSession:
		return l.CreateSession(ctx, from)
	case MethodSubmitInput:
		if call.Session == nil || len(call.Handles) != 4 {
			return domain.CreateReceipt{}, badCall("submitEncryptedInput needs a session and 4 handles")
		}
		h := call.Handles
		return wrap(l.SubmitEncryptedInput(ctx, from, *call.Session, h[0], h[1], h[2], h[3], call.Proof))
	case MethodSubmitResult:
		if call.Session == nil || len(call.Handles) != 1 {
			return domain.CreateReceipt{}, badCall("submitEncryptedResult needs a session and 1 handle")
		}
		return wrap(l.SubmitEncryptedResult(ctx, from, *call.Session, call.Handles[0], call.Proof))
	case MethodWithdrawFees, MethodSetBackendOracle:
		if call.Address == nil {
			return domain.CreateReceipt{}, badCall("%s needs an address", call.Method)
		}
		if call.Method == MethodWithdrawFees {
			return wrap(l.WithdrawFees(ctx, from, *call.Address))
		}
		return wrap(l.SetBackendOracle(ctx, from, *call.Address))
	default:
		return domain.CreateReceipt{}, badCall("ledger has no method %q", call.Method)
	}
}

// useNonce accepts strictly increasing nonces per sender.
func (s *Server) useNonce(sender common.Address, nonce uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, seen := s.nonces[sender]
	if seen && nonce <= last {
		return false
	}
	s.nonces[sender] = nonce
	return true
}

func (s *Server) sessionParam(w http.ResponseWriter, r *http.Request) (domain.SessionID, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "session id must be a decimal integer")
		return 0, false
	}
	return domain.SessionID(n), true
}

func (s *Server) addressParam(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := chi.URLParam(r, name)
	if !common.IsHexAddress(v) {
		httpx.WriteError(w, r, http.StatusBadRequest, CodeBadRequest, name+" must be a hex address")
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

// fail maps err onto the error envelope.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var bc badCallError
	switch {
	case errors.As(err, &bc):
		httpx.WriteError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoSigner):
		httpx.WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, err.Error())
	case errors.Is(err, ErrReverted):
		httpx.WriteError(w, r, http.StatusConflict, CodeReverted, err.Error())
	case errors.Is(err, ErrBadGrant), errors.Is(err, ErrGrantWindow):
		httpx.WriteError(w, r, http.StatusForbidden, CodeGrantRejected, err.Error())
	case errors.Is(err, ErrUnknownBlock):
		httpx.WriteError(w, r, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, ErrNoInputs), errors.Is(err, ErrAlreadyProcessed), errors.Is(err, ErrNoSession):
		httpx.WriteError(w, r, http.StatusConflict, CodeConflict, err.Error())
	default:
		s.log.WithError(err).WithField("path", r.URL.Path).Error("devnet: request failed")
		httpx.WriteError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}

type badCallError struct{ msg string }

func (e badCallError) Error() string { return e.msg }

func badCall(format string, args ...any) error {
	return badCallError{msg: fmt.Sprintf(format, args...)}
}

// recoveredSigner stands in for a sender whose signature the server already
// verified. It cannot sign anything itself.
type recoveredSigner common.Address

func (r recoveredSigner) Address() common.Address { return common.Address(r) }

func (recoveredSigner) SignTypedData(apitypes.TypedData) ([]byte, error) {
	return nil, errors.New("recovered sender cannot sign")
}

func (recoveredSigner) SignTx(*ethtypes.Transaction, *big.Int) (*ethtypes.Transaction, error) {
	return nil, errors.New("recovered sender cannot sign")
}
