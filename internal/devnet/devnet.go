package devnet

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"healthvault/internal/crypto"
	"healthvault/internal/devnet/state"
	"healthvault/internal/domain"
)

// DefaultChainID is the chain id the sandbox reports.
const DefaultChainID = 31337

var (
	// ErrReverted marks a state change the sandbox rejected.
	ErrReverted = errors.New("execution reverted")
	// ErrUnknownBlock is returned for a block number beyond the head.
	ErrUnknownBlock = errors.New("unknown block")
)

// Options configure a sandbox.
type Options struct {
	ChainID  *big.Int
	VisitFee *big.Int
	// Store holds all state; nil uses a fresh in-memory store.
	Store state.Store
	// Clock stamps blocks and checks grant windows; nil uses time.Now.
	Clock func() time.Time
	Log   *logrus.Logger
}

// secrets are generated on first start and persisted with the state.
type secrets struct {
	OwnerKey     []byte               `json:"owner_key"`
	OracleKey    []byte               `json:"oracle_key"`
	MasterKey    []byte               `json:"master_key"`
	ProofKey     []byte               `json:"proof_key"`
	TransportKey domain.X25519Private `json:"transport_key"`
	TransportPub domain.X25519Public  `json:"transport_pub"`
}

type block struct {
	Number uint64      `json:"number"`
	Time   int64       `json:"time"`
	TxHash common.Hash `json:"tx_hash"`
}

// Devnet is the sandbox. Ledger, Token, Engine and Oracle are views onto it.
type Devnet struct {
	mu      sync.Mutex
	db      state.Store
	ownsDB  bool
	clock   func() time.Time
	chainID *big.Int
	fee     *big.Int
	log     *logrus.Logger

	sec      secrets
	owner    *crypto.KeySigner
	oracle   *crypto.KeySigner
	ledger   common.Address
	token    common.Address
	verifier common.Address

	createdFeed event.Feed
}

// New opens a sandbox, creating its secrets and genesis block on first use.
func New(opts Options) (*Devnet, error) {
	d := &Devnet{
		db:      opts.Store,
		clock:   opts.Clock,
		chainID: opts.ChainID,
		fee:     opts.VisitFee,
		log:     opts.Log,
	}
	if d.db == nil {
		d.db = state.NewMem()
		d.ownsDB = true
	}
	if d.clock == nil {
		d.clock = time.Now
	}
	if d.chainID == nil {
		d.chainID = big.NewInt(DefaultChainID)
	}
	if d.fee == nil {
		d.fee = big.NewInt(10_000_000)
	}
	if d.log == nil {
		d.log = logrus.New()
		d.log.SetOutput(io.Discard)
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Devnet) init() error {
	return d.db.Update(func(txn state.Txn) error {
		found, err := getJSON(txn, keySecrets, &d.sec)
		if err != nil {
			return err
		}
		if !found {
			if d.sec, err = newSecrets(); err != nil {
				return err
			}
			if err := putJSON(txn, keySecrets, d.sec); err != nil {
				return err
			}
			genesis := block{Number: 0, Time: d.clock().Unix()}
			if err := putJSON(txn, blockKey(0), genesis); err != nil {
				return err
			}
			if err := putJSON(txn, keyHead, genesis); err != nil {
				return err
			}
			if err := putJSON(txn, keyLedgerMeta, ledgerMeta{}); err != nil {
				return err
			}
		}
		if d.owner, err = crypto.NewKeySigner(d.sec.OwnerKey); err != nil {
			return err
		}
		if d.oracle, err = crypto.NewKeySigner(d.sec.OracleKey); err != nil {
			return err
		}
		d.ledger = gethcrypto.CreateAddress(d.owner.Address(), 0)
		d.token = gethcrypto.CreateAddress(d.owner.Address(), 1)
		d.verifier = gethcrypto.CreateAddress(d.owner.Address(), 2)

		// First start: owner and oracle are set once, like a constructor.
		var meta ledgerMeta
		if _, err := getJSON(txn, keyLedgerMeta, &meta); err != nil {
			return err
		}
		if meta.Owner == (common.Address{}) {
			meta.Owner = d.owner.Address()
			meta.Oracle = d.oracle.Address()
			return putJSON(txn, keyLedgerMeta, meta)
		}
		return nil
	})
}

func newSecrets() (secrets, error) {
	owner, err := crypto.GenerateOwnerKey()
	if err != nil {
		return secrets{}, err
	}
	oracle, err := crypto.GenerateOwnerKey()
	if err != nil {
		return secrets{}, err
	}
	master, err := randomBytes(32)
	if err != nil {
		return secrets{}, err
	}
	proof, err := randomBytes(32)
	if err != nil {
		return secrets{}, err
	}
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return secrets{}, err
	}
	return secrets{
		OwnerKey:     owner.PrivateKey,
		OracleKey:    oracle.PrivateKey,
		MasterKey:    master,
		ProofKey:     proof,
		TransportKey: priv,
		TransportPub: pub,
	}, nil
}

// Close releases the state store if the sandbox created it.
func (d *Devnet) Close() error {
	if d.ownsDB {
		return d.db.Close()
	}
	return nil
}

// Ledger returns the session ledger view.
func (d *Devnet) Ledger() *Ledger { return &Ledger{d: d} }

// Token returns the fee token view.
func (d *Devnet) Token() *Token { return &Token{d: d} }

// Engine returns the encryption engine view.
func (d *Devnet) Engine() *Engine { return &Engine{d: d} }

// Oracle returns the backend oracle.
func (d *Devnet) Oracle() *Oracle { return &Oracle{d: d} }

// ChainID returns the sandbox chain id.
func (d *Devnet) ChainID() *big.Int { return new(big.Int).Set(d.chainID) }

// VisitFee returns the per-session fee.
func (d *Devnet) VisitFee() *big.Int { return new(big.Int).Set(d.fee) }

// Verifier is the verifying contract of the decryption grant domain.
func (d *Devnet) Verifier() common.Address { return d.verifier }

// GrantDomain is the EIP-712 domain the engine verifies grants against.
func (d *Devnet) GrantDomain() crypto.GrantDomain {
	return crypto.GrantDomain{ChainID: d.ChainID(), Verifier: d.verifier}
}

// OwnerSigner returns the ledger owner's key.
func (d *Devnet) OwnerSigner() domain.Signer { return d.owner }

// OracleSigner returns the backend oracle's key.
func (d *Devnet) OracleSigner() domain.Signer { return d.oracle }

// TransportKey is the engine's X25519 key that clients seal plaintext to.
func (d *Devnet) TransportKey() domain.X25519Public { return d.sec.TransportPub }

// Head returns the latest block number.
func (d *Devnet) Head() (uint64, error) {
	var head block
	err := d.db.View(func(txn state.Txn) error {
		_, err := getJSON(txn, keyHead, &head)
		return err
	})
	return head.Number, err
}

// mine appends a block for a successful transaction and returns its receipt.
// It must run inside the Update that applied the transaction.
func (d *Devnet) mine(txn state.Txn, from common.Address, op string) (domain.Receipt, error) {
	var head block
	if _, err := getJSON(txn, keyHead, &head); err != nil {
		return domain.Receipt{}, err
	}
	next := block{Number: head.Number + 1, Time: d.clock().Unix()}
	if next.Time < head.Time {
		next.Time = head.Time
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], next.Number)
	next.TxHash = gethcrypto.Keccak256Hash(d.chainID.Bytes(), from.Bytes(), n[:], []byte(op))

	if err := putJSON(txn, blockKey(next.Number), next); err != nil {
		return domain.Receipt{}, err
	}
	if err := putJSON(txn, keyHead, next); err != nil {
		return domain.Receipt{}, err
	}
	return domain.Receipt{TxHash: next.TxHash, BlockNumber: next.Number}, nil
}

// authorize rejects callers that cannot sign for their address.
func authorize(op string, from domain.Caller) error {
	if !from.CanSign() {
		return &domain.ChainError{Op: op, Err: domain.ErrNoSigner}
	}
	return nil
}

func revert(op, reason string) error {
	return &domain.ChainError{Op: op, Err: fmt.Errorf("%w: %s", ErrReverted, reason)}
}

func live(ctx context.Context) error { return ctx.Err() }

// State keys.
const (
	keySecrets    = "devnet/secrets"
	keyHead       = "chain/head"
	keyLedgerMeta = "ledger/meta"
)

func blockKey(n uint64) string { return fmt.Sprintf("chain/block/%020d", n) }

func sessionKey(id domain.SessionID) string {
	return fmt.Sprintf("ledger/session/%020d", uint64(id))
}

func createdKey(id domain.SessionID) string {
	return fmt.Sprintf("ledger/created/%020d", uint64(id))
}

func balanceKey(a common.Address) string { return "token/balance/" + a.Hex() }

func allowanceKey(owner, spender common.Address) string {
	return "token/allowance/" + owner.Hex() + "/" + spender.Hex()
}

func ciphertextKey(h domain.Handle) string { return "engine/ct/" + h.Hex() }

func getJSON(txn state.Txn, key string, v any) (bool, error) {
	b, err := txn.Get(key)
	if errors.Is(err, state.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, v)
}

func putJSON(txn state.Txn, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}
