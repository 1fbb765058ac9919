package relayer

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"healthvault/internal/crypto"
	"healthvault/internal/domain"
)

// Engine is a domain.EncryptionEngine served over HTTP.
type Engine struct {
	c *Client

	mu  sync.Mutex
	key *domain.X25519Public
}

// NewEngine returns an engine client using c.
func NewEngine(c *Client) *Engine { return &Engine{c: c} }

// Keys fetches the engine's public parameters.
func (e *Engine) Keys(ctx context.Context) (KeysResponse, error) {
	var out KeysResponse
	err := e.c.GetJSON(ctx, "/v1/keys", &out)
	return out, err
}

func (e *Engine) transportKey(ctx context.Context) (domain.X25519Public, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.key != nil {
		return *e.key, nil
	}
	keys, err := e.Keys(ctx)
	if err != nil {
		return domain.X25519Public{}, err
	}
	var k domain.X25519Public
	if len(keys.PublicKey) != len(k) {
		return domain.X25519Public{}, fmt.Errorf("engine transport key must be %d bytes", len(k))
	}
	copy(k[:], keys.PublicKey)
	e.key = &k
	return k, nil
}

// Encrypt implements domain.EncryptionEngine.
func (e *Engine) Encrypt(
	ctx context.Context,
	contract, owner common.Address,
	values []domain.EncryptValue,
) (domain.EncryptedInput, error) {
	key, err := e.transportKey(ctx)
	if err != nil {
		return domain.EncryptedInput{}, err
	}
	req := InputProofRequest{Contract: contract, Owner: owner, Values: make([]SealedValue, len(values))}
	for i, v := range values {
		if req.Values[i], err = SealPlaintext(key, v); err != nil {
			return domain.EncryptedInput{}, err
		}
	}

	var resp InputProofResponse
	if err := e.c.Post(ctx, "/v1/input-proof", req, &resp, true); err != nil {
		return domain.EncryptedInput{}, err
	}
	if len(resp.Handles) != len(values) {
		return domain.EncryptedInput{}, fmt.Errorf("engine returned %d handles for %d values",
			len(resp.Handles), len(values))
	}
	return domain.EncryptedInput{Handles: resp.Handles, Proof: resp.Proof}, nil
}

// UserDecrypt implements domain.EncryptionEngine. The private key stays
// local and opens the sealed answers.
func (e *Engine) UserDecrypt(
	ctx context.Context,
	req domain.DecryptRequest,
) (map[domain.Handle]domain.ClearValue, error) {
	defer crypto.Wipe(req.PrivateKey.Slice())

	var resp UserDecryptResponse
	if err := e.c.Post(ctx, "/v1/user-decrypt", NewUserDecryptRequest(req), &resp, true); err != nil {
		return nil, err
	}

	requested := make(map[domain.Handle]bool, len(req.Pairs))
	for _, p := range req.Pairs {
		requested[p.Handle] = true
	}
	out := make(map[domain.Handle]domain.ClearValue, len(resp.Results))
	for h, box := range resp.Results {
		if !requested[h] {
			continue
		}
		v, err := OpenClearValue(&req.PrivateKey, req.PublicKey, box)
		if err != nil {
			return nil, fmt.Errorf("open result %s: %w", h.Hex(), err)
		}
		out[h] = v
	}
	return out, nil
}

// Compile-time assertion that Engine implements domain.EncryptionEngine.
var _ domain.EncryptionEngine = (*Engine)(nil)
