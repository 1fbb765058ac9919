package relayer

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"healthvault/internal/crypto"
	"healthvault/internal/domain"
)

// KeysResponse is the answer of GET /v1/keys.
type KeysResponse struct {
	PublicKey hexutil.Bytes  `json:"public_key"`
	ChainID   string         `json:"chain_id"`
	Verifier  common.Address `json:"verifier"`
}

// SealedValue is one plaintext integer sealed to the engine transport key.
type SealedValue struct {
	Bits   uint8  `json:"bits"`
	Sealed []byte `json:"sealed"`
}

// InputProofRequest is the body of POST /v1/input-proof.
type InputProofRequest struct {
	Contract common.Address `json:"contract_address"`
	Owner    common.Address `json:"user_address"`
	Values   []SealedValue  `json:"values"`
}

// InputProofResponse is the answer of POST /v1/input-proof.
type InputProofResponse struct {
	Handles []domain.Handle `json:"handles"`
	Proof   hexutil.Bytes   `json:"input_proof"`
}

// UserDecryptRequest is the body of POST /v1/user-decrypt. It is
// domain.DecryptRequest without the private key.
type UserDecryptRequest struct {
	Pairs        []domain.HandleContract `json:"handle_contract_pairs"`
	PublicKey    hexutil.Bytes           `json:"public_key"`
	Signature    string                  `json:"signature"`
	Contracts    []common.Address        `json:"contract_addresses"`
	User         common.Address          `json:"user_address"`
	Start        int64                   `json:"start_timestamp"`
	DurationDays int                     `json:"duration_days"`
}

// UserDecryptResponse maps each released handle to its sealed clear value.
type UserDecryptResponse struct {
	Results map[domain.Handle][]byte `json:"results"`
}

// NewUserDecryptRequest strips the private key from req.
func NewUserDecryptRequest(req domain.DecryptRequest) UserDecryptRequest {
	return UserDecryptRequest{
		Pairs:        req.Pairs,
		PublicKey:    req.PublicKey.Slice(),
		Signature:    req.Signature,
		Contracts:    req.Contracts,
		User:         req.User,
		Start:        req.Start,
		DurationDays: req.DurationDays,
	}
}

// DecryptRequest converts the wire form back. PrivateKey is left zero.
func (r UserDecryptRequest) DecryptRequest() (domain.DecryptRequest, error) {
	var pub domain.X25519Public
	if len(r.PublicKey) != len(pub) {
		return domain.DecryptRequest{}, fmt.Errorf("public key must be %d bytes", len(pub))
	}
	copy(pub[:], r.PublicKey)
	return domain.DecryptRequest{
		Pairs:        r.Pairs,
		PublicKey:    pub,
		Signature:    r.Signature,
		Contracts:    r.Contracts,
		User:         r.User,
		Start:        r.Start,
		DurationDays: r.DurationDays,
	}, nil
}

// clearPayload is the plaintext inside a sealed clear value.
type clearPayload struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SealClearValue seals an integer of the given width to pub.
func SealClearValue(pub domain.X25519Public, bits uint8, value uint64) ([]byte, error) {
	b, err := json.Marshal(clearPayload{
		Type:  "uint" + strconv.Itoa(int(bits)),
		Value: strconv.FormatUint(value, 10),
	})
	if err != nil {
		return nil, err
	}
	return crypto.Seal(pub, b)
}

// SealClearBool seals a boolean sentinel to pub.
func SealClearBool(pub domain.X25519Public, v bool) ([]byte, error) {
	b, err := json.Marshal(clearPayload{Type: "bool", Value: strconv.FormatBool(v)})
	if err != nil {
		return nil, err
	}
	return crypto.Seal(pub, b)
}

// OpenClearValue opens a box made by SealClearValue or SealClearBool.
func OpenClearValue(priv *domain.X25519Private, pub domain.X25519Public, box []byte) (domain.ClearValue, error) {
	pt, err := crypto.Open(priv, pub, box)
	if err != nil {
		return domain.ClearValue{}, err
	}
	defer crypto.Wipe(pt)

	var p clearPayload
	if err := json.Unmarshal(pt, &p); err != nil {
		return domain.ClearValue{}, fmt.Errorf("decode clear value: %w", err)
	}
	if p.Type == "bool" {
		v, err := strconv.ParseBool(p.Value)
		if err != nil {
			return domain.ClearValue{}, fmt.Errorf("decode clear bool: %w", err)
		}
		return domain.ClearValue{Bool: &v}, nil
	}
	n, ok := new(big.Int).SetString(p.Value, 10)
	if !ok {
		return domain.ClearValue{}, errors.New("decode clear value: not a decimal integer")
	}
	return domain.ClearValue{Int: n}, nil
}

// SealPlaintext seals one input integer to the engine transport key.
func SealPlaintext(key domain.X25519Public, v domain.EncryptValue) (SealedValue, error) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v.Value)
	box, err := crypto.Seal(key, b[:])
	if err != nil {
		return SealedValue{}, err
	}
	return SealedValue{Bits: v.Bits, Sealed: box}, nil
}

// OpenPlaintext is the engine side of SealPlaintext.
func OpenPlaintext(priv *domain.X25519Private, pub domain.X25519Public, sv SealedValue) (domain.EncryptValue, error) {
	pt, err := crypto.Open(priv, pub, sv.Sealed)
	if err != nil {
		return domain.EncryptValue{}, err
	}
	defer crypto.Wipe(pt)
	if len(pt) != 8 {
		return domain.EncryptValue{}, errors.New("sealed plaintext must be 8 bytes")
	}
	return domain.EncryptValue{Bits: sv.Bits, Value: binary.BigEndian.Uint64(pt)}, nil
}
