package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"healthvault/internal/domain"
)

// ErrBadSignature is returned when a signature cannot be parsed or recovered.
var ErrBadSignature = errors.New("malformed signature")

// KeySigner signs transactions and typed data with an in-memory secp256k1 key.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewKeySigner parses a 32-byte secp256k1 private key.
func NewKeySigner(raw []byte) (*KeySigner, error) {
	key, err := gethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("parse owner key: %w", err)
	}
	return &KeySigner{key: key, addr: gethcrypto.PubkeyToAddress(key.PublicKey)}, nil
}

// GenerateOwnerKey creates a new owner identity.
func GenerateOwnerKey() (domain.Identity, error) {
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{
		Address:    gethcrypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: gethcrypto.FromECDSA(key),
	}, nil
}

// PublicKeyBytes returns the uncompressed public key, for fingerprints.
func (s *KeySigner) PublicKeyBytes() []byte { return gethcrypto.FromECDSAPub(&s.key.PublicKey) }

// Address implements domain.Signer.
func (s *KeySigner) Address() common.Address { return s.addr }

// SignTypedData implements domain.Signer.
func (s *KeySigner) SignTypedData(data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := gethcrypto.Sign(hash, s.key)
	if err != nil {
		return nil, err
	}
	sig[gethcrypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SignTx implements domain.Signer.
func (s *KeySigner) SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	return ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), s.key)
}

// RecoverTypedDataSigner returns the account that produced sig over data.
func RecoverTypedDataSigner(data apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != gethcrypto.SignatureLength {
		return common.Address{}, ErrBadSignature
	}
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return common.Address{}, fmt.Errorf("hash typed data: %w", err)
	}
	rsv := make([]byte, len(sig))
	copy(rsv, sig)
	if rsv[gethcrypto.RecoveryIDOffset] >= 27 {
		rsv[gethcrypto.RecoveryIDOffset] -= 27
	}
	pub, err := gethcrypto.SigToPub(hash, rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return gethcrypto.PubkeyToAddress(*pub), nil
}

// Compile-time assertion that KeySigner implements domain.Signer.
var _ domain.Signer = (*KeySigner)(nil)
