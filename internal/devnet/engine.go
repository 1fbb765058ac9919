package devnet

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"

	"healthvault/internal/crypto"
	"healthvault/internal/devnet/state"
	"healthvault/internal/domain"
	"healthvault/internal/relayer"
)

const maxGrantDays = 365

var (
	// ErrBadGrant is returned when a decryption grant's signature does not
	// recover to the requesting user.
	ErrBadGrant = errors.New("grant signature does not match user")
	// ErrGrantWindow is returned outside a grant's validity window.
	ErrGrantWindow = errors.New("grant is not valid at this time")
	// ErrNotAllowed is returned when an account may not read a ciphertext.
	ErrNotAllowed = errors.New("account is not allowed on handle")
	// ErrUnknownHandle is returned for a handle the engine never issued.
	ErrUnknownHandle = errors.New("unknown handle")
)

// grantSkew tolerates clients whose clock runs slightly ahead.
const grantSkew = time.Minute

// ctRecord is one ciphertext and its access list.
type ctRecord struct {
	Nonce    []byte           `json:"nonce"`
	Cipher   []byte           `json:"cipher"`
	Bits     uint8            `json:"bits"`
	Contract common.Address   `json:"contract"`
	Allowed  []common.Address `json:"allowed"`
}

func (r ctRecord) allows(a common.Address) bool { return slices.Contains(r.Allowed, a) }

// Engine is the sandbox encryption engine.
type Engine struct{ d *Devnet }

// Encrypt implements domain.EncryptionEngine. Each handle is bound to
// contract and readable by owner; the proof covers the whole batch.
func (e *Engine) Encrypt(
	ctx context.Context,
	contract, owner common.Address,
	values []domain.EncryptValue,
) (domain.EncryptedInput, error) {
	if err := live(ctx); err != nil {
		return domain.EncryptedInput{}, err
	}
	if len(values) == 0 {
		return domain.EncryptedInput{}, errors.New("empty encryption batch")
	}
	for i, v := range values {
		if err := checkWidth(v); err != nil {
			return domain.EncryptedInput{}, fmt.Errorf("value %d: %w", i, err)
		}
	}
	aead, err := chacha20poly1305.New(e.d.sec.MasterKey)
	if err != nil {
		return domain.EncryptedInput{}, err
	}

	out := domain.EncryptedInput{Handles: make([]domain.Handle, len(values))}
	err = e.d.db.Update(func(txn state.Txn) error {
		for i, v := range values {
			nonce, err := randomBytes(chacha20poly1305.NonceSize)
			if err != nil {
				return err
			}
			var pt [9]byte
			pt[0] = v.Bits
			binary.BigEndian.PutUint64(pt[1:], v.Value)
			rec := ctRecord{
				Nonce:    nonce,
				Cipher:   aead.Seal(nil, nonce, pt[:], contract.Bytes()),
				Bits:     v.Bits,
				Contract: contract,
				Allowed:  []common.Address{owner},
			}
			h := domain.Handle(gethcrypto.Keccak256Hash(rec.Nonce, rec.Cipher))
			if err := putJSON(txn, ciphertextKey(h), rec); err != nil {
				return err
			}
			out.Handles[i] = h
		}
		return nil
	})
	if err != nil {
		return domain.EncryptedInput{}, err
	}
	out.Proof = e.proof(contract, owner, out.Handles)
	return out, nil
}

// UserDecrypt implements domain.EncryptionEngine for in-process callers: it
// re-encrypts to req.PublicKey and opens the result with req.PrivateKey.
func (e *Engine) UserDecrypt(
	ctx context.Context,
	req domain.DecryptRequest,
) (map[domain.Handle]domain.ClearValue, error) {
	defer crypto.Wipe(req.PrivateKey.Slice())

	sealed, err := e.Reencrypt(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Handle]domain.ClearValue, len(sealed))
	for h, box := range sealed {
		v, err := relayer.OpenClearValue(&req.PrivateKey, req.PublicKey, box)
		if err != nil {
			return nil, err
		}
		out[h] = v
	}
	return out, nil
}

// Reencrypt verifies the grant in req and returns each covered handle's
// clear value sealed to req.PublicKey. req.PrivateKey is ignored.
//
// Handles outside the grant's scope, bound to another contract, or not
// readable by req.User are omitted rather than reported as errors.
func (e *Engine) Reencrypt(ctx context.Context, req domain.DecryptRequest) (map[domain.Handle][]byte, error) {
	if err := live(ctx); err != nil {
		return nil, err
	}
	if err := e.checkGrant(req); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(e.d.sec.MasterKey)
	if err != nil {
		return nil, err
	}

	out := make(map[domain.Handle][]byte)
	err = e.d.db.View(func(txn state.Txn) error {
		for _, p := range req.Pairs {
			if !slices.Contains(req.Contracts, p.Contract) {
				continue
			}
			var rec ctRecord
			found, err := getJSON(txn, ciphertextKey(p.Handle), &rec)
			if err != nil {
				return err
			}
			if !found || rec.Contract != p.Contract || !rec.allows(req.User) {
				continue
			}
			bits, value, err := openRecord(aead, rec)
			if err != nil {
				return err
			}
			box, err := relayer.SealClearValue(req.PublicKey, bits, value)
			if err != nil {
				return err
			}
			out[p.Handle] = box
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.d.log.WithFields(logrus.Fields{
		"user":      req.User.Hex(),
		"requested": len(req.Pairs),
		"released":  len(out),
	}).Debug("devnet: user decrypt")
	return out, nil
}

func (e *Engine) checkGrant(req domain.DecryptRequest) error {
	if len(req.Pairs) == 0 || len(req.Contracts) == 0 {
		return errors.New("grant names no handles or contracts")
	}
	if req.DurationDays <= 0 || req.DurationDays > maxGrantDays {
		return fmt.Errorf("grant duration %d days out of range", req.DurationDays)
	}
	now := e.d.clock()
	start := time.Unix(req.Start, 0)
	end := start.Add(time.Duration(req.DurationDays) * 24 * time.Hour)
	if now.Before(start.Add(-grantSkew)) || !now.Before(end) {
		return ErrGrantWindow
	}
	signer, err := crypto.RecoverGrantSigner(e.d.GrantDomain(), req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadGrant, err)
	}
	if signer != req.User {
		return ErrBadGrant
	}
	return nil
}

// decryptAs reads a clear value with the privileges of account.
func (e *Engine) decryptAs(
	txn state.Txn,
	account, contract common.Address,
	h domain.Handle,
) (uint64, error) {
	var rec ctRecord
	found, err := getJSON(txn, ciphertextKey(h), &rec)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrUnknownHandle
	}
	if rec.Contract != contract || !rec.allows(account) {
		return 0, ErrNotAllowed
	}
	aead, err := chacha20poly1305.New(e.d.sec.MasterKey)
	if err != nil {
		return 0, err
	}
	_, v, err := openRecord(aead, rec)
	return v, err
}

// checkBinding reports whether every handle exists, is bound to contract and
// is readable by owner.
func (e *Engine) checkBinding(txn state.Txn, contract, owner common.Address, handles []domain.Handle) error {
	for _, h := range handles {
		var rec ctRecord
		found, err := getJSON(txn, ciphertextKey(h), &rec)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w %s", ErrUnknownHandle, h.Hex())
		}
		if rec.Contract != contract || !rec.allows(owner) {
			return fmt.Errorf("%w %s", ErrNotAllowed, h.Hex())
		}
	}
	return nil
}

// allow adds account to the access list of h.
func (e *Engine) allow(txn state.Txn, h domain.Handle, account common.Address) error {
	var rec ctRecord
	found, err := getJSON(txn, ciphertextKey(h), &rec)
	if err != nil {
		return err
	}
	if !found {
		return ErrUnknownHandle
	}
	if rec.allows(account) {
		return nil
	}
	rec.Allowed = append(rec.Allowed, account)
	return putJSON(txn, ciphertextKey(h), rec)
}

// proof is an HMAC over (contract, owner, handles).
func (e *Engine) proof(contract, owner common.Address, handles []domain.Handle) []byte {
	mac := hmac.New(sha256.New, e.d.sec.ProofKey)
	mac.Write(contract.Bytes())
	mac.Write(owner.Bytes())
	for _, h := range handles {
		mac.Write(h[:])
	}
	return mac.Sum(nil)
}

func (e *Engine) verifyProof(contract, owner common.Address, handles []domain.Handle, proof []byte) bool {
	return hmac.Equal(e.proof(contract, owner, handles), proof)
}

func openRecord(aead interface {
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}, rec ctRecord) (uint8, uint64, error) {
	pt, err := aead.Open(nil, rec.Nonce, rec.Cipher, rec.Contract.Bytes())
	if err != nil || len(pt) != 9 {
		return 0, 0, errors.New("ciphertext failed authentication")
	}
	return pt[0], binary.BigEndian.Uint64(pt[1:]), nil
}

func checkWidth(v domain.EncryptValue) error {
	switch v.Bits {
	case 8, 16, 32, 64:
	default:
		return fmt.Errorf("unsupported width %d", v.Bits)
	}
	if v.Bits < 64 && v.Value>>v.Bits != 0 {
		return fmt.Errorf("value %s does not fit in %d bits", strconv.FormatUint(v.Value, 10), v.Bits)
	}
	return nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Compile-time assertion that Engine implements domain.EncryptionEngine.
var _ domain.EncryptionEngine = (*Engine)(nil)
