package crypto

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"healthvault/internal/domain"
)

const (
	// GrantDomainName and GrantDomainVersion identify the EIP-712 domain the
	// decryption service verifies grants against.
	GrantDomainName    = "Decryption"
	GrantDomainVersion = "1"
	grantPrimaryType   = "UserDecryptRequestVerification"
)

// GrantDomain binds grants to one chain and one verifying contract.
type GrantDomain struct {
	ChainID  *big.Int
	Verifier common.Address
}

// GrantTypedData returns the structured message a decryption grant signs.
func GrantTypedData(
	d GrantDomain,
	pub domain.X25519Public,
	contracts []common.Address,
	start time.Time,
	durationDays int,
) apitypes.TypedData {
	addrs := make([]interface{}, len(contracts))
	for i, c := range contracts {
		addrs[i] = c.Hex()
	}
	chainID := d.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			grantPrimaryType: {
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
			},
		},
		PrimaryType: grantPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              GrantDomainName,
			Version:           GrantDomainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: d.Verifier.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         hexutil.Encode(pub[:]),
			"contractAddresses": addrs,
			"startTimestamp":    strconv.FormatInt(start.Unix(), 10),
			"durationDays":      strconv.Itoa(durationDays),
		},
	}
}

// BuildGrant signs a decryption grant for pub with the owner's key.
//
// The returned signature is hex without the 0x prefix, the form the
// decryption service expects.
func BuildGrant(
	signer domain.Signer,
	d GrantDomain,
	pub domain.X25519Public,
	contracts []common.Address,
	start time.Time,
	durationDays int,
) (domain.Grant, error) {
	if signer == nil {
		return domain.Grant{}, domain.ErrNoSigner
	}
	if len(contracts) == 0 {
		return domain.Grant{}, errors.New("grant names no contracts")
	}
	start = time.Unix(start.Unix(), 0)
	sig, err := signer.SignTypedData(GrantTypedData(d, pub, contracts, start, durationDays))
	if err != nil {
		return domain.Grant{}, err
	}
	return domain.Grant{
		PublicKey:    pub,
		Contracts:    append([]common.Address(nil), contracts...),
		Start:        start,
		DurationDays: durationDays,
		Signature:    hex.EncodeToString(sig),
	}, nil
}

// RecoverGrantSigner returns the account that signed the grant described by req.
func RecoverGrantSigner(d GrantDomain, req domain.DecryptRequest) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
	if err != nil {
		return common.Address{}, ErrBadSignature
	}
	td := GrantTypedData(d, req.PublicKey, req.Contracts, time.Unix(req.Start, 0), req.DurationDays)
	return RecoverTypedDataSigner(td, sig)
}
