package types

// HealthInput is the plaintext a user submits for one session.
type HealthInput struct {
	Weight   float64 `json:"weight"`   // kilograms, (0, 300]
	Height   float64 `json:"height"`   // centimetres, (0, 300]
	Exercise int     `json:"exercise"` // 1 (sedentary) .. 5 (very active)
	Diet     int     `json:"diet"`     // 1 (poor) .. 10 (excellent)
}

// EncodedInput is HealthInput in the integer form the engine encrypts.
type EncodedInput struct {
	Weight   uint64 `json:"weight"`
	Height   uint64 `json:"height"`
	Exercise uint8  `json:"exercise"`
	Diet     uint8  `json:"diet"`
}

// Values returns the encryption batch in ledger argument order.
func (e EncodedInput) Values() []EncryptValue {
	return []EncryptValue{
		{Bits: 64, Value: e.Weight},
		{Bits: 64, Value: e.Height},
		{Bits: 8, Value: uint64(e.Exercise)},
		{Bits: 8, Value: uint64(e.Diet)},
	}
}

// EncryptValue is one plaintext integer of an encryption batch.
type EncryptValue struct {
	Bits  uint8  `json:"bits"`
	Value uint64 `json:"value"`
}

// EncryptedInput is the engine's answer to an encryption batch: one handle per
// value and a single attestation proof covering all of them.
type EncryptedInput struct {
	Handles []Handle `json:"handles"`
	Proof   []byte   `json:"proof"`
}
