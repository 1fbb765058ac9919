// Package encoding validates plaintext health metrics and maps them to the
// fixed-point integers the encryption engine accepts.
//
// Weight and height are scaled by 100 and floored into a uint64; exercise and
// diet scores are carried unscaled as uint8. Validation runs entirely locally
// so an out-of-range value never reaches the network.
package encoding
