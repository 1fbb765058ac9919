// Package chain adapts an EVM deployment of the session ledger and its fee
// token to the domain interfaces.
//
// Every state-changing call is signed with the caller's own key, sent, and
// waited on until its receipt arrives or the context ends. Receipts with a
// failed status become *domain.ChainError; a context that ends first becomes
// *domain.TimeoutError carrying the transaction hash.
package chain
