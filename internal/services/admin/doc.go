// Package admin is the ledger owner's console: ledger info, session stats,
// fee withdrawal and backend oracle rotation.
package admin
