package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ledgerABIJSON is the subset of the session ledger ABI the client calls.
const ledgerABIJSON = `[
{"type":"function","name":"VISIT_FEE","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"backendOracle","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"contractBalance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"createSession","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getEncryptedInputs","stateMutability":"view","inputs":[{"name":"sessionId","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"},{"name":"","type":"bytes32"},{"name":"","type":"bytes32"},{"name":"","type":"bytes32"}]},
{"type":"function","name":"getEncryptedResult","stateMutability":"view","inputs":[{"name":"sessionId","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
{"type":"function","name":"nextSessionId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"sessions","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"user","type":"address"},{"name":"exists","type":"bool"},{"name":"weight","type":"bytes32"},{"name":"height","type":"bytes32"},{"name":"exercise","type":"bytes32"},{"name":"diet","type":"bytes32"},{"name":"result","type":"bytes32"},{"name":"resultReady","type":"bool"}]},
{"type":"function","name":"setBackendOracle","stateMutability":"nonpayable","inputs":[{"name":"_backend","type":"address"}],"outputs":[]},
{"type":"function","name":"submitEncryptedInput","stateMutability":"nonpayable","inputs":[{"name":"sessionId","type":"uint256"},{"name":"extWeight","type":"bytes32"},{"name":"extHeight","type":"bytes32"},{"name":"extExercise","type":"bytes32"},{"name":"extDiet","type":"bytes32"},{"name":"att","type":"bytes"}],"outputs":[]},
{"type":"function","name":"submitEncryptedResult","stateMutability":"nonpayable","inputs":[{"name":"sessionId","type":"uint256"},{"name":"extResult","type":"bytes32"},{"name":"att","type":"bytes"}],"outputs":[]},
{"type":"function","name":"withdrawFees","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"}],"outputs":[]},
{"type":"event","name":"SessionCreated","anonymous":false,"inputs":[{"name":"sessionId","type":"uint256","indexed":true}]},
{"type":"event","name":"SessionInputSubmitted","anonymous":false,"inputs":[{"name":"sessionId","type":"uint256","indexed":true}]},
{"type":"event","name":"SessionResultSubmitted","anonymous":false,"inputs":[{"name":"sessionId","type":"uint256","indexed":true}]}
]`

// erc20ABIJSON covers the fee token calls.
const erc20ABIJSON = `[
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var (
	// LedgerABI is the parsed session ledger ABI.
	LedgerABI = mustParse(ledgerABIJSON)
	// ERC20ABI is the parsed fee token ABI.
	ERC20ABI = mustParse(erc20ABIJSON)
)

func mustParse(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("chain: bad embedded ABI: " + err.Error())
	}
	return parsed
}
