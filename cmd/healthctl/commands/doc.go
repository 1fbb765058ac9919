// Package commands defines the healthctl CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init            Create the local owner key and config file
//   - address         Print the owner address
//   - create          Pay the visit fee, open a session and submit encrypted metrics
//   - submit          Submit metrics to a session whose submission failed
//   - list            List your sessions, newest first
//   - result          Decrypt the result of one of your sessions
//   - watch           Stream session creation events
//   - faucet          Mint sandbox fee credits (devnet only)
//   - process         Run the backend oracle for a session (devnet only)
//   - admin           Ledger owner console: info, stats, withdraw, set-oracle
//
// # Implementation
//
// The root command loads config.yaml from the home directory, applies flag
// overrides and builds the dependency graph (ledger, fee token, encryption
// engine, services) before any subcommand runs. Failures are printed with the
// remedy a user should try.
package commands
