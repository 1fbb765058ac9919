// Package app wires application dependencies for the CLI.
//
// It loads Config from the YAML file in the CLI home directory and builds the
// ledger, fee token and encryption engine for the selected network, then the
// session, admin and identity services on top of them, exposing everything
// via the Wire struct for commands to use.
package app
