// Package domain defines the data models, error taxonomy and interfaces shared
// across healthvault. It contains plain types and contracts only; concrete
// ledgers, engines and stores live in their own packages.
package domain
