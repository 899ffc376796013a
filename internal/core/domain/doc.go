// Package domain contains the core business entities of FinanceScope:
// documents, chunks, answers with citations, and extracted metrics.
// It has no dependencies on adapters or infrastructure.
package domain
