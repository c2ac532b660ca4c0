package shared

import "fmt"

// TransactionKind distinguishes payables from receivables.
type TransactionKind string

const (
	KindPayable    TransactionKind = "payable"
	KindReceivable TransactionKind = "receivable"
)

// Valid reports whether the kind is known.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindPayable, KindReceivable:
		return true
	default:
		return false
	}
}

// ParseKindSegment maps URL segments such as "payables" to a kind.
func ParseKindSegment(segment string) (TransactionKind, error) {
	switch segment {
	case "payables", "payable", "contas-pagar":
		return KindPayable, nil
	case "receivables", "receivable", "contas-receber":
		return KindReceivable, nil
	default:
		return "", fmt.Errorf("unknown transaction kind %q", segment)
	}
}
