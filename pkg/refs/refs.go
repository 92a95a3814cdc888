// Package refs formats the human-facing reference numbers printed on
// membership cards, invoices, and receipts.
package refs

import "fmt"

// Format renders a zero-padded reference such as DSTARS-000042 from a
// database identifier and its configured prefix.
func Format(prefix string, id int64) string {
	return fmt.Sprintf("%s-%06d", prefix, id)
}
