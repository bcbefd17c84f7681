// Package evidence handles the PDF documents that back antibody records:
// a structural validity check at ingest time and object storage for the
// accepted files.
package evidence

import "bytes"

// MaxPDFBytes is the evidence document size cap. The conversion constant
// (1024×1000 bytes per MB) matches the upload contract.
const MaxPDFBytes = 10 * 1024 * 1000

// ValidPDF reports whether data is structurally a PDF: the %PDF- header
// near the start and an %%EOF marker near the end. A pass/fail contract,
// not a parse.
func ValidPDF(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	// The header must appear within the first 1KB; some generators emit
	// a byte-order mark or junk before it.
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		return false
	}
	tail := data
	if len(tail) > 1024 {
		tail = tail[len(tail)-1024:]
	}
	return bytes.Contains(tail, []byte("%%EOF"))
}
