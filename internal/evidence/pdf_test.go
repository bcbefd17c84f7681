package evidence

import (
	"bytes"
	"testing"
)

func pdfBytes() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")
}

func TestValidPDF(t *testing.T) {
	if !ValidPDF(pdfBytes()) {
		t.Error("well-formed PDF rejected")
	}
}

func TestValidPDFLeadingJunk(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, pdfBytes()...)
	if !ValidPDF(data) {
		t.Error("PDF with leading BOM rejected")
	}
}

func TestValidPDFRejectsNonPDF(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		[]byte(""),
		[]byte("just some text"),
		[]byte("%PDF-1.4 but no trailer"),
		bytes.Repeat([]byte("x"), 2048),
	} {
		if ValidPDF(data) {
			t.Errorf("non-PDF accepted: %.20q", data)
		}
	}
}
