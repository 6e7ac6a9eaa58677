package materials

import (
	"fmt"
	"io"

	"rsc.io/pdf"
)

// CountPDFPages returns the page count of the PDF in r.
func CountPDFPages(r io.ReaderAt, size int64) (n int, err error) {
	// rsc.io/pdf panics on some malformed object graphs
	defer func() {
		if p := recover(); p != nil {
			n, err = 0, fmt.Errorf("read pdf: %v", p)
		}
	}()
	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	return doc.NumPage(), nil
}
