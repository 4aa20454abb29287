package services

import (
	"crypto/rand"
	"io"
	"math/big"
	"time"
)

const invoiceAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// InvoiceSuffixLen is the number of random base-36 characters in an invoice number.
const InvoiceSuffixLen = 4

// InvoiceGenerator returns a fresh invoice number for a commit at the given time.
type InvoiceGenerator func(at time.Time) (string, error)

// NewInvoiceNumber formats INV-YYYYMMDD-XXXX with a random uppercase base-36 suffix.
func NewInvoiceNumber(at time.Time) (string, error) {
	return invoiceNumber(at, rand.Reader)
}

func invoiceNumber(at time.Time, src io.Reader) (string, error) {
	suffix := make([]byte, InvoiceSuffixLen)
	n := big.NewInt(int64(len(invoiceAlphabet)))
	for i := range suffix {
		idx, err := rand.Int(src, n)
		if err != nil {
			return "", err
		}
		suffix[i] = invoiceAlphabet[idx.Int64()]
	}
	return "INV-" + at.Format("20060102") + "-" + string(suffix), nil
}
