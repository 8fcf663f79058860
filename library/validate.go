package library

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	cardNumberPattern = regexp.MustCompile(`^93\d{7}$`)
	barcodePattern    = regexp.MustCompile(`^00000\d{7}$`)
	eanPattern        = regexp.MustCompile(`^\d{13}$|^\d{8}$`)
)

const (
	minimalCardNumber = 930000000
	barcodeWidth      = 12
)

// ValidateCardNumber checks the nine-digit card format starting with 93.
func ValidateCardNumber(card string) error {
	if !cardNumberPattern.MatchString(card) {
		return fmt.Errorf("%w: %q", ErrInvalidCardNumber, card)
	}
	return nil
}

// ValidateBarcode checks the twelve-digit copy barcode format.
func ValidateBarcode(barcode string) error {
	if !barcodePattern.MatchString(barcode) {
		return fmt.Errorf("%w: %q", ErrInvalidBarcode, barcode)
	}
	return nil
}

// ValidateEAN accepts EAN-13 and EAN-8 codes.
func ValidateEAN(ean string) error {
	if !eanPattern.MatchString(ean) {
		return fmt.Errorf("%w: %q", ErrInvalidEAN, ean)
	}
	return nil
}

// normalizeName upper-cases the family name and title-cases the rest, the way
// cards are printed.
func normalizeName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		if i == len(fields)-1 && len(fields) > 1 {
			out[i] = strings.ToUpper(f)
			continue
		}
		r := []rune(strings.ToLower(f))
		r[0] = unicode.ToUpper(r[0])
		out[i] = string(r)
	}
	return strings.Join(out, " ")
}
