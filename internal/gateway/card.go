package gateway

import "fmt"

// Card is a keyed payment instrument.
type Card struct {
	Number    string
	Month     int
	Year      int
	FirstName string
	LastName  string
	CVV       string
}

// Name returns the cardholder name truncated to maxLength characters.
func (c *Card) Name(maxLength int) string {
	name := c.FirstName + " " + c.LastName
	return Truncate(name, maxLength)
}

// ExpDate formats the card expiry as two-digit month and year joined by sep,
// e.g. "09/24" or "0924".
func (c *Card) ExpDate(sep string) string {
	return fmt.Sprintf("%02d%s%02d", c.Month, sep, c.Year%100)
}

// Address is a billing or shipping address. Country is an ISO 3166-1-alpha-2
// code.
type Address struct {
	Address1 string
	Address2 string
	City     string
	State    string
	Country  string
	Zip      string
}

// ThreeDSecure carries cardholder-authentication metadata from an external
// 3-D-Secure provider. ECI is required whenever the block is present.
type ThreeDSecure struct {
	ECI              string
	XID              string
	CAVV             string
	Version          string
	DSTransactionID  string
	ACSTransactionID string
}

// Truncate returns s cut to at most max characters.
func Truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
