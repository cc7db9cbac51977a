// Package model defines the core domain records used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
)

// RawFields is the output of a single vision-model extraction call.
// Instances are produced fresh per call and never mutated once returned.
type RawFields struct {
	Bank              string
	City              string
	AccountOrConvenio string

	Amount int64  // integer COP value, no minor units
	Date   string // ISO form, 2006-01-02
	Time   string // 15:04, optional

	// Transaction identifiers. Any of these may serve as the primary
	// uniqueness key depending on the receipt format.
	RRN             string
	ReceiptNumber   string
	ApprovalCode    string
	OperationNumber string
	VoucherNumber   string
	TransactionID   string

	PaymentReference string
	RawText          string

	ImageQuality int // 0-100
	Confidence   int // 0-100, model self-reported

	IsScreenshot       bool
	HasPhysicalReceipt bool
	IsReadable         bool

	AmbiguousFields []string
}

// IdentifierFields enumerates the transaction-identifier fields subject to
// consensus voting, in primary-key preference order.
var IdentifierFields = []string{
	"operationNumber",
	"rrn",
	"receiptNumber",
	"voucherNumber",
	"approvalCode",
	"transactionId",
}

// Identifier returns the value of the named transaction-identifier field.
func (f *RawFields) Identifier(name string) string {
	switch name {
	case "rrn":
		return f.RRN
	case "receiptNumber":
		return f.ReceiptNumber
	case "approvalCode":
		return f.ApprovalCode
	case "operationNumber":
		return f.OperationNumber
	case "voucherNumber":
		return f.VoucherNumber
	case "transactionId":
		return f.TransactionID
	}
	return ""
}

// SetIdentifier overwrites the named transaction-identifier field.
func (f *RawFields) SetIdentifier(name, value string) {
	switch name {
	case "rrn":
		f.RRN = value
	case "receiptNumber":
		f.ReceiptNumber = value
	case "approvalCode":
		f.ApprovalCode = value
	case "operationNumber":
		f.OperationNumber = value
	case "voucherNumber":
		f.VoucherNumber = value
	case "transactionId":
		f.TransactionID = value
	}
}

// PrimaryIdentifier returns the first populated identifier in preference
// order, or empty if the receipt carries none.
func (f *RawFields) PrimaryIdentifier() string {
	for _, name := range IdentifierFields {
		if v := f.Identifier(name); v != "" {
			return v
		}
	}
	return ""
}

// Identifiers returns all populated transaction identifiers.
func (f *RawFields) Identifiers() []string {
	var ids []string
	for _, name := range IdentifierFields {
		if v := f.Identifier(name); v != "" {
			ids = append(ids, v)
		}
	}
	return ids
}

// ExtractionResult is the reconciled record after consensus. The embedded
// RawFields carry consensus values and the recalibrated confidence; the
// result is never mutated after the orchestrator returns it.
type ExtractionResult struct {
	RawFields

	HasAmbiguousNumbers bool
	UsedProvider        string
	FromCache           bool
}

// PromptExample is a prior human-corrected extraction forwarded to providers
// as a worked example. The core forwards it verbatim and never interprets it.
type PromptExample struct {
	Transcript string
	Fields     RawFields
}

// HashImage computes the stable content hash used as the cache key and
// duplicate-detection anchor for an uploaded image.
func HashImage(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}
