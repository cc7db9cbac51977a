package extract

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/consigna-dev/consigna/internal/common"
	"github.com/consigna-dev/consigna/internal/model"
)

// receiptSchema constrains the model's JSON output. String fields accept
// null so a partially readable receipt decodes instead of failing; type
// violations are protocol errors excluded from consensus.
const receiptSchema = `{
  "type": "object",
  "properties": {
    "bank":               {"type": ["string", "null"]},
    "city":               {"type": ["string", "null"]},
    "accountOrConvenio":  {"type": ["string", "null"]},
    "amount":             {"type": ["integer", "null"], "minimum": 0},
    "date":               {"type": ["string", "null"]},
    "time":               {"type": ["string", "null"]},
    "rrn":                {"type": ["string", "null"]},
    "receiptNumber":      {"type": ["string", "null"]},
    "approvalCode":       {"type": ["string", "null"]},
    "operationNumber":    {"type": ["string", "null"]},
    "voucherNumber":      {"type": ["string", "null"]},
    "transactionId":      {"type": ["string", "null"]},
    "paymentReference":   {"type": ["string", "null"]},
    "rawText":            {"type": ["string", "null"]},
    "imageQuality":       {"type": ["integer", "null"]},
    "confidence":         {"type": ["integer", "null"]},
    "isScreenshot":       {"type": ["boolean", "null"]},
    "hasPhysicalReceipt": {"type": ["boolean", "null"]},
    "isReadable":         {"type": ["boolean", "null"]},
    "ambiguousFields":    {"type": ["array", "null"], "items": {"type": "string"}}
  }
}`

var compiledSchema = jsonschema.MustCompileString("receipt.json", receiptSchema)

// rawReceipt mirrors the wire format of a model response. JSON null leaves
// the zero value in place, which is exactly the default-to-empty contract.
type rawReceipt struct {
	Bank               string   `json:"bank"`
	City               string   `json:"city"`
	AccountOrConvenio  string   `json:"accountOrConvenio"`
	Amount             int64    `json:"amount"`
	Date               string   `json:"date"`
	Time               string   `json:"time"`
	RRN                string   `json:"rrn"`
	ReceiptNumber      string   `json:"receiptNumber"`
	ApprovalCode       string   `json:"approvalCode"`
	OperationNumber    string   `json:"operationNumber"`
	VoucherNumber      string   `json:"voucherNumber"`
	TransactionID      string   `json:"transactionId"`
	PaymentReference   string   `json:"paymentReference"`
	RawText            string   `json:"rawText"`
	ImageQuality       int      `json:"imageQuality"`
	Confidence         int      `json:"confidence"`
	IsScreenshot       bool     `json:"isScreenshot"`
	HasPhysicalReceipt bool     `json:"hasPhysicalReceipt"`
	IsReadable         bool     `json:"isReadable"`
	AmbiguousFields    []string `json:"ambiguousFields"`
}

// decodeRawFields validates and decodes one model response into RawFields.
// Any malformed output maps to ErrModelProtocol so the orchestrator can
// exclude the call from its vote.
func decodeRawFields(content string) (model.RawFields, error) {
	content = cleanMarkdownWrapper(content)

	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return model.RawFields{}, fmt.Errorf("%w: %v", common.ErrModelProtocol, err)
	}

	if err := compiledSchema.Validate(doc); err != nil {
		return model.RawFields{}, fmt.Errorf("%w: schema violation: %v", common.ErrModelProtocol, err)
	}

	var raw rawReceipt
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return model.RawFields{}, fmt.Errorf("%w: %v", common.ErrModelProtocol, err)
	}

	return model.RawFields{
		Bank:               raw.Bank,
		City:               raw.City,
		AccountOrConvenio:  raw.AccountOrConvenio,
		Amount:             max(raw.Amount, 0),
		Date:               raw.Date,
		Time:               raw.Time,
		RRN:                raw.RRN,
		ReceiptNumber:      raw.ReceiptNumber,
		ApprovalCode:       raw.ApprovalCode,
		OperationNumber:    raw.OperationNumber,
		VoucherNumber:      raw.VoucherNumber,
		TransactionID:      raw.TransactionID,
		PaymentReference:   raw.PaymentReference,
		RawText:            raw.RawText,
		ImageQuality:       clampScore(raw.ImageQuality),
		Confidence:         clampScore(raw.Confidence),
		IsScreenshot:       raw.IsScreenshot,
		HasPhysicalReceipt: raw.HasPhysicalReceipt,
		IsReadable:         raw.IsReadable,
		AmbiguousFields:    raw.AmbiguousFields,
	}, nil
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
