package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/consigna-dev/consigna/internal/model"
)

// maxPromptExamples bounds how many worked examples are forwarded to the
// model; callers may supply more, the oldest beyond the bound are dropped.
const maxPromptExamples = 5

const systemPrompt = "You are an expert reader of Colombian bank payment receipts " +
	"(consignaciones, transferencias, pagos por convenio). You MUST respond with ONLY a valid JSON object " +
	"matching the requested fields. Do not include any explanatory text, markdown formatting, or commentary " +
	"before or after the JSON. Start your response directly with { and end with }."

// buildUserPrompt composes the extraction instructions plus any worked
// examples. Examples are rendered verbatim; their content is opaque here.
func buildUserPrompt(examples []model.PromptExample) string {
	var sb strings.Builder

	sb.WriteString(`Analyze the attached payment receipt image and extract these fields as JSON:

{
  "bank": "issuing bank or network name, empty string if not visible",
  "city": "city printed on the receipt, empty string if absent",
  "accountOrConvenio": "destination account number or convenio code",
  "amount": 0,
  "date": "payment date as YYYY-MM-DD, empty string if unreadable",
  "time": "payment time as HH:MM, empty string if absent",
  "rrn": "RRN value if printed",
  "receiptNumber": "RECIBO / receipt number if printed",
  "approvalCode": "APROBACION / approval code if printed",
  "operationNumber": "operation number (numero de operacion) if printed",
  "voucherNumber": "comprobante / voucher number if printed",
  "transactionId": "any other unique transaction identifier",
  "paymentReference": "client or payment reference (referencia)",
  "rawText": "full literal transcript of all visible text, line by line",
  "imageQuality": 0,
  "confidence": 0,
  "isScreenshot": false,
  "hasPhysicalReceipt": false,
  "isReadable": false,
  "ambiguousFields": []
}

Rules:
- "amount" is the payment value in Colombian pesos as a plain integer (no decimals, no separators).
- "imageQuality" and "confidence" are integers from 0 to 100.
- Transcribe identifiers digit by digit; if a digit is uncertain, add the field name to "ambiguousFields".
- Leave a field empty ("" or 0) when it is not on the receipt. Never invent values.
`)

	if len(examples) > 0 {
		bounded := examples
		if len(bounded) > maxPromptExamples {
			bounded = bounded[len(bounded)-maxPromptExamples:]
		}
		sb.WriteString("\nWorked examples of correct extractions from similar receipts:\n")
		for i, ex := range bounded {
			fields, err := json.Marshal(ex.Fields)
			if err != nil {
				continue
			}
			fmt.Fprintf(&sb, "\nExample %d transcript:\n%s\nExample %d extraction:\n%s\n", i+1, ex.Transcript, i+1, fields)
		}
	}

	return sb.String()
}

// cleanMarkdownWrapper strips markdown code fences that models sometimes
// wrap around JSON despite instructions.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")

	return strings.TrimSpace(content)
}
