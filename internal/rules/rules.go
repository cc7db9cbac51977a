package rules

import (
	"regexp"
	"sort"
	"strings"

	"github.com/consigna-dev/consigna/internal/model"
)

// transfiyaIdentifierRule fixes the systematic confusion between the
// "ID de transacción" and "Código de aprobación" labels on Transfiya/ACH
// transfer receipts. The two lines sit visually adjacent and extractors
// routinely place the approval token into the operation-number field. The
// transcript line carries the true identifier, so it is authoritative here.
type transfiyaIdentifierRule struct{}

var (
	transfiyaMarker = regexp.MustCompile(`(?i)\b(transfiya|transferencia\s+ach)\b`)
	transactionLine = regexp.MustCompile(`(?i)(?:id|no\.?|n[uú]mero)\s*(?:de\s+)?transacci[oó]n\s*[:#]?\s*([A-Za-z0-9-]{4,})`)
	approvalLine    = regexp.MustCompile(`(?i)(?:c[oó]digo|no\.?)\s*(?:de\s+)?aprobaci[oó]n\s*[:#]?\s*([A-Za-z0-9-]{4,})`)
)

func (r *transfiyaIdentifierRule) Name() string { return "transfiya-identifier" }

func (r *transfiyaIdentifierRule) Apply(f model.RawFields) model.RawFields {
	if !transfiyaMarker.MatchString(f.RawText) {
		return f
	}

	m := transactionLine.FindStringSubmatch(f.RawText)
	if m == nil {
		return f
	}
	trueID := m[1]

	f.TransactionID = trueID

	// The extractor tends to copy the adjacent approval token into the
	// operation number. When that happened, the transcript identifier wins.
	if am := approvalLine.FindStringSubmatch(f.RawText); am != nil {
		approval := am[1]
		if f.ApprovalCode == "" {
			f.ApprovalCode = approval
		}
		if f.OperationNumber == approval {
			f.OperationNumber = trueID
		}
	}
	if f.OperationNumber == "" {
		f.OperationNumber = trueID
	}

	return f
}

// appScreenshotRule normalizes mobile-app "payment success" screenshots.
// These screens carry no physical receipt; identifiers live in predictable
// transcript lines and are filled only where the extractor left them empty.
type appScreenshotRule struct{}

var (
	screenshotMarker = regexp.MustCompile(`(?i)(transferencia\s+exitosa|env[ií]o\s+exitoso|pago\s+exitoso|¡?\s*listo\s*!)`)
	voucherLine      = regexp.MustCompile(`(?i)comprobante\s*(?:no\.?|n[uú]mero)?\s*[:#]?\s*(\d{4,})`)
	operationLine    = regexp.MustCompile(`(?i)(?:n[uú]mero\s+de\s+)?operaci[oó]n\s*[:#]?\s*(\d{4,})`)
	destAccountLine  = regexp.MustCompile(`(?i)(?:cuenta|producto)\s*(?:de\s+)?(?:destino)?\s*[:#]?\s*\*{0,4}(\d{6,})`)
)

func (r *appScreenshotRule) Name() string { return "app-screenshot" }

func (r *appScreenshotRule) Apply(f model.RawFields) model.RawFields {
	if !screenshotMarker.MatchString(f.RawText) {
		return f
	}

	f.IsScreenshot = true
	f.HasPhysicalReceipt = false

	if f.VoucherNumber == "" {
		if m := voucherLine.FindStringSubmatch(f.RawText); m != nil {
			f.VoucherNumber = m[1]
		}
	}
	if f.OperationNumber == "" {
		if m := operationLine.FindStringSubmatch(f.RawText); m != nil {
			f.OperationNumber = m[1]
		}
	}
	if f.AccountOrConvenio == "" {
		if m := destAccountLine.FindStringSubmatch(f.RawText); m != nil {
			f.AccountOrConvenio = m[1]
		}
	}

	return f
}

// thermalReceiptRule parses point-of-sale thermal receipts. Their labeled
// lines (RRN, RECIBO, APROBACION, CONVENIO, REF) are reliable, so empty
// fields are filled from them; populated fields are left alone.
type thermalReceiptRule struct{}

var (
	rrnLine      = regexp.MustCompile(`(?i)\bRRN\s*[:#]?\s*(\d{4,})`)
	reciboLine   = regexp.MustCompile(`(?i)\bRECIBO\s*(?:NO\.?)?\s*[:#]?\s*(\d{4,})`)
	aprobLine    = regexp.MustCompile(`(?i)\bAPROB(?:ACI[OÓ]N)?\.?\s*[:#]?\s*(\d{4,})`)
	convenioLine = regexp.MustCompile(`(?i)\bCONVENIO\s*(?:NO\.?)?\s*[:#]?\s*(\d{3,})`)
	refLine      = regexp.MustCompile(`(?i)\bREF(?:ERENCIA)?\.?\s*[:#]?\s*(\d{3,})`)
)

func (r *thermalReceiptRule) Name() string { return "thermal-receipt" }

func (r *thermalReceiptRule) Apply(f model.RawFields) model.RawFields {
	hasRRN := rrnLine.MatchString(f.RawText)
	hasPOSPair := reciboLine.MatchString(f.RawText) && aprobLine.MatchString(f.RawText)
	if !hasRRN && !hasPOSPair {
		return f
	}

	f.HasPhysicalReceipt = true

	if f.RRN == "" {
		if m := rrnLine.FindStringSubmatch(f.RawText); m != nil {
			f.RRN = m[1]
		}
	}
	if f.ReceiptNumber == "" {
		if m := reciboLine.FindStringSubmatch(f.RawText); m != nil {
			f.ReceiptNumber = m[1]
		}
	}
	if f.ApprovalCode == "" {
		if m := aprobLine.FindStringSubmatch(f.RawText); m != nil {
			f.ApprovalCode = m[1]
		}
	}
	if f.AccountOrConvenio == "" {
		if m := convenioLine.FindStringSubmatch(f.RawText); m != nil {
			f.AccountOrConvenio = m[1]
		}
	}
	if f.PaymentReference == "" {
		if m := refLine.FindStringSubmatch(f.RawText); m != nil {
			f.PaymentReference = m[1]
		}
	}

	return f
}

// knownClientRule forces the canonical payment reference when the receipt
// belongs to a configured business partner, identified by convenio code or
// transcript marker. Alias substrings override further: some partners print
// internal reference names instead of their canonical code.
type knownClientRule struct {
	partners []Partner
}

func (r *knownClientRule) Name() string { return "known-client" }

func (r *knownClientRule) Apply(f model.RawFields) model.RawFields {
	transcript := strings.ToLower(f.RawText)
	convenio := digitsOnly(f.AccountOrConvenio)

	for _, p := range r.partners {
		if !r.matches(p, transcript, convenio) {
			continue
		}

		f.PaymentReference = p.Reference
		// Sorted iteration keeps alias resolution reproducible.
		aliases := make([]string, 0, len(p.Aliases))
		for alias := range p.Aliases {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)
		for _, alias := range aliases {
			if strings.Contains(transcript, strings.ToLower(alias)) {
				f.PaymentReference = p.Aliases[alias]
				break
			}
		}
		break
	}

	return f
}

func (r *knownClientRule) matches(p Partner, transcript, convenio string) bool {
	for _, c := range p.Convenios {
		if convenio != "" && digitsOnly(c) == convenio {
			return true
		}
	}
	for _, m := range p.Markers {
		if strings.Contains(transcript, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
