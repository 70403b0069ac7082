package redaction

// PII label families. The regex-backed labels are detected by pattern, the
// rest by the entity matcher (or by the vision backend, which interprets the
// same label names).
const (
	LabelCreditCard    = "CREDIT_CARD"
	LabelSSN           = "SSN"
	LabelEmail         = "EMAIL"
	LabelPhone         = "PHONE"
	LabelPNR           = "PNR"
	LabelTransactionID = "TRANSACTION_ID"
	LabelInvoiceNumber = "INVOICE_NUMBER"
	LabelPerson        = "PERSON"
	LabelGPE           = "GPE"
	LabelDate          = "DATE"
	LabelOrg           = "ORG"
)

// severityTier is one rung of the severity ladder.
type severityTier struct {
	threshold int
	labels    []string
}

// severityLadder maps severity levels to the label families redacted at that
// level. Each tier includes everything below it; severity 0 redacts nothing.
var severityLadder = []severityTier{
	{threshold: 20, labels: []string{LabelCreditCard, LabelSSN}},
	{threshold: 40, labels: []string{
		LabelCreditCard, LabelSSN, LabelEmail, LabelPhone, LabelPNR,
		LabelTransactionID, LabelInvoiceNumber,
	}},
	{threshold: 60, labels: []string{
		LabelCreditCard, LabelSSN, LabelEmail, LabelPhone, LabelPNR,
		LabelTransactionID, LabelInvoiceNumber, LabelPerson,
	}},
	{threshold: 80, labels: []string{
		LabelCreditCard, LabelSSN, LabelEmail, LabelPhone, LabelPNR,
		LabelTransactionID, LabelInvoiceNumber, LabelPerson, LabelGPE, LabelDate,
	}},
	{threshold: 100, labels: []string{
		LabelCreditCard, LabelSSN, LabelEmail, LabelPhone, LabelPNR,
		LabelTransactionID, LabelInvoiceNumber, LabelPerson, LabelGPE, LabelDate, LabelOrg,
	}},
}

// LabelsForSeverity returns the label families active at the given severity.
// The severity is a threshold: the highest tier at or below it applies, so
// severity 55 behaves like 40 and anything below 20 redacts nothing.
func LabelsForSeverity(severity int) []string {
	var labels []string
	for _, tier := range severityLadder {
		if severity >= tier.threshold {
			labels = tier.labels
		}
	}
	return labels
}

// labelSet turns a label list into a membership set.
func labelSet(labels []string) map[string]bool {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}
	return set
}
