package models

// RejectReason benennt den Grund einer Ablehnung. Leer bei gültigen Einreichungen.
type RejectReason string

const (
	ReasonNone              RejectReason = ""
	ReasonUnauthorized      RejectReason = "unauthorized"
	ReasonMalformedTitle    RejectReason = "malformed_title"
	ReasonUnsupportedScheme RejectReason = "unsupported_scheme"
	ReasonInvalidIdentifier RejectReason = "invalid_identifier"
	ReasonEmptyBody         RejectReason = "empty_body"
	ReasonMissingSeparator  RejectReason = "missing_separator"
	ReasonRepeatedSeparator RejectReason = "repeated_separator"
	ReasonInvalidCsv        RejectReason = "invalid_csv"
	ReasonValidatorFailure  RejectReason = "validator_failure"
	ReasonSemanticErrors    RejectReason = "semantic_errors"
)

// ReportRef verweist auf einen erzeugten Validierungsbericht.
type ReportRef struct {
	Name    string `json:"name"`
	LiveURL string `json:"live_url"`
}

// Contribution enthält die geparsten Abschnitte einer gültigen Einreichung.
type Contribution struct {
	Title     ParsedTitle
	Metadata  CsvSection
	Citations CsvSection
}

// Verdict ist das Ergebnis der Prüfung einer Einreichung.
type Verdict struct {
	Valid        bool
	Reason       RejectReason
	Message      string
	Report       *ReportRef
	Contribution *Contribution
}

// Label gibt das Tracker-Label zurück, das zu diesem Urteil gehört.
func (v Verdict) Label() string {
	switch {
	case v.Valid:
		return LabelToBeProcessed
	case v.Reason == ReasonUnauthorized:
		return LabelRejected
	default:
		return LabelInvalid
	}
}

// Tracker-Labels
const (
	LabelInvalid       = "invalid"
	LabelRejected      = "rejected"
	LabelToBeProcessed = "to be processed"
	LabelDone          = "done"
	LabelMetaError     = "oc meta error"
)
