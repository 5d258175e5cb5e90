package models

// DepositItem ist eine angenommene Einreichung samt Herkunftsangaben.
type DepositItem struct {
	Data       DepositData       `json:"data"`
	Provenance DepositProvenance `json:"provenance"`
}

// DepositData enthält die Nutzdaten einer Einreichung.
type DepositData struct {
	Title     string              `json:"title"`
	Metadata  []map[string]string `json:"metadata"`
	Citations []map[string]string `json:"citations"`
}

// DepositProvenance beschreibt, wer wann was eingereicht hat.
type DepositProvenance struct {
	GeneratedAtTime  string `json:"generatedAtTime"`
	WasAttributedTo  string `json:"wasAttributedTo"`
	HadPrimarySource string `json:"hadPrimarySource"`
}
