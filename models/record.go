package models

// Separator trennt den Metadaten-CSV vom Zitations-CSV im Issue-Body.
const Separator = "===###===@@@==="

// RecordKind unterscheidet die beiden Datensatzarten einer Einreichung.
type RecordKind string

const (
	KindMetadata  RecordKind = "metadata"
	KindCitations RecordKind = "citations"
)

// Record ist eine CSV-Zeile als Spalte→Wert-Zuordnung.
// Columns hält die Reihenfolge der Kopfzeile fest.
type Record struct {
	Columns []string
	Values  map[string]string
}

// Get liefert den Wert einer Spalte oder "".
func (r Record) Get(column string) string {
	return r.Values[column]
}

// Map gibt die Werte als einfache Map zurück (für JSON-Deposits).
func (r Record) Map() map[string]string {
	out := make(map[string]string, len(r.Values))
	for k, v := range r.Values {
		out[k] = v
	}
	return out
}

// CsvSection ist ein geparster Abschnitt des Issue-Bodys.
type CsvSection struct {
	Kind    RecordKind
	Header  []string
	Raw     string
	Records []Record
}

// Batch ist ein Block von höchstens N Datensätzen einer Art.
type Batch struct {
	Kind    RecordKind
	Index   int
	Records []Record
}
