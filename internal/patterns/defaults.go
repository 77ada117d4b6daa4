package patterns

// defaultFields is the built-in Spanish clinical table (demographics, vitals,
// labs). Every pattern carries (?i) and keeps the label in an earlier group so
// the value is the last participating group.
var defaultFields = []struct {
	field    string
	patterns []string
}{
	{"Nombre", []string{`(?i)\b(NOMBRE|PACIENTE|NOMBRE COMPLETO)\s*[:\-]\s*([A-ZÁÉÍÓÚÑ\s]+)`}},
	{"Edad", []string{`(?i)\bEDAD\s*[:\-]\s*(\d{1,3})\b`}},
	{"Sexo", []string{`(?i)\b(SEXO|GÉNERO)\s*[:\-]\s*(M(ASCULINO)?|F(EMENINO)?)\b`}},
	{"TA_sis", []string{`(?i)\bTA\b.*?(\d{2,3})\s*/\s*\d{2,3}`}},
	{"TA_dia", []string{`(?i)\bTA\b.*?\d{2,3}\s*/\s*(\d{2,3})`}},
	{"FC", []string{`(?i)\bFC\b\s*[:\-]?\s*(\d{2,3})\b`}},
	{"FR", []string{`(?i)\bFR\b\s*[:\-]?\s*(\d{1,2})\b`}},
	{"Temp", []string{`(?i)\b(TEMP(ERATURA)?)\b\s*[:\-]?\s*(\d{2}\.?\d?)\b`}},
	{"SatO2", []string{`(?i)\b(SAT(URACIÓN)?O?2?)\b\s*[:\-]?\s*(\d{2,3})\s*%`}},
	{"Hb", []string{`(?i)\b(HB|HEMOGLOBINA)\b\s*[:\-]?\s*(\d{1,2}\.?\d?)\b`}},
	{"Leucocitos", []string{`(?i)\b(LEU(C(OCITOS)?)?)\b\s*[:\-]?\s*(\d{1,2}\.?\d?)\s*(K\/?u?L|x?10\^?3\/\w+)?`}},
	{"Plaquetas", []string{`(?i)\b(PLAQ(UETAS)?)\b\s*[:\-]?\s*(\d{2,4}\.?\d?)\b`}},
	{"Creatinina", []string{`(?i)\b(CREA(TININA)?)\b\s*[:\-]?\s*(\d{1}\.?\d{1,2})\b`}},
	{"Urea", []string{`(?i)\b(UREA)\b\s*[:\-]?\s*(\d{1,3}\.?\d?)\b`}},
	{"BUN", []string{`(?i)\b(BUN|NITRÓGENO UREICO)\b\s*[:\-]?\s*(\d{1,3}\.?\d?)\b`}},
	{"Na", []string{`(?i)\b(NA|SODIO)\b\s*[:\-]?\s*(\d{2,3}\.?\d?)\b`}},
	{"K", []string{`(?i)\b(K|POTASIO)\b\s*[:\-]?\s*(\d{1,2}\.?\d?)\b`}},
	{"Cl", []string{`(?i)\b(CL|CLOR(O|URO))\b\s*[:\-]?\s*(\d{2,3}\.?\d?)\b`}},
	{"Mg", []string{`(?i)\b(MG|MAGNESIO)\b\s*[:\-]?\s*(\d{1,2}\.?\d?)\b`}},
	{"Ca", []string{`(?i)\b(CA|CALCIO)\b\s*[:\-]?\s*(\d{1,2}\.?\d?)\b`}},
	{"Fósforo", []string{`(?i)\b(FÓSFORO|PHOS|P)\b\s*[:\-]?\s*(\d{1,2}\.?\d?)\b`}},
	{"PCR", []string{`(?i)\b(PCR|PROTEÍNA C REACTIVA)\b\s*[:\-]?\s*(\d{1,3}\.?\d?)\b`}},
	{"Procalcitonina", []string{`(?i)\b(PROCAL(CITONINA)?)\b\s*[:\-]?\s*(\d{1,3}\.?\d?)\b`}},
	{"Troponina", []string{`(?i)\b(TROP(ONINA)?)\b\s*[:\-]?\s*(\d{1,4}\.?\d*)\b`}},
}

// Default returns a fresh copy of the built-in table.
func Default() *Table {
	t := NewTable()
	for _, d := range defaultFields {
		t.Set(d.field, d.patterns)
	}
	return t
}
