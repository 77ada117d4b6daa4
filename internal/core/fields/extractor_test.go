package fields

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/patterns"
)

func table(pairs ...any) *patterns.Table {
	t := patterns.NewTable()
	for i := 0; i < len(pairs); i += 2 {
		t.Set(pairs[i].(string), pairs[i+1].([]string))
	}
	return t
}

var engines = []Engine{EngineRegexp2, EngineRE2}

func TestExtract_KeySetMatchesTable(t *testing.T) {
	tbl := table(
		"FC", []string{`FC\s*(\d+)`},
		"FR", []string{`FR\s*(\d+)`},
		"Temp", []string{`TEMP\s*(\d+)`},
	)
	for _, eng := range engines {
		t.Run(string(eng), func(t *testing.T) {
			row := Compile(tbl, Options{Engine: eng}).Extract("FC 80, nothing else")
			assert.Len(t, row, 3)
			for _, f := range tbl.Fields() {
				assert.Contains(t, row, f)
			}
			v, ok := row.Value("FC")
			assert.True(t, ok)
			assert.Equal(t, "80", v)
			assert.Nil(t, row["FR"])
			assert.Nil(t, row["Temp"])
		})
	}
}

func TestExtract_CaptureSelection(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		text    string
		want    *string
	}{
		{"single group", `VALUE:\s*(\d+)`, "VALUE: 42", strPtr("42")},
		{"last group wins", `(LABEL)\s*(\d+\.?\d*)`, "LABEL 98.6", strPtr("98.6")},
		{"no groups gives whole match", `\d+ mg`, "dose 12 mg daily", strPtr("12 mg")},
		{"optional trailing group skipped", `(HB)\s*(\d+)(\s*g/dL)?`, "HB 13", strPtr("13")},
		{"optional trailing group used", `(HB)\s*(\d+)(\s*g/dL)?`, "HB 13 g/dL", strPtr(" g/dL")},
		{"no participating group gives whole match", `(X)?Y`, "Y", strPtr("Y")},
		{"empty capture is a value", `VALUE:(\d*)`, "VALUE:", strPtr("")},
		{"first match in text", `N(\d)`, "N1 N2", strPtr("1")},
		{"python named group", `(LABEL)\s*(?P<val>\d+\.?\d*)`, "LABEL 98.6", strPtr("98.6")},
		{"named group before unnamed", `(?<label>LABEL)\s*(\d+\.?\d*)`, "LABEL 98.6", strPtr("98.6")},
		{"named group last", `(?<label>LABEL)\s*(?<val>\d+)`, "LABEL 98", strPtr("98")},
		{"escaped and class parens are not groups", `\((\d+)[(]\)`, "(7()", strPtr("7")},
		{"no match", `VALUE:\s*(\d+)`, "nothing here", nil},
	}
	for _, eng := range engines {
		for _, tc := range cases {
			t.Run(string(eng)+"/"+tc.name, func(t *testing.T) {
				row := Compile(table("F", []string{tc.pattern}), Options{Engine: eng}).Extract(tc.text)
				assert.Equal(t, tc.want, row["F"])
			})
		}
	}
}

func TestExtract_PythonGroupSyntax(t *testing.T) {
	tbl := table(
		"Repeat", []string{`(?P<w>[A-Z]+)-(?P=w)`},
		"Dose", []string{`(?P<amount>\d+)\s*(?P<unit>mg|g)?`},
	)
	ex := Compile(tbl, Options{Engine: EngineRegexp2})
	require.Empty(t, ex.Malformed())

	row := ex.Extract("code AB-AB, dose 12 mg")
	v, ok := row.Value("Repeat")
	require.True(t, ok)
	assert.Equal(t, "AB", v)
	v, ok = row.Value("Dose")
	require.True(t, ok)
	assert.Equal(t, "mg", v)
}

func TestTranslatePattern(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		want    string
		groups  []groupRef
	}{
		{"plain groups", `(a)(b)`, `(a)(b)`, []groupRef{{number: 1}, {number: 2}}},
		{"python named group", `(?P<v>\d+)`, `(?<v>\d+)`, []groupRef{{name: "v"}}},
		{"python backreference", `(?P<v>a)(?P=v)`, `(?<v>a)\k<v>`, []groupRef{{name: "v"}}},
		{"dotnet named groups keep pattern order", `(?<a>x)(y)(?'b'z)`, `(?<a>x)(y)(?'b'z)`,
			[]groupRef{{name: "a"}, {number: 1}, {name: "b"}}},
		{"non-capturing and lookarounds", `(?:a)(?=b)(?!c)(?<=d)(?<!e)(?i)(f)`, `(?:a)(?=b)(?!c)(?<=d)(?<!e)(?i)(f)`,
			[]groupRef{{number: 1}}},
		{"escapes and classes", `\(x[()\]](y)[]()]`, `\(x[()\]](y)[]()]`, []groupRef{{number: 1}}},
		{"comment", `(?#note (x))(y)`, `(?#note (x))(y)`, []groupRef{{number: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, groups := translatePattern(tc.pattern)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.groups, groups)
		})
	}
}

func TestExtract_AlternativesInOrder(t *testing.T) {
	tbl := table("FC", []string{`FREC\.? CARD\.?\s*(\d+)`, `FC\s*[:\-]?\s*(\d+)`, `(\d+)\s*lpm`})

	row := Extract("FC: 92 lpm 70", tbl)
	v, ok := row.Value("FC")
	require.True(t, ok)
	assert.Equal(t, "92", v)

	row = Extract("FREC. CARD. 88 and FC 70", tbl)
	v, _ = row.Value("FC")
	assert.Equal(t, "88", v)
}

func TestExtract_MalformedPatternSkipped(t *testing.T) {
	tbl := table(
		"Edad", []string{`EDAD\s*(\d+`, `EDAD\s*(\d+)`},
		"Broken", []string{`([`},
	)
	for _, eng := range engines {
		t.Run(string(eng), func(t *testing.T) {
			ex := Compile(tbl, Options{Engine: eng})
			row := ex.Extract("EDAD 54")

			v, ok := row.Value("Edad")
			require.True(t, ok)
			assert.Equal(t, "54", v)
			assert.Contains(t, row, "Broken")
			assert.Nil(t, row["Broken"])

			bad := ex.Malformed()
			require.Len(t, bad, 2)
			assert.Equal(t, "Edad", bad[0].Field)
			assert.Equal(t, 0, bad[0].Index)
			assert.Equal(t, "Broken", bad[1].Field)
			assert.True(t, errors.Is(bad[1], common.ErrMalformedFieldPattern))
		})
	}
}

func TestExtract_Regexp2Features(t *testing.T) {
	tbl := table(
		"Peso", []string{`(?<=PESO\s)(\d+)(?=\s*kg)`},
		"Dup", []string{`(\w+) \1`},
	)
	row := Compile(tbl, Options{Engine: EngineRegexp2}).Extract("PESO 70 kg, bien bien")
	assert.Equal(t, strPtr("70"), row["Peso"])
	assert.Equal(t, strPtr("bien"), row["Dup"])

	// RE2 rejects lookarounds and backreferences, so the fields stay absent.
	ex := Compile(tbl, Options{Engine: EngineRE2})
	row = ex.Extract("PESO 70 kg, bien bien")
	assert.Nil(t, row["Peso"])
	assert.Nil(t, row["Dup"])
	assert.Len(t, ex.Malformed(), 2)
}

func TestExtract_DefaultTable(t *testing.T) {
	text := "PACIENTE: JUAN PEREZ\nEDAD: 54\nFC: 88 FR 18 TEMP 36.6 HB 13.2 TA 120/80 Na 140"
	row := Extract(text, patterns.Default())
	assert.Len(t, row, 24)

	want := map[string]string{
		"Edad":   "54",
		"FC":     "88",
		"FR":     "18",
		"Temp":   "36.6",
		"Hb":     "13.2",
		"TA_sis": "120",
		"TA_dia": "80",
		"Na":     "140",
	}
	for f, w := range want {
		v, ok := row.Value(f)
		if assert.True(t, ok, f) {
			assert.Equal(t, w, v, f)
		}
	}
	assert.Nil(t, row["Troponina"])
}

// The highest-numbered participating group wins, so the optional suffix group
// beats the full word.
func TestExtract_DefaultSexoPattern(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"SEXO: MASCULINO", "ASCULINO"},
		{"Sexo: F", "F"},
		{"GÉNERO - M", "M"},
	}
	for _, tt := range tests {
		v, ok := Extract(tt.text, patterns.Default()).Value("Sexo")
		require.True(t, ok, tt.text)
		assert.Equal(t, tt.want, v, tt.text)
	}
}

func TestExplain(t *testing.T) {
	tbl := table("FC", []string{`(`, `FREC\s*(\d+)`, `FC\s*(\d+)`, `(\d+)`})
	traces := Compile(tbl, Options{}).Explain("FC 80")
	require.Len(t, traces, 1)

	tr := traces[0]
	assert.Equal(t, "FC", tr.Field)
	assert.Equal(t, strPtr("80"), tr.Value)
	require.Len(t, tr.Attempts, 3)
	assert.Equal(t, CompileError, tr.Attempts[0].Result.Outcome)
	assert.Error(t, tr.Attempts[0].Result.Err)
	assert.Equal(t, NoMatch, tr.Attempts[1].Result.Outcome)
	assert.Equal(t, Matched, tr.Attempts[2].Result.Outcome)
	assert.Equal(t, 2, tr.Attempts[2].Index)
}

func TestExtract_MatchTimeout(t *testing.T) {
	tbl := table("Slow", []string{`^(a+)+$`}, "Fast", []string{`(b)`})
	text := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa!b"
	ex := Compile(tbl, Options{Engine: EngineRegexp2, MatchTimeout: 10 * time.Millisecond})

	traces := ex.Explain(text)
	require.Len(t, traces, 2)
	assert.Equal(t, MatchError, traces[0].Attempts[0].Result.Outcome)
	assert.Nil(t, traces[0].Value)
	assert.Equal(t, strPtr("b"), traces[1].Value)
}

func TestParseEngine(t *testing.T) {
	e, err := ParseEngine("")
	require.NoError(t, err)
	assert.Equal(t, EngineRegexp2, e)

	e, err = ParseEngine(" RE2 ")
	require.NoError(t, err)
	assert.Equal(t, EngineRE2, e)

	_, err = ParseEngine("pcre")
	assert.Error(t, err)
}

func strPtr(s string) *string { return &s }
