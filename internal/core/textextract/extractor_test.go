package textextract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/clinical-extract/internal/common"
)

type fakeStrategy struct {
	name  string
	text  string
	pages int
	err   error
	calls int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Extract(_ context.Context, _ []byte) (Output, error) {
	f.calls++
	if f.err != nil {
		return Output{}, f.err
	}
	return Output{Text: f.text, Pages: f.pages}, nil
}

var long = strings.Repeat("FC 80 FR 18 ", 10)

func TestExtract_FirstLongEnoughWins(t *testing.T) {
	a := &fakeStrategy{name: "a", text: long, pages: 2}
	b := &fakeStrategy{name: "b", text: long + long}
	res := NewExtractor(Config{}, nil, a, b).Extract(context.Background(), []byte("%PDF"))

	assert.Equal(t, long, res.Text)
	assert.Equal(t, "a", res.Method)
	assert.Equal(t, 2, res.Pages)
	assert.False(t, res.Unreadable)
	assert.Equal(t, 0, b.calls)
	require.Len(t, res.Attempts, 1)
}

func TestExtract_ShortTextFallsThrough(t *testing.T) {
	a := &fakeStrategy{name: "a", text: "FC 80"}
	b := &fakeStrategy{name: "b", text: long}
	res := NewExtractor(Config{}, nil, a, b).Extract(context.Background(), nil)

	assert.Equal(t, "b", res.Method)
	assert.Equal(t, long, res.Text)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, 5, res.Attempts[0].Chars)
}

func TestExtract_ThresholdCountsRunes(t *testing.T) {
	// 50 runes, more than 50 bytes
	text := strings.Repeat("é", 50)
	a := &fakeStrategy{name: "a", text: text}
	b := &fakeStrategy{name: "b", text: long}
	res := NewExtractor(Config{MinChars: 50}, nil, a, b).Extract(context.Background(), nil)

	assert.Equal(t, "a", res.Method)
	assert.Equal(t, 0, b.calls)
}

func TestExtract_KeepsLongestWhenAllShort(t *testing.T) {
	a := &fakeStrategy{name: "a", text: "Hb 13"}
	b := &fakeStrategy{name: "b", err: errors.New("broken xref")}
	c := &fakeStrategy{name: "c", text: "Hb 13.2 g/dL"}
	d := &fakeStrategy{name: "d", text: ""}
	res := NewExtractor(Config{}, nil, a, b, c, d).Extract(context.Background(), nil)

	assert.Equal(t, "c", res.Method)
	assert.Equal(t, "Hb 13.2 g/dL", res.Text)
	assert.False(t, res.Unreadable)
	require.Len(t, res.Attempts, 4)
	assert.Equal(t, "broken xref", res.Attempts[1].Error)
}

func TestExtract_Unreadable(t *testing.T) {
	a := &fakeStrategy{name: "a", err: errors.New("not a pdf")}
	b := &fakeStrategy{name: "b", err: fmt.Errorf("%w: pdftotext", ErrStrategyUnavailable)}
	c := &fakeStrategy{name: "c", text: " \n "}
	res := NewExtractor(Config{}, nil, a, b, c).Extract(context.Background(), nil)

	assert.True(t, res.Unreadable)
	assert.Equal(t, "c", res.Method)
	assert.True(t, res.Attempts[1].Unavailable)
	assert.False(t, res.Attempts[0].Unavailable)

	res = NewExtractor(Config{}, nil).Extract(context.Background(), nil)
	assert.True(t, res.Unreadable)
	assert.Empty(t, res.Text)
	assert.Empty(t, res.Method)
}

func TestExtract_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &fakeStrategy{name: "a", text: long}
	res := NewExtractor(Config{}, nil, a).Extract(ctx, nil)
	assert.Equal(t, 0, a.calls)
	assert.True(t, res.Unreadable)
}

func TestExtract_InputNotMutated(t *testing.T) {
	in := []byte("%PDF-1.4 garbage that is not a real document")
	orig := append([]byte(nil), in...)
	ex := NewExtractor(Config{}, nil, PlainText{}, ContentStream{})
	res := ex.Extract(context.Background(), in)

	assert.Equal(t, orig, in)
	assert.True(t, res.Unreadable)
	require.Len(t, res.Attempts, 2)
	assert.NotEmpty(t, res.Attempts[0].Error)
	assert.NotEmpty(t, res.Attempts[1].Error)
}

func TestFromConfig(t *testing.T) {
	cfg := common.DefaultConfig().Extract
	ex, err := FromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{MethodPDFText, MethodPDFCPU}, ex.Strategies())

	cfg.EnablePdftotext = true
	ex, err = FromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{MethodPDFText, MethodPDFCPU, MethodPdftotext}, ex.Strategies())

	cfg.Strategies = []string{"ocr"}
	_, err = FromConfig(cfg, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	cfg.Strategies = []string{MethodPdftotext}
	cfg.EnablePdftotext = false
	_, err = FromConfig(cfg, nil)
	assert.Error(t, err)
}

type fakeRunner struct {
	lookErr error
	stdout  string
	stderr  string
	runErr  error
	args    []string
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.lookErr != nil {
		return "", f.lookErr
	}
	return "/usr/bin/" + name, nil
}

func (f *fakeRunner) Run(_ context.Context, _ string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	f.args = args
	return []byte(f.stdout), []byte(f.stderr), f.runErr
}

func TestPdftotext(t *testing.T) {
	r := &fakeRunner{stdout: "EDAD: 54\fFC: 80\f"}
	p := NewPdftotext("", nil)
	p.runner = r

	out, err := p.Extract(context.Background(), []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "EDAD: 54\nFC: 80", out.Text)
	assert.Equal(t, 2, out.Pages)
	assert.Equal(t, []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}, r.args[:5])
	assert.Equal(t, "-", r.args[len(r.args)-1])

	p.runner = &fakeRunner{lookErr: errors.New("not found")}
	_, err = p.Extract(context.Background(), nil)
	assert.ErrorIs(t, err, ErrStrategyUnavailable)

	p.runner = &fakeRunner{runErr: errors.New("exit status 1"), stderr: "Syntax Error"}
	_, err = p.Extract(context.Background(), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStrategyUnavailable)
	assert.Contains(t, err.Error(), "Syntax Error")
}
