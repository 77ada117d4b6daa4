package textextract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ContentStream walks each page's content stream with pdfcpu and collects the
// operands of text-showing operators. It ignores font encodings, so it only
// helps for simple (WinAnsi/standard) fonts, which is the usual case for
// generated lab reports.
type ContentStream struct{}

func (ContentStream) Name() string { return MethodPDFCPU }

func (ContentStream) Extract(ctx context.Context, content []byte) (out Output, err error) {
	if len(content) == 0 {
		return Output{}, fmt.Errorf("empty PDF content")
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = Output{}, panicError(MethodPDFCPU, r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(content), conf)
	if err != nil {
		return Output{}, fmt.Errorf("pdfcpu read: %w", err)
	}

	chunks := make([]string, 0, pctx.PageCount)
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		chunks = append(chunks, pageContentText(pctx, pageNr))
	}
	return Output{Text: strings.Join(chunks, "\n"), Pages: pctx.PageCount}, nil
}

func pageContentText(pctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return textFromContentStream(data)
}

// textFromContentStream tokenizes a content stream and keeps the strings shown
// inside BT/ET blocks. Line-moving operators become newlines, Td/TD a space.
func textFromContentStream(data []byte) string {
	var (
		sb       strings.Builder
		operands []string
		inText   bool
	)
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	show := func() {
		for _, s := range operands {
			sb.WriteString(s)
		}
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case isWhite(c):
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			s, n := readLiteral(data[i:])
			operands = append(operands, s)
			i += n
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			// inline dictionary (marked content properties)
			end := bytes.Index(data[i:], []byte(">>"))
			if end < 0 {
				return sb.String()
			}
			i += end + 2
		case c == '<':
			s, n := readHex(data[i:])
			operands = append(operands, s)
			i += n
		case c == '[' || c == ']':
			i++
		case c == '/':
			i++
			for i < len(data) && !isWhite(data[i]) && !isDelim(data[i]) {
				i++
			}
		default:
			start := i
			for i < len(data) && !isWhite(data[i]) && !isDelim(data[i]) {
				i++
			}
			if i == start {
				i++
				continue
			}
			tok := string(data[start:i])
			if isNumber(tok) {
				continue
			}
			switch tok {
			case "BT":
				inText = true
			case "ET":
				inText = false
				newline()
			case "Tj", "TJ":
				if inText {
					show()
				}
			case "'", "\"":
				if inText {
					newline()
					show()
				}
			case "T*":
				if inText {
					newline()
				}
			case "Td", "TD":
				if inText && sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
					sb.WriteByte(' ')
				}
			case "BI":
				// inline image data is binary; skip to EI
				end := bytes.Index(data[i:], []byte("EI"))
				if end < 0 {
					return sb.String()
				}
				i += end + 2
			}
			operands = operands[:0]
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func isWhite(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isNumber(tok string) bool {
	for _, r := range tok {
		if (r < '0' || r > '9') && r != '.' && r != '-' && r != '+' {
			return false
		}
	}
	return true
}

// readLiteral decodes a balanced (...) string starting at data[0] and returns
// it with the number of bytes consumed.
func readLiteral(data []byte) (string, int) {
	var sb strings.Builder
	depth := 0
	i := 0
	for ; i < len(data); i++ {
		c := data[i]
		switch c {
		case '(':
			if depth > 0 {
				sb.WriteByte(c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return latin1(sb.String()), i + 1
			}
			sb.WriteByte(c)
		case '\\':
			if i+1 >= len(data) {
				continue
			}
			i++
			switch e := data[i]; e {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for k := 0; k < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; k++ {
						i++
						val = val*8 + int(data[i]-'0')
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(e)
				}
			}
		default:
			sb.WriteByte(c)
		}
	}
	return latin1(sb.String()), i
}

// readHex decodes a <...> hex string.
func readHex(data []byte) (string, int) {
	end := bytes.IndexByte(data, '>')
	if end < 0 {
		return "", len(data)
	}
	var digits []byte
	for _, c := range data[1:end] {
		if !isWhite(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	raw := make([]byte, 0, len(digits)/2)
	for k := 0; k+1 < len(digits); k += 2 {
		raw = append(raw, unhex(digits[k])<<4|unhex(digits[k+1]))
	}
	return latin1(string(raw)), end + 1
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

// latin1 maps single-byte font codes to runes so accented Spanish labels
// (TEMPERATURA, GÉNERO) survive as UTF-8.
func latin1(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		sb.WriteRune(rune(s[i]))
	}
	return sb.String()
}
