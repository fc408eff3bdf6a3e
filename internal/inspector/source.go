package inspector

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// lineIndex converts byte offsets into 0-based line and UTF-16 column pairs.
type lineIndex struct {
	src    string
	starts []int
}

func newLineIndex(src string) *lineIndex {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '\n':
			starts = append(starts, i+1)
		case '\r':
			if i+1 < len(src) && src[i+1] == '\n' {
				i++
			}
			starts = append(starts, i+1)
		case 0xe2:
			// U+2028 and U+2029
			if i+2 < len(src) && src[i+1] == 0x80 && (src[i+2] == 0xa8 || src[i+2] == 0xa9) {
				i += 2
				starts = append(starts, i+1)
			}
		}
	}
	return &lineIndex{src: src, starts: starts}
}

func (li *lineIndex) position(off int) (line, column int) {
	off = min(max(off, 0), len(li.src))
	lo, hi := 0, len(li.starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if li.starts[mid] <= off {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, utf16Len(li.src[li.starts[lo]:off])
}

func (li *lineIndex) end() (line, column int) {
	return li.position(len(li.src))
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 && r != utf8.RuneError {
			n += 2
		} else {
			n++
		}
	}
	return n
}

var (
	sourceURLPattern     = regexp.MustCompile(`(?m)^[ \t]*//[#@][ \t]*sourceURL=[ \t]*(\S+)[ \t]*$`)
	sourceMapURLPattern  = regexp.MustCompile(`(?m)^[ \t]*//[#@][ \t]*sourceMappingURL=[ \t]*(\S+)[ \t]*$`)
	unexpectedTokenWords = []string{"ILLEGAL", "nterminated", "Invalid or unexpected token"}
)

// script is one source text submitted to a session.
type script struct {
	id           string
	url          string
	source       string
	lines        *lineIndex
	hasSourceURL bool
	sourceMapURL string
}

func newScript(id, resourceName, source string) *script {
	s := &script{
		id:     id,
		url:    resourceName,
		source: source,
		lines:  newLineIndex(source),
	}
	if m := lastSubmatch(sourceURLPattern, source); m != "" {
		s.url = m
		s.hasSourceURL = true
	}
	s.sourceMapURL = lastSubmatch(sourceMapURLPattern, source)
	return s
}

func lastSubmatch(re *regexp.Regexp, s string) string {
	all := re.FindAllStringSubmatch(s, -1)
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1][1]
}

func (s *script) location(off int) Location {
	line, col := s.lines.position(off)
	return Location{ScriptID: s.id, LineNumber: line, ColumnNumber: col}
}

func (s *script) parsedParams(parsed bool) scriptParsedParams {
	endLine, endCol := s.lines.end()
	sum := sha1.Sum([]byte(s.source))
	p := scriptParsedParams{
		ScriptID:           s.id,
		URL:                s.url,
		EndLine:            endLine,
		EndColumn:          endCol,
		ExecutionContextID: injectedScriptID,
		Hash:               hex.EncodeToString(sum[:]),
		SourceMapURL:       s.sourceMapURL,
		HasSourceURL:       s.hasSourceURL,
		Length:             utf16Len(s.source),
	}
	if parsed {
		liveEdit := false
		p.IsLiveEdit = &liveEdit
	}
	return p
}

// parse parses the script, converting parser failures into *SyntaxError.
// sourceMappingURL comments are reported, never loaded.
func (s *script) parse() (*ast.Program, error) {
	prg, err := parser.ParseFile(nil, s.url, s.source, 0, parser.WithDisableSourceMaps)
	if err == nil {
		return prg, nil
	}
	serr := &SyntaxError{Message: err.Error(), ScriptID: s.id}
	var list parser.ErrorList
	var single *parser.Error
	switch {
	case errors.As(err, &list) && len(list) > 0:
		single = list[0]
	case errors.As(err, &single):
	}
	if single != nil {
		serr.Message = single.Message
		serr.Line = max(single.Position.Line-1, 0)
		serr.Column = max(single.Position.Column-1, 0)
	}
	if s.atQuote(serr.Line, serr.Column) || slices.ContainsFunc(unexpectedTokenWords, func(w string) bool {
		return strings.Contains(serr.Message, w)
	}) {
		serr.Message = "Invalid or unexpected token"
	}
	return nil, serr
}

func (s *script) atQuote(line, column int) bool {
	if line >= len(s.lines.starts) {
		return false
	}
	off := s.lines.starts[line] + column
	if off >= len(s.source) {
		return false
	}
	q := s.source[off]
	if q != '\'' && q != '"' {
		return false
	}
	// only an unterminated literal counts
	rest := s.source[off+1:]
	if nl := strings.IndexAny(rest, "\r\n"); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.IndexByte(rest, q) < 0
}

// compile compiles src, which is the script's source or its instrumented
// form, without loading source maps.
func (s *script) compile(src string) (*goja.Program, error) {
	prg, err := goja.Parse(s.url, src, parser.WithDisableSourceMaps)
	if err != nil {
		return nil, err
	}
	return goja.CompileAST(prg, false)
}
