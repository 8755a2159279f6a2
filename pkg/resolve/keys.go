package resolve

import (
	"net/url"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/agentstation/ecomap/pkg/entity"
)

// Blocking key prefixes.
const (
	DomainKeyPrefix = "domain:"
	NameKeyPrefix   = "name:"
	TokenKeyPrefix  = "token:"
)

// minTokenKeyLength is the shortest token (in runes) used as a token key.
const minTokenKeyLength = 3

// legalSuffixes are stripped from either end of a name key.
var legalSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "corp": true, "corporation": true,
	"co": true, "company": true, "ltd": true, "limited": true,
	"llc": true, "llp": true, "lp": true, "plc": true,
	"gmbh": true, "ag": true, "sa": true, "sas": true, "sarl": true,
	"bv": true, "nv": true, "kk": true, "pte": true, "pty": true, "oy": true, "ab": true,
	"주식회사": true, "주": true, "유한회사": true,
	"株式会社": true, "有限会社": true, "有限公司": true, "股份有限公司": true,
}

// attachedSuffixes are legal forms written without a separating space.
var attachedSuffixes = []string{"股份有限公司", "株式会社", "有限会社", "有限公司", "주식회사", "유한회사"}

// tokens NFKC-normalizes, width- and case-folds s, then splits it on
// anything that is not a letter or digit.
func tokens(s string) []string {
	s = norm.NFKC.String(s)
	s = width.Fold.String(s)
	s = cases.Fold().String(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ExactName returns the folded, punctuation-free form of a name with its
// legal suffixes kept. Two names match exactly when their forms are equal.
func ExactName(name string) string {
	return strings.Join(tokens(name), " ")
}

// NameKey returns the blocking form of a name: folded, punctuation-free and
// without leading or trailing legal suffixes. A name made only of suffixes
// keeps them rather than collapsing to an empty key.
func NameKey(name string) string {
	toks := nameTokens(name)
	return strings.Join(toks, " ")
}

func nameTokens(name string) []string {
	toks := tokens(name)
	if len(toks) == 0 {
		return nil
	}
	toks = slices.Clone(toks)
	toks[0] = trimAttached(toks[0], strings.TrimPrefix)
	toks[len(toks)-1] = trimAttached(toks[len(toks)-1], strings.TrimSuffix)

	start, end := 0, len(toks)
	for end-start > 1 && legalSuffixes[toks[end-1]] {
		end--
	}
	for end-start > 1 && legalSuffixes[toks[start]] {
		start++
	}
	return toks[start:end]
}

func trimAttached(tok string, trim func(string, string) string) string {
	for _, suffix := range attachedSuffixes {
		if t := trim(tok, suffix); t != tok && t != "" {
			return t
		}
	}
	return tok
}

// Domain returns the registrable host of a website: lowercase, without
// scheme, "www." prefix, port or path. It returns "" when no host is found.
func Domain(website string) string {
	s := strings.TrimSpace(website)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	return strings.TrimPrefix(host, "www.")
}

// TokenKey returns the most distinctive token of a name: the longest one
// after suffix stripping, ties going to the lexically smallest. Names whose
// tokens are all shorter than three runes have no token key.
func TokenKey(name string) string {
	best, bestLen := "", 0
	for _, t := range nameTokens(name) {
		n := utf8.RuneCountInString(t)
		if n > bestLen || (n == bestLen && t < best) {
			best, bestLen = t, n
		}
	}
	if bestLen < minTokenKeyLength {
		return ""
	}
	return best
}

// BlockingKeys returns the keys a record is indexed under: its domain when it
// has a website, its name key, and its token key. The token key widens name
// blocks enough for fuzzy matching to see reordered or extended names.
func BlockingKeys(rec *entity.NormalizedRecord) []string {
	var keys []string
	if d := Domain(rec.Website); d != "" {
		keys = append(keys, DomainKeyPrefix+d)
	}
	if k := NameKey(rec.Name); k != "" {
		keys = append(keys, NameKeyPrefix+k)
	}
	if k := TokenKey(rec.Name); k != "" {
		keys = append(keys, TokenKeyPrefix+k)
	}
	return keys
}
