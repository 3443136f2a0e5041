// Package corpus handles corpus classification for indexed documents: the
// platform taxonomy, the delimited single-field encoding of corpus
// membership, and the persisted per-corpus document counter.
//
// Membership is stored as one text field per document rather than a
// multi-valued field. Each corpus name is wrapped in sentinel markers so a
// phrase query for the wrapped name matches exactly one corpus:
//
//	BGC. elegansED BGNeuroscienceED
package corpus

import (
	"sort"
	"strings"
	"sync"
)

// Sentinel markers delimiting one corpus name inside the membership field.
const (
	BeginSentinel = "BG"
	EndSentinel   = "ED"
)

// Unclassified is the fallback corpus for documents whose subjects match
// nothing in the taxonomy.
const Unclassified = "Unclassified"

// DefaultTaxonomy is the platform's fixed corpus taxonomy.
var DefaultTaxonomy = []string{
	"C. elegans",
	"C. elegans Supplementals",
	"Drosophila",
	"D. rerio",
	"S. cerevisiae",
	"S. pombe",
	"A. thaliana",
	"Mouse",
	"Rat",
	"Human",
	"Xenopus",
	"Dictyostelium",
	"E. coli",
	"Neuroscience",
	Unclassified,
}

var (
	registeredMu sync.RWMutex
	registered   []string
)

// Register adds an externally-defined corpus to the known set. Registering
// an already-known corpus is a no-op.
func Register(name string) {
	if name == "" {
		return
	}
	registeredMu.Lock()
	defer registeredMu.Unlock()
	for _, c := range registered {
		if c == name {
			return
		}
	}
	for _, c := range DefaultTaxonomy {
		if c == name {
			return
		}
	}
	registered = append(registered, name)
}

// Known returns the full set of known corpora: the fixed taxonomy plus any
// registered extras, sorted.
func Known() []string {
	registeredMu.RLock()
	defer registeredMu.RUnlock()

	all := make([]string, 0, len(DefaultTaxonomy)+len(registered))
	all = append(all, DefaultTaxonomy...)
	all = append(all, registered...)
	sort.Strings(all)
	return all
}

// Encode renders corpus membership as the delimited single-field value.
// An empty membership encodes the Unclassified corpus.
func Encode(corpora []string) string {
	if len(corpora) == 0 {
		corpora = []string{Unclassified}
	}

	var b strings.Builder
	for i, c := range corpora {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(BeginSentinel)
		b.WriteString(c)
		b.WriteString(EndSentinel)
	}
	return b.String()
}

// Wrap returns a single sentinel-wrapped corpus name, the value the query
// composer matches against the membership field.
func Wrap(name string) string {
	return BeginSentinel + name + EndSentinel
}

// Parse splits a delimited membership field back into corpus names.
// Malformed input yields no names rather than an error.
func Parse(field string) []string {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil
	}
	if !strings.HasPrefix(field, BeginSentinel) || !strings.HasSuffix(field, EndSentinel) {
		return nil
	}

	inner := field[len(BeginSentinel) : len(field)-len(EndSentinel)]
	parts := strings.Split(inner, EndSentinel+" "+BeginSentinel)
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			names = append(names, p)
		}
	}
	return names
}

// Classify maps document subjects onto taxonomy corpora. Subjects that
// match a known corpus name (case-insensitive) select it; a document with
// no matching subject falls into Unclassified.
func Classify(subjects []string) []string {
	known := Known()
	byFold := make(map[string]string, len(known))
	for _, c := range known {
		byFold[strings.ToLower(c)] = c
	}

	var corpora []string
	seen := make(map[string]struct{})
	for _, s := range subjects {
		c, ok := byFold[strings.ToLower(strings.TrimSpace(s))]
		if !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		corpora = append(corpora, c)
	}

	if len(corpora) == 0 {
		return []string{Unclassified}
	}
	return corpora
}
