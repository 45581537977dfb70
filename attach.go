package sas7bdat

import (
	"io"
	"math"
	"os"
	"strings"

	"github.com/sasreader/sas7bdat/catalog"
	"github.com/sasreader/sas7bdat/metadata"
	"github.com/sasreader/sas7bdat/rows"
)

func floatBits(f float64) uint64 { return math.Float64bits(f) }

// AttachCatalog parses the .sas7bcat file at path and merges its label
// sets into the dataset's metadata, matching each formatted variable
// against a label set by name and folding any tagged-missing tags the
// label set declares into that variable's missing-value policy. It then
// runs ScanMissingPolicies so the policy reflects what the data itself
// contains as well as what the catalog declares.
func (rd *Reader) AttachCatalog(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return rd.AttachCatalogReader(f)
}

// AttachCatalogReader is AttachCatalog for an already-open reader.
func (rd *Reader) AttachCatalogReader(r io.ReadSeeker) error {
	cat, err := catalog.Parse(r)
	if err != nil {
		return err
	}

	ds := &rd.parsed.Dataset
	if ds.LabelSets == nil {
		ds.LabelSets = map[string]metadata.LabelSet{}
	}
	for name, set := range cat.LabelSets {
		ds.LabelSets[name] = set
	}

	lookup := make(map[string]string, len(cat.LabelSets))
	for name := range cat.LabelSets {
		lookup[normalizeLabelName(name)] = name
	}

	for i := range ds.Variables {
		v := &ds.Variables[i]
		if v.Format == nil || v.Format.Name == "" {
			continue
		}
		candidate := normalizeLabelName(v.Format.Name)
		matched, ok := lookup[candidate]
		if !ok && !strings.HasPrefix(candidate, "$") {
			matched, ok = lookup["$"+candidate]
		}
		if !ok {
			continue
		}
		v.ValueLabels = matched
		mergeLabelSetMissing(&v.Missing, ds.LabelSets[matched])
	}

	return rd.ScanMissingPolicies()
}

// normalizeLabelName uppercases a format or label-set name and strips a
// trailing '.', so "gender." and "GENDER" compare equal.
func normalizeLabelName(name string) string {
	return strings.ToUpper(strings.TrimRight(name, "."))
}

// mergeLabelSetMissing folds a label set's tagged entries into policy:
// any tag key ('_' or 'A'-'Z') the set declares is recorded as a reachable
// tagged-missing value, even before the row data itself confirms it is used.
func mergeLabelSetMissing(policy *metadata.MissingValuePolicy, set metadata.LabelSet) {
	for _, l := range set.Labels {
		if !l.Key.IsTag {
			continue
		}
		if l.Key.Tag == '_' {
			policy.SystemMissing = true
			continue
		}
		policy.TaggedMissing = append(policy.TaggedMissing, metadata.TaggedMissing{Tag: l.Key.Tag})
	}
}

// ScanMissingPolicies walks every row once, recording which missing
// values each column actually contains, then deduplicates the result.
// Running it twice leaves every variable's policy unchanged.
func (rd *Reader) ScanMissingPolicies() error {
	ds := &rd.parsed.Dataset
	policies := make([]metadata.MissingValuePolicy, len(ds.Variables))
	for i := range ds.Variables {
		policies[i] = ds.Variables[i].Missing.Clone()
	}

	it, err := rd.newIterator()
	if err != nil {
		return err
	}
	for {
		row, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		for i, v := range row.Values {
			if v.Kind != rows.KindMissing {
				continue
			}
			recordMissingObservation(&policies[i], v)
		}
	}

	for i := range policies {
		ds.Variables[i].Missing = dedupPolicy(policies[i])
	}
	return nil
}

func recordMissingObservation(policy *metadata.MissingValuePolicy, v rows.Value) {
	if v.Tag == 0 || v.Tag == '_' {
		policy.SystemMissing = true
		return
	}
	policy.TaggedMissing = append(policy.TaggedMissing, metadata.TaggedMissing{Tag: v.Tag, Literal: v.Number})
}

// dedupPolicy removes duplicate tagged-missing entries (by tag and the
// literal's bit pattern, to disambiguate ±0 and distinct NaN payloads) and
// duplicate ranges (by their bounds).
func dedupPolicy(p metadata.MissingValuePolicy) metadata.MissingValuePolicy {
	out := metadata.MissingValuePolicy{SystemMissing: p.SystemMissing}

	seenTag := map[[2]uint64]bool{}
	for _, t := range p.TaggedMissing {
		key := [2]uint64{uint64(t.Tag), floatBits(t.Literal)}
		if seenTag[key] {
			continue
		}
		seenTag[key] = true
		out.TaggedMissing = append(out.TaggedMissing, t)
	}

	type rangeKey struct {
		lowerType, upperType metadata.ValueType
		lowerNum, upperNum   uint64
		lowerText, upperText string
	}
	seenRange := map[rangeKey]bool{}
	for _, r := range p.Ranges {
		key := rangeKey{
			r.Lower.Type, r.Upper.Type,
			floatBits(r.Lower.Number), floatBits(r.Upper.Number),
			r.Lower.Text, r.Upper.Text,
		}
		if seenRange[key] {
			continue
		}
		seenRange[key] = true
		out.Ranges = append(out.Ranges, r)
	}

	return out
}
