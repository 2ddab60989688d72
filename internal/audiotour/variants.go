package audiotour

import (
	"fmt"
	"strings"
)

// MergeVariants appends every variant of want whose code is missing from
// have, keeping the order of both lists. It returns the merged list and the
// variants that were appended; merging an already covered list is a no-op.
func MergeVariants(have, want []Variant) (merged, added []Variant) {
	merged = append([]Variant(nil), have...)
	for _, v := range want {
		if HasVariant(merged, v.Code) {
			continue
		}
		merged = append(merged, v)
		added = append(added, v)
	}
	return merged, added
}

func HasVariant(vs []Variant, code string) bool {
	for _, v := range vs {
		if v.Code == code {
			return true
		}
	}
	return false
}

func VariantCodes(vs []Variant) []string {
	codes := make([]string, len(vs))
	for i, v := range vs {
		codes[i] = v.Code
	}
	return codes
}

// VariantsEqual compares two lists by code, in order.
func VariantsEqual(a, b []Variant) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Code != b[i].Code {
			return false
		}
	}
	return true
}

// ValidateVariants reports blank and duplicate codes under path.
func ValidateVariants(path string, vs []Variant, verr *ValidationError) {
	seen := make(map[string]bool, len(vs))
	for i, v := range vs {
		p := fmt.Sprintf("%s[%d].code", path, i)
		code := strings.TrimSpace(v.Code)
		if code == "" {
			verr.Add(p, "code is required", v.Code)
			continue
		}
		if seen[code] {
			verr.Add(p, "duplicate variant code", v.Code)
			continue
		}
		seen[code] = true
	}
}

// EnsureKeys adds an empty entry to m for every code it lacks and reports
// whether m changed. A nil m is allocated.
func EnsureKeys(m map[string]string, codes []string) (map[string]string, bool) {
	if m == nil {
		m = make(map[string]string, len(codes))
	}
	changed := false
	for _, c := range codes {
		if _, ok := m[c]; !ok {
			m[c] = ""
			changed = true
		}
	}
	return m, changed
}
