package metadata

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// PageLabels returns printed page labels for n consecutive scans, counting
// from 1 and passing over the printed numbers reported missing.
func PageLabels(n int, missing []int) []string {
	labels := make([]string, 0, n)
	number := 1
	for len(labels) < n {
		if slices.Contains(missing, number) {
			number++
			continue
		}
		labels = append(labels, "Page "+strconv.Itoa(number))
		number++
	}
	return labels
}

// MissingPagesNote renders the missing page list for the issue MODS note, or
// "" when nothing is missing.
func (i *Issue) MissingPagesNote() string {
	if len(i.MissingPages) == 0 {
		return ""
	}
	pages := slices.Clone(i.MissingPages)
	slices.Sort(pages)
	pages = slices.Compact(pages)

	parts := make([]string, len(pages))
	for idx, p := range pages {
		parts[idx] = strconv.Itoa(p)
	}
	if len(parts) == 1 {
		return fmt.Sprintf("Page %s is missing.", parts[0])
	}
	return fmt.Sprintf("Pages %s are missing.", strings.Join(parts, ", "))
}

// SortNatural orders names the way people number scans: runs of digits
// compare by value, so "page2.tif" sorts before "page10.tif".
func SortNatural(names []string) {
	slices.SortStableFunc(names, compareNatural)
}

func compareNatural(a, b string) int {
	for a != "" && b != "" {
		ra, rb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ra) && unicode.IsDigit(rb) {
			na, restA := leadingDigits(a)
			nb, restB := leadingDigits(b)
			if c := compareDigitRuns(na, nb); c != 0 {
				return c
			}
			a, b = restA, restB
			continue
		}

		la, lb := unicode.ToLower(ra), unicode.ToLower(rb)
		if la != lb {
			if la < lb {
				return -1
			}
			return 1
		}
		a, b = a[1:], b[1:]
	}
	return len(a) - len(b)
}

func leadingDigits(s string) (string, string) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end], s[end:]
}

func compareDigitRuns(a, b string) int {
	ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		return len(ta) - len(tb)
	}
	if c := strings.Compare(ta, tb); c != 0 {
		return c
	}
	// equal values: fewer leading zeros first
	return len(a) - len(b)
}
