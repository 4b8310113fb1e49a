package dataset

// Missing marks an absent response in a ResponseMatrix cell.
const Missing = -1

// ResponseMatrix holds validated ordinal responses: respondents as rows,
// items as columns. Cells are category values in [1, Categories] or
// Missing. The matrix is immutable once loaded; accessors copy.
type ResponseMatrix struct {
	items      []string
	rows       [][]int
	categories int
}

// NewResponseMatrix builds a matrix from pre-validated rows. Intended
// for tests and synthetic data; Load is the production entry point.
func NewResponseMatrix(items []string, rows [][]int, categories int) *ResponseMatrix {
	return &ResponseMatrix{
		items:      append([]string(nil), items...),
		rows:       rows,
		categories: categories,
	}
}

// NRows returns the number of respondents.
func (m *ResponseMatrix) NRows() int { return len(m.rows) }

// NItems returns the number of items.
func (m *ResponseMatrix) NItems() int { return len(m.items) }

// Categories returns the ordinal category ceiling shared by all items.
func (m *ResponseMatrix) Categories() int { return m.categories }

// ItemNames returns a copy of the ordered item column names.
func (m *ResponseMatrix) ItemNames() []string {
	return append([]string(nil), m.items...)
}

// Row returns a copy of one respondent's responses.
func (m *ResponseMatrix) Row(i int) []int {
	return append([]int(nil), m.rows[i]...)
}

// Preview returns the first n rows for sanity-checking, fewer if the
// matrix is shorter.
func (m *ResponseMatrix) Preview(n int) [][]int {
	if n > len(m.rows) {
		n = len(m.rows)
	}
	out := make([][]int, n)
	for i := 0; i < n; i++ {
		out[i] = append([]int(nil), m.rows[i]...)
	}
	return out
}

// ObservedCategoryCounts returns, per item, the observed count of each
// category 1..Categories (index k-1 holds category k).
func (m *ResponseMatrix) ObservedCategoryCounts() [][]int {
	counts := make([][]int, m.NItems())
	for j := range counts {
		counts[j] = make([]int, m.categories)
	}
	for _, row := range m.rows {
		for j, v := range row {
			if v != Missing {
				counts[j][v-1]++
			}
		}
	}
	return counts
}

// SumScore returns the summed score of a row and whether the row is
// complete. Incomplete rows report the partial sum.
func (m *ResponseMatrix) SumScore(i int) (sum int, complete bool) {
	complete = true
	for _, v := range m.rows[i] {
		if v == Missing {
			complete = false
			continue
		}
		sum += v
	}
	return sum, complete
}

// ItemProportions returns, per item, observed category proportions over
// non-missing responses.
func (m *ResponseMatrix) ItemProportions() [][]float64 {
	counts := m.ObservedCategoryCounts()
	props := make([][]float64, len(counts))
	for j, cs := range counts {
		total := 0
		for _, c := range cs {
			total += c
		}
		props[j] = make([]float64, len(cs))
		if total == 0 {
			continue
		}
		for k, c := range cs {
			props[j][k] = float64(c) / float64(total)
		}
	}
	return props
}
