package quality

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonnathanguaman/covidpipeline/internal/domain/table"
)

// checkFunc evaluates one predicate kind against its target table(s).
type checkFunc func(e *Evaluator, spec RuleSpec, target *table.Table) (violations int, notes string)

// checks is the dispatch table over the closed set of predicate kinds.
var checks = map[Kind]checkFunc{
	KindNoFutureDates:         checkNoFutureDates,
	KindRequiredColumns:       checkRequiredColumns,
	KindUniqueness:            checkUniqueness,
	KindPositivePopulation:    checkPositivePopulation,
	KindBoundedRange:          checkBoundedRange,
	KindCompleteness:          checkCompleteness,
	KindDistributionDiversity: checkDistributionDiversity,
	KindTemporalOverlap:       checkTemporalOverlap,
}

// Evaluator applies rule specs to registered tables. It is rule-agnostic;
// evaluation only happens after a table is fully materialized.
type Evaluator struct {
	tables map[string]*table.Table
	now    time.Time
}

// Option applies a configuration option to the Evaluator.
type Option func(*Evaluator)

// WithRunDate fixes the run date used by temporal predicates. Defaults to
// the wall clock; tests pin it for determinism.
func WithRunDate(now time.Time) Option {
	return func(e *Evaluator) {
		if !now.IsZero() {
			e.now = now
		}
	}
}

// NewEvaluator builds an Evaluator over the given tables.
func NewEvaluator(tables []*table.Table, opts ...Option) *Evaluator {
	e := &Evaluator{
		tables: make(map[string]*table.Table, len(tables)),
		now:    time.Now().UTC(),
	}
	for _, t := range tables {
		e.tables[t.Name()] = t
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddTable registers a table produced after construction.
func (e *Evaluator) AddTable(t *table.Table) {
	e.tables[t.Name()] = t
}

// Evaluate applies one rule and produces exactly one CheckResult.
func (e *Evaluator) Evaluate(ctx context.Context, spec RuleSpec) (CheckResult, error) {
	if err := ctx.Err(); err != nil {
		return CheckResult{}, err
	}
	target, ok := e.tables[spec.Target]
	if !ok {
		return CheckResult{}, fmt.Errorf("%w: %s (rule %s)", ErrUnknownTarget, spec.Target, spec.Name)
	}
	check, ok := checks[spec.Kind]
	if !ok {
		return CheckResult{}, fmt.Errorf("%w: kind %d (rule %s)", ErrUnknownKind, spec.Kind, spec.Name)
	}

	violations, notes := check(e, spec, target)
	res := CheckResult{
		RuleName:     spec.Name,
		Target:       spec.Target,
		Status:       statusFor(spec.Severity, violations),
		RowsAffected: violations,
		TotalRows:    target.Len(),
		Notes:        notes,
	}
	return res, nil
}

// Run evaluates every rule and always returns the full result set. When any
// ERROR-severity rule fails, the returned error wraps ErrQualityGate so the
// caller can halt downstream computation; WARN violations never error.
func (e *Evaluator) Run(ctx context.Context, specs []RuleSpec) ([]CheckResult, error) {
	results := make([]CheckResult, 0, len(specs))
	var failed []string
	for _, spec := range specs {
		res, err := e.Evaluate(ctx, spec)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if res.Status == StatusFail {
			failed = append(failed, res.RuleName)
		}
	}
	if len(failed) > 0 {
		return results, fmt.Errorf("%w: %s", ErrQualityGate, strings.Join(failed, ", "))
	}
	return results, nil
}

// ResultsTable projects check results onto the consolidated summary table.
func ResultsTable(results []CheckResult) *table.Table {
	t := table.New(ResultsTableName, []string{
		"nombre_regla", "tabla", "estado", "filas_afectadas", "total_filas", "notas",
	})
	for _, r := range results {
		_ = t.AppendRow(
			table.String(r.RuleName),
			table.String(r.Target),
			table.String(string(r.Status)),
			table.Number(float64(r.RowsAffected)),
			table.Number(float64(r.TotalRows)),
			table.String(r.Notes),
		)
	}
	return t
}

// ResultsTableName identifies the consolidated check table.
const ResultsTableName = "resumen_chequeos"

func statusFor(severity Severity, violations int) Status {
	if violations == 0 {
		return StatusPass
	}
	if severity == SeverityError {
		return StatusFail
	}
	return StatusWarn
}

func checkNoFutureDates(e *Evaluator, spec RuleSpec, target *table.Table) (int, string) {
	col := spec.DateColumn
	if col == "" {
		col = "date"
	}
	cells, ok := target.Column(col)
	if !ok {
		return target.Len(), fmt.Sprintf("columna %s ausente", col)
	}
	runDate := e.now.Truncate(24 * time.Hour)
	var future, valid int
	var maxDate time.Time
	for _, c := range cells {
		d, ok := c.AsTime()
		if !ok {
			continue
		}
		valid++
		if d.After(maxDate) {
			maxDate = d
		}
		if d.After(runDate) {
			future++
		}
	}
	if valid == 0 {
		return target.Len(), "sin fechas válidas en la tabla"
	}
	if future > 0 {
		return future, fmt.Sprintf("%d filas con fecha posterior a %s (máxima %s); podrían ser proyecciones",
			future, runDate.Format("2006-01-02"), maxDate.Format("2006-01-02"))
	}
	return 0, fmt.Sprintf("fecha máxima %s", maxDate.Format("2006-01-02"))
}

func checkRequiredColumns(_ *Evaluator, spec RuleSpec, target *table.Table) (int, string) {
	var problems []string
	affected := map[int]bool{}
	for _, col := range spec.Columns {
		cells, ok := target.Column(col)
		if !ok {
			problems = append(problems, fmt.Sprintf("falta columna %s", col))
			for i := 0; i < target.Len(); i++ {
				affected[i] = true
			}
			continue
		}
		nulls := 0
		for i, c := range cells {
			if c.IsNull() {
				nulls++
				affected[i] = true
			}
		}
		if target.Len() > 0 {
			frac := float64(nulls) / float64(target.Len())
			if frac >= spec.Threshold {
				problems = append(problems, fmt.Sprintf("%s con %.1f%% nulos", col, frac*100))
			}
		}
	}
	if len(problems) == 0 {
		return 0, "todas las columnas clave presentes y pobladas"
	}
	return len(affected), strings.Join(problems, "; ")
}

func checkUniqueness(_ *Evaluator, spec RuleSpec, target *table.Table) (int, string) {
	keys := spec.KeyColumns
	if len(keys) == 0 {
		keys = []string{"country", "date"}
	}
	counts := make(map[string]int, target.Len())
	for i := 0; i < target.Len(); i++ {
		parts := make([]string, len(keys))
		for j, col := range keys {
			c, _ := target.Cell(i, col)
			parts[j] = c.Text()
		}
		counts[strings.Join(parts, "\x1f")]++
	}
	var dupRows, dupKeys int
	for _, n := range counts {
		if n > 1 {
			dupKeys++
			dupRows += n
		}
	}
	if dupRows == 0 {
		return 0, fmt.Sprintf("claves (%s) únicas", strings.Join(keys, ", "))
	}
	return dupRows, fmt.Sprintf("%d claves duplicadas afectando %d filas", dupKeys, dupRows)
}

func checkPositivePopulation(_ *Evaluator, spec RuleSpec, target *table.Table) (int, string) {
	col := spec.Column
	if col == "" {
		col = "population"
	}
	cells, ok := target.Column(col)
	if !ok {
		return 0, fmt.Sprintf("columna %s ausente; nada que validar", col)
	}
	violations := 0
	for _, c := range cells {
		if v, ok := c.AsNumber(); ok && v <= 0 {
			violations++
		}
	}
	if violations == 0 {
		return 0, "población positiva donde está presente"
	}
	return violations, fmt.Sprintf("%d filas con población no positiva", violations)
}

func checkBoundedRange(_ *Evaluator, spec RuleSpec, target *table.Table) (int, string) {
	cells, ok := target.Column(spec.Column)
	if !ok {
		return target.Len(), fmt.Sprintf("columna %s ausente", spec.Column)
	}
	var analyzed, out int
	for _, c := range cells {
		v, ok := c.AsNumber()
		if !ok {
			continue
		}
		if spec.IgnoreAbove > 0 && v >= spec.IgnoreAbove {
			continue
		}
		analyzed++
		if v < spec.Min || v > spec.Max {
			out++
		}
	}
	if analyzed == 0 {
		return 0, "sin valores analizables"
	}
	frac := float64(out) / float64(analyzed)
	if out == 0 {
		return 0, fmt.Sprintf("todos los valores en [%g, %g]", spec.Min, spec.Max)
	}
	return out, fmt.Sprintf("%d de %d valores (%.1f%%) fuera de [%g, %g]",
		out, analyzed, frac*100, spec.Min, spec.Max)
}

func checkCompleteness(_ *Evaluator, spec RuleSpec, target *table.Table) (int, string) {
	cells, ok := target.Column(spec.Column)
	if !ok {
		return target.Len(), fmt.Sprintf("columna %s ausente", spec.Column)
	}
	if target.Len() == 0 {
		return 0, "tabla vacía"
	}
	nulls := 0
	for _, c := range cells {
		if c.IsNull() {
			nulls++
		}
	}
	frac := 1 - float64(nulls)/float64(target.Len())
	if frac >= spec.Threshold {
		return 0, fmt.Sprintf("completitud %.1f%% (umbral %.0f%%)", frac*100, spec.Threshold*100)
	}
	return nulls, fmt.Sprintf("completitud %.1f%% bajo el umbral %.0f%%", frac*100, spec.Threshold*100)
}

func checkDistributionDiversity(_ *Evaluator, spec RuleSpec, target *table.Table) (int, string) {
	cells, ok := target.Column(spec.Column)
	if !ok {
		return target.Len(), fmt.Sprintf("columna %s ausente", spec.Column)
	}
	buckets := map[string]int{"decline": 0, "stable": 0, "growth": 0}
	analyzed := 0
	for _, c := range cells {
		v, ok := c.AsNumber()
		if !ok {
			continue
		}
		if spec.IgnoreAbove > 0 && v >= spec.IgnoreAbove {
			continue
		}
		analyzed++
		switch {
		case v < spec.StableLow:
			buckets["decline"]++
		case v > spec.StableHigh:
			buckets["growth"]++
		default:
			buckets["stable"]++
		}
	}
	if analyzed == 0 {
		return 0, "sin valores analizables"
	}

	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	var deficient []string
	affected := 0
	var shares []string
	for _, name := range names {
		share := float64(buckets[name]) / float64(analyzed)
		shares = append(shares, fmt.Sprintf("%s %.1f%%", name, share*100))
		if share < spec.MinShare {
			deficient = append(deficient, name)
			affected += buckets[name]
		}
	}
	notes := strings.Join(shares, ", ")
	if len(deficient) == 0 {
		return 0, "distribución balanceada: " + notes
	}
	if affected == 0 {
		// An empty bucket still violates the minimum share; report the
		// whole analyzed set as suspect of degeneracy.
		affected = analyzed
	}
	return affected, fmt.Sprintf("serie degenerada, cuotas bajo %.0f%% en %s (%s)",
		spec.MinShare*100, strings.Join(deficient, ", "), notes)
}

func checkTemporalOverlap(e *Evaluator, spec RuleSpec, target *table.Table) (int, string) {
	second, ok := e.tables[spec.SecondTarget]
	if !ok {
		return target.Len(), fmt.Sprintf("tabla %s ausente", spec.SecondTarget)
	}

	first := dateSetsByGroup(target, spec.GroupColumn, spec.DateColumn)
	other := dateSetsByGroup(second, spec.GroupColumn, spec.SecondDateColumn)

	groups := make([]string, 0, len(first))
	for g := range first {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	if len(groups) == 0 {
		return 0, "sin grupos que comparar"
	}

	var sum float64
	var disjoint int
	var parts []string
	for _, g := range groups {
		a, b := first[g], other[g]
		var shared, union int
		for d := range a {
			if b[d] {
				shared++
			}
		}
		union = len(a) + len(b) - shared
		frac := 0.0
		if union > 0 {
			frac = float64(shared) / float64(union)
		}
		sum += frac
		disjoint += union - shared
		parts = append(parts, fmt.Sprintf("%s %.1f%%", g, frac*100))
	}
	avg := sum / float64(len(groups))
	notes := fmt.Sprintf("solapamiento promedio %.1f%% (%s)", avg*100, strings.Join(parts, ", "))
	if avg >= spec.Threshold {
		return 0, notes
	}
	return disjoint, notes + fmt.Sprintf(", bajo el umbral %.0f%%", spec.Threshold*100)
}

func dateSetsByGroup(t *table.Table, groupCol, dateCol string) map[string]map[string]bool {
	out := make(map[string]map[string]bool)
	for i := 0; i < t.Len(); i++ {
		g, _ := t.Cell(i, groupCol)
		c, _ := t.Cell(i, dateCol)
		d, ok := c.AsTime()
		if !ok {
			continue
		}
		key := g.Text()
		if out[key] == nil {
			out[key] = make(map[string]bool)
		}
		out[key][d.Format("2006-01-02")] = true
	}
	return out
}
