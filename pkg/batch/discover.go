package batch

import (
	"strings"

	"tabpipe/pkg/table"
)

// selectFeatures picks the model input columns for a prepared training
// table. Explicit configuration wins; otherwise prefix/suffix discovery
// runs when patterns are configured; otherwise the feature spec outputs
// are used. The label, key and excluded columns are never selected.
func (r *Runner) selectFeatures(t *table.Table) []string {
	if len(r.cfg.FeatureColumns) > 0 {
		return r.cfg.FeatureColumns
	}

	drop := map[string]struct{}{}
	if r.cfg.LabelColumn != "" {
		drop[r.cfg.LabelColumn] = struct{}{}
	}
	if r.cfg.Keys.TimeKey != "" {
		drop[r.cfg.Keys.TimeKey] = struct{}{}
	}
	for _, name := range r.cfg.Keys.GroupKeys {
		drop[name] = struct{}{}
	}
	for _, name := range r.cfg.ExcludeColumns {
		drop[name] = struct{}{}
	}

	if len(r.cfg.FeaturePrefixes) > 0 || r.cfg.LagSuffix != "" {
		return discoverFeatures(t, drop, r.cfg.FeaturePrefixes, r.cfg.LagSuffix)
	}

	var out []string
	for _, s := range r.cfg.Specs {
		if _, excluded := drop[s.Name]; excluded {
			continue
		}
		if t.Has(s.Name) {
			out = append(out, s.Name)
		}
	}
	return out
}

// discoverFeatures returns numeric columns matching a configured prefix or
// the lag suffix, in table order.
func discoverFeatures(t *table.Table, drop map[string]struct{}, prefixes []string, lagSuffix string) []string {
	var out []string
	for _, c := range t.Columns() {
		if c.Kind != table.Numeric {
			continue
		}
		if _, excluded := drop[c.Name]; excluded {
			continue
		}
		if lagSuffix != "" && strings.HasSuffix(c.Name, lagSuffix) {
			out = append(out, c.Name)
			continue
		}
		for _, p := range prefixes {
			if strings.HasPrefix(c.Name, p) {
				out = append(out, c.Name)
				break
			}
		}
	}
	return out
}
