package sitterscan

import "sort"

// Routes groups active queries by the file type they target. Keys are used
// verbatim; a query whose file type matches no extension is never dispatched.
type Routes map[string][]StructuralQuery

// RouteQueries partitions queries by FileType, keeping arrival order and
// duplicates.
func RouteQueries(queries []StructuralQuery) Routes {
	r := make(Routes)
	for _, q := range queries {
		r[q.FileType] = append(r[q.FileType], q)
	}
	return r
}

// For returns the queries targeting ext, a dot-prefixed lowercase extension
// as produced by grammar.ExtensionOf.
func (r Routes) For(ext string) []StructuralQuery {
	return r[ext]
}

// FileTypes returns the routed file types in sorted order.
func (r Routes) FileTypes() []string {
	out := make([]string, 0, len(r))
	for ft := range r {
		out = append(out, ft)
	}
	sort.Strings(out)
	return out
}
