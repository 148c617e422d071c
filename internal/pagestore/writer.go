package pagestore

// PageWriter is the subset of VirtualStorage/ReplicaStorage that ApplySparseSet
// needs: a place to deposit a diff of changed pages.
type PageWriter interface {
	WritePage(idx Index, p Page)
}

// ApplySparseSet writes every page in set into w. Used to bridge the
// sqlengine page-diff (computed against the real SQLite file) into the
// replicated page store that journals, sync, and rebase actually operate
// on — standing in for the native VFS hook a custom SQLite build would use
// to call WritePage directly as statements execute.
func ApplySparseSet(w PageWriter, set *SparseSet) {
	for _, idx := range set.Indices() {
		p, _ := set.Get(idx)
		w.WritePage(idx, p)
	}
}
