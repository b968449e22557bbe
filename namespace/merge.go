package namespace

// Merge unions fragment into target and returns the result. Neither input is
// modified: every branch on a touched path is copied.
//
// Where both sides hold a branch the two are merged recursively, so earlier
// siblings under a shared namespace survive. Where both sides hold a leaf the
// fragment wins; callers guarantee this only happens for an intentional
// replacement. A leaf meeting a branch is a *StructuralConflictError.
func Merge(target, fragment *Branch) (*Branch, error) {
	return merge(nil, target, fragment)
}

func merge(path []string, target, fragment *Branch) (*Branch, error) {
	out := target.clone()
	for _, k := range fragment.Keys() {
		at := append(path[:len(path):len(path)], k)
		fv := fragment.children[k]

		tv, exists := out.children[k]
		if !exists {
			out.children[k] = fv
			continue
		}

		tb, targetIsBranch := tv.(*Branch)
		fb, fragmentIsBranch := fv.(*Branch)
		switch {
		case targetIsBranch && fragmentIsBranch:
			merged, err := merge(at, tb, fb)
			if err != nil {
				return nil, err
			}
			out.children[k] = merged
		case targetIsBranch:
			return nil, &StructuralConflictError{Path: at, Existing: "namespace", Incoming: "leaf"}
		case fragmentIsBranch:
			return nil, &StructuralConflictError{Path: at, Existing: "leaf", Incoming: "namespace"}
		default:
			out.children[k] = fv
		}
	}
	return out, nil
}
