package pipeline

// Filter is the tagged union §9 calls for in place of the source's
// runtime-polymorphic "list or function" allow/deny value: either an
// explicit list (membership test) or a predicate, selected at
// option-construction time rather than inspected per call.
type Filter struct {
	list []string
	fn   func(string) bool
	set  bool
}

// FilterList builds a Filter that allows/denies by list membership.
func FilterList(items ...string) Filter {
	return Filter{list: items, set: true}
}

// FilterFunc builds a Filter that allows/denies by predicate.
func FilterFunc(fn func(string) bool) Filter {
	return Filter{fn: fn, set: true}
}

// IsZero reports whether the filter was never configured — an absent
// sub-filter (e.g. allow.audience undefined) skips its check entirely per
// §4.4.
func (f Filter) IsZero() bool { return !f.set }

// Allows reports whether the scalar claim v passes this filter.
func (f Filter) Allows(v string) bool {
	if f.fn != nil {
		return f.fn(v)
	}
	for _, item := range f.list {
		if item == v {
			return true
		}
	}
	return false
}

// AllowsAny reports whether any of vs passes this filter — used for the
// aud-list intersection test.
func (f Filter) AllowsAny(vs []string) bool {
	for _, v := range vs {
		if f.Allows(v) {
			return true
		}
	}
	return false
}

// Policy is the shape of both the allow and deny options: independent
// filters over audience, issuer, and subject.
type Policy struct {
	Audience Filter
	Issuers  Filter
	Subjects Filter
}
