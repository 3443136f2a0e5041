package document

// FieldSet is the resolved set of field names a detail lookup should load.
type FieldSet map[string]struct{}

// RequiredFields are always loaded regardless of the caller's projection.
var RequiredFields = []string{FieldIdentifier, FieldYear}

// Project resolves a field projection: (include - exclude) union the
// required fields. An empty include list means all content fields.
func Project(include, exclude []string) FieldSet {
	if len(include) == 0 {
		include = ContentFields
	}

	excluded := make(map[string]struct{}, len(exclude))
	for _, f := range exclude {
		excluded[f] = struct{}{}
	}

	set := make(FieldSet, len(include)+len(RequiredFields))
	for _, f := range include {
		if _, skip := excluded[f]; !skip {
			set[f] = struct{}{}
		}
	}
	for _, f := range RequiredFields {
		set[f] = struct{}{}
	}
	return set
}

// Contains reports whether the set includes the field.
func (s FieldSet) Contains(field string) bool {
	_, ok := s[field]
	return ok
}

// Stored returns the engine field names to request for this projection:
// plain names for uncompressed fields, the compressed twin for content
// fields, plus the corpus field which is stored in clear for parsing.
func (s FieldSet) Stored() []string {
	compressed := make(map[string]struct{}, len(ContentFields))
	for _, f := range ContentFields {
		compressed[f] = struct{}{}
	}

	names := make([]string, 0, len(s)+1)
	for f := range s {
		if _, ok := compressed[f]; ok {
			names = append(names, f+CompressedSuffix)
		} else {
			names = append(names, f)
		}
	}
	names = append(names, FieldCorpus)
	return names
}
