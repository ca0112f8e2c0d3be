package dieselxr

// ExtensionSet tracks the extensions (or layers) an object wants, the ones it
// requires and the ones the platform actually offers. Required entries that are
// missing fail construction; missing wanted entries are dropped with a warning.
type ExtensionSet struct {
	wanted   []string
	required []string
	actual   []string
}

func NewExtensionSet(wanted, required, actual []string) *ExtensionSet {
	return &ExtensionSet{
		wanted:   wanted,
		required: required,
		actual:   actual,
	}
}

// Require adds names to the required set, skipping duplicates.
func (e *ExtensionSet) Require(names ...string) {
	for _, n := range names {
		if !contains(e.required, n) {
			e.required = append(e.required, n)
		}
	}
}

func (e *ExtensionSet) HasRequired() (bool, []string) {
	missing := e.missing(e.required)
	return len(missing) == 0, missing
}

func (e *ExtensionSet) HasWanted() (bool, []string) {
	missing := e.missing(e.wanted)
	return len(missing) == 0, missing
}

// GetExtensions returns every required name followed by the wanted names the
// platform offers.
func (e *ExtensionSet) GetExtensions() []string {
	implement := make([]string, 0, len(e.required)+len(e.wanted))
	implement = append(implement, e.required...)

	for _, want := range e.wanted {
		if contains(implement, want) || !contains(e.actual, want) {
			continue
		}
		implement = append(implement, want)
	}
	return implement
}

func (e *ExtensionSet) missing(names []string) []string {
	missing := []string{}
	for _, n := range names {
		if !contains(e.actual, n) {
			missing = append(missing, n)
		}
	}
	return missing
}

func contains(list []string, name string) bool {
	for _, l := range list {
		if l == name {
			return true
		}
	}
	return false
}
