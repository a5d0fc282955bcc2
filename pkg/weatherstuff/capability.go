package weatherstuff

// Capability describes what a module can process and what resources it requires.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
	Metadata         map[string]string
}

// InterestSet describes event selection criteria for capability negotiation.
type InterestSet struct {
	// Kinds restricts delivery to listed event kinds; empty accepts every kind.
	Kinds []EventKind
	// Sources restricts delivery to listed event sources; empty accepts every source.
	Sources []EventSource
	// RequireInlineQuery accepts only events carrying an inline query payload.
	RequireInlineQuery bool
}

// Matches reports whether an event satisfies the declared interest set.
func (i InterestSet) Matches(event *Event) bool {
	if event == nil {
		return false
	}
	if len(i.Kinds) > 0 && !containsKind(i.Kinds, event.Kind) {
		return false
	}
	if len(i.Sources) > 0 && !containsSource(i.Sources, event.Source) {
		return false
	}
	if i.RequireInlineQuery && event.InlineQuery == nil {
		return false
	}

	return true
}

// containsKind reports whether target is present in kinds.
func containsKind(kinds []EventKind, target EventKind) bool {
	for _, candidate := range kinds {
		if candidate == target {
			return true
		}
	}

	return false
}

// containsSource reports whether target matches one source reference.
// Empty fields in a reference act as wildcards.
func containsSource(sources []EventSource, target EventSource) bool {
	for _, candidate := range sources {
		if candidate.Platform != "" && candidate.Platform != target.Platform {
			continue
		}
		if candidate.ID != "" && candidate.ID != target.ID {
			continue
		}
		return true
	}

	return false
}
