package pubsub

import "errors"

// GroupNewClips notifies subscribers when a new clip is posted.
const GroupNewClips = "group42"

// knownGroups is the table of valid broadcast groups. Registrations against
// any other name are rejected, so a typo cannot silently create a dead group.
var knownGroups = map[string]struct{}{
	GroupNewClips: {},
}

var ErrUnknownGroup = errors.New("unknown subscription group")

// ValidGroup reports whether name is a known broadcast group.
func ValidGroup(name string) bool {
	_, ok := knownGroups[name]
	return ok
}
