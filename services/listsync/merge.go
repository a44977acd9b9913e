package listsync

import "github.com/mailvault/mailvault/internal/models"

// mergeMessages unions two lists by message identity. Existing entries keep
// their position and are refreshed with the incoming copy; entries only in
// the incoming list are appended in their incoming order. Merging a list
// with itself returns the same list.
func mergeMessages(existing, incoming []models.Message) []models.Message {
	if len(existing) == 0 {
		return incoming
	}
	if len(incoming) == 0 {
		return existing
	}

	incomingByIdentity := make(map[string]*models.Message, len(incoming))
	for i := range incoming {
		if identity := incoming[i].Identity(); identity != "" {
			incomingByIdentity[identity] = &incoming[i]
		}
	}

	merged := make([]models.Message, 0, len(existing)+len(incoming))
	seen := make(map[string]bool, len(existing))
	for i := range existing {
		identity := existing[i].Identity()
		if identity == "" {
			continue
		}
		seen[identity] = true
		if fresh, ok := incomingByIdentity[identity]; ok {
			merged = append(merged, *fresh)
		} else {
			merged = append(merged, existing[i])
		}
	}
	for i := range incoming {
		identity := incoming[i].Identity()
		if identity == "" || seen[identity] {
			continue
		}
		seen[identity] = true
		merged = append(merged, incoming[i])
	}
	return merged
}

// identitySet collects the non-empty identities of a list.
func identitySet(messages []models.Message) map[string]bool {
	set := make(map[string]bool, len(messages))
	for i := range messages {
		if identity := messages[i].Identity(); identity != "" {
			set[identity] = true
		}
	}
	return set
}

// excludeIdentities filters out messages whose identity is in the set.
func excludeIdentities(messages []models.Message, exclude map[string]bool) []models.Message {
	if len(exclude) == 0 {
		return messages
	}
	kept := make([]models.Message, 0, len(messages))
	for i := range messages {
		if exclude[messages[i].Identity()] {
			continue
		}
		kept = append(kept, messages[i])
	}
	return kept
}
