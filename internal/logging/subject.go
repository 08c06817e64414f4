package logging

import "strings"

// FormatSubject builds the role/job/stage subject string used in console output,
// for example "Vision · Job 3f2a (decode)".
func FormatSubject(role, jobID, stage string) string {
	role = strings.TrimSpace(role)
	jobID = shortJobID(strings.TrimSpace(jobID))
	stage = strings.TrimSpace(stage)
	parts := make([]string, 0, 2)
	if role != "" {
		parts = append(parts, strings.ToUpper(role[:1])+strings.ToLower(role[1:]))
	}
	switch {
	case jobID != "" && stage != "":
		parts = append(parts, "Job "+jobID+" ("+stage+")")
	case jobID != "":
		parts = append(parts, "Job "+jobID)
	case stage != "":
		parts = append(parts, stage)
	}
	return strings.Join(parts, " · ")
}

// shortJobID trims UUID-style identifiers to their first group.
func shortJobID(id string) string {
	if len(id) == 36 && strings.Count(id, "-") == 4 {
		return id[:8]
	}
	return id
}
