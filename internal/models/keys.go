package models

import "strings"

// AnalysisKey derives the key the Dashboard API uses for analysis and chat state:
// the first two "/"-separated segments of a storage path.
func AnalysisKey(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	parts := strings.Split(path, "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "/")
}

// FirstFilePath returns the first usable file path of the session.
func FirstFilePath(s *Session) string {
	if s == nil {
		return ""
	}
	for _, f := range s.Files {
		if f.Path != "" && f.Path != "#" {
			return f.Path
		}
	}
	return ""
}

// SessionAnalysisKey is AnalysisKey of the session's first file, or the session id without files.
func SessionAnalysisKey(s *Session) string {
	if s == nil {
		return ""
	}
	if p := FirstFilePath(s); p != "" {
		return AnalysisKey(p)
	}
	return s.ID
}
