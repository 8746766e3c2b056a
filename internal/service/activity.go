package service

import (
	"strings"

	"github.com/nhasan/ghtracker/internal/model"
)

// FilterRepositories returns the repositories matching query, a
// case-insensitive substring match over name, description, language, owner
// login, and topics. An empty query returns the input unchanged.
func FilterRepositories(repos []model.Document, query string) []model.Document {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return repos
	}

	matched := make([]model.Document, 0, len(repos))
	for _, repo := range repos {
		if repositoryMatches(repo, query) {
			matched = append(matched, repo)
		}
	}
	return matched
}

func repositoryMatches(repo model.Document, query string) bool {
	for _, field := range []string{"name", "full_name", "description", "language"} {
		if strings.Contains(strings.ToLower(model.DocString(repo, field)), query) {
			return true
		}
	}

	if owner := model.DocNested(repo, "owner"); owner != nil {
		if strings.Contains(strings.ToLower(model.DocString(owner, "login")), query) {
			return true
		}
	}

	if topics, ok := repo["topics"].([]any); ok {
		for _, t := range topics {
			if s, ok := t.(string); ok && strings.Contains(strings.ToLower(s), query) {
				return true
			}
		}
	}

	return false
}
