package registry

import (
	"sort"
	"strings"
	"sync"
)

// Relevance weights. Higher ranks first.
const (
	scoreExactName    = 1000 // query is the tool name
	scoreServerName   = 800  // query is the owning server's name
	scoreNamePrefix   = 300  // tool name starts with the query
	scoreTermsInName  = 200  // every query term appears in the tool name
	scoreTermsCrossed = 150  // every term appears across server + tool name
	scoreTermsInDesc  = 100  // every query term appears in the description
	scoreTermPerName  = 50   // per term found in the tool name
	scoreTermPerDesc  = 25   // per term found in the description
	scoreFuzzy        = 10   // separator-insensitive substring fallback
)

// normalize strips separators so "code_insight", "code-insight", and
// "code insight" all compare equal.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// tokenize splits a query into lowercase terms on common separators.
func tokenize(s string) []string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, ".", " ")
	return strings.Fields(s)
}

func containsAllTerms(text string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}

func countMatchingTerms(text string, terms []string) int {
	count := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			count++
		}
	}
	return count
}

// ToolIndex holds the tool listings of connected servers for search and
// lookup without another network round trip.
type ToolIndex struct {
	mu       sync.RWMutex
	byServer map[string][]ToolInfo
}

func NewToolIndex() *ToolIndex {
	return &ToolIndex{byServer: make(map[string][]ToolInfo)}
}

// Add replaces the tool listing for a server.
func (idx *ToolIndex) Add(server string, tools []ToolInfo) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byServer[server] = tools
}

// Remove drops a server's tools from the index.
func (idx *ToolIndex) Remove(server string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.byServer, server)
}

type scoredTool struct {
	tool  ToolInfo
	score int
}

// Search ranks tools against a query, optionally restricted to one server.
// An empty query returns everything in scope. Ranking prefers exact tool
// names, then server names, then prefix and term matches, with a
// separator-insensitive substring check as the last resort.
func (idx *ToolIndex) Search(query, server string) []ToolInfo {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if query == "" {
		var results []ToolInfo
		for srv, tools := range idx.byServer {
			if server != "" && srv != server {
				continue
			}
			results = append(results, tools...)
		}
		sortTools(results)
		return results
	}

	queryLower := strings.ToLower(query)
	queryNorm := normalize(query)
	queryTerms := tokenize(query)

	var scored []scoredTool
	for srv, tools := range idx.byServer {
		if server != "" && srv != server {
			continue
		}
		srvLower := strings.ToLower(srv)
		for _, tool := range tools {
			if score := scoreTool(tool, srv, srvLower, queryLower, queryNorm, queryTerms); score > 0 {
				scored = append(scored, scoredTool{tool: tool, score: score})
			}
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].tool.Server != scored[j].tool.Server {
			return scored[i].tool.Server < scored[j].tool.Server
		}
		return scored[i].tool.Name < scored[j].tool.Name
	})

	results := make([]ToolInfo, len(scored))
	for i, s := range scored {
		results[i] = s.tool
	}
	return results
}

func scoreTool(tool ToolInfo, server, srvLower, queryLower, queryNorm string, queryTerms []string) int {
	nameLower := strings.ToLower(tool.Name)
	descLower := strings.ToLower(tool.Description)
	nameNorm := normalize(tool.Name)

	score := 0

	if nameLower == queryLower || nameNorm == queryNorm {
		score += scoreExactName
	}
	if srvLower == queryLower || normalize(server) == queryNorm {
		score += scoreServerName
	}
	if strings.HasPrefix(nameLower, queryLower) || strings.HasPrefix(nameNorm, queryNorm) {
		score += scoreNamePrefix
	}

	if len(queryTerms) > 0 {
		if containsAllTerms(nameLower, queryTerms) {
			score += scoreTermsInName
		}
		if containsAllTerms(srvLower+" "+nameLower, queryTerms) {
			score += scoreTermsCrossed
		}
		if containsAllTerms(descLower, queryTerms) {
			score += scoreTermsInDesc
		}
		score += countMatchingTerms(nameLower, queryTerms) * scoreTermPerName
		score += countMatchingTerms(descLower, queryTerms) * scoreTermPerDesc
	}

	if score == 0 {
		if strings.Contains(nameLower, queryLower) ||
			strings.Contains(descLower, queryLower) ||
			strings.Contains(nameNorm, queryNorm) ||
			strings.Contains(normalize(tool.Description), queryNorm) {
			score += scoreFuzzy
		}
	}
	return score
}

// CountForServer returns how many tools a server exposes.
func (idx *ToolIndex) CountForServer(server string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byServer[server])
}

// NamesForServer returns a server's tool names, sorted.
func (idx *ToolIndex) NamesForServer(server string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	tools := idx.byServer[server]
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	sort.Strings(names)
	return names
}

// ToolsForServer returns a copy of a server's tool listing.
func (idx *ToolIndex) ToolsForServer(server string) []ToolInfo {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	tools := idx.byServer[server]
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	sortTools(out)
	return out
}

// All returns every indexed tool, sorted by server then name.
func (idx *ToolIndex) All() []ToolInfo {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var all []ToolInfo
	for _, tools := range idx.byServer {
		all = append(all, tools...)
	}
	sortTools(all)
	return all
}

// GetTool looks one tool up by server and name.
func (idx *ToolIndex) GetTool(server, tool string) (ToolInfo, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for _, t := range idx.byServer[server] {
		if t.Name == tool {
			return t, true
		}
	}
	return ToolInfo{}, false
}

func sortTools(tools []ToolInfo) {
	sort.Slice(tools, func(i, j int) bool {
		if tools[i].Server != tools[j].Server {
			return tools[i].Server < tools[j].Server
		}
		return tools[i].Name < tools[j].Name
	})
}
