package registry

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"code_insight", "codeinsight"},
		{"code-insight", "codeinsight"},
		{"code insight", "codeinsight"},
		{"CodeInsight", "codeinsight"},
		{"CODE_INSIGHT", "codeinsight"},
		{"", ""},
		{"simple", "simple"},
		{"mixed-case_with spaces", "mixedcasewithspaces"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalize(tt.input); got != tt.expected {
				t.Errorf("normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"read file", []string{"read", "file"}},
		{"read_file", []string{"read", "file"}},
		{"read-file", []string{"read", "file"}},
		{"read.file", []string{"read", "file"}},
		{"Read_File", []string{"read", "file"}},
		{"single", []string{"single"}},
		{"", nil},
		{"   ", nil},
	}

	for _, tt := range tests {
		got := tokenize(tt.input)
		if len(got) != len(tt.expected) {
			t.Errorf("tokenize(%q) = %v, want %v", tt.input, got, tt.expected)
			continue
		}
		for i := range got {
			if got[i] != tt.expected[i] {
				t.Errorf("tokenize(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.expected[i])
			}
		}
	}
}

func TestContainsAllTerms(t *testing.T) {
	if !containsAllTerms("read a file from disk", []string{"read", "file"}) {
		t.Error("expected all terms to be found")
	}
	if containsAllTerms("read a file", []string{"read", "database"}) {
		t.Error("expected a missing term to fail the check")
	}
	if !containsAllTerms("anything", nil) {
		t.Error("no terms should match anything")
	}
}

func TestToolIndex_Search_FuzzyMatching(t *testing.T) {
	idx := NewToolIndex()
	idx.Add("files", []ToolInfo{
		{Name: "read_file", Description: "Reads a file", Server: "files"},
		{Name: "search-content", Description: "Search file contents", Server: "files"},
		{Name: "getUser", Description: "Get user info", Server: "files"},
		{Name: "list_all_items", Description: "Lists all items", Server: "files"},
	})

	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{"underscore matches space", "read file", []string{"read_file"}},
		{"space matches underscore", "read_file", []string{"read_file"}},
		{"space matches hyphen", "search-content", []string{"search-content"}},
		{"case insensitive camelCase", "getuser", []string{"getUser"}},
		{"partial terms", "all items", []string{"list_all_items"}},
		{"no match", "nonexistent", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := idx.Search(tt.query, "")
			if len(results) != len(tt.expected) {
				t.Fatalf("Search(%q) returned %d results, want %d", tt.query, len(results), len(tt.expected))
			}
			names := make(map[string]bool)
			for _, r := range results {
				names[r.Name] = true
			}
			for _, want := range tt.expected {
				if !names[want] {
					t.Errorf("Search(%q) missing expected tool %q", tt.query, want)
				}
			}
		})
	}
}

func TestToolIndex_Search_EmptyQueryReturnsAll(t *testing.T) {
	idx := NewToolIndex()
	idx.Add("files", []ToolInfo{
		{Name: "read_file", Server: "files"},
		{Name: "write_file", Server: "files"},
	})
	idx.Add("web", []ToolInfo{
		{Name: "fetch", Server: "web"},
	})

	results := idx.Search("", "")
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// Deterministic order: server, then tool name.
	if results[0].Name != "read_file" || results[1].Name != "write_file" || results[2].Name != "fetch" {
		t.Errorf("unexpected order: %v", results)
	}
}

func TestToolIndex_Search_ServerFilter(t *testing.T) {
	idx := NewToolIndex()
	idx.Add("files", []ToolInfo{{Name: "read_file", Server: "files"}})
	idx.Add("web", []ToolInfo{{Name: "read_page", Server: "web"}})

	results := idx.Search("read", "web")
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Name != "read_page" {
		t.Errorf("expected read_page, got %q", results[0].Name)
	}

	if got := idx.Search("", "files"); len(got) != 1 || got[0].Name != "read_file" {
		t.Errorf("empty query with server filter: got %v", got)
	}
}

func TestToolIndex_Search_Ranking(t *testing.T) {
	idx := NewToolIndex()
	idx.Add("test", []ToolInfo{
		{Name: "search", Description: "Basic search", Server: "test"},
		{Name: "search_advanced", Description: "Advanced search with filters", Server: "test"},
		{Name: "find", Description: "Find things using search patterns", Server: "test"},
		{Name: "locate", Description: "Locate items in the system", Server: "test"},
	})

	results := idx.Search("search", "")

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d: %v", len(results), results)
	}
	if results[0].Name != "search" {
		t.Errorf("expected exact match 'search' first, got %q", results[0].Name)
	}
	if results[1].Name != "search_advanced" {
		t.Errorf("expected prefix match 'search_advanced' second, got %q", results[1].Name)
	}
	if results[2].Name != "find" {
		t.Errorf("expected description match 'find' last, got %q", results[2].Name)
	}
}

func TestToolIndex_Search_MultiTermAcrossServerAndTool(t *testing.T) {
	idx := NewToolIndex()
	idx.Add("github", []ToolInfo{
		{Name: "create_issue", Description: "Create an issue in a repository", Server: "github"},
		{Name: "search_code", Description: "Search code across repositories", Server: "github"},
	})
	idx.Add("linear", []ToolInfo{
		{Name: "create_ticket", Description: "Create a ticket", Server: "linear"},
	})

	results := idx.Search("github issue", "")
	if len(results) == 0 {
		t.Fatal("expected results for cross server+tool query")
	}
	if results[0].Name != "create_issue" {
		t.Errorf("expected create_issue first, got %q", results[0].Name)
	}
}

func TestToolIndex_Search_ServerNameRanksItsTools(t *testing.T) {
	idx := NewToolIndex()
	idx.Add("github", []ToolInfo{
		{Name: "search_code", Server: "github"},
		{Name: "create_issue", Server: "github"},
	})
	idx.Add("other", []ToolInfo{
		{Name: "github_helper", Description: "Helper for github", Server: "other"},
	})

	results := idx.Search("github", "")
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i := 0; i < 2; i++ {
		if results[i].Server != "github" {
			t.Errorf("expected result %d to come from the github server, got %q", i, results[i].Server)
		}
	}
}

func TestToolIndex_Search_DescriptionMatching(t *testing.T) {
	idx := NewToolIndex()
	idx.Add("files", []ToolInfo{
		{Name: "analyze", Description: "Provides code_insight analysis", Server: "files"},
		{Name: "helper", Description: "General helper", Server: "files"},
	})

	results := idx.Search("code insight", "")
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Name != "analyze" {
		t.Errorf("expected analyze, got %q", results[0].Name)
	}
}

func TestToolIndex_AddReplacesListing(t *testing.T) {
	idx := NewToolIndex()
	idx.Add("files", []ToolInfo{{Name: "old_tool", Server: "files"}})
	idx.Add("files", []ToolInfo{{Name: "new_tool", Server: "files"}})

	if got := idx.CountForServer("files"); got != 1 {
		t.Fatalf("expected 1 tool after replace, got %d", got)
	}
	if _, ok := idx.GetTool("files", "old_tool"); ok {
		t.Error("old listing should be gone")
	}
	if _, ok := idx.GetTool("files", "new_tool"); !ok {
		t.Error("new listing should be present")
	}
}

func TestToolIndex_Remove(t *testing.T) {
	idx := NewToolIndex()
	idx.Add("files", []ToolInfo{{Name: "read_file", Server: "files"}})
	idx.Remove("files")

	if got := idx.CountForServer("files"); got != 0 {
		t.Errorf("expected 0 tools, got %d", got)
	}
	if got := idx.Search("read_file", ""); len(got) != 0 {
		t.Errorf("expected no search results, got %v", got)
	}
	// Removing twice is harmless.
	idx.Remove("files")
}

func TestToolIndex_NamesForServer_Sorted(t *testing.T) {
	idx := NewToolIndex()
	idx.Add("files", []ToolInfo{
		{Name: "write_file", Server: "files"},
		{Name: "read_file", Server: "files"},
	})

	names := idx.NamesForServer("files")
	if len(names) != 2 || names[0] != "read_file" || names[1] != "write_file" {
		t.Errorf("unexpected names: %v", names)
	}
	if got := idx.NamesForServer("ghost"); len(got) != 0 {
		t.Errorf("unknown server should have no names, got %v", got)
	}
}

func TestToolIndex_ToolsForServer_ReturnsCopy(t *testing.T) {
	idx := NewToolIndex()
	idx.Add("files", []ToolInfo{{Name: "read_file", Server: "files"}})

	tools := idx.ToolsForServer("files")
	tools[0].Name = "mutated"

	if _, ok := idx.GetTool("files", "read_file"); !ok {
		t.Error("mutating the returned slice must not affect the index")
	}
}

func TestToolIndex_All_SortedByServerThenName(t *testing.T) {
	idx := NewToolIndex()
	idx.Add("web", []ToolInfo{{Name: "fetch", Server: "web"}})
	idx.Add("files", []ToolInfo{
		{Name: "write_file", Server: "files"},
		{Name: "read_file", Server: "files"},
	})

	all := idx.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(all))
	}
	want := []string{"read_file", "write_file", "fetch"}
	for i, name := range want {
		if all[i].Name != name {
			t.Errorf("position %d: got %q, want %q", i, all[i].Name, name)
		}
	}
}

func TestToolIndex_GetTool(t *testing.T) {
	idx := NewToolIndex()
	idx.Add("files", []ToolInfo{{Name: "read_file", Description: "Reads", Server: "files"}})

	tool, ok := idx.GetTool("files", "read_file")
	if !ok {
		t.Fatal("expected tool to be found")
	}
	if tool.Description != "Reads" {
		t.Errorf("unexpected description %q", tool.Description)
	}

	if _, ok := idx.GetTool("files", "nope"); ok {
		t.Error("unknown tool should not be found")
	}
	if _, ok := idx.GetTool("ghost", "read_file"); ok {
		t.Error("unknown server should not be found")
	}
}
