package config

import "fmt"

// ServerNotFoundError indicates a name absent from every searched scope.
type ServerNotFoundError struct {
	Name string
}

func (e *ServerNotFoundError) Error() string {
	return fmt.Sprintf("server %q not found in any configuration scope", e.Name)
}

// InvalidNameError indicates a server name unusable as a document key.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid server name %q: %s", e.Name, e.Reason)
}

// DuplicateServerError indicates an add against a name already owned by a
// scope document. A name lives in at most one scope at a time.
type DuplicateServerError struct {
	Name  string
	Scope Scope
}

func (e *DuplicateServerError) Error() string {
	return fmt.Sprintf("server %q already exists in %s scope", e.Name, e.Scope)
}
