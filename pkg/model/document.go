package model

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Document is the dependency-package graph produced by the external source parser.
// It is the input of the view pipeline.
type Document struct {
	Packages []Package `json:"packages"`
}

// Package is a unit of distribution (npm package, Go module, ...)
type Package struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Path         string              `json:"path,omitempty"`
	Dependencies []PackageDependency `json:"dependencies,omitempty"`
	Modules      []Module            `json:"modules,omitempty"`
}

// PackageDependency is a manifest-level dependency on another package.
// Type is one of dependency, devDependency or peerDependency.
type PackageDependency struct {
	Target string   `json:"target"` // Package ID
	Type   EdgeType `json:"type"`
}

// Module is a single source file
type Module struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	RelativePath     string            `json:"relativePath"` // Relative to the package root
	Imports          []Import          `json:"imports,omitempty"`
	Exports          []Export          `json:"exports,omitempty"`
	Classes          []Class           `json:"classes,omitempty"`
	Interfaces       []Interface       `json:"interfaces,omitempty"`
	SymbolReferences []SymbolReference `json:"symbol_references,omitempty"`
}

// Import is a module-level import. External imports refer to packages outside
// the document and never become edges.
type Import struct {
	Target   string `json:"target,omitempty"` // Module ID for internal imports
	Package  string `json:"package,omitempty"`
	External bool   `json:"external,omitempty"`
}

// Export is a re-export of another module.
type Export struct {
	Target string `json:"target"` // Module ID
}

// Class is a class declared in a module
type Class struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Extends    []string `json:"extends,omitempty"`    // Class IDs
	Implements []string `json:"implements,omitempty"` // Interface IDs
	Methods    []string `json:"methods,omitempty"`
	Properties []string `json:"properties,omitempty"`
}

// Interface is an interface declared in a module
type Interface struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Extends []string `json:"extends,omitempty"` // Interface IDs
}

// SymbolReference records that one symbol uses a method or property of another.
type SymbolReference struct {
	Source string `json:"source"` // Class or interface ID
	Target string `json:"target"` // Class or interface ID
	Kind   string `json:"kind"`   // "method" or "property"
}

// ModuleCount returns the number of modules across all packages
func (d *Document) ModuleCount() int {
	n := 0
	for _, p := range d.Packages {
		n += len(p.Modules)
	}
	return n
}

// ReadDocument decodes a JSON document
func ReadDocument(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &doc, nil
}

// LoadDocument reads a JSON document from path
func LoadDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()
	return ReadDocument(f)
}
