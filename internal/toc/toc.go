// Package toc loads the library table of contents shown in the sheet
// editor's source picker.
package toc

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Node is either a category (with Contents) or a text (Title only).
type Node struct {
	Category string `yaml:"category,omitempty" json:"category,omitempty"`
	Title    string `yaml:"title,omitempty" json:"title,omitempty"`
	Contents []Node `yaml:"contents,omitempty" json:"contents,omitempty"`
}

// Provider reads the file on first use and serves the cached tree after.
type Provider struct {
	path string
	once sync.Once
	toc  []Node
}

func NewProvider(path string) *Provider {
	return &Provider{path: path}
}

// TOC returns the tree, or an empty one when the file is missing or invalid.
func (p *Provider) TOC() []Node {
	p.once.Do(func() {
		nodes, err := Load(p.path)
		if err != nil {
			log.Printf("toc: %v", err)
			nodes = []Node{}
		}
		p.toc = nodes
	})
	return p.toc
}

func Load(path string) ([]Node, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []Node{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]Node, error) {
	var nodes []Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parse toc: %w", err)
	}
	if nodes == nil {
		nodes = []Node{}
	}
	for i := range nodes {
		if err := validate(nodes[i]); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

func validate(node Node) error {
	if node.Category == "" && node.Title == "" {
		return errors.New("parse toc: entry needs a category or a title")
	}
	for _, child := range node.Contents {
		if err := validate(child); err != nil {
			return err
		}
	}
	return nil
}
