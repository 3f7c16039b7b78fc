// Package content holds the narrative text shown on each report tab.
package content

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var embedded []byte

type Item struct {
	Title string `yaml:"title"`
	Text  string `yaml:"text"`
}

// Block is a run of paragraphs or a numbered list under an optional heading.
// Text may contain text/template actions such as {{.Predicted}}.
type Block struct {
	ID         string   `yaml:"id"`
	Heading    string   `yaml:"heading"`
	Paragraphs []string `yaml:"paragraphs"`
	Items      []Item   `yaml:"items"`
}

type Tab struct {
	ID     string  `yaml:"id"`
	Title  string  `yaml:"title"`
	Blocks []Block `yaml:"blocks"`
}

type Content struct {
	Title string `yaml:"title"`
	Tabs  []Tab  `yaml:"tabs"`
}

var (
	defaultOnce    sync.Once
	defaultContent *Content
	defaultErr     error
)

// Default returns the embedded content, parsed once.
func Default() (*Content, error) {
	defaultOnce.Do(func() {
		defaultContent, defaultErr = Parse(embedded)
	})
	return defaultContent, defaultErr
}

// Parse decodes and checks a content document.
func Parse(data []byte) (*Content, error) {
	var c Content
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if len(c.Tabs) == 0 {
		return nil, errors.New("content has no tabs")
	}
	seen := make(map[string]bool)
	for _, t := range c.Tabs {
		if t.ID == "" || t.Title == "" {
			return nil, fmt.Errorf("tab %q: id and title are required", t.ID)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate tab %q", t.ID)
		}
		seen[t.ID] = true
	}
	return &c, nil
}

// Tab returns the tab with the given id.
func (c *Content) Tab(id string) (Tab, bool) {
	for _, t := range c.Tabs {
		if t.ID == id {
			return t, true
		}
	}
	return Tab{}, false
}

// Block returns the block with the given id.
func (t Tab) Block(id string) (Block, bool) {
	for _, b := range t.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return Block{}, false
}

// Render returns a copy of c with every template action executed against
// vars. Unknown keys render as an empty string.
func (c *Content) Render(vars map[string]string) (*Content, error) {
	out := &Content{Title: c.Title, Tabs: make([]Tab, len(c.Tabs))}
	for i, t := range c.Tabs {
		rt := Tab{ID: t.ID, Title: t.Title, Blocks: make([]Block, len(t.Blocks))}
		for j, b := range t.Blocks {
			rb, err := renderBlock(b, vars)
			if err != nil {
				return nil, fmt.Errorf("tab %s: %w", t.ID, err)
			}
			rt.Blocks[j] = rb
		}
		out.Tabs[i] = rt
	}
	return out, nil
}

func renderBlock(b Block, vars map[string]string) (Block, error) {
	out := Block{ID: b.ID, Heading: b.Heading}
	for _, p := range b.Paragraphs {
		s, err := expand(p, vars)
		if err != nil {
			return Block{}, fmt.Errorf("block %s: %w", b.ID, err)
		}
		out.Paragraphs = append(out.Paragraphs, s)
	}
	for _, it := range b.Items {
		s, err := expand(it.Text, vars)
		if err != nil {
			return Block{}, fmt.Errorf("block %s item %q: %w", b.ID, it.Title, err)
		}
		out.Items = append(out.Items, Item{Title: it.Title, Text: s})
	}
	return out, nil
}

func expand(text string, vars map[string]string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("").Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}
