// Package faq serves the canned explanations and links the bot answers with.
package faq

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExplanationColor is the embed colour used for explanations.
const ExplanationColor = 0x4A90E2

//go:embed faq.yaml
var defaultData []byte

// Explanation is answered as an embed by a slash command of the same name.
type Explanation struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Link is answered as plain text by a prefix command or one of its aliases.
type Link struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	Text    string   `yaml:"text"`
}

type document struct {
	Explanations []Explanation `yaml:"explanations"`
	Links        []Link        `yaml:"links"`
}

// Catalog indexes explanations and links by name.
type Catalog struct {
	explanations map[string]Explanation
	links        map[string]Link
	order        []string
	sourceURL    string
}

// Load parses the built-in catalog. sourceURL fills the {source_url} placeholder.
func Load(sourceURL string) (*Catalog, error) {
	return Parse(defaultData, sourceURL)
}

// Parse builds a catalog from YAML.
func Parse(data []byte, sourceURL string) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse faq: %w", err)
	}

	c := &Catalog{
		explanations: make(map[string]Explanation, len(doc.Explanations)),
		links:        make(map[string]Link),
		sourceURL:    sourceURL,
	}

	for _, e := range doc.Explanations {
		if e.Name == "" || e.Title == "" {
			return nil, fmt.Errorf("explanation without name or title")
		}
		if _, dup := c.explanations[e.Name]; dup {
			return nil, fmt.Errorf("duplicate explanation: %s", e.Name)
		}
		c.explanations[e.Name] = e
		c.order = append(c.order, e.Name)
	}

	for _, l := range doc.Links {
		if l.Name == "" || l.Text == "" {
			return nil, fmt.Errorf("link without name or text")
		}
		for _, key := range append([]string{l.Name}, l.Aliases...) {
			key = strings.ToLower(key)
			if _, dup := c.links[key]; dup {
				return nil, fmt.Errorf("duplicate link name or alias: %s", key)
			}
			c.links[key] = l
		}
	}

	return c, nil
}

// Explanations returns explanations in file order.
func (c *Catalog) Explanations() []Explanation {
	out := make([]Explanation, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.explanations[name])
	}
	return out
}

// Explain returns the explanation registered under name.
func (c *Catalog) Explain(name string) (Explanation, bool) {
	e, ok := c.explanations[name]
	return e, ok
}

// Link resolves a command name or alias to the text to send.
func (c *Catalog) Link(name string) (string, bool) {
	l, ok := c.links[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return strings.ReplaceAll(l.Text, "{source_url}", c.sourceURL), true
}

// LinkNames lists every command name and alias, sorted.
func (c *Catalog) LinkNames() []string {
	names := make([]string, 0, len(c.links))
	for k := range c.links {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ParseCommand splits "<prefix><name> ..." into the command name. It returns
// false when content does not start with one of prefixes.
func ParseCommand(content string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if p == "" || !strings.HasPrefix(content, p) {
			continue
		}
		rest := strings.TrimPrefix(content, p)
		name, _, _ := strings.Cut(rest, " ")
		if name == "" {
			return "", false
		}
		return name, true
	}
	return "", false
}
