package query

import (
	"strings"

	"github.com/smallnest/graphrag/rag/splitter"
)

// Item is one ranked line of a context section
type Item struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

// Context is the retrieved material of a query, each section ordered by rank
type Context struct {
	Entities      []Item `json:"entities,omitempty"`
	Relationships []Item `json:"relationships,omitempty"`
	Communities   []Item `json:"communities,omitempty"`
	Sources       []Item `json:"sources,omitempty"`
}

// Empty reports whether nothing was retrieved
func (c *Context) Empty() bool {
	return c == nil || len(c.Entities)+len(c.Relationships)+len(c.Communities)+len(c.Sources) == 0
}

// IDs returns the ids of a section's items in order
func IDs(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

// String renders the context for the answer prompt
func (c *Context) String() string {
	if c.Empty() {
		return ""
	}
	var b strings.Builder
	write := func(title string, items []Item) {
		if len(items) == 0 {
			return
		}
		b.WriteString("-----" + title + "-----\n")
		for _, it := range items {
			b.WriteString(it.Text)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	write("Entities", c.Entities)
	write("Relationships", c.Relationships)
	write("Communities", c.Communities)
	write("Sources", c.Sources)
	return strings.TrimRight(b.String(), "\n")
}

func (c *Context) sections() []*[]Item {
	// dropped first when ranks tie
	return []*[]Item{&c.Sources, &c.Communities, &c.Relationships, &c.Entities}
}

func (c *Context) tokens() int {
	n := 0
	for _, s := range c.sections() {
		for _, it := range *s {
			n += it.Tokens
		}
	}
	return n
}

func newItem(tok splitter.Tokenizer, id, text string) Item {
	return Item{ID: id, Text: text, Tokens: splitter.CountTokens(tok, text)}
}

// truncate keeps the longest prefix of items that fits in budget
func truncate(items []Item, budget int) []Item {
	total := 0
	for i, it := range items {
		total += it.Tokens
		if total > budget {
			return items[:i]
		}
	}
	return items
}

// fitTotal drops items until the context fits in budget. The victim is the
// item with the worst normalized rank (position / section length) across
// all sections.
func (c *Context) fitTotal(budget int) {
	for c.tokens() > budget {
		var victim *[]Item
		worst := -1.0
		for _, s := range c.sections() {
			n := len(*s)
			if n == 0 {
				continue
			}
			if r := float64(n-1) / float64(n); r > worst {
				worst, victim = r, s
			}
		}
		if victim == nil {
			return
		}
		*victim = (*victim)[:len(*victim)-1]
	}
}

// merge appends other's items not already present by id
func (c *Context) merge(other *Context) {
	if other == nil {
		return
	}
	mine, theirs := c.sections(), other.sections()
	for i := range mine {
		*mine[i] = dedupe(*mine[i], *theirs[i])
	}
}

func dedupe(a, b []Item) []Item {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]Item, 0, len(a)+len(b))
	for _, list := range [][]Item{a, b} {
		for _, it := range list {
			if !seen[it.ID] {
				seen[it.ID] = true
				out = append(out, it)
			}
		}
	}
	return out
}

func (c *Context) applyBudgets(p Param) {
	c.Entities = truncate(c.Entities, p.MaxTokenForLocalContext)
	c.Relationships = truncate(c.Relationships, p.MaxTokenForGlobalContext)
	c.Communities = truncate(c.Communities, p.MaxTokenForGlobalContext)
	c.Sources = truncate(c.Sources, p.MaxTokenForTextUnit)
	c.fitTotal(p.MaxTotalTokens)
}
