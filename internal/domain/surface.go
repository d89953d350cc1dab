package domain

import (
	"fmt"
	"strings"
	"time"
)

// Field is a named block of a rendering
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Rendering is the display-ready form of a leaderboard
type Rendering struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
	Footer string  `json:"footer,omitempty"`
}

// Text flattens the rendering into plain text
func (r Rendering) Text() string {
	var b strings.Builder
	b.WriteString(r.Title)
	b.WriteByte('\n')
	for _, f := range r.Fields {
		if strings.Contains(f.Value, "\n") {
			fmt.Fprintf(&b, "%s:\n%s\n", f.Name, f.Value)
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value)
	}
	if r.Footer != "" {
		b.WriteString(r.Footer)
		b.WriteByte('\n')
	}
	return b.String()
}

// SurfaceMessage is a rendering stored on a leaderboard surface
type SurfaceMessage struct {
	SurfaceRef
	AuthorID  string    `json:"author_id"`
	Content   Rendering `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
