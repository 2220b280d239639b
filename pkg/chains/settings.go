package chains

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CustomField is a writer-defined setting attached to the worldview or to a
// character.
type CustomField struct {
	Name    string `json:"custom_field_name,omitempty"`
	Content string `json:"custom_field_content,omitempty"`
}

// Synopsis describes the work as a whole.
type Synopsis struct {
	Genre   string `json:"genre,omitempty"`
	Length  string `json:"length,omitempty"`
	Purpose string `json:"purpose,omitempty"`
	Logline string `json:"logline,omitempty"`
	Example string `json:"example,omitempty"`
}

// Worldview holds the world-building notes.
type Worldview struct {
	Geography    string        `json:"geography,omitempty"`
	History      string        `json:"history,omitempty"`
	Politics     string        `json:"politics,omitempty"`
	Society      string        `json:"society,omitempty"`
	Religion     string        `json:"religion,omitempty"`
	Economy      string        `json:"economy,omitempty"`
	Technology   string        `json:"technology,omitempty"`
	Lifestyle    string        `json:"lifestyle,omitempty"`
	Language     string        `json:"language,omitempty"`
	Culture      string        `json:"culture,omitempty"`
	Species      string        `json:"species,omitempty"`
	Occupation   string        `json:"occupation,omitempty"`
	Conflict     string        `json:"conflict,omitempty"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
}

// Character is one entry of the cast.
type Character struct {
	Intro               string        `json:"intro,omitempty"`
	CharacterName       string        `json:"character_name,omitempty"`
	Age                 string        `json:"age,omitempty"`
	Gender              string        `json:"gender,omitempty"`
	CharacterOccupation string        `json:"character_occupation,omitempty"`
	Appearance          string        `json:"appearance,omitempty"`
	Personality         string        `json:"personality,omitempty"`
	Characteristic      string        `json:"characteristic,omitempty"`
	Relationship        string        `json:"relationship,omitempty"`
	CustomFields        []CustomField `json:"custom_fields,omitempty"`
}

// Plot is the outline text.
type Plot struct {
	Content string `json:"content,omitempty"`
}

// Ideanote is a free-form note.
type Ideanote struct {
	IdeaTitle   string `json:"idea_title,omitempty"`
	IdeaContent string `json:"idea_content,omitempty"`
}

// Settings is everything the writer has told us about the story. It is sent
// with every request and rendered into the prompts with XML.
type Settings struct {
	Synopsis   Synopsis    `json:"synopsis"`
	Worldview  Worldview   `json:"worldview"`
	Characters []Character `json:"character"`
	Plot       Plot        `json:"plot"`
	Ideanote   Ideanote    `json:"ideanote"`
}

type fields = orderedmap.OrderedMap[string, string]

// XML renders the settings as indented tags. Empty values are left out, as
// are sections with nothing in them. Characters become character_1,
// character_2 and so on.
//
// Example output, less the two spaces that indent every line:
//
//	<synopsis>
//	  <genre>SF, romance</genre>
//	</synopsis>
//	<character_1>
//	  <character_name>If</character_name>
//	</character_1>
func (s Settings) XML() string {
	var lines []string

	lines = appendSection(lines, "synopsis", s.Synopsis.fields(), nil)
	lines = appendSection(lines, "worldview", s.Worldview.fields(), s.Worldview.CustomFields)
	for i, c := range s.Characters {
		lines = appendSection(lines, fmt.Sprintf("character_%d", i+1), c.fields(), c.CustomFields)
	}
	lines = appendSection(lines, "plot", s.Plot.fields(), nil)
	lines = appendSection(lines, "ideanote", s.Ideanote.fields(), nil)

	return strings.Join(lines, "\n")
}

func appendSection(lines []string, tag string, f *fields, custom []CustomField) []string {
	var body []string
	for pair := f.Oldest(); pair != nil; pair = pair.Next() {
		if strings.TrimSpace(pair.Value) == "" {
			continue
		}
		body = append(body, fmt.Sprintf("    <%s>%s</%s>", pair.Key, pair.Value, pair.Key))
	}

	n := 0
	for _, cf := range custom {
		if strings.TrimSpace(cf.Name) == "" && strings.TrimSpace(cf.Content) == "" {
			continue
		}
		n++
		body = append(body, fmt.Sprintf("    <custom_field_%d>", n))
		if cf.Name != "" {
			body = append(body, "      <custom_field_name>"+cf.Name+"</custom_field_name>")
		}
		if cf.Content != "" {
			body = append(body, "      <custom_field_content>"+cf.Content+"</custom_field_content>")
		}
		body = append(body, fmt.Sprintf("    </custom_field_%d>", n))
	}

	if len(body) == 0 {
		return lines
	}
	lines = append(lines, "  <"+tag+">")
	lines = append(lines, body...)
	return append(lines, "  </"+tag+">")
}

func ordered(kv ...string) *fields {
	f := orderedmap.New[string, string]()
	for i := 0; i+1 < len(kv); i += 2 {
		f.Set(kv[i], kv[i+1])
	}
	return f
}

func (s Synopsis) fields() *fields {
	return ordered(
		"genre", s.Genre,
		"length", s.Length,
		"purpose", s.Purpose,
		"logline", s.Logline,
		"example", s.Example,
	)
}

func (w Worldview) fields() *fields {
	return ordered(
		"geography", w.Geography,
		"history", w.History,
		"politics", w.Politics,
		"society", w.Society,
		"religion", w.Religion,
		"economy", w.Economy,
		"technology", w.Technology,
		"lifestyle", w.Lifestyle,
		"language", w.Language,
		"culture", w.Culture,
		"species", w.Species,
		"occupation", w.Occupation,
		"conflict", w.Conflict,
	)
}

func (c Character) fields() *fields {
	return ordered(
		"intro", c.Intro,
		"character_name", c.CharacterName,
		"age", c.Age,
		"gender", c.Gender,
		"character_occupation", c.CharacterOccupation,
		"appearance", c.Appearance,
		"personality", c.Personality,
		"characteristic", c.Characteristic,
		"relationship", c.Relationship,
	)
}

func (p Plot) fields() *fields {
	return ordered("content", p.Content)
}

func (n Ideanote) fields() *fields {
	return ordered("idea_title", n.IdeaTitle, "idea_content", n.IdeaContent)
}
